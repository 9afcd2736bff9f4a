package live

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/notify"
	"github.com/vedran77/textswap/pkg/logger"
	"github.com/vedran77/textswap/pkg/metrics"
)

const notifyTimeout = 5 * time.Second

// Hub tracks live subscriptions and turns delivered messages into events.
// A receiver without an open view of the conversation gets a notification
// through the bridge instead.
type Hub struct {
	source        MessageSource
	conversations ConversationLookup
	names         NameResolver
	bridge        notify.Bridge
	maxPending    int
	log           *logger.Logger

	mu             sync.Mutex
	byConversation map[string]map[*Subscription]struct{}
	byInbox        map[string]map[*Subscription]struct{}
	byKey          map[subKey]*Subscription
	degraded       error
	closed         bool

	notifications sync.WaitGroup
}

type HubConfig struct {
	Source        MessageSource
	Conversations ConversationLookup
	Names         NameResolver
	Bridge        notify.Bridge
	MaxPending    int
}

func NewHub(cfg HubConfig, log *logger.Logger) *Hub {
	if cfg.MaxPending < 1 {
		cfg.MaxPending = 256
	}
	return &Hub{
		source:         cfg.Source,
		conversations:  cfg.Conversations,
		names:          cfg.Names,
		bridge:         cfg.Bridge,
		maxPending:     cfg.MaxPending,
		log:            log.Named("live"),
		byConversation: make(map[string]map[*Subscription]struct{}),
		byInbox:        make(map[string]map[*Subscription]struct{}),
		byKey:          make(map[subKey]*Subscription),
	}
}

// SubscribeConversation streams the full message list of a conversation,
// starting with the current one. It replaces any subscription the observer
// already holds for the same conversation.
func (h *Hub) SubscribeConversation(obs Observer, conversationID string) *Subscription {
	sub := h.subscribe(subKey{observerID: obs.ID, kind: kindConversation, target: conversationID}, obs)
	sub.markDirty()
	return sub
}

// SubscribeInbox streams unread messages addressed to the observer's user
// that arrive after this call.
func (h *Hub) SubscribeInbox(obs Observer) *Subscription {
	return h.subscribe(subKey{observerID: obs.ID, kind: kindInbox, target: obs.UserID}, obs)
}

func (h *Hub) subscribe(key subKey, obs Observer) *Subscription {
	sub := newSubscription(h, key, obs)
	// Store timestamps have microsecond precision.
	sub.subscribedAt = time.Now().Truncate(time.Microsecond)

	h.mu.Lock()
	for {
		if h.closed {
			h.mu.Unlock()
			sub.stop()
			close(sub.out)
			close(sub.exited)
			return sub
		}
		previous := h.byKey[key]
		if previous == nil {
			break
		}
		h.mu.Unlock()
		previous.Cancel()
		h.mu.Lock()
	}

	h.byKey[key] = sub
	index := h.byConversation
	if key.kind == kindInbox {
		index = h.byInbox
	}
	if index[key.target] == nil {
		index[key.target] = make(map[*Subscription]struct{})
	}
	index[key.target][sub] = struct{}{}
	if h.degraded != nil {
		sub.push(Event{Type: EventDegraded, ConversationID: sub.ConversationID(), Err: h.degraded})
	}
	metrics.ActiveSubscriptions.WithLabelValues(string(key.kind)).Inc()
	h.mu.Unlock()

	go sub.run()
	return sub
}

func (h *Hub) detach(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.byKey[sub.key] != sub {
		return
	}
	delete(h.byKey, sub.key)
	index := h.byConversation
	if sub.key.kind == kindInbox {
		index = h.byInbox
	}
	delete(index[sub.key.target], sub)
	if len(index[sub.key.target]) == 0 {
		delete(index, sub.key.target)
	}
	metrics.ActiveSubscriptions.WithLabelValues(string(sub.key.kind)).Dec()
}

// Deliver fans msg out to subscribers. It never blocks on consumers.
func (h *Hub) Deliver(msg *domain.Message) {
	h.mu.Lock()
	for sub := range h.byConversation[msg.ConversationID] {
		sub.markDirty()
	}
	viewing := h.viewingLocked(msg.ReceiverID, msg.ConversationID)
	for sub := range h.byInbox[msg.ReceiverID] {
		sub.offer(msg)
	}
	closed := h.closed
	if !viewing && !closed && h.bridge != nil {
		h.notifications.Add(1)
	}
	h.mu.Unlock()

	if !viewing && !closed && h.bridge != nil {
		m := *msg
		go h.notify(&m)
	}
}

// viewingLocked reports whether userID has the conversation open anywhere.
func (h *Hub) viewingLocked(userID, conversationID string) bool {
	for sub := range h.byConversation[conversationID] {
		if sub.observer.UserID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) notify(msg *domain.Message) {
	defer h.notifications.Done()

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	n := notify.Notification{
		RecipientID:    msg.ReceiverID,
		ConversationID: msg.ConversationID,
		SenderName:     domain.UnknownUserName,
		Subject:        msg.Text,
	}
	if h.names != nil {
		n.SenderName = h.names.DisplayName(ctx, msg.SenderID)
	}
	if h.conversations != nil {
		if conv, err := h.conversations.Lookup(ctx, msg.ConversationID); err == nil && conv.PostID != nil {
			n.Subject = *conv.PostID
		}
	}

	if err := h.bridge.Notify(ctx, n); err != nil {
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		h.log.Warn("notification failed", zap.String("recipient_id", n.RecipientID), zap.Error(err))
	}
}

// ConnectionLost tells every subscriber that updates may be missing.
func (h *Hub) ConnectionLost(err error) {
	metrics.BrokerConnected.Set(0)
	h.log.Warn("live connection lost", zap.Error(err))

	h.mu.Lock()
	defer h.mu.Unlock()
	h.degraded = err
	for _, sub := range h.byKey {
		sub.push(Event{Type: EventDegraded, ConversationID: sub.ConversationID(), Err: err})
	}
}

// ConnectionRestored signals recovery and resynchronises every
// subscription from the store.
func (h *Hub) ConnectionRestored() {
	metrics.BrokerConnected.Set(1)
	h.log.Info("live connection restored")

	h.mu.Lock()
	defer h.mu.Unlock()
	h.degraded = nil
	for _, sub := range h.byKey {
		sub.push(Event{Type: EventRestored, ConversationID: sub.ConversationID()})
		if sub.key.kind == kindConversation {
			sub.markDirty()
		} else {
			sub.markResync()
		}
	}
}

// Close cancels every subscription and waits for pending notifications.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscription, 0, len(h.byKey))
	for _, sub := range h.byKey {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	h.notifications.Wait()
}

// Active returns the number of live subscriptions.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byKey)
}
