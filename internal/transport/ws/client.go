package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/live"
	"github.com/vedran77/textswap/internal/service"
	"github.com/vedran77/textswap/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256

	inboundRate  = rate.Limit(10)
	inboundBurst = 20
)

var errHubStopped = errors.New("websocket hub stopped")

// ConversationAccess checks that a user may observe a conversation.
type ConversationAccess interface {
	Get(ctx context.Context, userID, conversationID string) (*domain.Conversation, error)
}

// Client represents a single WebSocket connection.
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	userID  string
	live    *live.Hub
	access  ConversationAccess
	limiter *rate.Limiter
	log     *logger.Logger

	mu            sync.Mutex
	conversations map[string]*live.Subscription
	inbox         *live.Subscription

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string, liveHub *live.Hub, access ConversationAccess, log *logger.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:            id,
		hub:           hub,
		conn:          conn,
		userID:        userID,
		live:          liveHub,
		access:        access,
		limiter:       rate.NewLimiter(inboundRate, inboundBurst),
		log:           log.With(zap.String("user_id", userID), zap.String("client_id", id)),
		conversations: make(map[string]*live.Subscription),
		send:          make(chan []byte, sendBufSize),
		done:          make(chan struct{}),
	}
}

func (c *Client) observer() live.Observer {
	return live.Observer{ID: c.id, UserID: c.userID}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue hands data to the write pump without blocking. It reports false
// when the buffer is full.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

// ReadPump reads client events until the socket closes. It owns the
// client's subscriptions and releases them on the way out.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.cancelAll()
		c.hub.Unregister(c)
		c.close()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		var event Event
		err := wsjson.Read(ctx, c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				c.log.Debug("client disconnected")
			} else {
				c.log.Warn("read error", zap.Error(err))
			}
			return
		}

		if !c.limiter.Allow() {
			c.sendError("RATE_LIMITED", "too many events, slow down")
			continue
		}
		c.handleEvent(ctx, &event)
	}
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(wctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.log.Debug("write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.log.Debug("ping error", zap.Error(err))
				return
			}

		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(ctx context.Context, event *Event) {
	switch event.Type {
	case EventTypeConversationSubscribe:
		convID, ok := c.conversationID(event)
		if !ok {
			return
		}
		if _, err := c.access.Get(ctx, c.userID, convID); err != nil {
			c.sendAccessError(err)
			return
		}
		sub := c.live.SubscribeConversation(c.observer(), convID)
		c.mu.Lock()
		c.conversations[convID] = sub
		c.mu.Unlock()
		go c.forward(sub)

	case EventTypeConversationUnsubscribe:
		convID, ok := c.conversationID(event)
		if !ok {
			return
		}
		c.mu.Lock()
		sub := c.conversations[convID]
		delete(c.conversations, convID)
		c.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}

	case EventTypeInboxSubscribe:
		sub := c.live.SubscribeInbox(c.observer())
		c.mu.Lock()
		c.inbox = sub
		c.mu.Unlock()
		go c.forward(sub)

	case EventTypeInboxUnsubscribe:
		c.mu.Lock()
		sub := c.inbox
		c.inbox = nil
		c.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}

	case EventTypePing:
		c.sendEvent(EventTypePong, "", nil)

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

// conversationID reads the target conversation from the envelope or, failing
// that, from the payload.
func (c *Client) conversationID(event *Event) (string, bool) {
	if event.ConversationID != "" {
		return event.ConversationID, true
	}
	var p ConversationPayload
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid "+event.Type+" payload")
			return "", false
		}
	}
	if p.ConversationID == "" {
		c.sendError("INVALID_PAYLOAD", "conversation_id required for "+event.Type)
		return "", false
	}
	return p.ConversationID, true
}

// forward relays a subscription's events to the socket until the
// subscription ends. A blocked socket backs up into the subscription's
// own queue, which cuts the subscription off once it overflows.
func (c *Client) forward(sub *live.Subscription) {
	for ev := range sub.Events() {
		data, err := json.Marshal(toWire(ev))
		if err != nil {
			c.log.Error("marshal live event", zap.Error(err))
			continue
		}
		select {
		case c.send <- data:
		case <-c.done:
			sub.Cancel()
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if convID := sub.ConversationID(); convID != "" {
		if c.conversations[convID] == sub {
			delete(c.conversations, convID)
		}
	} else if c.inbox == sub {
		c.inbox = nil
	}
}

func (c *Client) cancelAll() {
	c.mu.Lock()
	subs := make([]*live.Subscription, 0, len(c.conversations)+1)
	for _, sub := range c.conversations {
		subs = append(subs, sub)
	}
	if c.inbox != nil {
		subs = append(subs, c.inbox)
	}
	clear(c.conversations)
	c.inbox = nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

func toWire(ev live.Event) *Event {
	out := &Event{
		Type:           string(ev.Type),
		ConversationID: ev.ConversationID,
		Timestamp:      time.Now().Unix(),
	}
	var payload any
	switch ev.Type {
	case live.EventSnapshot:
		payload = SnapshotPayload{Messages: ev.Messages}
	case live.EventMessage:
		if ev.Message != nil {
			payload = MessagePayload{Message: *ev.Message}
		}
	case live.EventDegraded:
		reason := "connection lost"
		if ev.Err != nil {
			reason = ev.Err.Error()
		}
		payload = DegradedPayload{Reason: reason}
	}
	if payload != nil {
		out.Payload, _ = json.Marshal(payload)
	}
	return out
}

func (c *Client) sendAccessError(err error) {
	switch {
	case errors.Is(err, service.ErrNotParticipant):
		c.sendError("FORBIDDEN", "you are not a participant of this conversation")
	case errors.Is(err, domain.ErrNotFound):
		c.sendError("NOT_FOUND", "conversation not found")
	case errors.Is(err, domain.ErrValidation):
		c.sendError("INVALID_PAYLOAD", err.Error())
	default:
		c.log.Warn("conversation lookup failed", zap.Error(err))
		c.sendError("UNAVAILABLE", "conversation lookup failed, try again")
	}
}

func (c *Client) sendEvent(eventType, conversationID string, payload any) {
	evt, err := NewEvent(eventType, conversationID, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *Client) sendError(code, message string) {
	c.sendEvent(EventTypeError, "", ErrorPayload{Code: code, Message: message})
}
