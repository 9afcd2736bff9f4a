package live

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/pkg/metrics"
)

type kind string

const (
	kindConversation kind = "conversation"
	kindInbox        kind = "inbox"
)

// reorderWindow is how far behind the newest delivered message an inbox
// still accepts a late arrival. Brokers deliver from several instances, so
// publish order and timestamp order can disagree.
const reorderWindow = 30 * time.Second

type subKey struct {
	observerID string
	kind       kind
	target     string
}

// Subscription is a cancellable stream of events. Events are produced by a
// dedicated goroutine so slow consumers never block publishers.
type Subscription struct {
	hub      *Hub
	key      subKey
	observer Observer

	out    chan Event
	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu         sync.Mutex
	queue      []Event
	overflowed bool

	// conversation
	dirty   bool
	lastLen int

	// inbox
	subscribedAt time.Time
	lastTS       time.Time
	delivered    map[string]time.Time
	resync       bool
}

func newSubscription(h *Hub, key subKey, obs Observer) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	return &Subscription{
		hub:        h,
		key:        key,
		observer:   obs,
		out:        make(chan Event),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		exited:     make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		delivered:  make(map[string]time.Time),
	}
}

// Events is closed once the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

func (s *Subscription) ConversationID() string {
	if s.key.kind == kindConversation {
		return s.key.target
	}
	return ""
}

// Cancel ends the subscription. Once it returns nothing more is sent on
// Events. Calling it again is a no-op.
func (s *Subscription) Cancel() {
	s.stop()
	<-s.exited
}

func (s *Subscription) stop() {
	s.once.Do(func() {
		s.hub.detach(s)
		s.cancel()
		close(s.done)
	})
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushLocked(ev)
}

func (s *Subscription) pushLocked(ev Event) {
	if s.overflowed {
		return
	}
	if len(s.queue) >= s.hub.maxPending {
		s.overflowed = true
		s.queue = []Event{{Type: EventDegraded, ConversationID: s.ConversationID(), Err: ErrSubscriberOverflow, final: true}}
		s.signal()
		return
	}
	s.queue = append(s.queue, ev)
	s.signal()
}

func (s *Subscription) markDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) markResync() {
	s.mu.Lock()
	s.resync = true
	s.mu.Unlock()
	s.signal()
}

// offer queues an inbox message unless it was already delivered or falls
// behind the reorder window.
func (s *Subscription) offer(msg *domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acceptLocked(msg) {
		return
	}
	m := *msg
	s.pushLocked(Event{Type: EventMessage, ConversationID: m.ConversationID, Message: &m})
}

func (s *Subscription) acceptLocked(msg *domain.Message) bool {
	if _, seen := s.delivered[msg.ID]; seen {
		return false
	}
	// IDs older than the horizon have been forgotten, so a repeat could
	// not be told apart from a first arrival.
	if msg.Timestamp.Before(s.horizonLocked()) {
		s.hub.log.Warn("dropping inbox message behind reorder window",
			zap.String("user_id", s.observer.UserID), zap.String("message_id", msg.ID))
		return false
	}

	s.delivered[msg.ID] = msg.Timestamp
	if msg.Timestamp.After(s.lastTS) {
		s.lastTS = msg.Timestamp
		horizon := s.horizonLocked()
		for id, ts := range s.delivered {
			if ts.Before(horizon) {
				delete(s.delivered, id)
			}
		}
	}
	return true
}

func (s *Subscription) horizonLocked() time.Time {
	if s.lastTS.IsZero() {
		return time.Time{}
	}
	return s.lastTS.Add(-reorderWindow)
}

func (s *Subscription) run() {
	defer close(s.exited)
	defer close(s.out)

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			ev, ok := s.next()
			if !ok {
				break
			}
			select {
			case s.out <- ev:
				metrics.LiveEventsDelivered.WithLabelValues(string(ev.Type)).Inc()
			case <-s.done:
				return
			}
			if ev.final {
				s.stop()
				return
			}
		}
	}
}

// next returns the next event to send, fetching a snapshot or catching up
// the inbox when needed.
func (s *Subscription) next() (Event, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, true
		}
		switch {
		case s.dirty:
			s.dirty = false
			s.mu.Unlock()
			if ev, ok := s.snapshot(); ok {
				return ev, true
			}
		case s.resync:
			s.resync = false
			s.mu.Unlock()
			s.catchUp()
		default:
			s.mu.Unlock()
			return Event{}, false
		}
	}
}

func (s *Subscription) snapshot() (Event, bool) {
	convID := s.key.target
	messages, err := s.hub.source.ListByConversation(s.ctx, convID)
	if err != nil {
		if s.ctx.Err() == nil {
			s.hub.log.Warn("loading snapshot", zap.String("conversation_id", convID), zap.Error(err))
			return Event{Type: EventDegraded, ConversationID: convID, Err: err}, true
		}
		return Event{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A shorter list than one already sent is an older read; drop it.
	if len(messages) < s.lastLen {
		return Event{}, false
	}
	s.lastLen = len(messages)
	return Event{Type: EventSnapshot, ConversationID: convID, Messages: messages}, true
}

func (s *Subscription) catchUp() {
	s.mu.Lock()
	since := s.subscribedAt
	if horizon := s.horizonLocked(); horizon.After(since) {
		since = horizon
	}
	s.mu.Unlock()

	missed, err := s.hub.source.ListUnread(s.ctx, s.observer.UserID, &since)
	if err != nil {
		if s.ctx.Err() == nil {
			s.hub.log.Warn("inbox catch-up", zap.String("user_id", s.observer.UserID), zap.Error(err))
			s.push(Event{Type: EventDegraded, Err: err})
		}
		return
	}
	for i := range missed {
		s.offer(&missed[i])
	}
}
