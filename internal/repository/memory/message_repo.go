package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vedran77/textswap/internal/domain"
)

type MessageRepo struct {
	s *Store
}

func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	if err := checkCtx(ctx, "appending message"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.conversations[msg.ConversationID]; !ok {
		return domain.NotFound("conversation", msg.ConversationID)
	}

	// Timestamps increase within a conversation and within a receiver's
	// inbox.
	ts := r.s.clock()
	thread := r.s.messages[msg.ConversationID]
	if n := len(thread); n > 0 {
		ts = after(ts, thread[n-1].Timestamp)
	}
	if last, ok := r.s.lastReceived[msg.ReceiverID]; ok {
		ts = after(ts, last)
	}
	r.s.lastReceived[msg.ReceiverID] = ts
	msg.Timestamp = ts
	msg.IsRead = false

	stored := *msg
	r.s.messages[msg.ConversationID] = append(thread, &stored)
	return nil
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if err := checkCtx(ctx, "listing messages"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	thread := r.s.messages[conversationID]
	out := make([]domain.Message, 0, len(thread))
	for _, m := range thread {
		out = append(out, *m)
	}
	return out, nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, readerID string) (int, error) {
	if err := checkCtx(ctx, "marking messages read"); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	changed := 0
	for _, m := range r.s.messages[conversationID] {
		if m.ReceiverID == readerID && !m.IsRead {
			m.IsRead = true
			changed++
		}
	}
	return changed, nil
}

func (r *MessageRepo) ListUnread(ctx context.Context, receiverID string, since *time.Time) ([]domain.Message, error) {
	if err := checkCtx(ctx, "listing unread messages"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Message
	for _, thread := range r.s.messages {
		for _, m := range thread {
			if m.ReceiverID != receiverID || m.IsRead {
				continue
			}
			if since != nil && m.Timestamp.Before(*since) {
				continue
			}
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return domain.MessageBefore(&out[i], &out[j]) })
	return out, nil
}

func after(ts, last time.Time) time.Time {
	if ts.After(last) {
		return ts
	}
	return last.Add(time.Microsecond)
}
