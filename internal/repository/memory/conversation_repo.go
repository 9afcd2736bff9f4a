package memory

import (
	"context"
	"time"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/repository"
)

type ConversationRepo struct {
	s *Store
}

func (r *ConversationRepo) CreateIfAbsent(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error) {
	if err := checkCtx(ctx, "creating conversation"); err != nil {
		return nil, false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.s.conversations[conv.ID]; ok {
		return copyConversation(existing), false, nil
	}
	stored := copyConversation(conv)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.s.clock()
	}
	r.s.conversations[conv.ID] = stored
	return copyConversation(stored), true, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	if err := checkCtx(ctx, "getting conversation"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	conv, ok := r.s.conversations[id]
	if !ok {
		return nil, domain.NotFound("conversation", id)
	}
	return copyConversation(conv), nil
}

func (r *ConversationRepo) ListByParticipant(ctx context.Context, slot repository.ParticipantSlot, userID string) ([]domain.Conversation, error) {
	if err := checkCtx(ctx, "listing conversations"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var convs []domain.Conversation
	for _, conv := range r.s.conversations {
		id := conv.Participant1ID
		if slot == repository.SecondParticipant {
			id = conv.Participant2ID
		}
		if id == userID {
			convs = append(convs, *copyConversation(conv))
		}
	}
	return convs, nil
}

func (r *ConversationRepo) RecordMessage(ctx context.Context, id, text string, ts time.Time) error {
	if err := checkCtx(ctx, "recording message"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	conv, ok := r.s.conversations[id]
	if !ok {
		return domain.NotFound("conversation", id)
	}
	conv.RecordMessage(text, ts)
	return nil
}

func copyConversation(c *domain.Conversation) *domain.Conversation {
	out := *c
	if c.LastMessage != nil {
		text := *c.LastMessage
		out.LastMessage = &text
	}
	if c.LastMessageTimestamp != nil {
		ts := *c.LastMessageTimestamp
		out.LastMessageTimestamp = &ts
	}
	if c.PostID != nil {
		post := *c.PostID
		out.PostID = &post
	}
	return &out
}
