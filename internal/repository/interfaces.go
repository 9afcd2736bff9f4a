package repository

import (
	"context"
	"time"

	"github.com/vedran77/textswap/internal/domain"
)

// ParticipantSlot selects which participant column a lookup matches on.
// Stores without compound OR queries answer one slot per call.
type ParticipantSlot int

const (
	FirstParticipant ParticipantSlot = iota
	SecondParticipant
)

func (s ParticipantSlot) String() string {
	if s == FirstParticipant {
		return "participant1"
	}
	return "participant2"
}

type UserRepository interface {
	Upsert(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// MessageRepository is the append-only message log. Append assigns the
// timestamp and resets IsRead; the caller supplies everything else.
type MessageRepository interface {
	Append(ctx context.Context, msg *domain.Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error)
	// MarkRead flips every unread message addressed to readerID in one
	// batch and returns how many changed.
	MarkRead(ctx context.Context, conversationID, readerID string) (int, error)
	// ListUnread returns unread messages for receiverID in ascending order.
	// A non-nil since drops anything older.
	ListUnread(ctx context.Context, receiverID string, since *time.Time) ([]domain.Message, error)
}

type ConversationRepository interface {
	// CreateIfAbsent stores conv unless a record with the same id exists.
	// It returns the stored record and whether it was created by this call.
	CreateIfAbsent(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error)
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	ListByParticipant(ctx context.Context, slot ParticipantSlot, userID string) ([]domain.Conversation, error)
	RecordMessage(ctx context.Context, id, text string, ts time.Time) error
}

type ReviewRepository interface {
	// RunInTx runs fn atomically. If fn returns an error nothing it wrote is
	// kept. Contention surfaces as domain.ErrConflict.
	RunInTx(ctx context.Context, fn func(tx RatingTx) error) error
	GetByID(ctx context.Context, id string) (*domain.Review, error)
	GetSummary(ctx context.Context, userID string) (*domain.UserRatingSummary, error)
	HasReviewed(ctx context.Context, reviewerID, reviewedUserID string) (bool, error)
	ListByReviewedUser(ctx context.Context, userID string, limit int) ([]domain.Review, error)
	ListByBook(ctx context.Context, bookID string, limit int) ([]domain.Review, error)
	IncrementHelpful(ctx context.Context, id string) (*domain.Review, error)
	Report(ctx context.Context, id, reason string, at time.Time) (*domain.Review, error)
}

// RatingTx is the view of the store inside a rating transaction.
type RatingTx interface {
	GetSummary(ctx context.Context, userID string) (*domain.UserRatingSummary, error)
	// PutSummary writes s if the stored version still equals s.Version,
	// then bumps s.Version.
	PutSummary(ctx context.Context, s *domain.UserRatingSummary) error
	GetReview(ctx context.Context, id string) (*domain.Review, error)
	HasReviewed(ctx context.Context, reviewerID, reviewedUserID string) (bool, error)
	CreateReview(ctx context.Context, r *domain.Review) error
	// UpdateReview persists rating, comment and updated_at only.
	UpdateReview(ctx context.Context, r *domain.Review) error
}
