// Package memory is an in-process implementation of the repository
// interfaces. It backs tests and the fixture mode of the server.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vedran77/textswap/internal/domain"
)

type Option func(*Store)

// WithClock replaces time.Now for timestamp assignment.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store holds every record behind a single RWMutex. Rating transactions are
// additionally serialized by txMu so they never observe each other half way.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	now  func() time.Time

	users         map[string]*domain.User
	summaries     map[string]*domain.UserRatingSummary
	conversations map[string]*domain.Conversation
	messages      map[string][]*domain.Message
	lastReceived  map[string]time.Time
	reviews       map[string]*domain.Review
	reviewOrder   []string
}

func New(opts ...Option) *Store {
	s := &Store{
		now:           time.Now,
		users:         make(map[string]*domain.User),
		summaries:     make(map[string]*domain.UserRatingSummary),
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string][]*domain.Message),
		lastReceived:  make(map[string]time.Time),
		reviews:       make(map[string]*domain.Review),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Users() *UserRepo                 { return &UserRepo{s: s} }
func (s *Store) Messages() *MessageRepo           { return &MessageRepo{s: s} }
func (s *Store) Conversations() *ConversationRepo { return &ConversationRepo{s: s} }
func (s *Store) Reviews() *ReviewRepo             { return &ReviewRepo{s: s} }

// checkCtx wraps a finished context with the operation it interrupted.
func checkCtx(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

type UserRepo struct {
	s *Store
}

func (r *UserRepo) Upsert(ctx context.Context, user *domain.User) error {
	if err := checkCtx(ctx, "upserting user"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.clock()
	if existing, ok := r.s.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else {
		user.CreatedAt = now
		r.s.summaries[user.ID] = &domain.UserRatingSummary{UserID: user.ID}
	}
	user.UpdatedAt = now
	u := *user
	r.s.users[user.ID] = &u
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := checkCtx(ctx, "getting user"); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.NotFound("user", id)
	}
	out := *u
	return &out, nil
}
