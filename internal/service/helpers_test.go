package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/repository"
	"github.com/vedran77/textswap/internal/repository/memory"
	"github.com/vedran77/textswap/pkg/logger"
)

var errUnreachable = errors.New("connection refused")

// flakyConversations fails every call with a transport error while down.
type flakyConversations struct {
	repository.ConversationRepository
	down atomic.Bool
}

func (f *flakyConversations) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	if f.down.Load() {
		return nil, domain.Transport("getting conversation", errUnreachable)
	}
	return f.ConversationRepository.GetByID(ctx, id)
}

func (f *flakyConversations) ListByParticipant(ctx context.Context, slot repository.ParticipantSlot, userID string) ([]domain.Conversation, error) {
	if f.down.Load() {
		return nil, domain.Transport("listing conversations", errUnreachable)
	}
	return f.ConversationRepository.ListByParticipant(ctx, slot, userID)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []domain.Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, msg *domain.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, *msg)
	return p.err
}

type fixture struct {
	store     *memory.Store
	convs     *flakyConversations
	directory *DirectoryService
	messages  *MessageService
	ratings   *RatingService
	users     *UserService
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewNop()
	store := memory.New()
	convs := &flakyConversations{ConversationRepository: store.Conversations()}

	directory, err := NewDirectoryService(convs, 16, log)
	require.NoError(t, err)
	messages, err := NewMessageService(store.Messages(), directory, 16, log)
	require.NoError(t, err)
	publisher := &recordingPublisher{}
	messages.SetPublisher(publisher)

	ratings := NewRatingService(store.Reviews(), store.Users(), 3, log)
	ratings.newBackOff = fastBackOff

	return &fixture{
		store:     store,
		convs:     convs,
		directory: directory,
		messages:  messages,
		ratings:   ratings,
		users:     NewUserService(store.Users()),
		publisher: publisher,
	}
}

func (f *fixture) addUser(t *testing.T, id, name string) {
	t.Helper()
	_, err := f.users.UpsertProfile(context.Background(), id, UpdateProfileInput{DisplayName: name})
	require.NoError(t, err)
}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}
