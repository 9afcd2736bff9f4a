package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/repository"
	"github.com/vedran77/textswap/pkg/logger"
	"github.com/vedran77/textswap/pkg/metrics"
)

type DirectoryService struct {
	convRepo  repository.ConversationRepository
	lastKnown *lru.Cache[string, []domain.Conversation]
	log       *logger.Logger
}

func NewDirectoryService(convRepo repository.ConversationRepository, cacheSize int, log *logger.Logger) (*DirectoryService, error) {
	cache, err := lru.New[string, []domain.Conversation](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating conversation cache: %w", err)
	}
	return &DirectoryService{
		convRepo:  convRepo,
		lastKnown: cache,
		log:       log.Named("directory"),
	}, nil
}

type ConversationListResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
	// Stale is set when the store was unreachable and the last known list
	// was served instead.
	Stale bool `json:"stale"`
}

// GetOrCreate returns the conversation between two users, creating it on
// first contact. Racing creators converge on the same record.
func (s *DirectoryService) GetOrCreate(ctx context.Context, a, b string, postID *string) (*domain.Conversation, error) {
	p1, p2, err := domain.OrderParticipants(a, b)
	if err != nil {
		return nil, err
	}

	conv, created, err := s.convRepo.CreateIfAbsent(ctx, &domain.Conversation{
		ID:             p1 + domain.ConversationIDSeparator + p2,
		Participant1ID: p1,
		Participant2ID: p2,
		PostID:         postID,
	})
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	if created {
		metrics.ConversationsCreated.Inc()
		s.log.Debug("conversation created", zap.String("conversation_id", conv.ID))
	}
	return conv, nil
}

// Get returns a conversation the user takes part in.
func (s *DirectoryService) Get(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	conv, err := s.Lookup(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Involves(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// Lookup fetches a conversation without a membership check.
func (s *DirectoryService) Lookup(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	return s.convRepo.GetByID(ctx, conversationID)
}

// ListForUser merges the two participant lookups, drops duplicates and
// sorts by last activity, newest first, with silent conversations last.
func (s *DirectoryService) ListForUser(ctx context.Context, userID string) (*ConversationListResponse, error) {
	var first, second []domain.Conversation

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		first, err = s.convRepo.ListByParticipant(gctx, repository.FirstParticipant, userID)
		return err
	})
	g.Go(func() error {
		var err error
		second, err = s.convRepo.ListByParticipant(gctx, repository.SecondParticipant, userID)
		return err
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, domain.ErrTransport) {
			if cached, ok := s.lastKnown.Get(userID); ok {
				metrics.StaleReads.WithLabelValues("conversations").Inc()
				s.log.Warn("serving last known conversations", zap.String("user_id", userID), zap.Error(err))
				return &ConversationListResponse{Conversations: cached, Stale: true}, nil
			}
		}
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	convs := MergeConversations(first, second)
	s.lastKnown.Add(userID, convs)
	return &ConversationListResponse{Conversations: convs}, nil
}

// RecordMessage moves the conversation summary to msg. The sort position
// only changes on the next ListForUser.
func (s *DirectoryService) RecordMessage(ctx context.Context, msg *domain.Message) error {
	return s.convRepo.RecordMessage(ctx, msg.ConversationID, msg.Text, msg.Timestamp)
}

// MergeConversations deduplicates by id and sorts by last message time
// descending. Conversations without messages go last, ordered by id.
func MergeConversations(lists ...[]domain.Conversation) []domain.Conversation {
	seen := make(map[string]struct{})
	merged := []domain.Conversation{}
	for _, list := range lists {
		for _, conv := range list {
			if _, dup := seen[conv.ID]; dup {
				continue
			}
			seen[conv.ID] = struct{}{}
			merged = append(merged, conv)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i].LastMessageTimestamp, merged[j].LastMessageTimestamp
		switch {
		case a == nil && b == nil:
			return merged[i].ID < merged[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return merged[i].ID < merged[j].ID
		default:
			return a.After(*b)
		}
	})
	return merged
}
