package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/repository"
	"github.com/vedran77/textswap/pkg/logger"
	"github.com/vedran77/textswap/pkg/metrics"
	"github.com/vedran77/textswap/pkg/validator"
)

// Publisher fans a stored message out to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, msg *domain.Message) error
}

type MessageService struct {
	messageRepo repository.MessageRepository
	directory   *DirectoryService
	publisher   Publisher
	lastKnown   *lru.Cache[string, []domain.Message]
	receivers   stripedLock
	log         *logger.Logger
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	directory *DirectoryService,
	cacheSize int,
	log *logger.Logger,
) (*MessageService, error) {
	cache, err := lru.New[string, []domain.Message](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating message cache: %w", err)
	}
	return &MessageService{
		messageRepo: messageRepo,
		directory:   directory,
		lastKnown:   cache,
		log:         log.Named("messages"),
	}, nil
}

// SetPublisher sets the live-update publisher (optional dependency).
func (s *MessageService) SetPublisher(p Publisher) {
	s.publisher = p
}

type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
	Stale    bool             `json:"stale"`
}

type UnreadResponse struct {
	Count    int              `json:"count"`
	Messages []domain.Message `json:"messages"`
}

// Append stores a message, moves the conversation summary and publishes the
// message. Appends to the same receiver are serialized so their inbox sees
// them in timestamp order.
func (s *MessageService) Append(ctx context.Context, conversationID, senderID, receiverID, text string) (*domain.Message, error) {
	if err := validationError(validator.ValidateMessage(conversationID, senderID, receiverID, text)); err != nil {
		return nil, err
	}

	conv, err := s.directory.Lookup(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Involves(senderID) {
		return nil, ErrNotParticipant
	}
	if conv.OtherParticipant(senderID) != receiverID {
		return nil, domain.InvalidField("receiver_id", "Receiver is not part of this conversation")
	}

	unlock := s.receivers.lock(receiverID)
	defer unlock()

	msg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Text:           text,
	}
	if err := s.messageRepo.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	metrics.MessagesAppended.Inc()

	// The message is durable from here on. Later failures are logged so the
	// caller does not resend it.
	if err := s.directory.RecordMessage(ctx, msg); err != nil {
		s.log.Error("recording conversation summary",
			zap.String("conversation_id", conversationID), zap.String("message_id", msg.ID), zap.Error(err))
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, msg); err != nil {
			metrics.PublishFailures.Inc()
			s.log.Warn("publishing message",
				zap.String("conversation_id", conversationID), zap.String("message_id", msg.ID), zap.Error(err))
		}
	}

	return msg, nil
}

// Send appends a message addressed to the other participant.
func (s *MessageService) Send(ctx context.Context, senderID, conversationID, text string) (*domain.Message, error) {
	conv, err := s.directory.Get(ctx, senderID, conversationID)
	if err != nil {
		return nil, err
	}
	return s.Append(ctx, conversationID, senderID, conv.OtherParticipant(senderID), text)
}

// List returns the conversation's messages oldest first. When the store is
// unreachable the last list served for the conversation is returned as stale.
func (s *MessageService) List(ctx context.Context, userID, conversationID string) (*MessageListResponse, error) {
	if _, err := s.directory.Get(ctx, userID, conversationID); err != nil {
		if errors.Is(err, domain.ErrTransport) {
			return s.lastKnownMessages(userID, conversationID, err)
		}
		return nil, err
	}

	messages, err := s.messageRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrTransport) {
			return s.lastKnownMessages(userID, conversationID, err)
		}
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	s.lastKnown.Add(conversationID, messages)
	return &MessageListResponse{Messages: messages}, nil
}

func (s *MessageService) lastKnownMessages(userID, conversationID string, cause error) (*MessageListResponse, error) {
	// Membership can be read off the id without the store.
	if !idInvolves(conversationID, userID) {
		return nil, ErrNotParticipant
	}
	cached, ok := s.lastKnown.Get(conversationID)
	if !ok {
		return nil, cause
	}
	metrics.StaleReads.WithLabelValues("messages").Inc()
	s.log.Warn("serving last known messages", zap.String("conversation_id", conversationID), zap.Error(cause))
	return &MessageListResponse{Messages: cached, Stale: true}, nil
}

// MarkRead marks everything addressed to readerID in the conversation as
// read. Calling it again is a no-op.
func (s *MessageService) MarkRead(ctx context.Context, readerID, conversationID string) (int, error) {
	if _, err := s.directory.Get(ctx, readerID, conversationID); err != nil {
		return 0, err
	}

	n, err := s.messageRepo.MarkRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}
	metrics.MessagesMarkedRead.Add(float64(n))
	return n, nil
}

// ListUnread returns every unread message addressed to userID.
func (s *MessageService) ListUnread(ctx context.Context, userID string) (*UnreadResponse, error) {
	messages, err := s.messageRepo.ListUnread(ctx, userID, nil)
	if err != nil {
		return nil, fmt.Errorf("listing unread messages: %w", err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return &UnreadResponse{Count: len(messages), Messages: messages}, nil
}

func idInvolves(conversationID, userID string) bool {
	p1, p2, ok := strings.Cut(conversationID, domain.ConversationIDSeparator)
	return ok && (p1 == userID || p2 == userID)
}

// stripedLock hands out one of a fixed set of mutexes per key.
type stripedLock struct {
	stripes [64]sync.Mutex
}

func (l *stripedLock) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	mu.Lock()
	return mu.Unlock
}
