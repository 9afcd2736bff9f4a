// Package live pushes new messages to subscribed observers.
package live

import (
	"context"
	"errors"
	"time"

	"github.com/vedran77/textswap/internal/domain"
)

// ErrSubscriberOverflow ends a subscription whose consumer fell too far
// behind.
var ErrSubscriberOverflow = errors.New("subscriber fell behind and was disconnected")

type EventType string

const (
	EventSnapshot EventType = "conversation.snapshot"
	EventMessage  EventType = "inbox.message"
	EventDegraded EventType = "connection.degraded"
	EventRestored EventType = "connection.restored"
)

type Event struct {
	Type           EventType
	ConversationID string
	// Messages is the full ordered list for snapshot events.
	Messages []domain.Message
	// Message is set for inbox events.
	Message *domain.Message
	// Err explains a degraded event.
	Err error

	final bool
}

// Observer identifies a consumer. ID distinguishes consumers of the same
// user, such as two open sockets.
type Observer struct {
	ID     string
	UserID string
}

// MessageSource is the read side of the message log the hub resyncs from.
type MessageSource interface {
	ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error)
	ListUnread(ctx context.Context, receiverID string, since *time.Time) ([]domain.Message, error)
}

// ConversationLookup resolves the conversation a message belongs to.
type ConversationLookup interface {
	Lookup(ctx context.Context, conversationID string) (*domain.Conversation, error)
}

// NameResolver returns a user's display name.
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) string
}

// Sink receives what a broker hears. The hub is the only implementation.
type Sink interface {
	Deliver(msg *domain.Message)
	ConnectionLost(err error)
	ConnectionRestored()
}

// Broker carries published messages to every hub, possibly across
// processes.
type Broker interface {
	Publish(ctx context.Context, msg *domain.Message) error
	Start(ctx context.Context, sink Sink) error
	Close() error
}
