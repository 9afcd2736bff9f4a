package ws

import (
	"encoding/json"
	"time"

	"github.com/vedran77/textswap/internal/domain"
)

// Event types - Client → Server
const (
	EventTypeConversationSubscribe   = "conversation.subscribe"
	EventTypeConversationUnsubscribe = "conversation.unsubscribe"
	EventTypeInboxSubscribe          = "inbox.subscribe"
	EventTypeInboxUnsubscribe        = "inbox.unsubscribe"
	EventTypePing                    = "ping"
)

// Event types - Server → Client
const (
	EventTypeSnapshot     = "conversation.snapshot"
	EventTypeInboxMessage = "inbox.message"
	EventTypeDegraded     = "connection.degraded"
	EventTypeRestored     = "connection.restored"
	EventTypeNotification = "notification"
	EventTypePong         = "pong"
	EventTypeError        = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type ConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

// --- Server → Client payloads ---

type SnapshotPayload struct {
	Messages []domain.Message `json:"messages"`
}

type MessagePayload struct {
	domain.Message
}

type DegradedPayload struct {
	Reason string `json:"reason"`
}

type NotificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, conversationID string, payload any) (*Event, error) {
	var data json.RawMessage
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, err
		}
	}
	return &Event{
		Type:           eventType,
		ConversationID: conversationID,
		Payload:        data,
		Timestamp:      time.Now().Unix(),
	}, nil
}
