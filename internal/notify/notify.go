// Package notify turns new-message events into user-visible notifications.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vedran77/textswap/pkg/logger"
	"github.com/vedran77/textswap/pkg/metrics"
)

// Notification is addressed to RecipientID and names the sender and what
// the conversation is about.
type Notification struct {
	RecipientID    string `json:"recipient_id"`
	ConversationID string `json:"conversation_id"`
	SenderName     string `json:"sender_name"`
	Subject        string `json:"subject"`
}

func (n Notification) Title() string {
	return "New message from " + n.SenderName
}

func (n Notification) Body() string {
	return fmt.Sprintf("They messaged you about \"%s\".", n.Subject)
}

// Bridge delivers notifications. Callers treat it as fire-and-forget.
type Bridge interface {
	Notify(ctx context.Context, n Notification) error
}

// LogBridge only logs. It is the bridge used when no push channel exists.
type LogBridge struct {
	log *logger.Logger
}

func NewLogBridge(log *logger.Logger) *LogBridge {
	return &LogBridge{log: log.Named("notify")}
}

func (b *LogBridge) Notify(ctx context.Context, n Notification) error {
	b.log.Info("notification",
		zap.String("recipient_id", n.RecipientID),
		zap.String("title", n.Title()),
		zap.String("body", n.Body()))
	metrics.NotificationsSent.WithLabelValues("logged").Inc()
	return nil
}

// Fanout sends to every bridge and returns the first error.
type Fanout []Bridge

func (f Fanout) Notify(ctx context.Context, n Notification) error {
	var first error
	for _, b := range f {
		if err := b.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
