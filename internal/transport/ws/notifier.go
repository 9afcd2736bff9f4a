package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vedran77/textswap/internal/notify"
)

// HubNotifier implements notify.Bridge by pushing a notification event to
// every socket the recipient has open.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) Notify(ctx context.Context, note notify.Notification) error {
	evt, err := NewEvent(EventTypeNotification, note.ConversationID, NotificationPayload{
		Title: note.Title(),
		Body:  note.Body(),
	})
	if err != nil {
		return fmt.Errorf("building notification event: %w", err)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling notification event: %w", err)
	}
	return n.hub.SendToUser(ctx, note.RecipientID, data)
}
