package domain

import (
	"strings"
	"time"
)

// ConversationIDSeparator joins the two sorted participant ids.
const ConversationIDSeparator = "_"

type Conversation struct {
	ID                   string     `json:"id"`
	Participant1ID       string     `json:"participant1_id"`
	Participant2ID       string     `json:"participant2_id"`
	LastMessage          *string    `json:"last_message,omitempty"`
	LastMessageTimestamp *time.Time `json:"last_message_timestamp,omitempty"`
	PostID               *string    `json:"post_id,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// DeriveConversationID returns the key shared by both participants of a
// conversation. The result does not depend on argument order.
func DeriveConversationID(a, b string) (string, error) {
	p1, p2, err := OrderParticipants(a, b)
	if err != nil {
		return "", err
	}
	return p1 + ConversationIDSeparator + p2, nil
}

// OrderParticipants validates both ids and returns them lexicographically sorted.
func OrderParticipants(a, b string) (string, string, error) {
	errs := make(map[string]string)
	checkParticipant("participant1_id", a, errs)
	checkParticipant("participant2_id", b, errs)
	if len(errs) == 0 && a == b {
		errs["participant2_id"] = "Participants must be different users"
	}
	if len(errs) > 0 {
		return "", "", NewValidationError(errs)
	}
	if a > b {
		a, b = b, a
	}
	return a, b, nil
}

func checkParticipant(field, id string, errs map[string]string) {
	switch {
	case strings.TrimSpace(id) == "":
		errs[field] = "Participant id is required"
	case strings.Contains(id, ConversationIDSeparator):
		errs[field] = "Participant id must not contain " + ConversationIDSeparator
	}
}

// Involves reports whether userID is one of the two participants.
func (c *Conversation) Involves(userID string) bool {
	return c.Participant1ID == userID || c.Participant2ID == userID
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.Participant1ID == userID {
		return c.Participant2ID
	}
	return c.Participant1ID
}

// RecordMessage moves the summary forward. Older timestamps are ignored so
// concurrent writers can't roll the summary back.
func (c *Conversation) RecordMessage(text string, ts time.Time) bool {
	if c.LastMessageTimestamp != nil && ts.Before(*c.LastMessageTimestamp) {
		return false
	}
	c.LastMessage = &text
	c.LastMessageTimestamp = &ts
	return true
}
