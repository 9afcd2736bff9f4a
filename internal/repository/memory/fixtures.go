package memory

import (
	"time"

	"github.com/vedran77/textswap/internal/domain"
)

const DemoUserID = "demo-user-001"

type fixtureMessage struct {
	id       string
	sender   string
	receiver string
	text     string
	age      time.Duration
	read     bool
}

type fixtureConversation struct {
	a, b     string
	postID   string
	messages []fixtureMessage
}

var fixtureUsers = []domain.User{
	{ID: "alex-johnson-001", DisplayName: "Alex Johnson", Email: "alex.johnson@university.edu"},
	{ID: "sarah-chen-001", DisplayName: "Sarah Chen", Email: "sarah.chen@university.edu"},
	{ID: "michael-rodriguez-001", DisplayName: "Michael Rodriguez", Email: "michael.r@university.edu"},
	{ID: "emily-davis-001", DisplayName: "Emily Davis", Email: "emily.davis@university.edu"},
	{ID: "james-wilson-001", DisplayName: "James Wilson", Email: "james.wilson@university.edu"},
	{ID: DemoUserID, DisplayName: "Demo Seller", Email: "demo@university.edu"},
}

var fixtureConversations = []fixtureConversation{
	{
		a: DemoUserID, b: "alex-johnson-001", postID: "mock-post-001",
		messages: []fixtureMessage{
			{"msg-001", DemoUserID, "alex-johnson-001", "Hi! Is the Calculus textbook still available?", 2 * time.Hour, true},
			{"msg-002", "alex-johnson-001", DemoUserID, "Yes, it is! Are you interested?", 2 * time.Hour, true},
			{"msg-003", DemoUserID, "alex-johnson-001", "Great! Can we meet at the library?", time.Hour, true},
			{"msg-004", "alex-johnson-001", DemoUserID, "Sounds good! I can meet you tomorrow.", time.Hour, false},
		},
	},
	{
		a: DemoUserID, b: "sarah-chen-001", postID: "mock-post-003",
		messages: []fixtureMessage{
			{"msg-005", DemoUserID, "sarah-chen-001", "Is the book still available?", 3 * time.Hour, true},
		},
	},
}

// SeedFixtures loads the demo marketplace data. Conversation ids are derived
// from the participants, so they match what the live code path would create.
func (s *Store) SeedFixtures() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for _, u := range fixtureUsers {
		user := u
		user.CreatedAt, user.UpdatedAt = now, now
		s.users[user.ID] = &user
		s.summaries[user.ID] = &domain.UserRatingSummary{UserID: user.ID}
	}

	for _, fc := range fixtureConversations {
		p1, p2, err := domain.OrderParticipants(fc.a, fc.b)
		if err != nil {
			return err
		}
		postID := fc.postID
		conv := &domain.Conversation{
			ID:             p1 + domain.ConversationIDSeparator + p2,
			Participant1ID: p1,
			Participant2ID: p2,
			PostID:         &postID,
			CreatedAt:      now.Add(-fc.messages[0].age),
		}

		var last time.Time
		thread := make([]*domain.Message, 0, len(fc.messages))
		for _, fm := range fc.messages {
			ts := now.Add(-fm.age)
			if !ts.After(last) {
				ts = last.Add(time.Microsecond)
			}
			last = ts
			if ts.After(s.lastReceived[fm.receiver]) {
				s.lastReceived[fm.receiver] = ts
			}
			thread = append(thread, &domain.Message{
				ID:             fm.id,
				ConversationID: conv.ID,
				SenderID:       fm.sender,
				ReceiverID:     fm.receiver,
				Text:           fm.text,
				Timestamp:      ts,
				IsRead:         fm.read,
			})
			conv.RecordMessage(fm.text, ts)
		}
		s.conversations[conv.ID] = conv
		s.messages[conv.ID] = thread
	}
	return nil
}
