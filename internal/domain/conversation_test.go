package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveConversationIDIsCommutative(t *testing.T) {
	pairs := [][2]string{
		{"u1", "u2"},
		{"alex-johnson-001", "demo-user-001"},
		{"sarah-chen-001", "demo-user-001"},
		{"B", "a"},
		{"x", "xy"},
	}
	for _, p := range pairs {
		ab, err := DeriveConversationID(p[0], p[1])
		require.NoError(t, err)
		ba, err := DeriveConversationID(p[1], p[0])
		require.NoError(t, err)
		assert.Equal(t, ab, ba, "pair %v", p)
	}
}

func TestDeriveConversationIDSortsParticipants(t *testing.T) {
	id, err := DeriveConversationID("sarah-chen-001", "demo-user-001")
	require.NoError(t, err)
	assert.Equal(t, "demo-user-001_sarah-chen-001", id)
}

func TestDeriveConversationIDRejectsBadInput(t *testing.T) {
	cases := map[string][2]string{
		"empty first":  {"", "u2"},
		"empty second": {"u1", ""},
		"blank":        {"  ", "u2"},
		"same user":    {"u1", "u1"},
		"separator":    {"u_1", "u2"},
		"both empty":   {"", ""},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DeriveConversationID(c[0], c[1])
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestConversationRecordMessageIgnoresOlder(t *testing.T) {
	now := time.Now()
	c := &Conversation{ID: "a_b", Participant1ID: "a", Participant2ID: "b"}

	assert.True(t, c.RecordMessage("second", now))
	assert.False(t, c.RecordMessage("first", now.Add(-time.Second)))

	require.NotNil(t, c.LastMessage)
	assert.Equal(t, "second", *c.LastMessage)
	assert.True(t, c.LastMessageTimestamp.Equal(now))
}

func TestConversationParticipants(t *testing.T) {
	c := &Conversation{Participant1ID: "a", Participant2ID: "b"}
	assert.True(t, c.Involves("a"))
	assert.False(t, c.Involves("c"))
	assert.Equal(t, "b", c.OtherParticipant("a"))
	assert.Equal(t, "a", c.OtherParticipant("b"))
}
