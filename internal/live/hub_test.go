package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/notify"
	"github.com/vedran77/textswap/internal/repository/memory"
	"github.com/vedran77/textswap/pkg/logger"
)

const waitFor = 2 * time.Second

type fixedNames map[string]string

func (f fixedNames) DisplayName(_ context.Context, userID string) string {
	if name, ok := f[userID]; ok {
		return name
	}
	return domain.UnknownUserName
}

type recordingBridge struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recordingBridge) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recordingBridge) sent() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.got...)
}

type harness struct {
	store  *memory.Store
	hub    *Hub
	bridge *recordingBridge
	conv   *domain.Conversation
}

func newHarness(t *testing.T, maxPending int) *harness {
	t.Helper()
	store := memory.New()
	post := "mock-post-001"
	conv, _, err := store.Conversations().CreateIfAbsent(context.Background(), &domain.Conversation{
		ID: "u1_u2", Participant1ID: "u1", Participant2ID: "u2", PostID: &post,
	})
	require.NoError(t, err)

	bridge := &recordingBridge{}
	hub := NewHub(HubConfig{
		Source:        store.Messages(),
		Conversations: convLookup{store},
		Names:         fixedNames{"u1": "Alex Johnson"},
		Bridge:        bridge,
		MaxPending:    maxPending,
	}, logger.NewNop())
	t.Cleanup(hub.Close)

	return &harness{store: store, hub: hub, bridge: bridge, conv: conv}
}

type convLookup struct{ store *memory.Store }

func (c convLookup) Lookup(ctx context.Context, id string) (*domain.Conversation, error) {
	return c.store.Conversations().GetByID(ctx, id)
}

// send stores a message without publishing it.
func (h *harness) send(t *testing.T, from, to, text string) *domain.Message {
	t.Helper()
	return h.sendIn(t, h.conv.ID, from, to, text)
}

func (h *harness) sendIn(t *testing.T, conversationID, from, to, text string) *domain.Message {
	t.Helper()
	msg := &domain.Message{ID: text, ConversationID: conversationID, SenderID: from, ReceiverID: to, Text: text}
	require.NoError(t, h.store.Messages().Append(context.Background(), msg))
	return msg
}

func (h *harness) addConversation(t *testing.T, a, b string) *domain.Conversation {
	t.Helper()
	p1, p2, err := domain.OrderParticipants(a, b)
	require.NoError(t, err)
	conv, _, err := h.store.Conversations().CreateIfAbsent(context.Background(), &domain.Conversation{
		ID: p1 + "_" + p2, Participant1ID: p1, Participant2ID: p2,
	})
	require.NoError(t, err)
	return conv
}

func drainInbox(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	got := make([]string, 0, n)
	for range n {
		ev := recv(t, sub)
		require.Equal(t, EventMessage, ev.Type)
		got = append(got, ev.Message.Text)
	}
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected extra event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	return got
}

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		assert.False(t, ok, "unexpected event %+v", ev)
	case <-time.After(waitFor):
		t.Fatal("subscription not closed")
	}
}

func texts(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestConversationSubscriptionSnapshots(t *testing.T) {
	h := newHarness(t, 16)
	h.send(t, "u1", "u2", "Hi")

	sub := h.hub.SubscribeConversation(Observer{ID: "c1", UserID: "u2"}, h.conv.ID)
	first := recv(t, sub)
	assert.Equal(t, EventSnapshot, first.Type)
	assert.Equal(t, []string{"Hi"}, texts(first.Messages))

	h.hub.Deliver(h.send(t, "u2", "u1", "Hello"))
	second := recv(t, sub)
	assert.Equal(t, EventSnapshot, second.Type)
	assert.Equal(t, []string{"Hi", "Hello"}, texts(second.Messages))
}

func TestCancelStopsDelivery(t *testing.T) {
	h := newHarness(t, 16)
	sub := h.hub.SubscribeConversation(Observer{ID: "c1", UserID: "u2"}, h.conv.ID)
	recv(t, sub)

	sub.Cancel()
	sub.Cancel()
	assert.Zero(t, h.hub.Active())

	h.hub.Deliver(h.send(t, "u1", "u2", "after cancel"))
	assertClosed(t, sub)
}

func TestResubscribeReplacesPrevious(t *testing.T) {
	h := newHarness(t, 16)
	obs := Observer{ID: "c1", UserID: "u2"}

	first := h.hub.SubscribeConversation(obs, h.conv.ID)
	second := h.hub.SubscribeConversation(obs, h.conv.ID)

	assertClosed(t, first)
	assert.Equal(t, EventSnapshot, recv(t, second).Type)
	assert.Equal(t, 1, h.hub.Active())
}

func TestInboxDeliversEachMessageOnceInOrder(t *testing.T) {
	h := newHarness(t, 16)
	sub := h.hub.SubscribeInbox(Observer{ID: "c1", UserID: "u2"})

	var sent []*domain.Message
	for _, text := range []string{"one", "two", "three"} {
		msg := h.send(t, "u1", "u2", text)
		sent = append(sent, msg)
		h.hub.Deliver(msg)
	}
	h.hub.Deliver(sent[2])
	// Not addressed to u2.
	h.hub.Deliver(h.send(t, "u2", "u1", "reply"))

	var got []string
	var last time.Time
	for range sent {
		ev := recv(t, sub)
		require.Equal(t, EventMessage, ev.Type)
		assert.False(t, ev.Message.Timestamp.Before(last))
		last = ev.Message.Timestamp
		got = append(got, ev.Message.Text)
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected extra event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInboxMergesConversations(t *testing.T) {
	h := newHarness(t, 16)
	other := h.addConversation(t, "u3", "u2")
	sub := h.hub.SubscribeInbox(Observer{ID: "c1", UserID: "u2"})

	a1 := h.send(t, "u1", "u2", "a1")
	a2 := h.send(t, "u1", "u2", "a2")
	b1 := h.sendIn(t, other.ID, "u3", "u2", "b1")
	assert.True(t, b1.Timestamp.After(a2.Timestamp))

	for _, msg := range []*domain.Message{a1, a2, b1} {
		h.hub.Deliver(msg)
	}
	assert.Equal(t, []string{"a1", "a2", "b1"}, drainInbox(t, sub, 3))

	unread, err := h.store.Messages().ListUnread(context.Background(), "u2", nil)
	require.NoError(t, err)
	assert.Len(t, unread, 3)
}

func TestInboxAcceptsLateArrivalOnce(t *testing.T) {
	h := newHarness(t, 16)
	other := h.addConversation(t, "u3", "u2")
	sub := h.hub.SubscribeInbox(Observer{ID: "c1", UserID: "u2"})

	early := h.send(t, "u1", "u2", "early")
	late := h.sendIn(t, other.ID, "u3", "u2", "late")

	// Another instance published the newer message first.
	h.hub.Deliver(late)
	h.hub.Deliver(early)
	h.hub.Deliver(late)
	h.hub.Deliver(early)
	assert.ElementsMatch(t, []string{"early", "late"}, drainInbox(t, sub, 2))
}

func TestInboxDropsArrivalBehindWindow(t *testing.T) {
	h := newHarness(t, 16)
	sub := h.hub.SubscribeInbox(Observer{ID: "c1", UserID: "u2"})

	now := h.send(t, "u1", "u2", "now")
	h.hub.Deliver(now)
	assert.Equal(t, []string{"now"}, drainInbox(t, sub, 1))

	stale := *now
	stale.ID = "stale"
	stale.Text = "stale"
	stale.Timestamp = now.Timestamp.Add(-2 * reorderWindow)
	h.hub.Deliver(&stale)
	drainInbox(t, sub, 0)
}

func TestOutageSignalsAndCatchesUp(t *testing.T) {
	h := newHarness(t, 16)
	inbox := h.hub.SubscribeInbox(Observer{ID: "c1", UserID: "u2"})
	view := h.hub.SubscribeConversation(Observer{ID: "c1", UserID: "u2"}, h.conv.ID)
	recv(t, view)

	h.hub.Deliver(h.send(t, "u1", "u2", "before"))
	assert.Equal(t, "before", recv(t, inbox).Message.Text)
	recv(t, view)

	outage := errors.New("nats: connection lost")
	h.hub.ConnectionLost(outage)
	degraded := recv(t, inbox)
	assert.Equal(t, EventDegraded, degraded.Type)
	assert.ErrorIs(t, degraded.Err, outage)
	assert.Equal(t, EventDegraded, recv(t, view).Type)

	// Stored while the broker was down, so never delivered live.
	h.send(t, "u1", "u2", "missed")

	h.hub.ConnectionRestored()
	assert.Equal(t, EventRestored, recv(t, inbox).Type)
	caught := recv(t, inbox)
	require.Equal(t, EventMessage, caught.Type)
	assert.Equal(t, "missed", caught.Message.Text)

	assert.Equal(t, EventRestored, recv(t, view).Type)
	snap := recv(t, view)
	assert.Equal(t, []string{"before", "missed"}, texts(snap.Messages))
}

func TestNotifiesReceiverNotViewing(t *testing.T) {
	h := newHarness(t, 16)
	h.hub.Deliver(h.send(t, "u1", "u2", "Is it still available?"))

	require.Eventually(t, func() bool { return len(h.bridge.sent()) == 1 }, waitFor, 10*time.Millisecond)
	n := h.bridge.sent()[0]
	assert.Equal(t, "u2", n.RecipientID)
	assert.Equal(t, "New message from Alex Johnson", n.Title())
	assert.Equal(t, `They messaged you about "mock-post-001".`, n.Body())
}

func TestNoNotificationWhileViewing(t *testing.T) {
	h := newHarness(t, 16)
	view := h.hub.SubscribeConversation(Observer{ID: "c1", UserID: "u2"}, h.conv.ID)
	recv(t, view)
	h.hub.mu.Lock()
	assert.True(t, h.hub.viewingLocked("u2", h.conv.ID))
	assert.False(t, h.hub.viewingLocked("u1", h.conv.ID))
	h.hub.mu.Unlock()

	h.hub.Deliver(h.send(t, "u1", "u2", "hello"))
	recv(t, view)

	h.hub.Close()
	assert.Empty(t, h.bridge.sent())
}

func TestSlowConsumerIsCutOff(t *testing.T) {
	h := newHarness(t, 2)
	sub := h.hub.SubscribeInbox(Observer{ID: "c1", UserID: "u2"})

	for _, text := range []string{"a", "b", "c", "d", "e", "f"} {
		h.hub.Deliver(h.send(t, "u1", "u2", text))
	}

	var last Event
	for ev := range sub.Events() {
		last = ev
	}
	assert.Equal(t, EventDegraded, last.Type)
	assert.ErrorIs(t, last.Err, ErrSubscriberOverflow)
	assert.Zero(t, h.hub.Active())
}

func TestCloseEndsAllSubscriptions(t *testing.T) {
	h := newHarness(t, 16)
	a := h.hub.SubscribeInbox(Observer{ID: "c1", UserID: "u1"})
	b := h.hub.SubscribeConversation(Observer{ID: "c2", UserID: "u2"}, h.conv.ID)

	h.hub.Close()
	assertClosed(t, a)
	for range b.Events() {
	}
	assert.Zero(t, h.hub.Active())

	late := h.hub.SubscribeInbox(Observer{ID: "c3", UserID: "u1"})
	assertClosed(t, late)
}

func TestLocalBrokerRequiresStart(t *testing.T) {
	b := NewLocalBroker()
	assert.ErrorIs(t, b.Publish(context.Background(), &domain.Message{}), ErrBrokerNotStarted)

	h := newHarness(t, 16)
	require.NoError(t, b.Start(context.Background(), h.hub))
	sub := h.hub.SubscribeInbox(Observer{ID: "c1", UserID: "u2"})
	require.NoError(t, b.Publish(context.Background(), h.send(t, "u1", "u2", "via broker")))
	assert.Equal(t, "via broker", recv(t, sub).Message.Text)
	require.NoError(t, b.Close())
}
