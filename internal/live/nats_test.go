package live

import (
	"context"
	"net"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/pkg/logger"
)

func runNATS(t *testing.T, port int) *natsserver.Server {
	t.Helper()
	opts := natstest.DefaultTestOptions
	opts.Port = port
	srv := natstest.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNATSBrokerRequiresStart(t *testing.T) {
	b := NewNATSBroker("nats://127.0.0.1:1", logger.NewNop())
	assert.ErrorIs(t, b.Publish(context.Background(), &domain.Message{}), ErrBrokerNotStarted)
	assert.False(t, b.IsConnected())
	assert.NoError(t, b.Close())
}

func TestNATSBrokerDeliversAndReportsOutage(t *testing.T) {
	srv := runNATS(t, natsserver.RANDOM_PORT)
	port := srv.Addr().(*net.TCPAddr).Port

	h := newHarness(t, 16)
	b := NewNATSBroker(srv.ClientURL(), logger.NewNop())
	b.reconnectWait = 20 * time.Millisecond
	require.NoError(t, b.Start(context.Background(), h.hub))
	t.Cleanup(func() { b.Close() })
	assert.True(t, b.IsConnected())

	inbox := h.hub.SubscribeInbox(Observer{ID: "c1", UserID: "u2"})

	// Foreign payloads on the subject are skipped.
	raw, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	require.NoError(t, raw.Publish(MessageSubject, []byte("not json")))
	require.NoError(t, raw.Flush())
	raw.Close()

	msg := h.send(t, "u1", "u2", "over nats")
	require.NoError(t, b.Publish(context.Background(), msg))
	got := recv(t, inbox)
	require.Equal(t, EventMessage, got.Type)
	assert.Equal(t, msg.ID, got.Message.ID)
	assert.True(t, msg.Timestamp.Equal(got.Message.Timestamp))

	srv.Shutdown()
	degraded := recv(t, inbox)
	assert.Equal(t, EventDegraded, degraded.Type)
	assert.Error(t, degraded.Err)

	// Stored while the server was down.
	h.send(t, "u1", "u2", "while down")

	runNATS(t, port)
	assert.Equal(t, EventRestored, recv(t, inbox).Type)
	caught := recv(t, inbox)
	require.Equal(t, EventMessage, caught.Type)
	assert.Equal(t, "while down", caught.Message.Text)
	require.Eventually(t, b.IsConnected, waitFor, 10*time.Millisecond)

	require.NoError(t, b.Close())
	assert.False(t, b.IsConnected())
}
