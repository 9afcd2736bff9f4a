package live

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/pkg/logger"
	"github.com/vedran77/textswap/pkg/metrics"
)

// MessageSubject carries every appended message between server instances.
const MessageSubject = "textswap.messages"

// NATSBroker fans messages out through a NATS subject so every instance's
// hub sees every message. Connection loss is reported to the hub.
type NATSBroker struct {
	url           string
	reconnectWait time.Duration
	log           *logger.Logger

	mu   sync.Mutex
	conn *nats.Conn
}

func NewNATSBroker(url string, log *logger.Logger) *NATSBroker {
	return &NATSBroker{url: url, reconnectWait: 2 * time.Second, log: log.Named("nats")}
}

func (b *NATSBroker) Start(ctx context.Context, sink Sink) error {
	opts := []nats.Option{
		nats.Name("textswap"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(b.reconnectWait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			// Our own shutdown is not an outage.
			if nc.IsClosed() || nc.IsDraining() {
				return
			}
			if err == nil {
				err = nats.ErrConnectionClosed
			}
			sink.ConnectionLost(err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
			sink.ConnectionRestored()
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			b.log.Error("NATS error", zap.Error(err))
		}),
	}

	nc, err := nats.Connect(b.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	_, err = nc.Subscribe(MessageSubject, func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			b.log.Warn("dropping malformed message event", zap.Error(err))
			return
		}
		sink.Deliver(&msg)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribing to %s: %w", MessageSubject, err)
	}

	b.mu.Lock()
	b.conn = nc
	b.mu.Unlock()

	metrics.BrokerConnected.Set(1)
	b.log.Info("NATS connected", zap.String("url", nc.ConnectedUrl()))
	return nil
}

func (b *NATSBroker) Publish(ctx context.Context, msg *domain.Message) error {
	b.mu.Lock()
	nc := b.conn
	b.mu.Unlock()
	if nc == nil {
		return ErrBrokerNotStarted
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message event: %w", err)
	}
	if err := nc.Publish(MessageSubject, data); err != nil {
		return domain.Transport("publishing message event", err)
	}
	return nil
}

// Close drains the subscription so in-flight deliveries finish.
func (b *NATSBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Drain()
	b.conn = nil
	metrics.BrokerConnected.Set(0)
	return err
}

// IsConnected returns true if connected to NATS.
func (b *NATSBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}
