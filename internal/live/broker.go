package live

import (
	"context"
	"errors"
	"sync"

	"github.com/vedran77/textswap/internal/domain"
)

var ErrBrokerNotStarted = errors.New("live broker not started")

// LocalBroker hands messages straight to the in-process hub. It suits a
// single server instance.
type LocalBroker struct {
	mu   sync.RWMutex
	sink Sink
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{}
}

func (b *LocalBroker) Start(_ context.Context, sink Sink) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
	return nil
}

func (b *LocalBroker) Publish(_ context.Context, msg *domain.Message) error {
	b.mu.RLock()
	sink := b.sink
	b.mu.RUnlock()
	if sink == nil {
		return ErrBrokerNotStarted
	}
	sink.Deliver(msg)
	return nil
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = nil
	return nil
}
