package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a closed MemoryBroker.
var ErrClosed = errors.New("queue closed")

// MemoryBroker is an in-process queue. It keeps the inference and
// persistence roles decoupled when both run in one process; messages do
// not survive a restart.
type MemoryBroker struct {
	mu      sync.Mutex
	pending [][]byte
	notify  chan struct{}
	closed  bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{notify: make(chan struct{}, 1)}
}

func (b *MemoryBroker) Publish(_ context.Context, body []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	msg := make([]byte, len(body))
	copy(msg, body)
	b.pending = append(b.pending, msg)
	b.mu.Unlock()

	b.signal()
	return nil
}

func (b *MemoryBroker) Consume(ctx context.Context, handle Handler) error {
	for {
		body, ok, err := b.next()
		if err != nil {
			return err
		}
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-b.notify:
			}
			continue
		}

		if handle(ctx, body) == Requeue {
			b.mu.Lock()
			b.pending = append([][]byte{body}, b.pending...)
			b.mu.Unlock()
			b.signal()
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Len returns the number of messages waiting for delivery.
func (b *MemoryBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.signal()
	return nil
}

func (b *MemoryBroker) next() ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false, ErrClosed
	}
	if len(b.pending) == 0 {
		return nil, false, nil
	}
	body := b.pending[0]
	b.pending = b.pending[1:]
	return body, true, nil
}

func (b *MemoryBroker) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
