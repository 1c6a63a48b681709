package hooks

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Bus delivers events to a Registry on a single background goroutine. Emit
// never blocks: when the buffer is full the event is dropped and counted.
type Bus struct {
	registry *Registry
	events   chan Event
	logger   *zap.Logger
	onDrop   func(Event)

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	done    chan struct{}
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithDropHandler registers a callback invoked for every dropped event.
func WithDropHandler(fn func(Event)) BusOption {
	return func(b *Bus) { b.onDrop = fn }
}

// NewBus starts a bus with the given buffer size.
func NewBus(registry *Registry, bufferSize int, logger *zap.Logger, opts ...BusOption) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	b := &Bus{
		registry: registry,
		events:   make(chan Event, bufferSize),
		logger:   logger.With(zap.String("component", "hook_bus")),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.dispatch()
	return b
}

var _ Emitter = (*Bus)(nil)

// Emit queues e for delivery.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.drop(e)
		return
	}
	select {
	case b.events <- e:
	default:
		b.drop(e)
	}
}

func (b *Bus) drop(e Event) {
	b.dropped.Add(1)
	b.logger.Warn("hook event dropped", zap.String("action", e.Action))
	if b.onDrop != nil {
		b.onDrop(e)
	}
}

// Dropped returns the number of events dropped so far.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) dispatch() {
	defer close(b.done)
	ctx := context.Background()
	for e := range b.events {
		b.registry.Dispatch(ctx, e)
	}
}

// Close stops accepting events, delivers what is buffered and waits for the
// dispatcher to finish or ctx to expire.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
