package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultPoolSize = 1000
	defaultTimeout  = 30 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

type subscription struct {
	h    Handler
	pool chan struct{}
}

// Bus is an in-memory, fire-and-forget event bus. Publishers never wait for handlers to finish;
// each subscription has its own worker pool so a slow handler does not starve the others.
type Bus struct {
	poolSize int
	timeout  time.Duration

	wg   *sync.WaitGroup
	mu   sync.RWMutex
	subs map[string][]*subscription
}

type Option func(b *Bus)

// WithPoolSize bounds the number of in-flight handler calls per subscription.
func WithPoolSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.poolSize = n
		}
	}
}

// WithTimeout bounds each handler call.
func WithTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewBus create a new event bus. Caller should call Stop for graceful shutdown the bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		poolSize: defaultPoolSize,
		timeout:  defaultTimeout,
		wg:       new(sync.WaitGroup),
		subs:     make(map[string][]*subscription),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe to an event
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[name] = append(b.subs[name], &subscription{
		h:    h,
		pool: make(chan struct{}, b.poolSize),
	})
}

// Publish an event. Handler errors are logged, never returned.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs[e.Name()] {
		b.dispatch(ctx, s, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, s *subscription, e Event) {
	b.wg.Add(1)

	s.pool <- struct{}{}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "event: handler panic",
					"event", e.Name(),
					"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
				)
			}

			cancel()
			<-s.pool
			b.wg.Done()
		}()

		if err := s.h(ctx, e); err != nil {
			slog.ErrorContext(ctx, "event: handle event failed",
				"event", e.Name(),
				"error", err,
			)
		}
	}()
}

// Stop waits for all handlers to finish
func (b *Bus) Stop() {
	b.wg.Wait()
}
