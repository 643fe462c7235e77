package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var ErrBusClosed = errors.New("event bus closed")

// Bus is an in-process channel-backed publisher. Handlers that fail are retried
// up to maxAttempts times before the failure is logged and the event dropped for them.
type Bus struct {
	ch          chan Event
	maxAttempts int
	log         zerolog.Logger

	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler

	// closeMu guards ch against send-after-close; handlers use mu.
	closeMu sync.RWMutex
	closed  bool
	running atomic.Bool
	done    chan struct{}
}

func NewBus(bufferSize, maxAttempts int, log zerolog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Bus{
		ch:          make(chan Event, bufferSize),
		maxAttempts: maxAttempts,
		log:         log.With().Str("component", "event_bus").Logger(),
		handlers:    make(map[Type][]Handler),
		done:        make(chan struct{}),
	}
}

func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish enqueues e for asynchronous delivery. It blocks only while the buffer is full.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	e.ensureMeta(time.Now().UTC())
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start delivers queued events in the background until Close drains the queue.
func (b *Bus) Start(ctx context.Context) {
	if !b.running.CompareAndSwap(false, true) {
		return
	}
	go b.run(ctx)
}

func (b *Bus) run(ctx context.Context) {
	defer close(b.done)
	for e := range b.ch {
		if err := b.Dispatch(ctx, e); err != nil {
			b.log.Error().Err(err).Str("event_id", e.ID).Str("event_type", string(e.Type)).Msg("event delivery failed")
		}
	}
}

// Close stops accepting events and waits for the queue to drain.
func (b *Bus) Close() {
	b.closeMu.Lock()
	if b.closed {
		b.closeMu.Unlock()
		return
	}
	b.closed = true
	close(b.ch)
	b.closeMu.Unlock()
	if b.running.Load() {
		<-b.done
	}
}

// Dispatch delivers e synchronously to every matching handler and reports handlers
// that still failed after maxAttempts.
func (b *Bus) Dispatch(ctx context.Context, e Event) error {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[e.Type])+len(b.all))
	hs = append(hs, b.handlers[e.Type]...)
	hs = append(hs, b.all...)
	b.mu.RUnlock()

	var errs []error
	for i, h := range hs {
		if err := b.deliver(ctx, h, e); err != nil {
			errs = append(errs, fmt.Errorf("handler %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) deliver(ctx context.Context, h Handler, e Event) (err error) {
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		err = safeCall(ctx, h, e)
		if err == nil {
			return nil
		}
		b.log.Warn().Err(err).Str("event_id", e.ID).Int("attempt", attempt).Msg("event handler failed")
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func safeCall(ctx context.Context, h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, e)
}
