package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"lazla/internal/domain"
)

const (
	DefaultQueueSize   = 256
	DefaultSendTimeout = 5 * time.Second
)

var (
	ErrQueueFull = errors.New("events: publish queue full")
	ErrClosed    = errors.New("events: publisher closed")
)

// Async hands events to a single worker goroutine that publishes them to
// next. Publish never waits on a sink; when the queue is full the event is
// dropped and ErrQueueFull returned.
type Async struct {
	next    Publisher
	timeout time.Duration
	loggerf func(format string, args ...interface{})

	queue chan *domain.PaymentEvent
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Publisher, size int, timeout time.Duration, loggerf func(format string, args ...interface{})) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	a := &Async{
		next:    next,
		timeout: timeout,
		loggerf: loggerf,
		queue:   make(chan *domain.PaymentEvent, size),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Publish(_ context.Context, e *domain.PaymentEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Publish(ctx, e); err != nil {
			a.loggerf("level=warn msg=\"payment event fan-out failed\" event_id=%d err=%v", e.ID, err)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to
// end, whichever comes first.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
