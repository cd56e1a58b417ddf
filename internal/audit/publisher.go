package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

// ErrQueueFull is returned by Emit when the async queue cannot take more.
var ErrQueueFull = errors.New("audit queue full")

// Store persists events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAccount(ctx context.Context, account domain.AccountID) ([]Event, error)
}

// Publisher captures structured events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily. With a queue
// configured, Emit hands events to a Worker instead of writing inline.
type Publisher struct {
	store Store
	queue chan<- Event
	now   func() time.Time
}

type PublisherOption func(*Publisher)

// WithQueue makes Emit non-blocking: events go to queue and a Worker
// persists them.
func WithQueue(queue chan<- Event) PublisherOption {
	return func(p *Publisher) {
		p.queue = queue
	}
}

// WithClock overrides the timestamp source for events without one.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		p.now = now
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if p.queue == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// List returns events that name account as device or client.
func (p *Publisher) List(ctx context.Context, account domain.AccountID) ([]Event, error) {
	return p.store.ListByAccount(ctx, account)
}
