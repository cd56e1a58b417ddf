package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

type envelope struct {
	id      string
	source  domain.DomainID
	payload []byte
}

// Bus connects domains inside one process. Send queues; Drain delivers.
// Delivery is FIFO per destination, matching the ordering a real channel
// guarantees, and deterministic so tests can interleave clock moves with
// message arrival.
type Bus struct {
	mu          sync.Mutex
	receivers   map[domain.DomainID]Receiver
	queues      map[domain.DomainID][]envelope
	partitioned map[domain.DomainID]bool
	dedup       Deduper
}

type BusOption func(*Bus)

// WithBusDeduper drops redelivered envelopes before they reach a receiver.
func WithBusDeduper(d Deduper) BusOption {
	return func(b *Bus) {
		b.dedup = d
	}
}

func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		receivers:   make(map[domain.DomainID]Receiver),
		queues:      make(map[domain.DomainID][]envelope),
		partitioned: make(map[domain.DomainID]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach registers the receiver for dest.
func (b *Bus) Attach(dest domain.DomainID, r Receiver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receivers[dest] = r
}

// Partition makes sends to dest fail synchronously until healed. Queued
// envelopes stay queued.
func (b *Bus) Partition(dest domain.DomainID, down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.partitioned[dest] = down
}

// Endpoint returns the Channel a domain uses to send.
func (b *Bus) Endpoint(source domain.DomainID) ports.Channel {
	return &busEndpoint{bus: b, source: source}
}

// Pending reports how many envelopes wait for dest.
func (b *Bus) Pending(dest domain.DomainID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[dest])
}

// Drain delivers queued envelopes, including any produced while delivering,
// until every queue is empty or held. An envelope the receiver fails to
// handle goes back to the head of its queue and holds that destination until
// the next Drain, so later envelopes never overtake it. Returns the number
// handled.
func (b *Bus) Drain(ctx context.Context) int {
	delivered := 0
	held := make(map[domain.DomainID]bool)
	for {
		dest, env, r, ok := b.next(held)
		if !ok {
			return delivered
		}
		if b.dedup != nil {
			seen, err := b.dedup.Seen(ctx, env.id)
			if err == nil && seen {
				continue
			}
		}
		if err := r.Receive(ctx, env.source, env.payload); err != nil {
			b.requeue(dest, env)
			held[dest] = true
			continue
		}
		if b.dedup != nil {
			_ = b.dedup.Mark(ctx, env.id)
		}
		delivered++
	}
}

func (b *Bus) requeue(dest domain.DomainID, env envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[dest] = append([]envelope{env}, b.queues[dest]...)
}

// Redeliver queues env for dest again, the way an at-least-once transport
// may.
func (b *Bus) Redeliver(dest domain.DomainID, env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[dest] = append(b.queues[dest], envelope{id: env.ID, source: env.Source, payload: env.Payload})
}

// Envelope is a message as seen on the bus.
type Envelope struct {
	ID      string
	Source  domain.DomainID
	Payload []byte
}

// Peek returns the queued envelopes for dest without removing them.
func (b *Bus) Peek(dest domain.DomainID) []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Envelope, 0, len(b.queues[dest]))
	for _, e := range b.queues[dest] {
		out = append(out, Envelope{ID: e.id, Source: e.source, Payload: append([]byte(nil), e.payload...)})
	}
	return out
}

func (b *Bus) next(held map[domain.DomainID]bool) (domain.DomainID, envelope, Receiver, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for dest, q := range b.queues {
		if len(q) == 0 || held[dest] {
			continue
		}
		r, ok := b.receivers[dest]
		if !ok {
			continue
		}
		env := q[0]
		b.queues[dest] = q[1:]
		return dest, env, r, true
	}
	return 0, envelope{}, nil, false
}

type busEndpoint struct {
	bus    *Bus
	source domain.DomainID
}

func (e *busEndpoint) Send(ctx context.Context, dest domain.DomainID, payload []byte, _ ports.Quality) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := e.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.partitioned[dest] {
		return fmt.Errorf("%w: domain %s partitioned", ErrUnreachable, dest)
	}
	if _, ok := b.receivers[dest]; !ok {
		return fmt.Errorf("%w: domain %s not attached", ErrUnreachable, dest)
	}
	b.queues[dest] = append(b.queues[dest], envelope{
		id:      uuid.NewString(),
		source:  e.source,
		payload: append([]byte(nil), payload...),
	})
	return nil
}
