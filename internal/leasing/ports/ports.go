package ports

import (
	"context"
	"time"

	"github.com/airalab/xcm-robobank-prototype/internal/audit"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Ledger,Clock,Channel,EventPublisher

// Bucket selects which side of the destination account a repatriation
// credits.
type Bucket uint8

const (
	BucketFree Bucket = iota
	BucketReserved
)

// Ledger holds named-account balances split into free and reserved parts.
// Implementations join the caller's transaction when one is in ctx.
type Ledger interface {
	// CanReserve reports whether account could reserve amount right now.
	CanReserve(ctx context.Context, account domain.AccountID, amount domain.Amount) (bool, error)
	// Reserve moves amount from free to reserved. Returns
	// sentinel.ErrInsufficient when free balance is short.
	Reserve(ctx context.Context, account domain.AccountID, amount domain.Amount) error
	// Unreserve moves up to amount from reserved back to free and returns the
	// part it could not move.
	Unreserve(ctx context.Context, account domain.AccountID, amount domain.Amount) (domain.Amount, error)
	// Repatriate moves amount out of from's reserved balance into to's
	// bucket. Returns sentinel.ErrInsufficient when from holds less.
	Repatriate(ctx context.Context, from, to domain.AccountID, amount domain.Amount, bucket Bucket) error
	// Deposit credits free balance.
	Deposit(ctx context.Context, account domain.AccountID, amount domain.Amount) error
	Balance(ctx context.Context, account domain.AccountID) (models.Balance, error)
}

// Clock is the domain-wide time source.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Quality hints how the channel should treat a payload.
type Quality uint8

const (
	// QualityOrdered keeps per-destination ordering.
	QualityOrdered Quality = iota
	// QualityFast lets the channel trade ordering for latency.
	QualityFast
)

func (q Quality) String() string {
	if q == QualityFast {
		return "fast"
	}
	return "ordered"
}

// Channel delivers opaque payloads to another domain. Send either queues the
// payload for eventual, order-preserving delivery or fails synchronously.
type Channel interface {
	Send(ctx context.Context, dest domain.DomainID, payload []byte, quality Quality) error
}

// EventPublisher receives business events after they are committed.
type EventPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
