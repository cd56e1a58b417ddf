package store

import (
	"context"
	"fmt"
	"math"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/sentinel"
)

// accountRows is the persistence surface the ledger needs. load returns a
// balance for every requested id, zero for unknown accounts, with rows
// locked for the rest of the transaction where the backend supports it.
type accountRows interface {
	load(ctx context.Context, ids ...domain.AccountID) (map[domain.AccountID]*models.Balance, error)
	save(ctx context.Context, balances ...*models.Balance) error
}

// ledger implements ports.Ledger over any accountRows.
type ledger struct {
	rows accountRows
}

var _ ports.Ledger = (*ledger)(nil)

func (l *ledger) one(ctx context.Context, id domain.AccountID) (*models.Balance, error) {
	m, err := l.rows.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return m[id], nil
}

func (l *ledger) CanReserve(ctx context.Context, account domain.AccountID, amount domain.Amount) (bool, error) {
	b, err := l.one(ctx, account)
	if err != nil {
		return false, err
	}
	return b.Free >= amount, nil
}

func (l *ledger) Reserve(ctx context.Context, account domain.AccountID, amount domain.Amount) error {
	b, err := l.one(ctx, account)
	if err != nil {
		return err
	}
	if b.Free < amount {
		return fmt.Errorf("reserve %d from %s: %w", amount, account, sentinel.ErrInsufficient)
	}
	if amount == 0 {
		return nil
	}
	b.Free -= amount
	b.Reserved += amount
	return l.rows.save(ctx, b)
}

func (l *ledger) Unreserve(ctx context.Context, account domain.AccountID, amount domain.Amount) (domain.Amount, error) {
	b, err := l.one(ctx, account)
	if err != nil {
		return 0, err
	}
	moved := min(amount, b.Reserved)
	if moved == 0 {
		return amount, nil
	}
	b.Reserved -= moved
	b.Free += moved
	return amount - moved, l.rows.save(ctx, b)
}

func (l *ledger) Repatriate(ctx context.Context, from, to domain.AccountID, amount domain.Amount, bucket ports.Bucket) error {
	m, err := l.rows.load(ctx, from, to)
	if err != nil {
		return err
	}
	src, dst := m[from], m[to]
	if src.Reserved < amount {
		return fmt.Errorf("repatriate %d from %s: %w", amount, from, sentinel.ErrInsufficient)
	}
	if amount == 0 {
		return nil
	}
	src.Reserved -= amount
	switch bucket {
	case ports.BucketReserved:
		if err := credit(&dst.Reserved, amount); err != nil {
			return err
		}
	default:
		if err := credit(&dst.Free, amount); err != nil {
			return err
		}
	}
	if from == to {
		return l.rows.save(ctx, src)
	}
	return l.rows.save(ctx, src, dst)
}

func (l *ledger) Deposit(ctx context.Context, account domain.AccountID, amount domain.Amount) error {
	b, err := l.one(ctx, account)
	if err != nil {
		return err
	}
	if err := credit(&b.Free, amount); err != nil {
		return err
	}
	return l.rows.save(ctx, b)
}

func (l *ledger) Balance(ctx context.Context, account domain.AccountID) (models.Balance, error) {
	b, err := l.one(ctx, account)
	if err != nil {
		return models.Balance{}, err
	}
	return *b, nil
}

func credit(dst *domain.Amount, amount domain.Amount) error {
	if uint64(*dst) > math.MaxInt64-uint64(amount) {
		return fmt.Errorf("credit %d: balance overflow", amount)
	}
	*dst += amount
	return nil
}
