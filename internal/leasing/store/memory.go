package store

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	dErrors "github.com/airalab/xcm-robobank-prototype/pkg/domain-errors"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/sentinel"
)

const defaultTxTimeout = 5 * time.Second

// snapshot is the whole in-memory state. Transactions work on a clone and
// swap it in on success.
type snapshot struct {
	devices  map[domain.AccountID]*models.DeviceProfile
	orders   map[domain.AccountID]*models.Order
	remote   map[models.RemoteKey]*models.RemoteOrder
	accounts map[domain.AccountID]models.Balance
}

func newSnapshot() *snapshot {
	return &snapshot{
		devices:  make(map[domain.AccountID]*models.DeviceProfile),
		orders:   make(map[domain.AccountID]*models.Order),
		remote:   make(map[models.RemoteKey]*models.RemoteOrder),
		accounts: make(map[domain.AccountID]models.Balance),
	}
}

func (s *snapshot) clone() *snapshot {
	c := &snapshot{
		devices:  make(map[domain.AccountID]*models.DeviceProfile, len(s.devices)),
		orders:   make(map[domain.AccountID]*models.Order, len(s.orders)),
		remote:   make(map[models.RemoteKey]*models.RemoteOrder, len(s.remote)),
		accounts: maps.Clone(s.accounts),
	}
	for k, v := range s.devices {
		c.devices[k] = v.Clone()
	}
	for k, v := range s.orders {
		c.orders[k] = v.Clone()
	}
	for k, v := range s.remote {
		c.remote[k] = v.Clone()
	}
	return c
}

// MemoryTx is the in-process store. RunInTx serializes callers and runs fn
// against a private copy of the state, committing it only when fn succeeds.
type MemoryTx struct {
	mu      sync.Mutex
	state   *snapshot
	timeout time.Duration
}

func NewMemoryTx() *MemoryTx {
	return &MemoryTx{state: newSnapshot(), timeout: defaultTxTimeout}
}

var _ ports.StoreTx = (*MemoryTx)(nil)

func (m *MemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, st ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	work := m.state.clone()
	if err := fn(ctx, &memoryStores{s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

type memoryStores struct {
	s *snapshot
}

func (m *memoryStores) Devices() ports.DeviceStore { return memoryDevices{m.s} }
func (m *memoryStores) Orders() ports.OrderStore { return memoryOrders{m.s} }
func (m *memoryStores) RemoteOrders() ports.RemoteOrderStore { return memoryRemote{m.s} }
func (m *memoryStores) Ledger() ports.Ledger { return &ledger{rows: memoryAccounts{m.s}} }

type memoryDevices struct{ s *snapshot }

func (d memoryDevices) Get(_ context.Context, device domain.AccountID) (*models.DeviceProfile, error) {
	p, ok := d.s.devices[device]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

func (d memoryDevices) Save(_ context.Context, profile *models.DeviceProfile) error {
	d.s.devices[profile.Device] = profile.Clone()
	return nil
}

func (d memoryDevices) Delete(_ context.Context, device domain.AccountID) error {
	if _, ok := d.s.devices[device]; !ok {
		return sentinel.ErrNotFound
	}
	delete(d.s.devices, device)
	return nil
}

type memoryOrders struct{ s *snapshot }

func (o memoryOrders) Get(_ context.Context, device domain.AccountID) (*models.Order, error) {
	order, ok := o.s.orders[device]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return order.Clone(), nil
}

func (o memoryOrders) Create(_ context.Context, order *models.Order) error {
	if _, ok := o.s.orders[order.Device]; ok {
		return sentinel.ErrConflict
	}
	o.s.orders[order.Device] = order.Clone()
	return nil
}

func (o memoryOrders) Delete(_ context.Context, device domain.AccountID) error {
	if _, ok := o.s.orders[device]; !ok {
		return sentinel.ErrNotFound
	}
	delete(o.s.orders, device)
	return nil
}

type memoryRemote struct{ s *snapshot }

func (r memoryRemote) Get(_ context.Context, key models.RemoteKey) (*models.RemoteOrder, error) {
	order, ok := r.s.remote[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return order.Clone(), nil
}

func (r memoryRemote) Create(_ context.Context, order *models.RemoteOrder) error {
	if _, ok := r.s.remote[order.Key()]; ok {
		return sentinel.ErrConflict
	}
	r.s.remote[order.Key()] = order.Clone()
	return nil
}

func (r memoryRemote) Save(_ context.Context, order *models.RemoteOrder) error {
	r.s.remote[order.Key()] = order.Clone()
	return nil
}

func (r memoryRemote) Delete(_ context.Context, key models.RemoteKey) error {
	if _, ok := r.s.remote[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(r.s.remote, key)
	return nil
}

type memoryAccounts struct{ s *snapshot }

func (a memoryAccounts) load(_ context.Context, ids ...domain.AccountID) (map[domain.AccountID]*models.Balance, error) {
	out := make(map[domain.AccountID]*models.Balance, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		b := a.s.accounts[id]
		b.Account = id
		out[id] = &b
	}
	return out, nil
}

func (a memoryAccounts) save(_ context.Context, balances ...*models.Balance) error {
	for _, b := range balances {
		a.s.accounts[b.Account] = *b
	}
	return nil
}
