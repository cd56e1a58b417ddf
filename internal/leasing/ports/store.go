package ports

import (
	"context"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

// DeviceStore persists device profiles. Lookups of unknown devices return
// sentinel.ErrNotFound.
type DeviceStore interface {
	Get(ctx context.Context, device domain.AccountID) (*models.DeviceProfile, error)
	Save(ctx context.Context, profile *models.DeviceProfile) error
	Delete(ctx context.Context, device domain.AccountID) error
}

// OrderStore persists the single outstanding order per device. Create
// returns sentinel.ErrConflict when the device already has one.
type OrderStore interface {
	Get(ctx context.Context, device domain.AccountID) (*models.Order, error)
	Create(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, device domain.AccountID) error
}

// RemoteOrderStore persists the client domain's view of orders placed into
// other domains, keyed by remote device.
type RemoteOrderStore interface {
	Get(ctx context.Context, key models.RemoteKey) (*models.RemoteOrder, error)
	Create(ctx context.Context, order *models.RemoteOrder) error
	Save(ctx context.Context, order *models.RemoteOrder) error
	Delete(ctx context.Context, key models.RemoteKey) error
}

// Stores is the set of stores bound to one transaction.
type Stores interface {
	Devices() DeviceStore
	Orders() OrderStore
	RemoteOrders() RemoteOrderStore
	Ledger() Ledger
}

// StoreTx provides the serialization boundary every leasing operation runs
// under. fn sees stores bound to the transaction and a ctx that carries it;
// when fn returns an error nothing it wrote survives.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, st Stores) error) error
}
