package models

import (
	"time"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

// RemoteOrderStatus tracks a client-side order placed into another domain.
type RemoteOrderStatus string

const (
	RemoteOrderPending  RemoteOrderStatus = "pending"
	RemoteOrderAccepted RemoteOrderStatus = "accepted"
)

// RemoteOrder is the client domain's bookkeeping for an order living in the
// device's domain. It is not a mirror of the device state machine: it only
// remembers what the client domain holds (the fee) and who may settle it.
type RemoteOrder struct {
	Client    domain.AccountID  `json:"client"`
	Device    domain.AccountID  `json:"device"`
	Domain    domain.DomainID   `json:"domain"`
	Fee       domain.Amount     `json:"fee"`
	FeeHeld   bool              `json:"fee_held"`
	Deadline  time.Time         `json:"deadline"`
	Status    RemoteOrderStatus `json:"status"`
	PlacedAt  time.Time         `json:"placed_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// RemoteKey identifies a remote device.
type RemoteKey struct {
	Device domain.AccountID
	Domain domain.DomainID
}

func (r *RemoteOrder) Key() RemoteKey {
	return RemoteKey{Device: r.Device, Domain: r.Domain}
}

// Clone returns an independent copy.
func (r *RemoteOrder) Clone() *RemoteOrder {
	c := *r
	return &c
}
