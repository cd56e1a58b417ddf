package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	dErrors "github.com/airalab/xcm-robobank-prototype/pkg/domain-errors"
)

// OrderRequest is what a client submits. Domain names the device's home
// domain; zero means the device is local.
type OrderRequest struct {
	Device   domain.AccountID
	Deadline time.Time
	Payload  []byte
	Fee      domain.Amount
	Domain   domain.DomainID
}

// Validate checks the request shape. Deadline freshness is checked where the
// order is accepted, against that domain's clock.
func (r *OrderRequest) Validate() error {
	if r.Device.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "device is required")
	}
	if r.Deadline.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "deadline is required")
	}
	return nil
}

// Order is the single outstanding lease on a device.
//
// Bond is the penalty actually reserved from the device when the order was
// installed; zero when no local bond was taken. Resolution releases or
// forfeits exactly Bond.
type Order struct {
	ID           uuid.UUID        `json:"id"`
	Device       domain.AccountID `json:"device"`
	Client       domain.AccountID `json:"client"`
	Deadline     time.Time        `json:"deadline"`
	Payload      []byte           `json:"payload"`
	Fee          domain.Amount    `json:"fee"`
	OriginDomain domain.DomainID  `json:"origin_domain"`
	Bond         domain.Amount    `json:"bond"`
	CreatedAt    time.Time        `json:"created_at"`
}

// NewOrder wraps a request into an order originating from origin.
func NewOrder(req OrderRequest, client domain.AccountID, origin domain.DomainID, now time.Time) *Order {
	return &Order{
		ID:           uuid.New(),
		Device:       req.Device,
		Client:       client,
		Deadline:     req.Deadline,
		Payload:      append([]byte(nil), req.Payload...),
		Fee:          req.Fee,
		OriginDomain: origin,
		CreatedAt:    now,
	}
}

// Request strips the order back to what travels on the wire.
func (o *Order) Request() OrderRequest {
	return OrderRequest{
		Device:   o.Device,
		Deadline: o.Deadline,
		Payload:  o.Payload,
		Fee:      o.Fee,
	}
}

// IsLocal reports whether the client lives in the local domain.
func (o *Order) IsLocal(local domain.DomainID) bool {
	return o.OriginDomain == local
}

// OnTime reports whether resolving at now keeps the bond with the device.
func (o *Order) OnTime(now time.Time) bool {
	return now.Before(o.Deadline)
}

// CheckFresh rejects orders whose deadline has already passed.
func (o *Order) CheckFresh(now time.Time) error {
	if !o.OnTime(now) {
		return dErrors.New(dErrors.CodeOverdue, "order deadline has passed")
	}
	return nil
}

// CheckLeadTime rejects orders that leave the device less than lead to
// fulfil them.
func (o *Order) CheckLeadTime(now time.Time, lead time.Duration) error {
	if o.Deadline.Before(now.Add(lead)) {
		return dErrors.New(dErrors.CodeBadOrderDetails, "deadline is inside the device's minimum lead time")
	}
	return nil
}

// SameTerms reports whether other carries the same client-visible terms.
// Used to recognise a redelivered order.
func (o *Order) SameTerms(other *Order) bool {
	return o.Device == other.Device &&
		o.Client == other.Client &&
		o.OriginDomain == other.OriginDomain &&
		o.Deadline.Equal(other.Deadline) &&
		o.Fee == other.Fee &&
		bytes.Equal(o.Payload, other.Payload)
}

// Clone returns an independent copy.
func (o *Order) Clone() *Order {
	c := *o
	c.Payload = append([]byte(nil), o.Payload...)
	return &c
}

// Outcome is how an order left the ledger.
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
)

// Settles reports whether the fee goes to the device.
func (o Outcome) Settles() bool {
	return o == OutcomeDone
}
