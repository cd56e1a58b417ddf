package handler

import (
	"math"
	"strings"
	"time"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/service"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	dErrors "github.com/airalab/xcm-robobank-prototype/pkg/domain-errors"
)

// maxPayloadBytes bounds the opaque order payload.
const maxPayloadBytes = 64 << 10

// maxLeadMS is the largest lead time that still fits a time.Duration.
const maxLeadMS = math.MaxInt64 / int64(time.Millisecond)

type RegisterDeviceRequest struct {
	Penalty   uint64 `json:"penalty"`
	MinLeadMS int64  `json:"min_lead_ms"`
	On        bool   `json:"on"`
}

func (r *RegisterDeviceRequest) Validate() error {
	if r.MinLeadMS < 0 {
		return dErrors.New(dErrors.CodeValidation, "min_lead_ms cannot be negative")
	}
	if r.MinLeadMS > maxLeadMS {
		return dErrors.New(dErrors.CodeValidation, "min_lead_ms is too large")
	}
	return nil
}

func (r *RegisterDeviceRequest) toService() service.RegisterRequest {
	return service.RegisterRequest{
		Penalty:     domain.Amount(r.Penalty),
		MinLeadTime: time.Duration(r.MinLeadMS) * time.Millisecond,
		On:          r.On,
	}
}

type SetStateRequest struct {
	On bool `json:"on"`
}

func (r *SetStateRequest) Validate() error { return nil }

type AcceptRequest struct {
	Reject bool `json:"reject"`
	On     bool `json:"on"`
}

func (r *AcceptRequest) Validate() error { return nil }

type DoneRequest struct {
	On bool `json:"on"`
}

func (r *DoneRequest) Validate() error { return nil }

// PlaceOrderRequest is the client's order. Payload is base64 in JSON.
// Domain 0 addresses a local device.
type PlaceOrderRequest struct {
	Device   string    `json:"device"`
	Deadline time.Time `json:"deadline"`
	Payload  []byte    `json:"payload"`
	Fee      uint64    `json:"fee"`
	Domain   uint32    `json:"domain"`
}

func (r *PlaceOrderRequest) Validate() error {
	r.Device = strings.TrimSpace(r.Device)
	if r.Device == "" {
		return dErrors.New(dErrors.CodeValidation, "device is required")
	}
	if r.Deadline.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "deadline is required")
	}
	if len(r.Payload) > maxPayloadBytes {
		return dErrors.New(dErrors.CodeValidation, "payload is too large")
	}
	return nil
}

func (r *PlaceOrderRequest) toModel() (models.OrderRequest, error) {
	device, err := domain.ParseAccountID(r.Device)
	if err != nil {
		return models.OrderRequest{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid device")
	}
	return models.OrderRequest{
		Device:   device,
		Deadline: r.Deadline,
		Payload:  r.Payload,
		Fee:      domain.Amount(r.Fee),
		Domain:   domain.DomainID(r.Domain),
	}, nil
}
