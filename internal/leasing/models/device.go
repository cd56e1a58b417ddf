package models

import (
	"fmt"
	"time"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	dErrors "github.com/airalab/xcm-robobank-prototype/pkg/domain-errors"
)

// DeviceState is the lifecycle state of a registered device.
type DeviceState uint8

const (
	// DeviceOff is registered but not taking orders.
	DeviceOff DeviceState = iota
	// DeviceReady takes the next order.
	DeviceReady
	// DeviceBusy holds an order that the owner has not confirmed yet.
	DeviceBusy
	// DeviceAccepted holds a confirmed order.
	DeviceAccepted
	// DeviceAbandoned lost its identity while still on. Terminal.
	DeviceAbandoned
)

var deviceStateNames = [...]string{"off", "ready", "busy", "accepted", "abandoned"}

func (s DeviceState) String() string {
	if int(s) < len(deviceStateNames) {
		return deviceStateNames[s]
	}
	return fmt.Sprintf("DeviceState(%d)", uint8(s))
}

// ParseDeviceState is the inverse of String.
func ParseDeviceState(s string) (DeviceState, error) {
	for i, name := range deviceStateNames {
		if name == s {
			return DeviceState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown device state %q", s)
}

func (s DeviceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *DeviceState) UnmarshalText(b []byte) error {
	v, err := ParseDeviceState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// HoldsOrder reports whether a device in this state must have an order.
func (s DeviceState) HoldsOrder() bool {
	return s == DeviceBusy || s == DeviceAccepted
}

// PowerState maps the owner's on/off intent to a resting state.
func PowerState(on bool) DeviceState {
	if on {
		return DeviceReady
	}
	return DeviceOff
}

// DeviceProfile is the per-device record owned by the registry.
//
// Invariants:
//   - Penalty is the bond taken for every order
//   - MinLeadTime is never negative
//   - an order exists for Device iff State.HoldsOrder()
//   - Abandoned has no outgoing transition
type DeviceProfile struct {
	Device      domain.AccountID `json:"device"`
	State       DeviceState      `json:"state"`
	Penalty     domain.Amount    `json:"penalty"`
	MinLeadTime time.Duration    `json:"min_lead_time"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewDeviceProfile builds a freshly registered profile.
func NewDeviceProfile(device domain.AccountID, penalty domain.Amount, minLeadTime time.Duration, on bool, now time.Time) (*DeviceProfile, error) {
	if device.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "device identity is required")
	}
	if minLeadTime < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "min lead time cannot be negative")
	}
	return &DeviceProfile{
		Device:      device,
		State:       PowerState(on),
		Penalty:     penalty,
		MinLeadTime: minLeadTime,
		UpdatedAt:   now,
	}, nil
}

// CanSetPower checks the owner may toggle the device on or off.
func (d *DeviceProfile) CanSetPower() error {
	if d.State != DeviceOff && d.State != DeviceReady {
		return dErrors.New(dErrors.CodeIllegalState, "device is "+d.State.String()+", power can only change while off or ready")
	}
	return nil
}

// CanReceiveOrder checks the device is free to take an order.
func (d *DeviceProfile) CanReceiveOrder() error {
	if d.State != DeviceReady {
		return dErrors.New(dErrors.CodeIllegalState, "device is "+d.State.String()+", not ready")
	}
	return nil
}

// CanConfirm checks the owner may accept the pending order.
func (d *DeviceProfile) CanConfirm() error {
	if d.State != DeviceBusy {
		return dErrors.New(dErrors.CodeIllegalState, "device is "+d.State.String()+", nothing to accept")
	}
	return nil
}

// CanReject checks the owner may reject the current order.
func (d *DeviceProfile) CanReject() error {
	if !d.State.HoldsOrder() {
		return dErrors.New(dErrors.CodeIllegalState, "device is "+d.State.String()+", nothing to reject")
	}
	return nil
}

// CanComplete checks the owner may report the order fulfilled.
func (d *DeviceProfile) CanComplete() error {
	if d.State != DeviceAccepted {
		return dErrors.New(dErrors.CodeIllegalState, "device is "+d.State.String()+", order not accepted")
	}
	return nil
}

// Apply moves the device to state. Callers validate with the Can* checks.
func (d *DeviceProfile) Apply(state DeviceState, now time.Time) {
	d.State = state
	d.UpdatedAt = now
}

// Clone returns an independent copy.
func (d *DeviceProfile) Clone() *DeviceProfile {
	c := *d
	return &c
}
