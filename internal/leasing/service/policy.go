package service

import (
	"context"
	"fmt"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

// AcceptancePolicy picks the state a freshly installed order puts the device
// in: DeviceBusy waits for the owner, DeviceAccepted confirms immediately.
type AcceptancePolicy interface {
	Decide(ctx context.Context, profile *models.DeviceProfile, order *models.Order) models.DeviceState
}

// AcceptanceFunc adapts a function to AcceptancePolicy.
type AcceptanceFunc func(ctx context.Context, profile *models.DeviceProfile, order *models.Order) models.DeviceState

func (f AcceptanceFunc) Decide(ctx context.Context, profile *models.DeviceProfile, order *models.Order) models.DeviceState {
	return f(ctx, profile, order)
}

// ManualPolicy leaves every order for the owner to accept.
type ManualPolicy struct{}

func (ManualPolicy) Decide(context.Context, *models.DeviceProfile, *models.Order) models.DeviceState {
	return models.DeviceBusy
}

// AutoPolicy confirms every order on arrival.
type AutoPolicy struct{}

func (AutoPolicy) Decide(context.Context, *models.DeviceProfile, *models.Order) models.DeviceState {
	return models.DeviceAccepted
}

// AllowlistPolicy confirms orders from listed clients and leaves the rest
// for the owner.
type AllowlistPolicy struct {
	clients map[domain.AccountID]struct{}
}

func NewAllowlistPolicy(clients ...domain.AccountID) AllowlistPolicy {
	m := make(map[domain.AccountID]struct{}, len(clients))
	for _, c := range clients {
		m[c] = struct{}{}
	}
	return AllowlistPolicy{clients: m}
}

func (p AllowlistPolicy) Decide(_ context.Context, _ *models.DeviceProfile, order *models.Order) models.DeviceState {
	if _, ok := p.clients[order.Client]; ok {
		return models.DeviceAccepted
	}
	return models.DeviceBusy
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string, allowlist []domain.AccountID) (AcceptancePolicy, error) {
	switch name {
	case "", "manual":
		return ManualPolicy{}, nil
	case "auto":
		return AutoPolicy{}, nil
	case "allowlist":
		return NewAllowlistPolicy(allowlist...), nil
	default:
		return nil, fmt.Errorf("unknown acceptance policy %q", name)
	}
}
