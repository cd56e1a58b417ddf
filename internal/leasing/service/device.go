package service

import (
	"context"
	"errors"
	"time"

	"github.com/airalab/xcm-robobank-prototype/internal/audit"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	dErrors "github.com/airalab/xcm-robobank-prototype/pkg/domain-errors"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/sentinel"
)

// RegisterRequest carries the owner's device terms.
type RegisterRequest struct {
	Penalty     domain.Amount
	MinLeadTime time.Duration
	On          bool
}

// Register creates or replaces the caller's device profile. A device holding
// an order cannot re-register.
func (s *Service) Register(ctx context.Context, caller domain.AccountID, req RegisterRequest) error {
	if err := s.requireDeviceRole(); err != nil {
		return err
	}
	return s.run(ctx, "register", func(ctx context.Context, st ports.Stores, rec *recorder) error {
		now := s.clock.Now()

		_, err := st.Orders().Get(ctx, caller)
		switch {
		case err == nil:
			return dErrors.New(dErrors.CodeDeviceExists, "device has an outstanding order")
		case !errors.Is(err, sentinel.ErrNotFound):
			return storeErr(err, dErrors.CodeNoOrder, "failed to load order")
		}

		existing, err := st.Devices().Get(ctx, caller)
		switch {
		case err == nil && existing.State == models.DeviceAbandoned:
			return dErrors.New(dErrors.CodeIllegalState, "device is abandoned")
		case err != nil && !errors.Is(err, sentinel.ErrNotFound):
			return storeErr(err, dErrors.CodeNoDevice, "failed to load device")
		}

		profile, err := models.NewDeviceProfile(caller, req.Penalty, req.MinLeadTime, req.On, now)
		if err != nil {
			return err
		}
		if err := st.Devices().Save(ctx, profile); err != nil {
			return storeErr(err, dErrors.CodeNoDevice, "failed to save device")
		}
		rec.event(audit.Event{
			Kind:   audit.EventDeviceRegistered,
			Device: caller,
			State:  profile.State.String(),
		})
		return nil
	})
}

// SetState turns an idle device on or off.
func (s *Service) SetState(ctx context.Context, caller domain.AccountID, on bool) error {
	if err := s.requireDeviceRole(); err != nil {
		return err
	}
	return s.run(ctx, "set_state", func(ctx context.Context, st ports.Stores, rec *recorder) error {
		profile, err := st.Devices().Get(ctx, caller)
		if err != nil {
			return storeErr(err, dErrors.CodeNoDevice, "device not registered")
		}
		if err := profile.CanSetPower(); err != nil {
			return err
		}
		profile.Apply(models.PowerState(on), s.clock.Now())
		if err := st.Devices().Save(ctx, profile); err != nil {
			return storeErr(err, dErrors.CodeNoDevice, "failed to save device")
		}
		rec.event(audit.Event{
			Kind:   audit.EventDeviceStateChanged,
			Device: caller,
			State:  profile.State.String(),
		})
		return nil
	})
}

// IdentityRemoved handles the removal of an account. A device that is off is
// forgotten; any other device is abandoned, after its order (if any) is
// resolved as a rejection. Unknown accounts are ignored.
func (s *Service) IdentityRemoved(ctx context.Context, account domain.AccountID) error {
	err := s.run(ctx, "identity_removed", func(ctx context.Context, st ports.Stores, rec *recorder) error {
		profile, err := st.Devices().Get(ctx, account)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return storeErr(err, dErrors.CodeNoDevice, "failed to load device")
		}
		now := s.clock.Now()

		switch {
		case profile.State == models.DeviceAbandoned:
			return nil
		case profile.State == models.DeviceOff:
			if err := st.Devices().Delete(ctx, account); err != nil {
				return storeErr(err, dErrors.CodeNoDevice, "failed to delete device")
			}
			rec.event(audit.Event{Kind: audit.EventDeviceRemoved, Device: account})
			return nil
		case profile.State.HoldsOrder():
			order, err := st.Orders().Get(ctx, account)
			if err != nil {
				return storeErr(err, dErrors.CodeNoOrder, "device holds no order")
			}
			if err := s.resolve(ctx, st, rec, profile, order, models.OutcomeRejected, models.DeviceAbandoned, now); err != nil {
				return err
			}
		default:
			profile.Apply(models.DeviceAbandoned, now)
			if err := st.Devices().Save(ctx, profile); err != nil {
				return storeErr(err, dErrors.CodeNoDevice, "failed to save device")
			}
		}
		rec.event(audit.Event{
			Kind:   audit.EventDeviceAbandoned,
			Device: account,
			State:  models.DeviceAbandoned.String(),
		})
		return nil
	})
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to process identity removal",
			"device", account.String(),
			"error", err,
		)
	}
	return err
}

// DeviceView is a device profile together with its order, if any.
type DeviceView struct {
	Profile *models.DeviceProfile `json:"profile"`
	Order   *models.Order         `json:"order,omitempty"`
}

// Device returns the profile and outstanding order of device.
func (s *Service) Device(ctx context.Context, device domain.AccountID) (*DeviceView, error) {
	var view DeviceView
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		profile, err := st.Devices().Get(ctx, device)
		if err != nil {
			return storeErr(err, dErrors.CodeNoDevice, "device not registered")
		}
		view.Profile = profile
		order, err := st.Orders().Get(ctx, device)
		switch {
		case err == nil:
			view.Order = order
		case !errors.Is(err, sentinel.ErrNotFound):
			return storeErr(err, dErrors.CodeNoOrder, "failed to load order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Balance returns the ledger balance of account.
func (s *Service) Balance(ctx context.Context, account domain.AccountID) (models.Balance, error) {
	var b models.Balance
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		var err error
		b, err = st.Ledger().Balance(ctx, account)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
		}
		return nil
	})
	return b, err
}

// SeedBalances credits free balance to every listed account that holds
// nothing yet. Used to bootstrap development ledgers.
func (s *Service) SeedBalances(ctx context.Context, balances map[domain.AccountID]domain.Amount) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		for account, amount := range balances {
			b, err := st.Ledger().Balance(ctx, account)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
			}
			if b.Total() != 0 {
				continue
			}
			if err := st.Ledger().Deposit(ctx, account, amount); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed balance")
			}
		}
		return nil
	})
}
