package service

import (
	"context"
	"errors"
	"time"

	"github.com/airalab/xcm-robobank-prototype/internal/audit"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/protocol"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	dErrors "github.com/airalab/xcm-robobank-prototype/pkg/domain-errors"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/sentinel"
)

// PlaceOrder submits an order for req.Device. A request naming a remote
// domain is forwarded there as NewOrder; otherwise it goes through the local
// acceptance path.
func (s *Service) PlaceOrder(ctx context.Context, caller domain.AccountID, req models.OrderRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if !req.Domain.IsLocal(s.cfg.LocalDomain) {
		return s.placeRemoteOrder(ctx, caller, req)
	}
	if err := s.requireDeviceRole(); err != nil {
		return err
	}
	return s.run(ctx, "place_order", func(ctx context.Context, st ports.Stores, rec *recorder) error {
		now := s.clock.Now()
		order := models.NewOrder(req, caller, s.cfg.LocalDomain, now)
		return s.acceptOrder(ctx, st, rec, order, now)
	})
}

// acceptOrder is the acceptance path shared by local orders and inbound
// NewOrder messages.
func (s *Service) acceptOrder(ctx context.Context, st ports.Stores, rec *recorder, order *models.Order, now time.Time) error {
	if err := order.CheckFresh(now); err != nil {
		return err
	}

	_, err := st.Orders().Get(ctx, order.Device)
	switch {
	case err == nil:
		return dErrors.New(dErrors.CodeOrderExists, "device already has an order")
	case !errors.Is(err, sentinel.ErrNotFound):
		return storeErr(err, dErrors.CodeNoOrder, "failed to load order")
	}

	profile, err := st.Devices().Get(ctx, order.Device)
	if err != nil {
		return storeErr(err, dErrors.CodeNoDevice, "device not registered")
	}
	if err := profile.CanReceiveOrder(); err != nil {
		return err
	}
	if err := order.CheckLeadTime(now, profile.MinLeadTime); err != nil {
		return err
	}
	target := s.policy.Decide(ctx, profile, order)

	if err := s.holdEscrow(ctx, st.Ledger(), profile, order); err != nil {
		return err
	}
	if err := st.Orders().Create(ctx, order); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeOrderExists, "device already has an order")
		}
		return storeErr(err, dErrors.CodeNoOrder, "failed to install order")
	}
	profile.Apply(models.DeviceBusy, now)
	if err := st.Devices().Save(ctx, profile); err != nil {
		return storeErr(err, dErrors.CodeNoDevice, "failed to save device")
	}

	rec.placed = append(rec.placed, "local")
	rec.event(audit.Event{
		Kind:    audit.EventOrderNew,
		Device:  order.Device,
		Client:  order.Client,
		Domain:  order.OriginDomain,
		OrderID: order.ID,
		State:   profile.State.String(),
	})

	if target == models.DeviceAccepted {
		return s.confirm(ctx, st, rec, profile, order, now)
	}
	return nil
}

// holdEscrow reserves the fee and the bond for a new order and records the
// bond on the order. Cross-domain orders never touch client funds here.
func (s *Service) holdEscrow(ctx context.Context, ledger ports.Ledger, profile *models.DeviceProfile, order *models.Order) error {
	local := order.IsLocal(s.cfg.LocalDomain)
	if local {
		ok, err := ledger.CanReserve(ctx, order.Client, order.Fee)
		if err != nil {
			return ledgerErr(err, dErrors.CodeDeviceLowBail, "failed to check client balance")
		}
		if !ok {
			return dErrors.New(dErrors.CodeDeviceLowBail, "client cannot cover the fee")
		}
	}
	if local || s.cfg.Escrow.BondRemoteOrders {
		if err := ledger.Reserve(ctx, profile.Device, profile.Penalty); err != nil {
			return ledgerErr(err, dErrors.CodeInsufficientBalance, "device cannot cover the penalty")
		}
		order.Bond = profile.Penalty
	}
	if local {
		if err := ledger.Reserve(ctx, order.Client, order.Fee); err != nil {
			return ledgerErr(err, dErrors.CodeDeviceLowBail, "client cannot cover the fee")
		}
	}
	return nil
}

// AcceptRequest is the owner's answer to a pending order.
type AcceptRequest struct {
	Reject bool
	// On is the power state after a rejection.
	On bool
}

// Accept confirms the caller's pending order, or rejects the current one.
func (s *Service) Accept(ctx context.Context, caller domain.AccountID, req AcceptRequest) error {
	if err := s.requireDeviceRole(); err != nil {
		return err
	}
	op := "accept"
	if req.Reject {
		op = "reject"
	}
	return s.run(ctx, op, func(ctx context.Context, st ports.Stores, rec *recorder) error {
		now := s.clock.Now()
		profile, err := st.Devices().Get(ctx, caller)
		if err != nil {
			return storeErr(err, dErrors.CodeNoDevice, "device not registered")
		}
		if req.Reject {
			if err := profile.CanReject(); err != nil {
				return err
			}
		} else if err := profile.CanConfirm(); err != nil {
			return err
		}
		order, err := st.Orders().Get(ctx, caller)
		if err != nil {
			return storeErr(err, dErrors.CodeNoOrder, "device holds no order")
		}
		if req.Reject {
			return s.resolve(ctx, st, rec, profile, order, models.OutcomeRejected, models.PowerState(req.On), now)
		}
		return s.confirm(ctx, st, rec, profile, order, now)
	})
}

// confirm moves a Busy device to Accepted and notifies a remote client.
func (s *Service) confirm(ctx context.Context, st ports.Stores, rec *recorder, profile *models.DeviceProfile, order *models.Order, now time.Time) error {
	if err := profile.CanConfirm(); err != nil {
		return err
	}
	if err := order.CheckFresh(now); err != nil {
		return err
	}
	profile.Apply(models.DeviceAccepted, now)
	if err := st.Devices().Save(ctx, profile); err != nil {
		return storeErr(err, dErrors.CodeNoDevice, "failed to save device")
	}
	if !order.IsLocal(s.cfg.LocalDomain) {
		msg := protocol.OrderAccepted{Client: order.Client, Device: order.Device}
		if err := s.send(ctx, order.OriginDomain, msg); err != nil {
			return err
		}
	}
	rec.event(audit.Event{
		Kind:    audit.EventOrderAccepted,
		Device:  order.Device,
		Client:  order.Client,
		Domain:  order.OriginDomain,
		OrderID: order.ID,
		State:   profile.State.String(),
	})
	return nil
}

// Done reports the caller's accepted order as fulfilled.
func (s *Service) Done(ctx context.Context, caller domain.AccountID, on bool) error {
	if err := s.requireDeviceRole(); err != nil {
		return err
	}
	return s.run(ctx, "done", func(ctx context.Context, st ports.Stores, rec *recorder) error {
		profile, err := st.Devices().Get(ctx, caller)
		if err != nil {
			return storeErr(err, dErrors.CodeNoDevice, "device not registered")
		}
		if err := profile.CanComplete(); err != nil {
			return err
		}
		order, err := st.Orders().Get(ctx, caller)
		if err != nil {
			return storeErr(err, dErrors.CodeNoOrder, "device holds no order")
		}
		return s.resolve(ctx, st, rec, profile, order, models.OutcomeDone, models.PowerState(on), s.clock.Now())
	})
}

// Cancel lets the client withdraw an order once its deadline has passed.
// The device returns to Ready.
func (s *Service) Cancel(ctx context.Context, caller, device domain.AccountID) error {
	if err := s.requireDeviceRole(); err != nil {
		return err
	}
	return s.run(ctx, "cancel", func(ctx context.Context, st ports.Stores, rec *recorder) error {
		now := s.clock.Now()
		order, err := st.Orders().Get(ctx, device)
		if err != nil {
			return storeErr(err, dErrors.CodeNoOrder, "device holds no order")
		}
		if order.Client != caller {
			return dErrors.New(dErrors.CodeProhibited, "only the ordering client may cancel")
		}
		if order.OnTime(now) {
			return dErrors.New(dErrors.CodeProhibited, "order cannot be cancelled before its deadline")
		}
		profile, err := st.Devices().Get(ctx, device)
		if err != nil {
			return storeErr(err, dErrors.CodeNoDevice, "device not registered")
		}
		return s.resolve(ctx, st, rec, profile, order, models.OutcomeCancelled, models.DeviceReady, now)
	})
}

// resolve settles escrow for order, removes it and moves the device to next.
// Cross-domain orders notify the origin domain; a failed notice fails the
// whole operation.
func (s *Service) resolve(ctx context.Context, st ports.Stores, rec *recorder, profile *models.DeviceProfile, order *models.Order, outcome models.Outcome, next models.DeviceState, now time.Time) error {
	ledger := st.Ledger()
	local := order.IsLocal(s.cfg.LocalDomain)
	onTime := order.OnTime(now)

	if local {
		if outcome.Settles() {
			if err := ledger.Repatriate(ctx, order.Client, order.Device, order.Fee, ports.BucketFree); err != nil {
				return ledgerErr(err, dErrors.CodeInternal, "failed to pay the device")
			}
		} else if err := s.unreserve(ctx, ledger, order.Client, order.Fee); err != nil {
			return err
		}
	}

	if order.Bond > 0 {
		if onTime {
			if err := s.unreserve(ctx, ledger, order.Device, order.Bond); err != nil {
				return err
			}
		} else if err := ledger.Repatriate(ctx, order.Device, s.forfeitTarget(order), order.Bond, ports.BucketFree); err != nil {
			return ledgerErr(err, dErrors.CodeInternal, "failed to forfeit the penalty")
		}
	}

	if err := st.Orders().Delete(ctx, order.Device); err != nil {
		return storeErr(err, dErrors.CodeNoOrder, "failed to remove order")
	}
	profile.Apply(next, now)
	if err := st.Devices().Save(ctx, profile); err != nil {
		return storeErr(err, dErrors.CodeNoDevice, "failed to save device")
	}

	if !local {
		var msg protocol.Message = protocol.OrderRejected{Client: order.Client, Device: order.Device, On: next == models.DeviceReady}
		if outcome.Settles() {
			msg = protocol.OrderCompleted{Client: order.Client, Device: order.Device, On: next == models.DeviceReady}
		}
		if err := s.send(ctx, order.OriginDomain, msg); err != nil {
			return err
		}
	}

	kind := audit.EventOrderRejected
	switch outcome {
	case models.OutcomeDone:
		kind = audit.EventOrderDone
	case models.OutcomeCancelled:
		kind = audit.EventOrderCancelled
	}
	reason := "on_time"
	if !onTime {
		reason = "late"
	}
	rec.resolved = append(rec.resolved, resolution{outcome: string(outcome), onTime: onTime})
	rec.event(audit.Event{
		Kind:    kind,
		Device:  order.Device,
		Client:  order.Client,
		Domain:  order.OriginDomain,
		OrderID: order.ID,
		State:   next.String(),
		Reason:  reason,
	})
	return nil
}

// forfeitTarget is who receives a late bond: the client for local orders,
// the origin domain's sovereign account otherwise.
func (s *Service) forfeitTarget(order *models.Order) domain.AccountID {
	if order.IsLocal(s.cfg.LocalDomain) {
		return order.Client
	}
	return domain.SovereignAccount(s.cfg.SovereignKind, order.OriginDomain)
}

func (s *Service) unreserve(ctx context.Context, ledger ports.Ledger, account domain.AccountID, amount domain.Amount) error {
	left, err := ledger.Unreserve(ctx, account, amount)
	if err != nil {
		return ledgerErr(err, dErrors.CodeInternal, "failed to release reserve")
	}
	if left > 0 && s.logger != nil {
		s.logger.WarnContext(ctx, "reserve smaller than expected on release",
			"account", account.String(),
			"requested", uint64(amount),
			"missing", uint64(left),
		)
	}
	return nil
}
