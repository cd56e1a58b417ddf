package service

import (
	"context"
	"errors"

	"github.com/airalab/xcm-robobank-prototype/internal/audit"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/protocol"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	dErrors "github.com/airalab/xcm-robobank-prototype/pkg/domain-errors"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/sentinel"
)

// placeRemoteOrder records the client-side view of an order, holds the fee
// and sends NewOrder to the device's domain.
func (s *Service) placeRemoteOrder(ctx context.Context, caller domain.AccountID, req models.OrderRequest) error {
	if err := s.requireClientRole(); err != nil {
		return err
	}
	return s.run(ctx, "place_remote_order", func(ctx context.Context, st ports.Stores, rec *recorder) error {
		now := s.clock.Now()
		if !now.Before(req.Deadline) {
			return dErrors.New(dErrors.CodeOverdue, "order deadline has passed")
		}

		ro := &models.RemoteOrder{
			Client:    caller,
			Device:    req.Device,
			Domain:    req.Domain,
			Fee:       req.Fee,
			Deadline:  req.Deadline,
			Status:    models.RemoteOrderPending,
			PlacedAt:  now,
			UpdatedAt: now,
		}
		if s.cfg.Escrow.HoldRemoteFee {
			ledger := st.Ledger()
			ok, err := ledger.CanReserve(ctx, caller, req.Fee)
			if err != nil {
				return ledgerErr(err, dErrors.CodeDeviceLowBail, "failed to check client balance")
			}
			if !ok {
				return dErrors.New(dErrors.CodeDeviceLowBail, "client cannot cover the fee")
			}
			if err := ledger.Reserve(ctx, caller, req.Fee); err != nil {
				return ledgerErr(err, dErrors.CodeDeviceLowBail, "client cannot cover the fee")
			}
			ro.FeeHeld = true
		}
		if err := st.RemoteOrders().Create(ctx, ro); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeOrderExists, "an order for this device is already pending")
			}
			return storeErr(err, dErrors.CodeNoOrder, "failed to record remote order")
		}

		wire := req
		wire.Domain = 0
		if err := s.send(ctx, req.Domain, protocol.NewOrder{Client: caller, Request: wire}); err != nil {
			return err
		}

		rec.placed = append(rec.placed, "remote")
		rec.event(audit.Event{
			Kind:   audit.EventOrderSent,
			Device: req.Device,
			Client: caller,
			Domain: req.Domain,
			State:  string(ro.Status),
		})
		return nil
	})
}

// errNoRemoteOrder marks a notice that matches no pending remote order.
var errNoRemoteOrder = errors.New("no matching remote order")

// applyNotice updates client-side bookkeeping for a notice from source.
func (s *Service) applyNotice(ctx context.Context, source domain.DomainID, msg protocol.Message) error {
	var client, device domain.AccountID
	switch m := msg.(type) {
	case protocol.OrderAccepted:
		client, device = m.Client, m.Device
	case protocol.OrderRejected:
		client, device = m.Client, m.Device
	case protocol.OrderCompleted:
		client, device = m.Client, m.Device
	default:
		return protocol.ErrUnknownKind
	}

	return s.run(ctx, "receive_"+msg.Kind().String(), func(ctx context.Context, st ports.Stores, rec *recorder) error {
		key := models.RemoteKey{Device: device, Domain: source}
		ro, err := st.RemoteOrders().Get(ctx, key)
		if errors.Is(err, sentinel.ErrNotFound) {
			return errNoRemoteOrder
		}
		if err != nil {
			return storeErr(err, dErrors.CodeNoOrder, "failed to load remote order")
		}
		if ro.Client != client {
			return errNoRemoteOrder
		}
		now := s.clock.Now()
		ledger := st.Ledger()

		var kind audit.EventKind
		switch msg.(type) {
		case protocol.OrderAccepted:
			kind = audit.EventRemoteAccepted
			ro.Status = models.RemoteOrderAccepted
			ro.UpdatedAt = now
			if err := st.RemoteOrders().Save(ctx, ro); err != nil {
				return storeErr(err, dErrors.CodeNoOrder, "failed to save remote order")
			}
		case protocol.OrderRejected:
			kind = audit.EventRemoteRejected
			if ro.FeeHeld {
				if err := s.unreserve(ctx, ledger, ro.Client, ro.Fee); err != nil {
					return err
				}
			}
			if err := st.RemoteOrders().Delete(ctx, key); err != nil {
				return storeErr(err, dErrors.CodeNoOrder, "failed to remove remote order")
			}
		case protocol.OrderCompleted:
			kind = audit.EventRemoteCompleted
			if ro.FeeHeld {
				if err := ledger.Repatriate(ctx, ro.Client, ro.Device, ro.Fee, ports.BucketFree); err != nil {
					return ledgerErr(err, dErrors.CodeInternal, "failed to pay the device")
				}
			}
			if err := st.RemoteOrders().Delete(ctx, key); err != nil {
				return storeErr(err, dErrors.CodeNoOrder, "failed to remove remote order")
			}
		}

		rec.event(audit.Event{
			Kind:   kind,
			Device: device,
			Client: client,
			Domain: source,
			State:  string(ro.Status),
		})
		return nil
	})
}

// CancelRemote lets a client give up on an order it sent to another domain
// once the deadline and the reclaim grace have passed without a final
// notice. The held fee is released and the record removed, so a notice that
// still arrives later matches nothing and is dropped.
func (s *Service) CancelRemote(ctx context.Context, caller, device domain.AccountID, dom domain.DomainID) error {
	if err := s.requireClientRole(); err != nil {
		return err
	}
	return s.run(ctx, "cancel_remote_order", func(ctx context.Context, st ports.Stores, rec *recorder) error {
		key := models.RemoteKey{Device: device, Domain: dom}
		ro, err := st.RemoteOrders().Get(ctx, key)
		if err != nil {
			return storeErr(err, dErrors.CodeNoOrder, "no pending remote order")
		}
		if ro.Client != caller {
			return dErrors.New(dErrors.CodeProhibited, "only the ordering client may cancel")
		}
		if s.clock.Now().Before(ro.Deadline.Add(s.cfg.Escrow.ReclaimGrace)) {
			return dErrors.New(dErrors.CodeProhibited, "the device domain may still answer")
		}
		if ro.FeeHeld {
			if err := s.unreserve(ctx, st.Ledger(), ro.Client, ro.Fee); err != nil {
				return err
			}
		}
		if err := st.RemoteOrders().Delete(ctx, key); err != nil {
			return storeErr(err, dErrors.CodeNoOrder, "failed to remove remote order")
		}

		rec.event(audit.Event{
			Kind:   audit.EventRemoteReclaimed,
			Device: device,
			Client: caller,
			Domain: dom,
			State:  string(ro.Status),
		})
		return nil
	})
}

// RemoteOrder returns the pending client-side record for device in dom.
func (s *Service) RemoteOrder(ctx context.Context, device domain.AccountID, dom domain.DomainID) (*models.RemoteOrder, error) {
	var ro *models.RemoteOrder
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		var err error
		ro, err = st.RemoteOrders().Get(ctx, models.RemoteKey{Device: device, Domain: dom})
		if err != nil {
			return storeErr(err, dErrors.CodeNoOrder, "no pending remote order")
		}
		return nil
	})
	return ro, err
}
