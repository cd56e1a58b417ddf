package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/airalab/xcm-robobank-prototype/internal/audit"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/protocol"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	dErrors "github.com/airalab/xcm-robobank-prototype/pkg/domain-errors"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/sentinel"
)

// Drop reasons reported in logs, metrics and message.dropped events.
const (
	DropDecode    = "decode"
	DropOutOfRole = "out_of_role"
	DropDuplicate = "duplicate"
	DropNoRecord  = "no_record"
	DropRefused   = "refused"
	DropFailed    = "failed"
)

// errDuplicateOrder marks a redelivered NewOrder that is already installed.
var errDuplicateOrder = errors.New("duplicate order")

// Receive handles one inbound payload from source. Nothing is reported back
// to the sender: malformed, out-of-role and unmatched messages are logged,
// counted and dropped. An error means the message could not be handled yet,
// for example because the store or the channel failed, and the transport
// must deliver it again.
func (s *Service) Receive(ctx context.Context, source domain.DomainID, payload []byte) error {
	ctx, span := s.tracer.Start(ctx, "leasing.receive")
	defer span.End()
	span.SetAttributes(attribute.Int64("leasing.source_domain", int64(source)))

	msg, err := protocol.Decode(payload)
	if err != nil {
		s.drop(ctx, source, 0, DropDecode, err)
		return nil
	}
	kind := msg.Kind()
	span.SetAttributes(attribute.String("leasing.kind", kind.String()))
	if s.metrics != nil {
		s.metrics.IncInbound(kind.String())
	}

	if (kind.ForDevice() && !s.cfg.DeviceRole) || (!kind.ForDevice() && !s.cfg.ClientRole) {
		s.drop(ctx, source, kind, DropOutOfRole, nil)
		return nil
	}

	switch m := msg.(type) {
	case protocol.NewOrder:
		err = s.receiveOrder(ctx, source, m)
	default:
		err = s.applyNotice(ctx, source, msg)
		switch {
		case errors.Is(err, errNoRemoteOrder):
			s.drop(ctx, source, kind, DropNoRecord, nil)
			err = nil
		case err != nil && !retryable(err):
			s.drop(ctx, source, kind, DropFailed, err)
			err = nil
		}
	}
	if err != nil {
		span.RecordError(err)
		if s.logger != nil {
			s.logger.WarnContext(ctx, "inbound message not handled, awaiting redelivery",
				"domain", source.String(),
				"kind", kind.String(),
				"error", err,
			)
		}
	}
	return err
}

// retryable reports whether a failure is about this domain's infrastructure
// rather than the message, so the same message may succeed later.
func retryable(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeCannotReachDestination, dErrors.CodeTimeout:
		return true
	}
	return false
}

// receiveOrder runs an inbound NewOrder through the acceptance path and
// bounces a rejection to the client domain when it is refused. A refusal
// whose bounce cannot be sent is returned so the order comes back and is
// bounced again.
func (s *Service) receiveOrder(ctx context.Context, source domain.DomainID, m protocol.NewOrder) error {
	err := s.run(ctx, "receive_new_order", func(ctx context.Context, st ports.Stores, rec *recorder) error {
		now := s.clock.Now()
		order := models.NewOrder(m.Request, m.Client, source, now)
		existing, err := st.Orders().Get(ctx, order.Device)
		if err == nil && existing.SameTerms(order) {
			return errDuplicateOrder
		}
		return s.acceptOrder(ctx, st, rec, order, now)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errDuplicateOrder):
		s.drop(ctx, source, protocol.KindNewOrder, DropDuplicate, nil)
		return nil
	case retryable(err):
		return err
	}

	if berr := s.bounce(ctx, source, m); berr != nil {
		return berr
	}
	s.drop(ctx, source, protocol.KindNewOrder, DropRefused, err)
	return nil
}

// bounce tells the client domain that its order will not be served so it can
// release the fee it holds.
func (s *Service) bounce(ctx context.Context, source domain.DomainID, m protocol.NewOrder) error {
	on := false
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		profile, err := st.Devices().Get(ctx, m.Request.Device)
		switch {
		case err == nil:
			on = profile.State == models.DeviceReady
		case !errors.Is(err, sentinel.ErrNotFound):
			return storeErr(err, dErrors.CodeNoDevice, "failed to load device")
		}
		return nil
	})
	if err == nil {
		err = s.send(ctx, source, protocol.OrderRejected{Client: m.Client, Device: m.Request.Device, On: on})
	}
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to bounce refused order",
			"device", m.Request.Device.String(),
			"client", m.Client.String(),
			"domain", source.String(),
			"error", err,
		)
	}
	return err
}

func (s *Service) drop(ctx context.Context, source domain.DomainID, kind protocol.Kind, reason string, cause error) {
	if s.metrics != nil {
		s.metrics.IncDropped(reason)
	}
	if s.logger != nil {
		args := []any{"domain", source.String(), "reason", reason}
		if kind != 0 {
			args = append(args, "kind", kind.String())
		}
		if cause != nil {
			args = append(args, "error", cause, "code", string(dErrors.CodeOf(cause)))
		}
		s.logger.WarnContext(ctx, "inbound message dropped", args...)
	}
	s.logAudit(ctx, audit.Event{
		Kind:   audit.EventMessageDropped,
		Domain: source,
		Reason: reason,
	})
}
