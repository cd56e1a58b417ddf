package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/airalab/xcm-robobank-prototype/internal/audit"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/metrics"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/protocol"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	dErrors "github.com/airalab/xcm-robobank-prototype/pkg/domain-errors"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/sentinel"
	"github.com/airalab/xcm-robobank-prototype/pkg/requestcontext"
)

// EscrowPolicy decides what a domain holds for orders that cross a domain
// boundary.
type EscrowPolicy struct {
	// BondRemoteOrders reserves the device penalty for cross-domain orders.
	// A late resolution forfeits it to the origin domain's sovereign account.
	BondRemoteOrders bool
	// HoldRemoteFee reserves the fee in the client domain while an order it
	// sent is outstanding.
	HoldRemoteFee bool
	// ReclaimGrace is how long past the deadline a client waits for the
	// final notice of a remote order before it may take its fee back.
	ReclaimGrace time.Duration
}

// DefaultReclaimGrace leaves room for a late OrderCompleted to arrive.
const DefaultReclaimGrace = 5 * time.Minute

// Config is the per-domain configuration of the leasing core.
type Config struct {
	LocalDomain domain.DomainID
	DeviceRole  bool
	ClientRole  bool
	Escrow      EscrowPolicy
	// SovereignKind is the vantage point used to derive the account of a
	// remote domain inside this one.
	SovereignKind domain.SovereignKind
}

// DefaultConfig enables both roles and both escrow holds.
func DefaultConfig(local domain.DomainID) Config {
	return Config{
		LocalDomain:   local,
		DeviceRole:    true,
		ClientRole:    true,
		Escrow:        EscrowPolicy{BondRemoteOrders: true, HoldRemoteFee: true, ReclaimGrace: DefaultReclaimGrace},
		SovereignKind: domain.SovereignSibling,
	}
}

// Service is the role dispatch of one domain: caller operations, inbound
// channel messages and identity removal all run through it.
type Service struct {
	tx        ports.StoreTx
	channel   ports.Channel
	clock     ports.Clock
	cfg       Config
	policy    AcceptancePolicy
	logger    *slog.Logger
	publisher ports.EventPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithEventPublisher(publisher ports.EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithPolicy sets how newly installed orders are confirmed. Defaults to
// ManualPolicy.
func WithPolicy(policy AcceptancePolicy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// New constructs a Service. channel may be nil for a domain without
// neighbours; every cross-domain send then fails CannotReachDestination.
func New(tx ports.StoreTx, channel ports.Channel, clock ports.Clock, cfg Config, opts ...Option) *Service {
	s := &Service{
		tx:      tx,
		channel: channel,
		clock:   clock,
		cfg:     cfg,
		policy:  ManualPolicy{},
		tracer:  otel.Tracer("robobank/leasing"),
	}
	if s.clock == nil {
		s.clock = ports.SystemClock
	}
	if s.cfg.SovereignKind == "" {
		s.cfg.SovereignKind = domain.SovereignSibling
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the configuration the service runs with.
func (s *Service) Config() Config {
	return s.cfg
}

// recorder collects side effects of a transaction that must only become
// visible once it commits.
type recorder struct {
	events   []audit.Event
	placed   []string
	resolved []resolution
}

type resolution struct {
	outcome string
	onTime  bool
}

func (r *recorder) event(e audit.Event) {
	r.events = append(r.events, e)
}

// run executes fn as one atomic leasing operation and publishes what it
// recorded after commit.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context, st ports.Stores, rec *recorder) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "leasing."+op)
	defer span.End()
	if caller := requestcontext.Account(ctx); !caller.IsZero() {
		span.SetAttributes(attribute.String("leasing.caller", caller.String()))
	}

	var rec *recorder
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		rec = &recorder{}
		return fn(ctx, st, rec)
	})
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, start)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return err
	}
	s.flush(ctx, rec)
	return nil
}

func (s *Service) flush(ctx context.Context, rec *recorder) {
	if s.metrics != nil {
		for _, route := range rec.placed {
			s.metrics.IncOrderPlaced(route)
		}
		for _, r := range rec.resolved {
			s.metrics.IncOrderResolved(r.outcome, r.onTime)
		}
	}
	for _, e := range rec.events {
		s.logAudit(ctx, e)
	}
}

// logAudit logs an audit line for e and forwards it to the event publisher.
func (s *Service) logAudit(ctx context.Context, e audit.Event) {
	args := []any{"event", string(e.Kind), "log_type", "audit"}
	if !e.Device.IsZero() {
		args = append(args, "device", e.Device.String())
	}
	if !e.Client.IsZero() {
		args = append(args, "client", e.Client.String())
	}
	if e.Domain != 0 {
		args = append(args, "domain", e.Domain.String())
	}
	if e.State != "" {
		args = append(args, "state", e.State)
	}
	if e.Reason != "" {
		args = append(args, "reason", e.Reason)
	}
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		args = append(args, "request_id", requestID)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(e.Kind), args...)
	}
	if s.publisher == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.Now()
	}
	if err := s.publisher.Emit(ctx, e); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to publish event",
			"event", string(e.Kind),
			"request_id", requestID,
			"error", err,
		)
	}
}

// send encodes msg and hands it to the channel. Any failure is reported as
// CannotReachDestination so the surrounding transaction rolls back.
func (s *Service) send(ctx context.Context, dest domain.DomainID, msg protocol.Message) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode message")
	}
	if s.channel == nil {
		s.countSendFailure(msg)
		return dErrors.New(dErrors.CodeCannotReachDestination, "no channel configured for domain "+dest.String())
	}
	if err := s.channel.Send(ctx, dest, payload, ports.QualityOrdered); err != nil {
		s.countSendFailure(msg)
		return dErrors.Wrap(err, dErrors.CodeCannotReachDestination, "failed to send "+msg.Kind().String()+" to domain "+dest.String())
	}
	return nil
}

func (s *Service) countSendFailure(msg protocol.Message) {
	if s.metrics != nil {
		s.metrics.IncSendFailure(msg.Kind().String())
	}
}

func (s *Service) requireDeviceRole() error {
	if !s.cfg.DeviceRole {
		return dErrors.New(dErrors.CodeForbidden, "device role is disabled in this domain")
	}
	return nil
}

func (s *Service) requireClientRole() error {
	if !s.cfg.ClientRole {
		return dErrors.New(dErrors.CodeForbidden, "client role is disabled in this domain")
	}
	return nil
}

// storeErr translates a store failure. notFound is used for
// sentinel.ErrNotFound; everything else is internal.
func storeErr(err error, notFound dErrors.Code, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(notFound, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "store failure: "+msg)
}

func ledgerErr(err error, insufficient dErrors.Code, msg string) error {
	if errors.Is(err, sentinel.ErrInsufficient) {
		return dErrors.Wrap(err, insufficient, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "ledger failure: "+msg)
}
