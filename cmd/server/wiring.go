package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/airalab/xcm-robobank-prototype/internal/audit"
	"github.com/airalab/xcm-robobank-prototype/internal/channel"
	jwttoken "github.com/airalab/xcm-robobank-prototype/internal/jwt_token"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/handler"
	leasingmetrics "github.com/airalab/xcm-robobank-prototype/internal/leasing/metrics"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/ports"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/service"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/store"
	"github.com/airalab/xcm-robobank-prototype/internal/platform/config"
	"github.com/airalab/xcm-robobank-prototype/internal/platform/httpserver"
	"github.com/airalab/xcm-robobank-prototype/internal/platform/kafka"
	"github.com/airalab/xcm-robobank-prototype/internal/platform/metrics"
	"github.com/airalab/xcm-robobank-prototype/internal/platform/postgres"
	"github.com/airalab/xcm-robobank-prototype/internal/platform/redis"
	httptransport "github.com/airalab/xcm-robobank-prototype/internal/transport/http"
)

const eventQueueSize = 1024

type app struct {
	server    *http.Server
	worker    *audit.Worker
	consumer  *channel.KafkaConsumer
	storeKind string
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{storeKind: "memory"}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	var (
		txr    ports.StoreTx = store.NewMemoryTx()
		events audit.Store   = audit.NewInMemoryStore()
	)
	if db != nil {
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		txr, events, a.storeKind = store.NewPostgresTx(db), audit.NewPostgresStore(db), "postgres"
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	var dedup channel.Deduper = channel.NewMemoryDeduper(cfg.DedupTTL)
	if rc != nil {
		a.closers = append(a.closers, func() { _ = rc.Close() })
		dedup = channel.NewRedisDeduper(rc.Client, "", cfg.DedupTTL)
	}

	queue := make(chan audit.Event, eventQueueSize)
	a.worker = audit.NewWorker(events, queue, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.New(reg, reg)

	policy, err := service.PolicyByName(cfg.Leasing.Policy, cfg.Leasing.Allowlist)
	if err != nil {
		return nil, err
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	var ch ports.Channel
	inbox := channel.Topic(cfg.Kafka.TopicPrefix, cfg.Leasing.LocalDomain)
	if producer != nil {
		a.closers = append(a.closers, producer.Close)
		if err := kafka.EnsureTopics(ctx, producer, cfg.Kafka, inbox); err != nil {
			return nil, err
		}
		ch = channel.NewKafkaChannel(producer, cfg.Kafka.TopicPrefix, cfg.Leasing.LocalDomain)
	}

	svc := service.New(txr, ch, ports.SystemClock, serviceConfig(cfg.Leasing),
		service.WithLogger(log),
		service.WithEventPublisher(audit.NewPublisher(events, audit.WithQueue(queue))),
		service.WithMetrics(leasingmetrics.New(reg)),
		service.WithPolicy(policy),
	)

	if len(cfg.SeedBalances) > 0 {
		if err := svc.SeedBalances(ctx, cfg.SeedBalances); err != nil {
			return nil, fmt.Errorf("seed balances: %w", err)
		}
	}

	if producer != nil {
		consumerClient, err := kafka.NewConsumer(cfg.Kafka, inbox)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, consumerClient.Close)
		a.consumer = channel.NewKafkaConsumer(consumerClient, svc,
			channel.WithDeduper(dedup),
			channel.WithConsumerLogger(log),
		)
	}

	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Leasing:    handler.New(svc, log),
		Validator:  jwttoken.NewJWTServiceAdapter(tokens),
		AdminToken: cfg.Auth.AdminToken,
		Logger:     log,
		Latency:    httpMetrics,
		Metrics:    httpMetrics.Handler(),
	})
	a.server = httpserver.New(cfg.Server.Addr, router)

	ok = true
	return a, nil
}

func serviceConfig(l config.Leasing) service.Config {
	return service.Config{
		LocalDomain: l.LocalDomain,
		DeviceRole:  l.DeviceRole,
		ClientRole:  l.ClientRole,
		Escrow: service.EscrowPolicy{
			BondRemoteOrders: l.BondRemoteOrders,
			HoldRemoteFee:    l.HoldRemoteFee,
			ReclaimGrace:     l.ReclaimGrace,
		},
		SovereignKind: l.SovereignKind,
	}
}
