package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/airalab/xcm-robobank-prototype/internal/platform/config"
	"github.com/airalab/xcm-robobank-prototype/internal/platform/httpserver"
	"github.com/airalab/xcm-robobank-prototype/internal/platform/logger"
)

// main wires the domain's dependencies and runs the HTTP server, the inbox
// consumer and the event worker until SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	log := logger.New(cfg.Log.Format, cfg.Log.Level)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	log.Info("starting robobank",
		"addr", cfg.Server.Addr,
		"domain", cfg.Leasing.LocalDomain.String(),
		"device_role", cfg.Leasing.DeviceRole,
		"client_role", cfg.Leasing.ClientRole,
		"policy", cfg.Leasing.Policy,
		"store", app.storeKind,
		"kafka", app.consumer != nil,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, app.server, cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		return ignoreCancel(app.worker.Run(ctx))
	})
	if app.consumer != nil {
		g.Go(func() error {
			return ignoreCancel(app.consumer.Run(ctx))
		})
	}
	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
