package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"paymail-bridge/internal/platform/config"
	"paymail-bridge/internal/platform/httpserver"
	"paymail-bridge/internal/platform/logger"
)

const shutdownTimeout = 30 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close(log)

	srv := httpserver.New(cfg.Addr, a.router, cfg.SettlementTimeout)
	g, gctx := errgroup.WithContext(ctx)

	// The fetch queue outlives the listener so settlements still in flight during
	// shutdown can finish assembling their proofs.
	queueCtx, stopQueue := context.WithCancel(context.Background())
	g.Go(func() error {
		a.queue.Run(queueCtx)
		return nil
	})
	g.Go(func() error {
		log.Info("starting paymail bridge",
			"addr", cfg.Addr,
			"domain", cfg.Host,
			"store", cfg.StoreDriver,
			"network", cfg.Chain.Network,
			"redis", a.redis != nil,
			"kafka", a.kafka != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		defer stopQueue()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
