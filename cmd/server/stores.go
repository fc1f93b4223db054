package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	aliasservice "paymail-bridge/internal/alias/service"
	aliasstore "paymail-bridge/internal/alias/store"
	destservice "paymail-bridge/internal/destination/service"
	deststore "paymail-bridge/internal/destination/store"
	httpapi "paymail-bridge/internal/http"
	"paymail-bridge/internal/platform/config"
	"paymail-bridge/internal/platform/postgres"
	receiptservice "paymail-bridge/internal/receipt/service"
	receiptstore "paymail-bridge/internal/receipt/store"
	settleservice "paymail-bridge/internal/settlement/service"
	"paymail-bridge/internal/storage"
	audit "paymail-bridge/pkg/platform/audit"
	auditmemory "paymail-bridge/pkg/platform/audit/store/memory"
	auditpostgres "paymail-bridge/pkg/platform/audit/store/postgres"
)

// receiptStore is written by settlement and read by collection.
type receiptStore interface {
	settleservice.Store
	receiptservice.Store
}

type stores struct {
	aliases      aliasservice.Store
	destinations destservice.Store
	receipts     receiptStore
	audit        audit.Store
	health       map[string]httpapi.HealthCheck
	closers      []func() error
}

func (s *stores) Close(logger *slog.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}
}

// openStores builds the record stores for cfg.StoreDriver. The audit store follows
// the same driver; a Kafka sink, when configured, replaces it later.
func openStores(ctx context.Context, cfg config.Server, logger *slog.Logger) (*stores, error) {
	s := &stores{health: make(map[string]httpapi.HealthCheck)}

	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		if err := postgres.Migrate(db, logger); err != nil {
			s.Close(logger)
			return nil, err
		}
		s.usePostgres(db)

	case config.StoreBadger:
		db, err := storage.NewBadger(cfg.BadgerDir)
		if err != nil {
			return nil, fmt.Errorf("open badger at %s: %w", cfg.BadgerDir, err)
		}
		s.closers = append(s.closers, db.Close)
		receipts, err := receiptstore.NewBadger(db)
		if err != nil {
			s.Close(logger)
			return nil, fmt.Errorf("open receipt sequence: %w", err)
		}
		s.closers = append(s.closers, receipts.Close)
		s.aliases = aliasstore.NewBadger(db)
		s.destinations = deststore.NewBadger(db)
		s.receipts = receipts
		s.audit = auditmemory.NewInMemoryStore()

	default:
		s.aliases = aliasstore.NewInMemoryStore()
		s.destinations = deststore.NewInMemoryStore()
		s.receipts = receiptstore.NewInMemoryStore()
		s.audit = auditmemory.NewInMemoryStore()
	}

	logger.Info("stores ready", "driver", cfg.StoreDriver)
	return s, nil
}

func (s *stores) usePostgres(db *sql.DB) {
	s.aliases = aliasstore.NewPostgres(db)
	s.destinations = deststore.NewPostgres(db)
	s.receipts = receiptstore.NewPostgres(db)
	s.audit = auditpostgres.New(db)
	s.health["postgres"] = db.PingContext
}
