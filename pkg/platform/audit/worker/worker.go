package worker

import (
	"context"
	"log/slog"
	"time"

	audit "paymail-bridge/pkg/platform/audit"
)

// Source is a buffer of pending events.
type Source interface {
	DequeueBatch(n int) []audit.Event
}

// Worker drains audit events from a Source into a Store. It wakes on signal and on a
// flush interval, and drains whatever is left when its context ends.
type Worker struct {
	store     audit.Store
	source    Source
	wake      <-chan struct{}
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func New(store audit.Store, source Source, wake <-chan struct{}, opts ...Option) *Worker {
	w := &Worker{
		store:     store,
		source:    source,
		wake:      wake,
		logger:    slog.Default(),
		batchSize: 100,
		interval:  time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// the sink may still be reachable even though the caller is done
			w.drain(context.WithoutCancel(ctx))
			return
		case <-w.wake:
			w.drain(ctx)
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		batch := w.source.DequeueBatch(w.batchSize)
		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "failed to persist audit event",
					"action", event.Action,
					"request_id", event.RequestID,
					"error", err,
				)
			}
		}
	}
}
