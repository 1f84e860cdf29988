package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	otelx "github.com/solutions/todolist/libs/otel"
)

var (
	dispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "todo_outbox_dispatched_total",
		Help: "Outbox entries invalidated and marked processed.",
	})
	dispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "todo_outbox_dispatch_failures_total",
		Help: "Entries left pending after a failed dispatch attempt.",
	})
)

// Store is the slice of the outbox the dispatcher needs.
type Store interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]Entry, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

// Invalidator evicts a todo from the hot cache. Eviction must be
// idempotent: a crash between invalidate and mark-processed means the
// entry is dispatched again on restart.
type Invalidator interface {
	Invalidate(ctx context.Context, id uuid.UUID) error
}

type Dispatcher struct {
	store        Store
	cache        Invalidator
	logger       *slog.Logger
	batchSize    int
	pollInterval time.Duration
}

type DispatcherConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

func NewDispatcher(store Store, cache Invalidator, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Dispatcher{
		store:        store,
		cache:        cache,
		logger:       logger,
		batchSize:    cfg.BatchSize,
		pollInterval: cfg.PollInterval,
	}
}

// Run drains the outbox until the context is cancelled. Cancellation is
// observed between cycles; a started batch runs to completion.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.logger.Info("outbox dispatcher starting",
		"batch_size", d.batchSize,
		"poll_interval", d.pollInterval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.RunCycle(ctx); err != nil {
				d.logger.Error("outbox fetch failed", "err", err)
			}
		}
	}
}

// RunCycle processes one batch. Entries are independent: a failure on one
// is logged and leaves that row pending for the next cycle while the rest
// of the batch proceeds, so a poison entry cannot stall invalidation for
// everything behind it.
func (d *Dispatcher) RunCycle(ctx context.Context) error {
	entries, err := d.store.FetchUnprocessed(ctx, d.batchSize)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if err := d.dispatch(ctx, e); err != nil {
			dispatchFailures.Inc()
			d.logger.Error("outbox dispatch failed",
				"entry_id", e.ID,
				"kind", e.Kind,
				"err", err,
			)
			continue
		}
		dispatched.Inc()
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, e Entry) error {
	entryCtx := otelx.ContextWithTraceContext(ctx, e.Traceparent, e.Tracestate)

	switch e.Kind {
	case "TodoUpdated", "TodoMarkedDone":
		todoID, err := e.SubjectID()
		if err != nil {
			return err
		}
		if err := d.cache.Invalidate(entryCtx, todoID); err != nil {
			return err
		}
	default:
		// Unknown kinds are marked processed so they cannot wedge the queue.
		d.logger.Warn("outbox entry with unknown kind", "entry_id", e.ID, "kind", e.Kind)
	}

	return d.store.MarkProcessed(ctx, e.ID)
}
