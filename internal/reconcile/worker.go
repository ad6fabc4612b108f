// internal/reconcile/worker.go
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ministrysite/internal/ledger"
	"ministrysite/internal/registration"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// EntrySource streams ledger entries after a cursor.
type EntrySource interface {
	Stream(ctx context.Context, fromID int64, batchSize int) ([]ledger.Entry, error)
}

// Completer turns a settled payment intent into a registration.
type Completer interface {
	CompletePaid(ctx context.Context, intentID string) (*registration.Registration, error)
}

// Config tunes the worker.
type Config struct {
	Interval  time.Duration
	Grace     time.Duration // intents younger than this are left to the client callback
	MaxAge    time.Duration // intents older than this are dropped
	BatchSize int
}

// Result summarises one pass.
type Result struct {
	Scanned   int
	Completed int
	Waiting   int
	Dropped   int
}

// Worker finds registration intents that were journaled but never registered and completes them.
// Canceled intents and intents without registration metadata are dropped on first sight.
// The cursor lives in memory; after a restart the ledger is replayed from the start.
type Worker struct {
	source    EntrySource
	completer Completer
	cfg       Config
	cursor    int64
	pending   map[string]time.Time
	now       func() time.Time
	logger    *slog.Logger
	tracer    trace.Tracer
	completed metric.Int64Counter
}

func NewWorker(source EntrySource, completer Completer, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 5 * time.Minute
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 7 * 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	completed, err := otel.Meter("ministrysite/reconcile").Int64Counter("reconcile.registrations.completed",
		metric.WithDescription("Registrations created by the reconciler"))
	if err != nil {
		slog.Warn("failed to create reconcile counter", "error", err)
	}
	return &Worker{
		source:    source,
		completer: completer,
		cfg:       cfg,
		pending:   make(map[string]time.Time),
		now:       time.Now,
		logger:    slog.Default().With("service", "ministrysite", "module", "reconcile"),
		tracer:    otel.Tracer("ministrysite/reconcile"),
		completed: completed,
	}
}

// Run reconciles on every interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Info("reconciler started", "interval", w.cfg.Interval.String())
	for {
		if _, err := w.Tick(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("reconcile pass failed", "operation", "tick", "error", err)
		}
		select {
		case <-ctx.Done():
			w.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick reads new ledger entries and attempts completion of every pending intent old enough.
func (w *Worker) Tick(ctx context.Context) (Result, error) {
	ctx, span := w.tracer.Start(ctx, "reconcile.tick")
	defer span.End()

	var res Result
	scanned, err := w.drain(ctx)
	res.Scanned = scanned
	if err != nil {
		return res, err
	}

	now := w.now()
	for intentID, created := range w.pending {
		age := now.Sub(created)
		if age < w.cfg.Grace {
			res.Waiting++
			continue
		}
		if age > w.cfg.MaxAge {
			w.logger.WarnContext(ctx, "dropping unreconciled intent",
				"operation", "reconcile",
				"intent_id", intentID,
				"age", age.String(),
			)
			delete(w.pending, intentID)
			res.Dropped++
			continue
		}

		reg, err := w.completer.CompletePaid(ctx, intentID)
		switch {
		case err == nil:
			delete(w.pending, intentID)
			res.Completed++
			if w.completed != nil {
				w.completed.Add(ctx, 1)
			}
			w.logger.InfoContext(ctx, "registration reconciled",
				"operation", "reconcile",
				"outcome", "completed",
				"intent_id", intentID,
				"registration_id", reg.ID.String(),
			)
		case errors.Is(err, registration.ErrPaymentNotSettled):
			res.Waiting++
		case errors.Is(err, registration.ErrInvalidRequest),
			errors.Is(err, registration.ErrPaymentCanceled):
			w.logger.WarnContext(ctx, "intent cannot be reconciled",
				"operation", "reconcile",
				"intent_id", intentID,
				"error", err,
			)
			delete(w.pending, intentID)
			res.Dropped++
		default:
			w.logger.ErrorContext(ctx, "reconcile attempt failed",
				"operation", "reconcile",
				"outcome", "error",
				"intent_id", intentID,
				"error", err,
			)
			res.Waiting++
		}
	}

	span.SetAttributes(
		attribute.Int("entries.scanned", res.Scanned),
		attribute.Int("intents.completed", res.Completed),
		attribute.Int("intents.waiting", res.Waiting),
		attribute.Int("intents.dropped", res.Dropped),
	)
	return res, nil
}

// Pending reports how many intents await a registration.
func (w *Worker) Pending() int {
	return len(w.pending)
}

func (w *Worker) drain(ctx context.Context) (int, error) {
	scanned := 0
	for {
		entries, err := w.source.Stream(ctx, w.cursor, w.cfg.BatchSize)
		if err != nil {
			return scanned, fmt.Errorf("failed to stream ledger: %w", err)
		}
		for _, e := range entries {
			w.apply(ctx, e)
			w.cursor = e.ID
		}
		scanned += len(entries)
		if len(entries) < w.cfg.BatchSize {
			return scanned, nil
		}
	}
}

func (w *Worker) apply(ctx context.Context, e ledger.Entry) {
	switch e.Type {
	case ledger.TypeIntentCreated:
		var rec ledger.IntentCreated
		if err := json.Unmarshal(e.Data, &rec); err != nil {
			w.logger.WarnContext(ctx, "skipping malformed ledger entry", "entry_id", e.ID, "error", err)
			return
		}
		w.pending[rec.IntentID] = e.CreatedAt
	case ledger.TypeRegistrationRecorded:
		delete(w.pending, e.IntentID)
	}
}
