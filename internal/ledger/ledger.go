// internal/ledger/ledger.go
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
)

// Schema creates the append-only payment ledger table.
const Schema = `
CREATE TABLE IF NOT EXISTS payment_ledger (
	id BIGSERIAL PRIMARY KEY,
	aggregate_id UUID NOT NULL,
	intent_id TEXT NOT NULL,
	entry_type TEXT NOT NULL,
	entry_data JSONB NOT NULL,
	version INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (aggregate_id, version)
);
`

// Entry types
const (
	TypeIntentCreated        = "PaymentIntentCreated"
	TypeRegistrationRecorded = "RegistrationRecorded"
)

// intentNamespace derives stable aggregate ids from gateway intent ids.
var intentNamespace = uuid.MustParse("6f1c8f0e-4a53-4c1e-9d7e-5b0f2a8c3e11")

// Entry is one immutable ledger record for a payment intent aggregate.
type Entry struct {
	ID          int64           `json:"id"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	IntentID    string          `json:"intent_id"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
}

// IntentCreated is the payload of a TypeIntentCreated entry.
type IntentCreated struct {
	IntentID    string `json:"intent_id"`
	AmountCents int64  `json:"amount_cents"`
	EventID     string `json:"event_id"`
	Email       string `json:"email"`
}

// RegistrationRecorded is the payload of a TypeRegistrationRecorded entry.
type RegistrationRecorded struct {
	IntentID       string    `json:"intent_id"`
	RegistrationID uuid.UUID `json:"registration_id"`
}

// Ledger is an append-only journal of payment intents and the registrations recorded for them.
// It lets a reconciler find intents that were charged but never registered.
type Ledger struct {
	db     *sql.DB
	tracer trace.Tracer
}

func New(db *sql.DB) *Ledger {
	return &Ledger{
		db:     db,
		tracer: otel.Tracer("ministrysite/ledger"),
	}
}

// AggregateID returns the ledger aggregate id for a gateway intent id.
func AggregateID(intentID string) uuid.UUID {
	return uuid.NewSHA1(intentNamespace, []byte(intentID))
}

// RecordIntentCreated journals a newly created registration payment intent.
// Recording the same intent twice is a no-op.
func (l *Ledger) RecordIntentCreated(ctx context.Context, rec IntentCreated) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal intent entry: %w", err)
	}
	err = l.Append(ctx, rec.IntentID, 0, []Entry{{Type: TypeIntentCreated, Data: data}})
	if errors.Is(err, ErrConcurrencyConflict) {
		return nil
	}
	return err
}

// RecordRegistration journals that a registration now exists for an intent.
func (l *Ledger) RecordRegistration(ctx context.Context, rec RegistrationRecorded) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal registration entry: %w", err)
	}
	version, err := l.CurrentVersion(ctx, rec.IntentID)
	if err != nil {
		return err
	}
	return l.Append(ctx, rec.IntentID, version, []Entry{{Type: TypeRegistrationRecorded, Data: data}})
}

// Append atomically appends entries with optimistic concurrency control.
func (l *Ledger) Append(ctx context.Context, intentID string, expectedVersion int, entries []Entry) error {
	aggregateID := AggregateID(intentID)
	ctx, span := l.tracer.Start(ctx, "ledger.append",
		trace.WithAttributes(
			attribute.String("intent.id", intentID),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("entry.count", len(entries)),
		),
	)
	defer span.End()

	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentVersion int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM payment_ledger
		WHERE aggregate_id = $1
	`, aggregateID).Scan(&currentVersion)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("query current version: %w", err)
	}

	if currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO payment_ledger (aggregate_id, intent_id, entry_type, entry_data, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, entry := range entries {
		version := expectedVersion + i + 1

		var entryID int64
		err = stmt.QueryRowContext(ctx,
			aggregateID,
			intentID,
			entry.Type,
			[]byte(entry.Data),
			version,
			time.Now().UTC(),
		).Scan(&entryID)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("insert entry %d: %w", i, err)
		}

		span.AddEvent("entry.appended", trace.WithAttributes(
			attribute.Int64("entry.id", entryID),
			attribute.Int("entry.version", version),
			attribute.String("entry.type", entry.Type),
		))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CurrentVersion returns the latest version recorded for an intent.
func (l *Ledger) CurrentVersion(ctx context.Context, intentID string) (int, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.current_version",
		trace.WithAttributes(attribute.String("intent.id", intentID)),
	)
	defer span.End()

	var version int
	err := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM payment_ledger
		WHERE aggregate_id = $1
	`, AggregateID(intentID)).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("query version: %w", err)
	}
	return version, nil
}

// Load returns every entry for an intent in version order.
func (l *Ledger) Load(ctx context.Context, intentID string) ([]Entry, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.load",
		trace.WithAttributes(attribute.String("intent.id", intentID)),
	)
	defer span.End()

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, aggregate_id, intent_id, entry_type, entry_data, version, created_at
		FROM payment_ledger
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`, AggregateID(intentID))
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("entries.loaded", len(entries)))
	return entries, nil
}

// Stream provides a cursor-based read of all entries after fromID.
func (l *Ledger) Stream(ctx context.Context, fromID int64, batchSize int) ([]Entry, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.stream",
		trace.WithAttributes(
			attribute.Int64("from.id", fromID),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, aggregate_id, intent_id, entry_type, entry_data, version, created_at
		FROM payment_ledger
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2
	`, fromID, batchSize)
	if err != nil {
		return nil, fmt.Errorf("query entry stream: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("entries.streamed", len(entries)))
	return entries, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var data []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.IntentID, &e.Type, &data, &e.Version, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Data = data
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
