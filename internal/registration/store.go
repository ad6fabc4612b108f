// internal/registration/store.go
package registration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Schema creates the registrations table.
// Free registrations are unique per event and email; paid ones are unique per payment intent.
const Schema = `
CREATE TABLE IF NOT EXISTS registrations (
	id UUID PRIMARY KEY,
	event_id TEXT NOT NULL,
	event_slug TEXT NOT NULL,
	event_title TEXT NOT NULL,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	email TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	attendance_type TEXT NOT NULL DEFAULT '',
	payment JSONB,
	payment_intent_id TEXT,
	registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	status TEXT NOT NULL DEFAULT 'confirmed',
	email_log JSONB NOT NULL DEFAULT '[]',
	notes TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS registrations_payment_intent
	ON registrations (payment_intent_id) WHERE payment_intent_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS registrations_event_email_free
	ON registrations (event_id, lower(email)) WHERE status <> 'cancelled' AND payment_intent_id IS NULL;
CREATE INDEX IF NOT EXISTS registrations_event ON registrations (event_id, registered_at);
`

const registrationColumns = `id, event_id, event_slug, event_title, first_name, last_name, email, phone,
	attendance_type, payment, registered_at, status, email_log, notes`

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, tracer: otel.Tracer("ministrysite/registration")}
}

// Create serializes writers per event with a transaction-scoped advisory lock so the
// capacity check and the insert are atomic.
func (s *PostgresStore) Create(ctx context.Context, reg *Registration, capacity int) error {
	ctx, span := s.tracer.Start(ctx, "registration.store.create",
		trace.WithAttributes(
			attribute.String("event.id", reg.EventID),
			attribute.Int("capacity", capacity),
		),
	)
	defer span.End()

	var (
		paymentJSON []byte
		intentID    sql.NullString
		err         error
	)
	if reg.Payment != nil {
		paymentJSON, err = json.Marshal(reg.Payment)
		if err != nil {
			return fmt.Errorf("failed to marshal payment: %w", err)
		}
		if reg.Payment.IntentID != "" {
			intentID = sql.NullString{String: reg.Payment.IntentID, Valid: true}
		}
	}
	emailLog := reg.EmailLog
	if emailLog == nil {
		emailLog = []EmailLogEntry{}
	}
	emailJSON, err := json.Marshal(emailLog)
	if err != nil {
		return fmt.Errorf("failed to marshal email log: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, reg.EventID); err != nil {
		return fmt.Errorf("failed to lock event: %w", err)
	}

	if capacity > 0 {
		var count int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status <> 'cancelled'
		`, reg.EventID).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to count registrations: %w", err)
		}
		if count >= capacity {
			span.SetAttributes(attribute.Bool("event.full", true))
			return ErrEventFull
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO registrations (id, event_id, event_slug, event_title, first_name, last_name, email, phone,
			attendance_type, payment, payment_intent_id, registered_at, status, email_log, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, reg.ID, reg.EventID, reg.EventSlug, reg.EventTitle,
		reg.Attendee.FirstName, reg.Attendee.LastName, reg.Attendee.Email, reg.Attendee.Phone,
		string(reg.AttendanceType), nullJSON(paymentJSON), intentID, reg.RegisteredAt,
		string(reg.Status), emailJSON, reg.Notes)
	if err != nil {
		return mapUniqueViolation(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registration: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Registration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id)
	return scanRegistration(row)
}

func (s *PostgresStore) FindByPaymentIntent(ctx context.Context, intentID string) (*Registration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE payment_intent_id = $1`, intentID)
	return scanRegistration(row)
}

func (s *PostgresStore) ListByEvent(ctx context.Context, eventID string) ([]*Registration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE event_id = $1
		ORDER BY registered_at ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}
	defer rows.Close()

	regs := []*Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registrations: %w", err)
	}
	return regs, nil
}

func (s *PostgresStore) CountActive(ctx context.Context, eventID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status <> 'cancelled'
	`, eventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) (*Registration, error) {
	var status sql.NullString
	if update.Status != nil {
		status = sql.NullString{String: string(*update.Status), Valid: true}
	}
	var notes sql.NullString
	if update.Notes != nil {
		notes = sql.NullString{String: *update.Notes, Valid: true}
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE registrations
		SET status = COALESCE($2, status), notes = COALESCE($3, notes)
		WHERE id = $1
		RETURNING `+registrationColumns, id, status, notes)
	reg, err := scanRegistration(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, mapUniqueViolation(err)
	}
	return reg, err
}

// RegistrationStatus reports a registration's status for token validation.
func (s *PostgresStore) RegistrationStatus(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM registrations WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read registration status: %w", err)
	}
	return status, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row scanner) (*Registration, error) {
	var (
		reg                    Registration
		attendance, status     string
		paymentJSON, emailJSON []byte
	)
	err := row.Scan(&reg.ID, &reg.EventID, &reg.EventSlug, &reg.EventTitle,
		&reg.Attendee.FirstName, &reg.Attendee.LastName, &reg.Attendee.Email, &reg.Attendee.Phone,
		&attendance, &paymentJSON, &reg.RegisteredAt, &status, &emailJSON, &reg.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan registration: %w", err)
	}
	reg.AttendanceType = AttendanceType(attendance)
	reg.Status = Status(status)
	if len(paymentJSON) > 0 {
		var p PaymentSummary
		if err := json.Unmarshal(paymentJSON, &p); err != nil {
			return nil, fmt.Errorf("failed to decode payment: %w", err)
		}
		reg.Payment = &p
	}
	if err := json.Unmarshal(emailJSON, &reg.EmailLog); err != nil {
		return nil, fmt.Errorf("failed to decode email log: %w", err)
	}
	return &reg, nil
}

func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case "registrations_payment_intent":
			return ErrAlreadyRecorded
		case "registrations_event_email_free":
			return ErrAlreadyRegistered
		}
	}
	return fmt.Errorf("failed to write registration: %w", err)
}

func nullJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
