// internal/access/store.go
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ministrysite/internal/content"

	"github.com/google/uuid"
)

// Schema creates the access token table. One active token per content and email.
const Schema = `
CREATE TABLE IF NOT EXISTS access_tokens (
	id UUID PRIMARY KEY,
	token CHAR(64) NOT NULL UNIQUE,
	content_kind TEXT NOT NULL,
	content_id TEXT NOT NULL,
	content_slug TEXT NOT NULL,
	registration_id UUID,
	access_type TEXT NOT NULL,
	email TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_accessed_at TIMESTAMPTZ,
	access_count INT NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS access_tokens_active_content_email
	ON access_tokens (content_kind, content_id, lower(email)) WHERE is_active;
`

const tokenColumns = `id, token, content_kind, content_id, content_slug, registration_id, access_type,
	email, name, is_active, created_at, last_accessed_at, access_count`

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindActive(ctx context.Context, kind content.Kind, contentID, email string) (*Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+tokenColumns+`
		FROM access_tokens
		WHERE content_kind = $1 AND content_id = $2 AND lower(email) = lower($3) AND is_active
	`, string(kind), contentID, email)
	return scanToken(row)
}

func (s *PostgresStore) Insert(ctx context.Context, t *Token) (*Token, bool, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO access_tokens (id, token, content_kind, content_id, content_slug, registration_id,
			access_type, email, name, is_active, created_at, access_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10, 0)
		ON CONFLICT (content_kind, content_id, lower(email)) WHERE is_active DO NOTHING
		RETURNING id
	`, t.ID, t.Token, string(t.ContentKind), t.ContentID, t.ContentSlug, nullUUID(t.RegistrationID),
		string(t.Type), t.Email, t.Name, t.CreatedAt).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := s.FindActive(ctx, t.ContentKind, t.ContentID, t.Email)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load concurrent token: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert access token: %w", err)
	}
	stored := *t
	stored.Active = true
	stored.AccessCount = 0
	return &stored, true, nil
}

func (s *PostgresStore) GetByToken(ctx context.Context, token string) (*Token, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM access_tokens WHERE token = $1`, token)
	return scanToken(row)
}

func (s *PostgresStore) RecordAccess(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE access_tokens
		SET access_count = access_count + 1, last_accessed_at = $2
		WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}
	return nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE access_tokens SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func scanToken(row *sql.Row) (*Token, error) {
	var (
		t              Token
		kind, typ      string
		registrationID uuid.NullUUID
		lastAccessed   sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Token, &kind, &t.ContentID, &t.ContentSlug, &registrationID, &typ,
		&t.Email, &t.Name, &t.Active, &t.CreatedAt, &lastAccessed, &t.AccessCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan access token: %w", err)
	}
	t.ContentKind = content.Kind(kind)
	t.Type = Type(typ)
	if registrationID.Valid {
		id := registrationID.UUID
		t.RegistrationID = &id
	}
	if lastAccessed.Valid {
		at := lastAccessed.Time
		t.LastAccessedAt = &at
	}
	return &t, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
