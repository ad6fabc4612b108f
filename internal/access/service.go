// internal/access/service.go
package access

import (
	"context"

	"ministrysite/internal/content"

	"github.com/google/uuid"
)

// Service defines the interface for access token issuance and validation.
type Service interface {
	Issue(ctx context.Context, req IssueRequest) (*IssueResult, error)
	Grant(ctx context.Context, req GrantRequest) (*IssueResult, error)
	Validate(ctx context.Context, token, slug string) (*Validation, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// Store persists access tokens.
type Store interface {
	FindActive(ctx context.Context, kind content.Kind, contentID, email string) (*Token, error)
	// Insert stores t unless an active token for the same content and email exists,
	// in which case that token is returned with created=false.
	Insert(ctx context.Context, t *Token) (stored *Token, created bool, err error)
	GetByToken(ctx context.Context, token string) (*Token, error)
	RecordAccess(ctx context.Context, id uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// RegistrationStatusReader reports the status of the registration backing a token.
type RegistrationStatusReader interface {
	RegistrationStatus(ctx context.Context, id uuid.UUID) (string, error)
}
