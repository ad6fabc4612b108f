// internal/access/domain.go
package access

import (
	"errors"
	"time"

	"ministrysite/internal/content"

	"github.com/google/uuid"
)

var (
	ErrInvalidToken          = errors.New("invalid or inactive access token")
	ErrStreamUnavailable     = errors.New("livestream is not available for this event")
	ErrRegistrationCancelled = errors.New("registration has been cancelled")
	ErrTokenNotFound         = errors.New("access token not found")
	ErrInvalidRequest        = errors.New("invalid access request")
)

// Type records how a token was granted.
type Type string

const (
	TypeComplimentary Type = "complimentary"
	TypePurchased     Type = "purchased"
	TypeAdmin         Type = "admin"
)

func (t Type) Valid() bool {
	switch t {
	case TypeComplimentary, TypePurchased, TypeAdmin:
		return true
	}
	return false
}

// Token is a bearer credential for one piece of content. Tokens do not expire.
type Token struct {
	ID             uuid.UUID    `json:"id"`
	Token          string       `json:"token"`
	ContentKind    content.Kind `json:"content_kind"`
	ContentID      string       `json:"content_id"`
	ContentSlug    string       `json:"content_slug"`
	RegistrationID *uuid.UUID   `json:"registration_id,omitempty"`
	Type           Type         `json:"access_type"`
	Email          string       `json:"email"`
	Name           string       `json:"name"`
	Active         bool         `json:"is_active"`
	CreatedAt      time.Time    `json:"created_at"`
	LastAccessedAt *time.Time   `json:"last_accessed_at,omitempty"`
	AccessCount    int          `json:"access_count"`
}

// IssueRequest asks for a token for one attendee and one piece of content.
type IssueRequest struct {
	ContentKind    content.Kind
	ContentID      string
	ContentSlug    string
	ContentTitle   string
	RegistrationID *uuid.UUID
	Type           Type
	Email          string
	Name           string
	Notify         bool
}

// IssueResult is the issued or pre-existing token.
type IssueResult struct {
	Token     *Token `json:"token"`
	Created   bool   `json:"created"`
	ViewerURL string `json:"viewer_url"`
}

// GrantRequest is an admin grant addressed by content slug.
type GrantRequest struct {
	ContentKind content.Kind `json:"content_kind"`
	ContentSlug string       `json:"content_slug"`
	Email       string       `json:"email"`
	Name        string       `json:"name"`
	Type        Type         `json:"access_type"`
	Notify      *bool        `json:"notify,omitempty"`
}

// Attendee identifies the token holder.
type Attendee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// EventAccess is the viewer payload for a live event.
type EventAccess struct {
	Title     string            `json:"title"`
	Slug      string            `json:"slug"`
	EmbedHTML string            `json:"embed_html"`
	Location  string            `json:"location,omitempty"`
	Sessions  []content.Session `json:"sessions"`
}

// PastEventAccess is the viewer payload for a recording.
type PastEventAccess struct {
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	PlayerHTML string    `json:"player_html"`
	Date       time.Time `json:"date"`
	Duration   string    `json:"duration"`
	Speakers   []string  `json:"speakers"`
}

// Validation is the result of a successful token check.
type Validation struct {
	Attendee    Attendee         `json:"attendee"`
	Kind        content.Kind     `json:"kind"`
	AccessCount int              `json:"access_count"`
	Event       *EventAccess     `json:"event,omitempty"`
	PastEvent   *PastEventAccess `json:"past_event,omitempty"`
}
