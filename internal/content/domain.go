// internal/content/domain.go
package content

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("content not found")
	ErrRegistrationClosed = errors.New("registration is closed")
	ErrDeadlinePassed     = errors.New("registration deadline has passed")
)

// Mode selects which registration endpoint and validation rules apply to an event.
type Mode string

const (
	ModeInternal     Mode = "internal"
	ModeInternalFree Mode = "internal-free"
	ModeHybrid       Mode = "hybrid"
)

// Kind distinguishes live events from recordings of past events.
type Kind string

const (
	KindEvent     Kind = "event"
	KindPastEvent Kind = "past-event"
)

// Session is one scheduled block of an event.
type Session struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Title string    `json:"title,omitempty"`
	Notes string    `json:"notes,omitempty"`
}

// Livestream holds the stream settings of a live event.
type Livestream struct {
	Enabled   bool   `json:"enabled"`
	EmbedHTML string `json:"embed_html,omitempty"`
}

// Event is a calendar event owned by the content store.
type Event struct {
	ID                   string          `json:"id"`
	Slug                 string          `json:"slug"`
	Title                string          `json:"title"`
	Sessions             []Session       `json:"sessions"`
	Location             string          `json:"location"`
	Mode                 Mode            `json:"registration_mode"`
	Price                decimal.Decimal `json:"price"`
	InPersonPrice        decimal.Decimal `json:"in_person_price"`
	OnlinePrice          decimal.Decimal `json:"online_price"`
	RegistrationDeadline *time.Time      `json:"registration_deadline,omitempty"`
	Capacity             int             `json:"capacity"`
	Closed               bool            `json:"closed"`
	Livestream           Livestream      `json:"livestream"`
}

// CheckOpen reports whether registration is accepted at now.
func (e *Event) CheckOpen(now time.Time) error {
	if e.Closed {
		return ErrRegistrationClosed
	}
	if e.RegistrationDeadline != nil && now.After(*e.RegistrationDeadline) {
		return ErrDeadlinePassed
	}
	return nil
}

// FirstStart returns the start of the earliest session, or the zero time.
func (e *Event) FirstStart() time.Time {
	var first time.Time
	for _, s := range e.Sessions {
		if first.IsZero() || s.Start.Before(first) {
			first = s.Start
		}
	}
	return first
}

// PastEvent is a recorded event available for on-demand viewing.
type PastEvent struct {
	ID         string    `json:"id"`
	Slug       string    `json:"slug"`
	Title      string    `json:"title"`
	Date       time.Time `json:"date"`
	Duration   string    `json:"duration"`
	Speakers   []string  `json:"speakers"`
	PlayerHTML string    `json:"player_html"`
}

// Reader reads events and past events from the content store.
type Reader interface {
	EventBySlug(ctx context.Context, slug string) (*Event, error)
	EventByID(ctx context.Context, id string) (*Event, error)
	PastEventBySlug(ctx context.Context, slug string) (*PastEvent, error)
	PastEventByID(ctx context.Context, id string) (*PastEvent, error)
}
