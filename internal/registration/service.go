// internal/registration/service.go
package registration

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for event registration.
type Service interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
	RegisterFree(ctx context.Context, req RegisterRequest) (*Outcome, error)
	RegisterHybrid(ctx context.Context, req RegisterRequest) (*Outcome, error)
	StartCheckout(ctx context.Context, req RegisterRequest) (*Outcome, error)
	CompletePaid(ctx context.Context, intentID string) (*Registration, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) (*Registration, error)
	ListByEvent(ctx context.Context, slug string) ([]*Registration, error)
	Get(ctx context.Context, id uuid.UUID) (*Registration, error)
}

// Store persists registrations.
type Store interface {
	// Create inserts reg. When capacity > 0 it fails with ErrEventFull once the event
	// holds capacity non-cancelled registrations.
	Create(ctx context.Context, reg *Registration, capacity int) error
	Get(ctx context.Context, id uuid.UUID) (*Registration, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (*Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]*Registration, error)
	CountActive(ctx context.Context, eventID string) (int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) (*Registration, error)
}
