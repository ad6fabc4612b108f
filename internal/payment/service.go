// internal/payment/service.go
package payment

import (
	"context"
)

// Service defines the interface for the payment orchestrator.
type Service interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*IntentResult, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*SubscriptionResult, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
}
