// internal/payment/gateway.go
package payment

import (
	"context"
)

// IntentParams is a gateway-level one-time charge in minor units.
type IntentParams struct {
	AmountCents    int64
	Currency       string
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// SubscriptionParams is a gateway-level monthly subscription.
type SubscriptionParams struct {
	CustomerID  string
	ProductName string
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

// Gateway is the external payment processor.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, params IntentParams) (*IntentResult, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*Intent, error)
	FindOrCreateCustomer(ctx context.Context, email, name string) (string, error)
	CreateSubscription(ctx context.Context, params SubscriptionParams) (*SubscriptionResult, error)
}
