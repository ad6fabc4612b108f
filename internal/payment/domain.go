// internal/payment/domain.go
package payment

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrAmountOutOfRange = errors.New("amount out of range")
	ErrProcessingFailed = errors.New("payment processing failed")
	ErrInvalidRequest   = errors.New("invalid payment request")
	ErrIntentNotFound   = errors.New("payment intent not found")
)

// Purpose selects the amount band a charge is validated against.
type Purpose string

const (
	PurposeRegistration Purpose = "registration"
	PurposeDonation     Purpose = "donation"
)

// Intent statuses the site acts on.
const (
	StatusSucceeded  = "succeeded"
	StatusProcessing = "processing"
	StatusCanceled   = "canceled"
)

const DefaultCurrency = "usd"

// Limits is an inclusive amount band in dollars.
type Limits struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Contains reports whether amount is within the band.
func (l Limits) Contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(l.Min) && amount.LessThanOrEqual(l.Max)
}

// IntentRequest describes a one-time charge.
type IntentRequest struct {
	Purpose        Purpose
	Amount         decimal.Decimal
	Email          string
	Name           string
	Description    string
	EventID        string
	Metadata       map[string]string
	IdempotencyKey string
}

// IntentResult is what the client needs to confirm a charge.
type IntentResult struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
}

// SubscriptionRequest describes a recurring monthly donation.
type SubscriptionRequest struct {
	Amount      decimal.Decimal
	Email       string
	Name        string
	Description string
	Metadata    map[string]string
}

// SubscriptionResult carries the first invoice's client secret.
type SubscriptionResult struct {
	SubscriptionID string `json:"subscription_id"`
	CustomerID     string `json:"customer_id"`
	ClientSecret   string `json:"client_secret"`
}

// Intent is the gateway's view of a payment intent.
type Intent struct {
	ID          string
	Status      string
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

// Succeeded reports whether funds have been captured.
func (i *Intent) Succeeded() bool {
	return i.Status == StatusSucceeded
}

// Canceled reports whether the intent can no longer be paid.
func (i *Intent) Canceled() bool {
	return i.Status == StatusCanceled
}
