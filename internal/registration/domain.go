// internal/registration/domain.go
package registration

import (
	"errors"
	"strings"
	"time"

	"ministrysite/internal/content"
	"ministrysite/internal/mail"
	"ministrysite/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("registration not found")
	ErrEventFull         = errors.New("event is full")
	ErrAlreadyRegistered = errors.New("this email is already registered for the event")
	ErrAlreadyRecorded   = errors.New("payment already recorded")
	ErrModeMismatch      = errors.New("event does not accept this registration type")
	ErrPaymentRequired   = errors.New("this registration requires payment")
	ErrPaymentNotSettled = errors.New("payment has not succeeded")
	ErrPaymentCanceled   = errors.New("payment was canceled")
	ErrInvalidRequest    = errors.New("invalid registration request")
	ErrInvalidStatus     = errors.New("invalid registration status")
)

// Status is the lifecycle state of a registration.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCheckedIn Status = "checked-in"
	StatusNoShow    Status = "no-show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusCheckedIn, StatusNoShow:
		return true
	}
	return false
}

// AttendanceType is the hybrid attendance tier.
type AttendanceType string

const (
	AttendanceInPerson AttendanceType = "in-person"
	AttendanceOnline   AttendanceType = "online"
)

// Attendee is the registrant's contact details.
type Attendee struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// FullName joins first and last name.
func (a Attendee) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// normalize trims every field and reduces the email to its bare lowercase address.
func (a *Attendee) normalize() error {
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	a.Phone = strings.TrimSpace(a.Phone)
	if a.FirstName == "" || a.LastName == "" {
		return errors.New("first and last name are required")
	}
	email, err := mail.NormalizeAddress(a.Email)
	if err != nil {
		return errors.New("a valid email is required")
	}
	a.Email = email
	return nil
}

// PaymentSummary is the payment snapshot stored with a registration.
type PaymentSummary struct {
	IntentID        string          `json:"intent_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	OriginalPrice   decimal.Decimal `json:"original_price"`
	DiscountApplied bool            `json:"discount_applied"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	PromoCode       string          `json:"promo_code,omitempty"`
	Method          string          `json:"method"`
	Status          string          `json:"status"`
}

// EmailLogEntry records one email sent about a registration.
type EmailLogEntry struct {
	Type    string    `json:"type"`
	SentAt  time.Time `json:"sent_at"`
	Subject string    `json:"subject"`
}

// Registration is a durable attendee record. It is never deleted.
type Registration struct {
	ID             uuid.UUID       `json:"id"`
	EventID        string          `json:"event_id"`
	EventSlug      string          `json:"event_slug"`
	EventTitle     string          `json:"event_title"`
	Attendee       Attendee        `json:"attendee"`
	AttendanceType AttendanceType  `json:"attendance_type,omitempty"`
	Payment        *PaymentSummary `json:"payment,omitempty"`
	RegisteredAt   time.Time       `json:"registered_at"`
	Status         Status          `json:"status"`
	EmailLog       []EmailLogEntry `json:"email_log"`
	Notes          string          `json:"notes"`
}

// QuoteRequest previews the price of a tier.
type QuoteRequest struct {
	Slug           string
	AttendanceType AttendanceType
	PromoCode      string
}

// Quote is a pricing preview for an event tier.
type Quote struct {
	EventID         string         `json:"event_id"`
	EventSlug       string         `json:"event_slug"`
	EventTitle      string         `json:"event_title"`
	Mode            content.Mode   `json:"registration_mode"`
	AttendanceType  AttendanceType `json:"attendance_type,omitempty"`
	Pricing         pricing.Result `json:"pricing"`
	RequiresPayment bool           `json:"requires_payment"`
}

// RegisterRequest is an attendee submission.
type RegisterRequest struct {
	Slug           string
	Attendee       Attendee
	AttendanceType AttendanceType
	PromoCode      string
	IdempotencyKey string
}

// Outcome is either a confirmed registration or a pending payment.
type Outcome struct {
	Registration    *Registration  `json:"registration,omitempty"`
	ViewerURL       string         `json:"viewer_url,omitempty"`
	RequiresPayment bool           `json:"requires_payment"`
	ClientSecret    string         `json:"client_secret,omitempty"`
	PaymentIntentID string         `json:"payment_intent_id,omitempty"`
	Pricing         pricing.Result `json:"pricing"`
}

// StatusUpdate is an admin edit. Nil fields are left unchanged.
type StatusUpdate struct {
	Status *Status `json:"status"`
	Notes  *string `json:"notes"`
}
