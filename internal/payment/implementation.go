// internal/payment/implementation.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ministrysite/internal/ledger"
	"ministrysite/internal/pricing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Journal records registration intents so a charge without a registration can be found later.
type Journal interface {
	RecordIntentCreated(ctx context.Context, rec ledger.IntentCreated) error
}

// Config holds the amount bands and currency for all charges.
type Config struct {
	RegistrationLimits Limits
	DonationLimits     Limits
	Currency           string
}

// service implements the Service interface.
type service struct {
	gateway Gateway
	cache   IdempotencyCache
	journal Journal
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer
	intents metric.Int64Counter
}

// NewService creates a new payment orchestrator. cache and journal may be nil.
func NewService(gateway Gateway, cache IdempotencyCache, journal Journal, cfg Config) Service {
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	intents, err := otel.Meter("ministrysite/payment").Int64Counter("payment.intents.created",
		metric.WithDescription("Payment intents and subscriptions created"))
	if err != nil {
		slog.Warn("failed to create payment counter", "error", err)
	}
	return &service{
		gateway: gateway,
		cache:   cache,
		journal: journal,
		cfg:     cfg,
		logger:  slog.Default().With("service", "ministrysite", "module", "payment"),
		tracer:  otel.Tracer("ministrysite/payment"),
		intents: intents,
	}
}

func (s *service) limitsFor(purpose Purpose) (Limits, error) {
	switch purpose {
	case PurposeRegistration:
		return s.cfg.RegistrationLimits, nil
	case PurposeDonation:
		return s.cfg.DonationLimits, nil
	default:
		return Limits{}, fmt.Errorf("%w: unknown purpose %q", ErrInvalidRequest, purpose)
	}
}

// CreateIntent validates the amount, creates a one-time intent and journals registration charges.
func (s *service) CreateIntent(ctx context.Context, req IntentRequest) (*IntentResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.create_intent",
		trace.WithAttributes(attribute.String("purpose", string(req.Purpose))),
	)
	defer span.End()

	limits, err := s.limitsFor(req.Purpose)
	if err != nil {
		return nil, err
	}
	if !limits.Contains(req.Amount) {
		return nil, fmt.Errorf("%w: %s not in [%s, %s]", ErrAmountOutOfRange, req.Amount.StringFixed(2), limits.Min.StringFixed(2), limits.Max.StringFixed(2))
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}

	fingerprint := Fingerprint(req, s.cfg.Currency)
	if req.IdempotencyKey != "" && s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, req.IdempotencyKey)
		if err != nil {
			s.logger.WarnContext(ctx, "idempotency lookup failed", "operation", "create_intent", "error", err)
		} else if ok {
			if cached.Fingerprint != fingerprint {
				return nil, fmt.Errorf("%w: idempotency key was used for a different payment", ErrInvalidRequest)
			}
			span.SetAttributes(attribute.Bool("idempotent.replay", true))
			return cached.Result, nil
		}
	}

	cents := pricing.MinorUnits(req.Amount)
	result, err := s.gateway.CreatePaymentIntent(ctx, IntentParams{
		AmountCents:    cents,
		Currency:       s.cfg.Currency,
		Description:    req.Description,
		ReceiptEmail:   req.Email,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "gateway call failed",
			"operation", "create_intent",
			"outcome", "failure",
			"amount_cents", cents,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}

	if req.IdempotencyKey != "" && s.cache != nil {
		if err := s.cache.Put(ctx, req.IdempotencyKey, &IdempotencyEntry{Fingerprint: fingerprint, Result: result}); err != nil {
			s.logger.WarnContext(ctx, "idempotency store failed", "operation", "create_intent", "error", err)
		}
	}

	if req.Purpose == PurposeRegistration && s.journal != nil {
		err := s.journal.RecordIntentCreated(ctx, ledger.IntentCreated{
			IntentID:    result.IntentID,
			AmountCents: cents,
			EventID:     req.EventID,
			Email:       req.Email,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to journal payment intent",
				"operation", "create_intent",
				"intent_id", result.IntentID,
				"error", err,
			)
		}
	}

	s.count(ctx, req.Purpose, "one-time")
	return result, nil
}

// CreateSubscription sets up a monthly donation and returns the first invoice's client secret.
func (s *service) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*SubscriptionResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.create_subscription")
	defer span.End()

	if !s.cfg.DonationLimits.Contains(req.Amount) {
		return nil, fmt.Errorf("%w: %s not in [%s, %s]", ErrAmountOutOfRange, req.Amount.StringFixed(2), s.cfg.DonationLimits.Min.StringFixed(2), s.cfg.DonationLimits.Max.StringFixed(2))
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}

	customerID, err := s.gateway.FindOrCreateCustomer(ctx, req.Email, req.Name)
	if err != nil {
		s.logger.ErrorContext(ctx, "gateway call failed", "operation", "find_or_create_customer", "outcome", "failure", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}

	description := req.Description
	if description == "" {
		description = "Monthly donation"
	}
	result, err := s.gateway.CreateSubscription(ctx, SubscriptionParams{
		CustomerID:  customerID,
		ProductName: description,
		AmountCents: pricing.MinorUnits(req.Amount),
		Currency:    s.cfg.Currency,
		Metadata:    req.Metadata,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "gateway call failed", "operation", "create_subscription", "outcome", "failure", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}

	s.count(ctx, PurposeDonation, "monthly")
	return result, nil
}

// RetrieveIntent reads an intent's status and metadata.
func (s *service) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, fmt.Errorf("%w: intent id is required", ErrInvalidRequest)
	}
	intent, err := s.gateway.RetrievePaymentIntent(ctx, intentID)
	if errors.Is(err, ErrIntentNotFound) {
		return nil, err
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "gateway call failed", "operation", "retrieve_intent", "intent_id", intentID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}
	return intent, nil
}

func (s *service) count(ctx context.Context, purpose Purpose, frequency string) {
	if s.intents == nil {
		return
	}
	s.intents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", string(purpose)),
		attribute.String("frequency", frequency),
	))
}
