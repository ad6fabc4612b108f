// internal/registration/implementation.go
package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"ministrysite/internal/access"
	"ministrysite/internal/content"
	"ministrysite/internal/ledger"
	"ministrysite/internal/mail"
	"ministrysite/internal/payment"
	"ministrysite/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Gateway metadata values are capped at 500 characters.
const maxMetadataValue = 500

// TokenIssuer issues viewer tokens for online attendees.
type TokenIssuer interface {
	Issue(ctx context.Context, req access.IssueRequest) (*access.IssueResult, error)
}

// Journal records that a paid intent now has a registration.
type Journal interface {
	RecordRegistration(ctx context.Context, rec ledger.RegistrationRecorded) error
}

// Config holds registration policy switches.
type Config struct {
	// InternalZeroPlaceholder charges the pricing placeholder for internal events priced at zero.
	InternalZeroPlaceholder bool
}

// service implements the Service interface.
type service struct {
	store    Store
	content  content.Reader
	pricing  *pricing.Engine
	payments payment.Service
	tokens   TokenIssuer
	mailer   mail.Sender
	journal  Journal
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	created  metric.Int64Counter
	now      func() time.Time
}

// NewService creates a new registration service. mailer and journal may be nil.
func NewService(store Store, reader content.Reader, engine *pricing.Engine, payments payment.Service, tokens TokenIssuer, mailer mail.Sender, journal Journal, cfg Config) Service {
	created, err := otel.Meter("ministrysite/registration").Int64Counter("registrations.created",
		metric.WithDescription("Registrations recorded"))
	if err != nil {
		slog.Warn("failed to create registration counter", "error", err)
	}
	return &service{
		store:    store,
		content:  reader,
		pricing:  engine,
		payments: payments,
		tokens:   tokens,
		mailer:   mailer,
		journal:  journal,
		cfg:      cfg,
		logger:   slog.Default().With("service", "ministrysite", "module", "registration"),
		tracer:   otel.Tracer("ministrysite/registration"),
		created:  created,
		now:      time.Now,
	}
}

// Quote previews the price of the requested tier.
func (s *service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	ev, err := s.content.EventBySlug(ctx, req.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	res, err := s.priceFor(ev, req.AttendanceType, req.PromoCode)
	if err != nil {
		return nil, err
	}
	return &Quote{
		EventID:         ev.ID,
		EventSlug:       ev.Slug,
		EventTitle:      ev.Title,
		Mode:            ev.Mode,
		AttendanceType:  req.AttendanceType,
		Pricing:         res,
		RequiresPayment: !res.Free,
	}, nil
}

// priceFor selects the tier price for the event's mode and applies the promo code.
func (s *service) priceFor(ev *content.Event, attendance AttendanceType, promoCode string) (pricing.Result, error) {
	switch ev.Mode {
	case content.ModeInternalFree:
		return s.pricing.Price(pricing.Input{BasePrice: decimal.Zero}), nil
	case content.ModeInternal:
		return s.pricing.Price(pricing.Input{
			BasePrice:           ev.Price,
			PromoCode:           promoCode,
			PlaceholderWhenZero: s.cfg.InternalZeroPlaceholder,
		}), nil
	case content.ModeHybrid:
		switch attendance {
		case AttendanceInPerson:
			return s.pricing.Price(pricing.Input{BasePrice: ev.InPersonPrice, PromoCode: promoCode}), nil
		case AttendanceOnline:
			return s.pricing.Price(pricing.Input{BasePrice: ev.OnlinePrice, PromoCode: promoCode}), nil
		default:
			return pricing.Result{}, fmt.Errorf("%w: attendance type must be in-person or online", ErrInvalidRequest)
		}
	default:
		return pricing.Result{}, fmt.Errorf("%w: unknown registration mode %q", ErrModeMismatch, ev.Mode)
	}
}

// openEvent loads the event and checks mode and registration window.
func (s *service) openEvent(ctx context.Context, slug string, modes ...content.Mode) (*content.Event, error) {
	ev, err := s.content.EventBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	allowed := false
	for _, m := range modes {
		if ev.Mode == m {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrModeMismatch
	}
	if err := ev.CheckOpen(s.now()); err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *service) prepare(req *RegisterRequest) error {
	if err := req.Attendee.normalize(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// RegisterFree records a registration that needs no payment.
func (s *service) RegisterFree(ctx context.Context, req RegisterRequest) (*Outcome, error) {
	if err := s.prepare(&req); err != nil {
		return nil, err
	}
	ev, err := s.openEvent(ctx, req.Slug, content.ModeInternalFree, content.ModeHybrid)
	if err != nil {
		return nil, err
	}
	if ev.Mode == content.ModeInternalFree {
		req.AttendanceType = ""
	}
	res, err := s.priceFor(ev, req.AttendanceType, req.PromoCode)
	if err != nil {
		return nil, err
	}
	if !res.Free {
		return nil, ErrPaymentRequired
	}
	return s.registerFree(ctx, ev, req, res)
}

// RegisterHybrid registers an in-person or online attendee, charging when the tier is not free.
func (s *service) RegisterHybrid(ctx context.Context, req RegisterRequest) (*Outcome, error) {
	if err := s.prepare(&req); err != nil {
		return nil, err
	}
	ev, err := s.openEvent(ctx, req.Slug, content.ModeHybrid)
	if err != nil {
		return nil, err
	}
	res, err := s.priceFor(ev, req.AttendanceType, req.PromoCode)
	if err != nil {
		return nil, err
	}
	if res.Free {
		return s.registerFree(ctx, ev, req, res)
	}
	return s.startPayment(ctx, ev, req, res)
}

// StartCheckout begins payment for an internal (single paid tier) event.
func (s *service) StartCheckout(ctx context.Context, req RegisterRequest) (*Outcome, error) {
	if err := s.prepare(&req); err != nil {
		return nil, err
	}
	ev, err := s.openEvent(ctx, req.Slug, content.ModeInternal)
	if err != nil {
		return nil, err
	}
	req.AttendanceType = ""
	res, err := s.priceFor(ev, req.AttendanceType, req.PromoCode)
	if err != nil {
		return nil, err
	}
	if res.Free {
		return s.registerFree(ctx, ev, req, res)
	}
	return s.startPayment(ctx, ev, req, res)
}

func (s *service) registerFree(ctx context.Context, ev *content.Event, req RegisterRequest, res pricing.Result) (*Outcome, error) {
	reg := s.newRegistration(ev, req.Attendee, req.AttendanceType)
	if res.AppliedPromoCode != nil {
		reg.Payment = &PaymentSummary{
			Amount:          decimal.Zero,
			OriginalPrice:   res.OriginalPrice,
			DiscountApplied: res.Discounted(),
			DiscountAmount:  res.DiscountAmount,
			PromoCode:       *res.AppliedPromoCode,
			Method:          "promo",
			Status:          "waived",
		}
	}

	if err := s.store.Create(ctx, reg, ev.Capacity); err != nil {
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}
	s.count(ctx, ev.Mode, "free")

	out := &Outcome{Registration: reg, Pricing: res}
	out.ViewerURL = s.afterCreate(ctx, ev, reg, access.TypeComplimentary)
	return out, nil
}

func (s *service) startPayment(ctx context.Context, ev *content.Event, req RegisterRequest, res pricing.Result) (*Outcome, error) {
	if ev.Capacity > 0 {
		n, err := s.store.CountActive(ctx, ev.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count registrations: %w", err)
		}
		if n >= ev.Capacity {
			return nil, ErrEventFull
		}
	}

	intent, err := s.payments.CreateIntent(ctx, payment.IntentRequest{
		Purpose:        payment.PurposeRegistration,
		Amount:         res.FinalPrice,
		Email:          req.Attendee.Email,
		Name:           req.Attendee.FullName(),
		Description:    "Registration: " + ev.Title,
		EventID:        ev.ID,
		Metadata:       intentMetadata(ev, req, res),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{
		RequiresPayment: true,
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.IntentID,
		Pricing:         res,
	}, nil
}

// CompletePaid records the registration for a settled payment intent. Repeat calls
// for the same intent return the registration already recorded.
func (s *service) CompletePaid(ctx context.Context, intentID string) (*Registration, error) {
	ctx, span := s.tracer.Start(ctx, "registration.complete_paid",
		trace.WithAttributes(attribute.String("intent.id", intentID)),
	)
	defer span.End()

	if existing, err := s.store.FindByPaymentIntent(ctx, intentID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to look up registration: %w", err)
	}

	intent, err := s.payments.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Canceled() {
		span.SetAttributes(attribute.String("intent.status", intent.Status))
		return nil, ErrPaymentCanceled
	}
	if !intent.Succeeded() {
		span.SetAttributes(attribute.String("intent.status", intent.Status))
		return nil, fmt.Errorf("%w: status %s", ErrPaymentNotSettled, intent.Status)
	}

	md := intent.Metadata
	if md["eventId"] == "" || md["email"] == "" {
		return nil, fmt.Errorf("%w: intent %s carries no registration metadata", ErrInvalidRequest, intentID)
	}

	ev, err := s.content.EventByID(ctx, md["eventId"])
	if err != nil {
		s.logger.WarnContext(ctx, "event lookup failed, using intent snapshot",
			"operation", "complete_paid",
			"intent_id", intentID,
			"error", err,
		)
		ev = &content.Event{ID: md["eventId"], Slug: md["eventSlug"], Title: md["eventTitle"], Location: md["eventLocation"]}
	}

	reg := s.newRegistration(ev, Attendee{
		FirstName: md["firstName"],
		LastName:  md["lastName"],
		Email:     md["email"],
		Phone:     md["phone"],
	}, AttendanceType(md["attendanceType"]))
	reg.Payment = &PaymentSummary{
		IntentID:        intent.ID,
		Amount:          decimal.New(intent.AmountCents, -2),
		OriginalPrice:   parseAmount(md["originalPrice"]),
		DiscountAmount:  parseAmount(md["discountAmount"]),
		DiscountApplied: md["promoCode"] != "" && parseAmount(md["discountAmount"]).IsPositive(),
		PromoCode:       md["promoCode"],
		Method:          "card",
		Status:          intent.Status,
	}

	// Money has moved, so capacity is not enforced here.
	if err := s.store.Create(ctx, reg, 0); err != nil {
		if errors.Is(err, ErrAlreadyRecorded) {
			return s.store.FindByPaymentIntent(ctx, intentID)
		}
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}
	s.count(ctx, ev.Mode, "paid")

	if s.journal != nil {
		if err := s.journal.RecordRegistration(ctx, ledger.RegistrationRecorded{IntentID: intentID, RegistrationID: reg.ID}); err != nil {
			s.logger.ErrorContext(ctx, "failed to journal registration",
				"operation", "complete_paid",
				"intent_id", intentID,
				"registration_id", reg.ID,
				"error", err,
			)
		}
	}

	s.afterCreate(ctx, ev, reg, access.TypePurchased)
	return reg, nil
}

func (s *service) newRegistration(ev *content.Event, attendee Attendee, attendance AttendanceType) *Registration {
	now := s.now().UTC()
	return &Registration{
		ID:             uuid.New(),
		EventID:        ev.ID,
		EventSlug:      ev.Slug,
		EventTitle:     ev.Title,
		Attendee:       attendee,
		AttendanceType: attendance,
		RegisteredAt:   now,
		Status:         StatusConfirmed,
		EmailLog: []EmailLogEntry{{
			Type:    mail.TypeRegistrationConfirmation,
			SentAt:  now,
			Subject: mail.ConfirmationSubject(ev.Title),
		}},
	}
}

// afterCreate issues a viewer token for online attendees and sends the confirmation.
// Neither step fails the registration.
func (s *service) afterCreate(ctx context.Context, ev *content.Event, reg *Registration, tokenType access.Type) string {
	var viewerURL string
	if reg.AttendanceType == AttendanceOnline && s.tokens != nil {
		regID := reg.ID
		res, err := s.tokens.Issue(ctx, access.IssueRequest{
			ContentKind:    content.KindEvent,
			ContentID:      ev.ID,
			ContentSlug:    ev.Slug,
			ContentTitle:   ev.Title,
			RegistrationID: &regID,
			Type:           tokenType,
			Email:          reg.Attendee.Email,
			Name:           reg.Attendee.FullName(),
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to issue access token",
				"operation", "issue_registration_token",
				"registration_id", reg.ID,
				"error", err,
			)
		} else {
			viewerURL = res.ViewerURL
		}
	}

	s.sendConfirmation(ctx, ev, reg, viewerURL)
	return viewerURL
}

func (s *service) sendConfirmation(ctx context.Context, ev *content.Event, reg *Registration, viewerURL string) {
	if s.mailer == nil {
		return
	}
	data := mail.ConfirmationData{
		FirstName:      reg.Attendee.FirstName,
		EventTitle:     reg.EventTitle,
		Location:       ev.Location,
		Start:          ev.FirstStart(),
		AttendanceType: string(reg.AttendanceType),
		ViewerURL:      viewerURL,
	}
	if reg.Payment != nil && reg.Payment.Amount.IsPositive() {
		data.AmountPaid = reg.Payment.Amount.StringFixed(2)
	}
	body, err := mail.RenderConfirmation(data)
	if err == nil {
		err = s.mailer.Send(ctx, mail.Message{
			To:      reg.Attendee.Email,
			ToName:  reg.Attendee.FullName(),
			Subject: mail.ConfirmationSubject(reg.EventTitle),
			Type:    mail.TypeRegistrationConfirmation,
			HTML:    body,
		})
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send confirmation email",
			"operation", "send_confirmation",
			"registration_id", reg.ID,
			"error", err,
		)
	}
}

// UpdateStatus applies an admin status or notes change.
func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) (*Registration, error) {
	if update.Status == nil && update.Notes == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidRequest)
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *update.Status)
	}
	reg, err := s.store.UpdateStatus(ctx, id, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update registration: %w", err)
	}
	return reg, nil
}

// ListByEvent returns an event's registrations, oldest first.
func (s *service) ListByEvent(ctx context.Context, slug string) ([]*Registration, error) {
	ev, err := s.content.EventBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	regs, err := s.store.ListByEvent(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	return regs, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Registration, error) {
	return s.store.Get(ctx, id)
}

func (s *service) count(ctx context.Context, mode content.Mode, kind string) {
	if s.created == nil {
		return
	}
	s.created.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("kind", kind),
	))
}

// intentMetadata snapshots everything CompletePaid needs to rebuild the registration.
func intentMetadata(ev *content.Event, req RegisterRequest, res pricing.Result) map[string]string {
	md := map[string]string{
		"type":           "registration",
		"eventId":        ev.ID,
		"eventSlug":      ev.Slug,
		"eventTitle":     ev.Title,
		"eventLocation":  ev.Location,
		"firstName":      req.Attendee.FirstName,
		"lastName":       req.Attendee.LastName,
		"email":          req.Attendee.Email,
		"phone":          req.Attendee.Phone,
		"attendanceType": string(req.AttendanceType),
		"originalPrice":  res.OriginalPrice.StringFixed(2),
		"finalPrice":     res.FinalPrice.StringFixed(2),
		"discountAmount": res.DiscountAmount.StringFixed(2),
	}
	if res.AppliedPromoCode != nil {
		md["promoCode"] = *res.AppliedPromoCode
	}
	if len(ev.Sessions) > 0 {
		if raw, err := json.Marshal(ev.Sessions); err == nil {
			md["eventSchedule"] = truncate(string(raw), maxMetadataValue)
		}
	}
	for k, v := range md {
		md[k] = truncate(v, maxMetadataValue)
	}
	return md
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
