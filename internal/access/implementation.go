// internal/access/implementation.go
package access

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"ministrysite/internal/content"
	"ministrysite/internal/mail"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const tokenBytes = 32

const registrationCancelled = "cancelled"

// service implements the Service interface.
type service struct {
	store         Store
	content       content.Reader
	registrations RegistrationStatusReader
	mailer        mail.Sender
	baseURL       string
	logger        *slog.Logger
	validations   metric.Int64Counter
	now           func() time.Time
}

// NewService creates a new access token service. registrations and mailer may be nil.
func NewService(store Store, reader content.Reader, registrations RegistrationStatusReader, mailer mail.Sender, baseURL string) Service {
	validations, err := otel.Meter("ministrysite/access").Int64Counter("access.validations",
		metric.WithDescription("Access token validation attempts"))
	if err != nil {
		slog.Warn("failed to create access counter", "error", err)
	}
	return &service{
		store:         store,
		content:       reader,
		registrations: registrations,
		mailer:        mailer,
		baseURL:       strings.TrimRight(baseURL, "/"),
		logger:        slog.Default().With("service", "ministrysite", "module", "access"),
		validations:   validations,
		now:           time.Now,
	}
}

// GenerateToken returns 32 random bytes as 64 lowercase hex characters.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ViewerURL builds the attendee-facing link for a token.
func ViewerURL(baseURL string, kind content.Kind, slug, token string) string {
	path := "/watch/"
	if kind == content.KindPastEvent {
		path = "/recordings/"
	}
	return strings.TrimRight(baseURL, "/") + path + url.PathEscape(slug) + "?token=" + url.QueryEscape(token)
}

// Issue returns the active token for the content and email, creating one if none exists.
func (s *service) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if req.ContentID == "" || req.ContentSlug == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}
	email, err := mail.NormalizeAddress(req.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.ContentKind != content.KindEvent && req.ContentKind != content.KindPastEvent {
		return nil, fmt.Errorf("%w: unknown content kind %q", ErrInvalidRequest, req.ContentKind)
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown access type %q", ErrInvalidRequest, req.Type)
	}

	tok, err := s.store.FindActive(ctx, req.ContentKind, req.ContentID, email)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenNotFound):
		value, genErr := GenerateToken()
		if genErr != nil {
			return nil, genErr
		}
		tok, created, err = s.store.Insert(ctx, &Token{
			ID:             uuid.New(),
			Token:          value,
			ContentKind:    req.ContentKind,
			ContentID:      req.ContentID,
			ContentSlug:    req.ContentSlug,
			RegistrationID: req.RegistrationID,
			Type:           req.Type,
			Email:          email,
			Name:           req.Name,
			Active:         true,
			CreatedAt:      s.now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to store access token: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to look up access token: %w", err)
	}

	res := &IssueResult{
		Token:     tok,
		Created:   created,
		ViewerURL: ViewerURL(s.baseURL, tok.ContentKind, tok.ContentSlug, tok.Token),
	}

	if req.Notify {
		s.notify(ctx, tok, req.ContentTitle, res.ViewerURL)
	}
	return res, nil
}

func (s *service) notify(ctx context.Context, tok *Token, title, viewerURL string) {
	if s.mailer == nil {
		return
	}
	body, err := mail.RenderAccess(mail.AccessData{
		Name:      tok.Name,
		Title:     title,
		ViewerURL: viewerURL,
		Recording: tok.ContentKind == content.KindPastEvent,
	})
	if err == nil {
		err = s.mailer.Send(ctx, mail.Message{
			To:      tok.Email,
			ToName:  tok.Name,
			Subject: mail.AccessSubject(title),
			Type:    mail.TypeAccessLink,
			HTML:    body,
		})
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send access link",
			"operation", "issue_access_token",
			"token_id", tok.ID,
			"error", err,
		)
	}
}

// Grant resolves the content by slug and issues a token for an admin-chosen attendee.
func (s *service) Grant(ctx context.Context, req GrantRequest) (*IssueResult, error) {
	if req.Type == "" {
		req.Type = TypeAdmin
	}
	notify := true
	if req.Notify != nil {
		notify = *req.Notify
	}

	issue := IssueRequest{
		ContentKind: req.ContentKind,
		Type:        req.Type,
		Email:       req.Email,
		Name:        req.Name,
		Notify:      notify,
	}
	switch req.ContentKind {
	case content.KindEvent:
		ev, err := s.content.EventBySlug(ctx, req.ContentSlug)
		if err != nil {
			return nil, fmt.Errorf("failed to get event: %w", err)
		}
		issue.ContentID, issue.ContentSlug, issue.ContentTitle = ev.ID, ev.Slug, ev.Title
	case content.KindPastEvent:
		pe, err := s.content.PastEventBySlug(ctx, req.ContentSlug)
		if err != nil {
			return nil, fmt.Errorf("failed to get past event: %w", err)
		}
		issue.ContentID, issue.ContentSlug, issue.ContentTitle = pe.ID, pe.Slug, pe.Title
	default:
		return nil, fmt.Errorf("%w: unknown content kind %q", ErrInvalidRequest, req.ContentKind)
	}
	return s.Issue(ctx, issue)
}

// Validate checks a token against the requested content slug and records the access.
func (s *service) Validate(ctx context.Context, token, slug string) (*Validation, error) {
	v, err := s.validate(ctx, token, slug)
	s.countValidation(ctx, err)
	return v, err
}

func (s *service) validate(ctx context.Context, token, slug string) (*Validation, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	tok, err := s.store.GetByToken(ctx, token)
	if errors.Is(err, ErrTokenNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}
	if !tok.Active || tok.ContentSlug != slug {
		return nil, ErrInvalidToken
	}

	v := &Validation{
		Attendee: Attendee{Name: tok.Name, Email: tok.Email},
		Kind:     tok.ContentKind,
	}

	switch tok.ContentKind {
	case content.KindEvent:
		ev, err := s.content.EventByID(ctx, tok.ContentID)
		if errors.Is(err, content.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get event: %w", err)
		}
		if ev.Slug != slug {
			return nil, ErrInvalidToken
		}
		if !ev.Livestream.Enabled {
			return nil, ErrStreamUnavailable
		}
		v.Event = &EventAccess{
			Title:     ev.Title,
			Slug:      ev.Slug,
			EmbedHTML: ev.Livestream.EmbedHTML,
			Location:  ev.Location,
			Sessions:  ev.Sessions,
		}
	case content.KindPastEvent:
		pe, err := s.content.PastEventByID(ctx, tok.ContentID)
		if errors.Is(err, content.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get past event: %w", err)
		}
		if pe.Slug != slug {
			return nil, ErrInvalidToken
		}
		v.PastEvent = &PastEventAccess{
			Title:      pe.Title,
			Slug:       pe.Slug,
			PlayerHTML: pe.PlayerHTML,
			Date:       pe.Date,
			Duration:   pe.Duration,
			Speakers:   pe.Speakers,
		}
	default:
		return nil, ErrInvalidToken
	}

	if tok.RegistrationID != nil && s.registrations != nil {
		status, err := s.registrations.RegistrationStatus(ctx, *tok.RegistrationID)
		if err != nil {
			return nil, fmt.Errorf("failed to check registration: %w", err)
		}
		if status == registrationCancelled {
			return nil, ErrRegistrationCancelled
		}
	}

	// Usage tracking never blocks viewing.
	if err := s.store.RecordAccess(ctx, tok.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to record token usage",
			"operation", "validate_access_token",
			"token_id", tok.ID,
			"error", err,
		)
	}
	v.AccessCount = tok.AccessCount + 1
	return v, nil
}

// Deactivate turns off a token. Inactive tokens never validate again.
func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("failed to deactivate access token: %w", err)
	}
	return nil
}

func (s *service) countValidation(ctx context.Context, err error) {
	if s.validations == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.validations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
