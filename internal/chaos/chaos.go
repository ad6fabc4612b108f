// internal/chaos/chaos.go
package chaos

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"ministrysite/internal/mail"
	"ministrysite/internal/payment"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrInjected = errors.New("chaos: injected failure")

// Config controls fault injection. The zero value injects nothing.
type Config struct {
	FailureRate float64 // 0.0 to 1.0
	Latency     time.Duration
}

// Enabled reports whether any fault is configured.
func (c Config) Enabled() bool {
	return c.FailureRate > 0 || c.Latency > 0
}

// ErrorEvent records one injected failure.
type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Target    string    `json:"target"`
	Operation string    `json:"operation"`
}

// Injector adds latency and failures in front of external collaborators so staging
// environments can verify that swallowed failures stay swallowed.
type Injector struct {
	cfg    Config
	tracer trace.Tracer
	roll   func() float64

	mu     sync.Mutex
	events []ErrorEvent
}

func NewInjector(cfg Config) *Injector {
	return &Injector{
		cfg:    cfg,
		tracer: otel.Tracer("ministrysite/chaos"),
		roll:   rand.Float64,
	}
}

// Inject applies the configured latency and fails with probability FailureRate.
func (i *Injector) Inject(ctx context.Context, target, operation string) error {
	_, span := i.tracer.Start(ctx, "chaos.inject",
		trace.WithAttributes(
			attribute.String("chaos.target", target),
			attribute.String("chaos.operation", operation),
		),
	)
	defer span.End()

	if i.cfg.Latency > 0 {
		span.AddEvent("injecting_latency", trace.WithAttributes(attribute.Int64("latency_ms", i.cfg.Latency.Milliseconds())))
		select {
		case <-time.After(i.cfg.Latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if i.cfg.FailureRate > 0 && i.roll() < i.cfg.FailureRate {
		span.SetAttributes(attribute.Bool("chaos.failed", true))
		i.mu.Lock()
		i.events = append(i.events, ErrorEvent{Timestamp: time.Now(), Target: target, Operation: operation})
		i.mu.Unlock()
		return ErrInjected
	}
	return nil
}

// Events returns the failures injected so far.
func (i *Injector) Events() []ErrorEvent {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]ErrorEvent, len(i.events))
	copy(out, i.events)
	return out
}

type sender struct {
	next     mail.Sender
	injector *Injector
}

// Sender wraps a mail sender with fault injection.
func (i *Injector) Sender(next mail.Sender) mail.Sender {
	return &sender{next: next, injector: i}
}

func (s *sender) Send(ctx context.Context, msg mail.Message) error {
	if err := s.injector.Inject(ctx, "mail", "send"); err != nil {
		return err
	}
	return s.next.Send(ctx, msg)
}

type gateway struct {
	next     payment.Gateway
	injector *Injector
}

// Gateway wraps a payment gateway with fault injection.
func (i *Injector) Gateway(next payment.Gateway) payment.Gateway {
	return &gateway{next: next, injector: i}
}

func (g *gateway) CreatePaymentIntent(ctx context.Context, p payment.IntentParams) (*payment.IntentResult, error) {
	if err := g.injector.Inject(ctx, "payment-gateway", "create_intent"); err != nil {
		return nil, err
	}
	return g.next.CreatePaymentIntent(ctx, p)
}

func (g *gateway) RetrievePaymentIntent(ctx context.Context, id string) (*payment.Intent, error) {
	if err := g.injector.Inject(ctx, "payment-gateway", "retrieve_intent"); err != nil {
		return nil, err
	}
	return g.next.RetrievePaymentIntent(ctx, id)
}

func (g *gateway) FindOrCreateCustomer(ctx context.Context, email, name string) (string, error) {
	if err := g.injector.Inject(ctx, "payment-gateway", "find_or_create_customer"); err != nil {
		return "", err
	}
	return g.next.FindOrCreateCustomer(ctx, email, name)
}

func (g *gateway) CreateSubscription(ctx context.Context, p payment.SubscriptionParams) (*payment.SubscriptionResult, error) {
	if err := g.injector.Inject(ctx, "payment-gateway", "create_subscription"); err != nil {
		return nil, err
	}
	return g.next.CreateSubscription(ctx, p)
}
