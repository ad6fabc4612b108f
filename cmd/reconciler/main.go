// cmd/reconciler/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ministrysite/internal/access"
	"ministrysite/internal/clients"
	"ministrysite/internal/config"
	"ministrysite/internal/database"
	"ministrysite/internal/ledger"
	"ministrysite/internal/payment"
	"ministrysite/internal/pricing"
	"ministrysite/internal/reconcile"
	"ministrysite/internal/registration"
	"ministrysite/internal/telemetry"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load(getEnv("CONFIG_FILE", "config.yaml"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "ministrysite-reconciler", cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	db, err := database.Open(ctx, cfg.DatabaseURL, 10)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, registration.Schema, access.Schema, ledger.Schema); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	journal := ledger.New(db)
	contentReader := clients.NewContentClient(cfg.ContentAPIURL, cfg.ContentAPIToken)
	mailer := clients.NewMailClient(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom)

	// Completion only retrieves intents, so no idempotency cache is needed.
	paymentSvc := payment.NewService(payment.NewStripeGateway(cfg.StripeSecretKey), nil, journal, payment.Config{
		RegistrationLimits: payment.Limits{Min: cfg.RegistrationMin, Max: cfg.RegistrationMax},
		DonationLimits:     payment.Limits{Min: cfg.DonationMin, Max: cfg.DonationMax},
	})
	registrationStore := registration.NewPostgresStore(db)
	accessSvc := access.NewService(access.NewPostgresStore(db), contentReader, registrationStore, mailer, cfg.SiteBaseURL)
	registrationSvc := registration.NewService(registrationStore, contentReader,
		pricing.NewEngine(pricing.NewPromos(promoTable(cfg.PromoCodes)), cfg.InternalPlaceholderPrice),
		paymentSvc, accessSvc, mailer, journal, registration.Config{
			InternalZeroPlaceholder: cfg.InternalZeroPlaceholder,
		})

	worker := reconcile.NewWorker(journal, registrationSvc, reconcile.Config{
		Interval: cfg.ReconcileInterval,
		MaxAge:   cfg.ReconcileMaxAge,
	})
	worker.Run(ctx)

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		slog.Warn("failed to flush traces", "error", err)
	}
}

func promoTable(codes []config.PromoCode) []pricing.Promo {
	if len(codes) == 0 {
		return pricing.DefaultPromos
	}
	out := make([]pricing.Promo, 0, len(codes))
	for _, c := range codes {
		out = append(out, pricing.Promo{Code: c.Code, DiscountPercent: c.DiscountPercent, Description: c.Description})
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
