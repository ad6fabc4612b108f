// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ministrysite/internal/access"
	"ministrysite/internal/admin"
	"ministrysite/internal/cache"
	"ministrysite/internal/chaos"
	"ministrysite/internal/clients"
	"ministrysite/internal/config"
	"ministrysite/internal/database"
	"ministrysite/internal/ledger"
	"ministrysite/internal/mail"
	"ministrysite/internal/payment"
	"ministrysite/internal/pricing"
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

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, "ministrysite-api", cfg.OTLPEndpoint)
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

	var idempotency payment.IdempotencyCache
	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		slog.Warn("redis unavailable, payment idempotency disabled", "error", err)
	} else {
		defer rdb.Close()
		idempotency = payment.NewRedisIdempotency(rdb, cfg.IdempotencyTTL)
	}

	var gateway payment.Gateway = payment.NewStripeGateway(cfg.StripeSecretKey)
	var mailer mail.Sender = clients.NewMailClient(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom)
	faults := chaos.Config{FailureRate: cfg.ChaosFailureRate, Latency: cfg.ChaosLatency}
	if faults.Enabled() {
		injector := chaos.NewInjector(faults)
		gateway = injector.Gateway(gateway)
		mailer = injector.Sender(mailer)
		slog.Warn("fault injection enabled", "failure_rate", faults.FailureRate, "latency", faults.Latency.String())
	}
	contentReader := clients.NewContentClient(cfg.ContentAPIURL, cfg.ContentAPIToken)
	journal := ledger.New(db)

	promos := pricing.NewPromos(promoTable(cfg.PromoCodes))
	engine := pricing.NewEngine(promos, cfg.InternalPlaceholderPrice)

	paymentSvc := payment.NewService(gateway, idempotency, journal, payment.Config{
		RegistrationLimits: payment.Limits{Min: cfg.RegistrationMin, Max: cfg.RegistrationMax},
		DonationLimits:     payment.Limits{Min: cfg.DonationMin, Max: cfg.DonationMax},
	})

	registrationStore := registration.NewPostgresStore(db)
	accessSvc := access.NewService(access.NewPostgresStore(db), contentReader, registrationStore, mailer, cfg.SiteBaseURL)
	registrationSvc := registration.NewService(registrationStore, contentReader, engine, paymentSvc, accessSvc, mailer, journal, registration.Config{
		InternalZeroPlaceholder: cfg.InternalZeroPlaceholder,
	})

	sessions, err := admin.NewSessions(admin.Credentials{
		Username:     cfg.AdminUsername,
		Password:     cfg.AdminPassword,
		PasswordHash: cfg.AdminPasswordHash,
	}, cfg.SessionSecret)
	if err != nil {
		slog.Error("failed to configure admin sessions", "error", err)
		os.Exit(1)
	}

	r := newRouter(routerDeps{
		pricing:      pricing.NewHandler(promos),
		payment:      payment.NewHandler(paymentSvc),
		registration: registration.NewHandler(registrationSvc),
		access:       access.NewHandler(accessSvc),
		admin:        admin.NewHandler(sessions, cfg.Production()),
		sessions:     sessions,
		health:       healthHandler(db, rdb),
		trustProxy:   cfg.TrustProxyHeaders,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("api listening", "port", cfg.HTTPPort, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
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
