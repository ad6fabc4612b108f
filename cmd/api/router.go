// cmd/api/router.go
package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"ministrysite/internal/access"
	"ministrysite/internal/admin"
	"ministrysite/internal/payment"
	"ministrysite/internal/pricing"
	"ministrysite/internal/registration"
	"ministrysite/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

type routerDeps struct {
	pricing      *pricing.Handler
	payment      *payment.Handler
	registration *registration.Handler
	access       *access.Handler
	admin        *admin.Handler
	sessions     *admin.Sessions
	health       http.HandlerFunc
	trustProxy   bool
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// Forwarded headers are client-controlled unless a proxy overwrites them.
	if d.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(web.RequestLogger)

	r.Get("/health", d.health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/promo-codes/validate", d.pricing.HandleValidatePromo)
		r.Post("/donations", d.payment.HandleDonation)

		r.Route("/events/{slug}", func(r chi.Router) {
			r.Post("/quote", d.registration.HandleQuote)
			r.Post("/register/free", d.registration.HandleRegisterFree)
			r.Post("/register/hybrid", d.registration.HandleRegisterHybrid)
			r.Post("/checkout", d.registration.HandleCheckout)
		})
		r.Post("/registrations/complete", d.registration.HandleComplete)
		r.Post("/access/validate", d.access.HandleValidate)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", d.admin.HandleLogin)
			r.Post("/logout", d.admin.HandleLogout)
			r.Get("/session", d.admin.HandleSession)

			r.Group(func(r chi.Router) {
				r.Use(admin.RequireSession(d.sessions))
				r.Get("/events/{slug}/registrations", d.registration.HandleList)
				r.Patch("/registrations/{id}", d.registration.HandleUpdate)
				r.Post("/access-tokens", d.access.HandleGrant)
				r.Post("/access-tokens/{id}/deactivate", d.access.HandleDeactivate)
			})
		})
	})
	return r
}

func healthHandler(db *sql.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"database": "ok", "redis": "disabled"}
		status := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
		if rdb != nil {
			checks["redis"] = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unavailable"
			}
		}
		web.WriteJSON(w, status, checks)
	}
}
