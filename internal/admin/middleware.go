// internal/admin/middleware.go
package admin

import (
	"context"
	"net/http"

	"ministrysite/internal/web"
)

type ctxKey string

const ctxKeySession ctxKey = "admin_session"

// RequireSession rejects requests without a valid admin session cookie.
func RequireSession(sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(CookieName)
			if err != nil {
				web.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			sess, err := sessions.VerifySession(cookie.Value)
			if err != nil {
				web.LogOperationError(r.Context(), "admin_session", http.StatusUnauthorized, err)
				web.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeySession, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the session attached by RequireSession.
func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(ctxKeySession).(Session)
	return sess, ok
}
