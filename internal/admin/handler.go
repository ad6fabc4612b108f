// internal/admin/handler.go
package admin

import (
	"net"
	"net/http"
	"sync"
	"time"

	"ministrysite/internal/web"

	"golang.org/x/time/rate"
)

const maxTrackedClients = 10000

type Handler struct {
	sessions *Sessions
	secure   bool

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHandler creates the login handler. secure marks the session cookie Secure.
func NewHandler(sessions *Sessions, secure bool) *Handler {
	return &Handler{
		sessions: sessions,
		secure:   secure,
		limiters: make(map[string]*rate.Limiter),
	}
}

// allow applies 5 login attempts per minute per client address.
// RemoteAddr is the TCP peer unless the router was told to trust proxy headers.
func (h *Handler) allow(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	limiter, ok := h.limiters[host]
	if !ok {
		if len(h.limiters) >= maxTrackedClients {
			h.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rate.Every(1*time.Minute), 5)
		h.limiters[host] = limiter
	}
	return limiter.Allow()
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.allow(r) {
		web.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.sessions.VerifyCredentials(req.Username, req.Password) {
		web.LogOperationError(r.Context(), "admin_login", http.StatusUnauthorized, ErrInvalidCredentials)
		web.WriteError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}

	token, sess, err := h.sessions.CreateSession(req.Username)
	if err != nil {
		web.LogOperationError(r.Context(), "admin_login", http.StatusInternalServerError, err)
		web.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	web.WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"username":      sess.Username,
		"expires_at":    sess.ExpiresAt,
	})
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	web.WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
}

// HandleSession reports whether the caller holds a valid session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		web.WriteJSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false})
		return
	}
	sess, err := h.sessions.VerifySession(cookie.Value)
	if err != nil {
		web.WriteJSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false})
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"username":      sess.Username,
		"expires_at":    sess.ExpiresAt,
	})
}
