// internal/pricing/handler.go
package pricing

import (
	"net/http"
	"time"

	"ministrysite/internal/web"

	"golang.org/x/time/rate"
)

type Handler struct {
	promos      *Promos
	rateLimiter *rate.Limiter
}

func NewHandler(promos *Promos) *Handler {
	return &Handler{
		promos:      promos,
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Second), 20),
	}
}

// HandleValidatePromo reports whether a promo code exists. Unknown codes are not an error.
func (h *Handler) HandleValidatePromo(w http.ResponseWriter, r *http.Request) {
	if !h.rateLimiter.Allow() {
		web.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	promo, ok := h.promos.Resolve(req.Code)
	if !ok {
		web.WriteJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]any{
		"valid":           true,
		"code":            promo.Code,
		"discountPercent": promo.DiscountPercent,
		"description":     promo.Description,
	})
}
