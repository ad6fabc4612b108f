// internal/payment/handler.go
package payment

import (
	"errors"
	"net/http"
	"strings"

	"ministrysite/internal/web"

	"github.com/shopspring/decimal"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type donationRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Frequency string          `json:"frequency"`
	Message   string          `json:"message"`
}

// HandleDonation creates a one-time intent or a monthly subscription.
func (h *Handler) HandleDonation(w http.ResponseWriter, r *http.Request) {
	var req donationRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	metadata := map[string]string{
		"type":       "donation",
		"donorName":  req.Name,
		"donorEmail": req.Email,
		"frequency":  req.Frequency,
	}
	if req.Message != "" {
		metadata["message"] = req.Message
	}

	switch strings.ToLower(req.Frequency) {
	case "monthly":
		res, err := h.service.CreateSubscription(r.Context(), SubscriptionRequest{
			Amount:      req.Amount,
			Email:       req.Email,
			Name:        req.Name,
			Description: "Monthly donation",
			Metadata:    metadata,
		})
		if err != nil {
			h.fail(w, r, "create_subscription", err)
			return
		}
		web.WriteJSON(w, http.StatusOK, map[string]any{
			"clientSecret":   res.ClientSecret,
			"subscriptionId": res.SubscriptionID,
		})
	case "", "one-time", "once":
		res, err := h.service.CreateIntent(r.Context(), IntentRequest{
			Purpose:        PurposeDonation,
			Amount:         req.Amount,
			Email:          req.Email,
			Name:           req.Name,
			Description:    "Donation",
			Metadata:       metadata,
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		if err != nil {
			h.fail(w, r, "create_donation_intent", err)
			return
		}
		web.WriteJSON(w, http.StatusOK, map[string]any{
			"clientSecret":    res.ClientSecret,
			"paymentIntentId": res.IntentID,
		})
	default:
		web.WriteError(w, http.StatusBadRequest, "frequency must be one-time or monthly")
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, message := StatusFor(err)
	web.LogOperationError(r.Context(), operation, status, err)
	web.WriteError(w, status, message)
}

// StatusFor maps payment errors to an HTTP status and a client-safe message.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrAmountOutOfRange):
		return http.StatusBadRequest, "amount out of range"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid payment request"
	case errors.Is(err, ErrIntentNotFound):
		return http.StatusNotFound, "payment not found"
	case errors.Is(err, ErrProcessingFailed):
		return http.StatusBadGateway, "payment processing failed"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
