// internal/registration/handler.go
package registration

import (
	"errors"
	"net/http"

	"ministrysite/internal/content"
	"ministrysite/internal/payment"
	"ministrysite/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type registerBody struct {
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Email          string         `json:"email"`
	Phone          string         `json:"phone"`
	AttendanceType AttendanceType `json:"attendance_type"`
	PromoCode      string         `json:"promo_code"`
}

func (h *Handler) decodeRegister(w http.ResponseWriter, r *http.Request) (RegisterRequest, bool) {
	var body registerBody
	if err := web.DecodeJSON(r, &body); err != nil {
		web.WriteError(w, http.StatusBadRequest, "invalid request body")
		return RegisterRequest{}, false
	}
	return RegisterRequest{
		Slug: chi.URLParam(r, "slug"),
		Attendee: Attendee{
			FirstName: body.FirstName,
			LastName:  body.LastName,
			Email:     body.Email,
			Phone:     body.Phone,
		},
		AttendanceType: body.AttendanceType,
		PromoCode:      body.PromoCode,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}, true
}

// HandleQuote previews a tier price.
func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AttendanceType AttendanceType `json:"attendance_type"`
		PromoCode      string         `json:"promo_code"`
	}
	if err := web.DecodeJSON(r, &body); err != nil {
		web.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	quote, err := h.service.Quote(r.Context(), QuoteRequest{
		Slug:           chi.URLParam(r, "slug"),
		AttendanceType: body.AttendanceType,
		PromoCode:      body.PromoCode,
	})
	if err != nil {
		h.fail(w, r, "quote", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, quote)
}

// HandleRegisterFree registers for an internal-free event.
func (h *Handler) HandleRegisterFree(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRegister(w, r)
	if !ok {
		return
	}
	out, err := h.service.RegisterFree(r.Context(), req)
	if err != nil {
		h.fail(w, r, "register_free", err)
		return
	}
	h.writeOutcome(w, out)
}

// HandleRegisterHybrid registers for a hybrid event.
func (h *Handler) HandleRegisterHybrid(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRegister(w, r)
	if !ok {
		return
	}
	out, err := h.service.RegisterHybrid(r.Context(), req)
	if err != nil {
		h.fail(w, r, "register_hybrid", err)
		return
	}
	h.writeOutcome(w, out)
}

// HandleCheckout starts payment for an internal event.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRegister(w, r)
	if !ok {
		return
	}
	out, err := h.service.StartCheckout(r.Context(), req)
	if err != nil {
		h.fail(w, r, "checkout", err)
		return
	}
	h.writeOutcome(w, out)
}

func (h *Handler) writeOutcome(w http.ResponseWriter, out *Outcome) {
	if out.RequiresPayment {
		web.WriteJSON(w, http.StatusOK, out)
		return
	}
	web.WriteJSON(w, http.StatusCreated, out)
}

// HandleComplete records the registration for a confirmed payment.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PaymentIntentID string `json:"payment_intent_id"`
	}
	if err := web.DecodeJSON(r, &body); err != nil || body.PaymentIntentID == "" {
		web.WriteError(w, http.StatusBadRequest, "payment_intent_id is required")
		return
	}
	reg, err := h.service.CompletePaid(r.Context(), body.PaymentIntentID)
	if err != nil {
		h.fail(w, r, "complete_paid", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, reg)
}

// HandleList lists an event's registrations for admins.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	regs, err := h.service.ListByEvent(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, r, "list_registrations", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]any{
		"registrations": regs,
		"count":         len(regs),
	})
}

// HandleUpdate changes a registration's status or notes.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, "invalid registration id")
		return
	}
	var update StatusUpdate
	if err := web.DecodeJSON(r, &update); err != nil {
		web.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reg, err := h.service.UpdateStatus(r.Context(), id, update)
	if err != nil {
		h.fail(w, r, "update_registration", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, reg)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, message := statusFor(err)
	web.LogOperationError(r.Context(), operation, status, err)
	web.WriteError(w, status, message)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, content.ErrNotFound):
		return http.StatusNotFound, "event not found"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrNotFound.Error()
	case errors.Is(err, content.ErrRegistrationClosed),
		errors.Is(err, content.ErrDeadlinePassed),
		errors.Is(err, ErrEventFull),
		errors.Is(err, ErrAlreadyRegistered),
		errors.Is(err, ErrPaymentNotSettled),
		errors.Is(err, ErrPaymentCanceled):
		return http.StatusConflict, rootMessage(err)
	case errors.Is(err, ErrModeMismatch),
		errors.Is(err, ErrPaymentRequired),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidStatus):
		return http.StatusBadRequest, rootMessage(err)
	case errors.Is(err, payment.ErrAmountOutOfRange),
		errors.Is(err, payment.ErrInvalidRequest),
		errors.Is(err, payment.ErrIntentNotFound),
		errors.Is(err, payment.ErrProcessingFailed):
		return payment.StatusFor(err)
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// rootMessage returns the sentinel's message rather than the wrapped detail.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		content.ErrRegistrationClosed, content.ErrDeadlinePassed, ErrEventFull,
		ErrAlreadyRegistered, ErrPaymentNotSettled, ErrPaymentCanceled, ErrModeMismatch, ErrPaymentRequired,
		ErrInvalidStatus,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
