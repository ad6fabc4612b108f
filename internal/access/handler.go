// internal/access/handler.go
package access

import (
	"errors"
	"net/http"

	"ministrysite/internal/content"
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

// HandleValidate checks a viewer token for a content slug.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
		Slug  string `json:"slug"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := h.service.Validate(r.Context(), req.Token, req.Slug)
	if err != nil {
		h.fail(w, r, "validate_access_token", err)
		return
	}
	web.WriteJSON(w, http.StatusOK, v)
}

// HandleGrant issues a complimentary or admin token.
func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.service.Grant(r.Context(), req)
	if err != nil {
		h.fail(w, r, "grant_access_token", err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	web.WriteJSON(w, status, res)
}

// HandleDeactivate disables a token by id.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, "invalid token id")
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		h.fail(w, r, "deactivate_access_token", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, message := statusFor(err)
	web.LogOperationError(r.Context(), operation, status, err)
	web.WriteError(w, status, message)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidToken):
		return http.StatusForbidden, ErrInvalidToken.Error()
	case errors.Is(err, ErrRegistrationCancelled):
		return http.StatusForbidden, ErrRegistrationCancelled.Error()
	case errors.Is(err, ErrStreamUnavailable):
		return http.StatusNotFound, ErrStreamUnavailable.Error()
	case errors.Is(err, ErrTokenNotFound), errors.Is(err, content.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
