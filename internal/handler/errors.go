package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/ishop/internal/backend"
	"github.com/mmeshcher/ishop/internal/cart"
	"github.com/mmeshcher/ishop/internal/order"
	"github.com/mmeshcher/ishop/internal/service"
)

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// handleError переводит доменные ошибки в HTTP-ответы.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		validationErr *order.ValidationError
		submitErr     *order.SubmitError
		apiErr        *backend.APIError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation", Fields: validationErr.Fields})
	case errors.Is(err, order.ErrVenueClosed):
		writeError(w, http.StatusConflict, "venue_closed", err.Error())
	case errors.Is(err, order.ErrInFlight):
		writeError(w, http.StatusConflict, "order_in_flight", err.Error())
	case errors.Is(err, cart.ErrLocked):
		writeError(w, http.StatusConflict, "cart_locked", err.Error())
	case errors.Is(err, order.ErrNoPendingVerification):
		writeError(w, http.StatusConflict, "no_pending_verification", err.Error())
	case errors.Is(err, service.ErrNoVenue):
		writeError(w, http.StatusConflict, "venue_not_selected", err.Error())
	case errors.Is(err, order.ErrEmptyCart):
		writeError(w, http.StatusUnprocessableEntity, "cart_empty", err.Error())
	case errors.Is(err, service.ErrUnknownProduct):
		writeError(w, http.StatusNotFound, "unknown_product", err.Error())
	case service.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.As(err, &submitErr):
		writeError(w, http.StatusBadGateway, "order_failed", submitErr.Message)
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		writeError(w, http.StatusNotFound, "not_found", apiErr.Message())
	case errors.As(err, &apiErr):
		h.logger.Warn(op+" backend error", zap.Int("status", apiErr.StatusCode), zap.Error(err))
		writeError(w, http.StatusBadGateway, "backend_error", apiErr.Message())
	default:
		h.logger.Error(op+" error", zap.Error(err), zap.String("uri", r.RequestURI))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
