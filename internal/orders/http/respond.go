package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	cart "github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/orders/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/orders/repository"
	"github.com/CrispyPorkGang/boxpacks/internal/orders/service"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// handleServiceError maps service and repository errors to HTTP statuses.
func (h *OrdersHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrTotalsMismatch):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "order totals do not match", Code: "totals_mismatch", Details: err.Error()})
	case errors.Is(err, service.ErrInvalidOrder),
		errors.Is(err, cart.ErrUnknownPaymentMethod),
		errors.Is(err, cart.ErrUnknownShippingMethod):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid order", Code: "invalid_order", Details: err.Error()})
	case errors.Is(err, domain.ErrInvalidStatus):
		respondError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, service.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden", "not allowed to access this order")
	case errors.Is(err, repository.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "not_found", "order not found")
	default:
		h.logger(r).Error("orders request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
