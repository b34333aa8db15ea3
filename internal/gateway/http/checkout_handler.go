package http

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/CrispyPorkGang/boxpacks/internal/auth"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/checkout"
	"github.com/CrispyPorkGang/boxpacks/internal/checkout/client"
	"github.com/CrispyPorkGang/boxpacks/pkg/circuitbreaker"
	"github.com/CrispyPorkGang/boxpacks/pkg/logger"
)

type CheckoutHandler struct {
	sessions Sessions
	flows    *Flows
	timeout  time.Duration
	log      *zap.Logger
}

func NewCheckoutHandler(sessions Sessions, flows *Flows, timeout time.Duration, log *zap.Logger) *CheckoutHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutHandler{sessions: sessions, flows: flows, timeout: timeout, log: log}
}

type CheckoutResponseDTO struct {
	State     checkout.State `json:"state"`
	LastError string         `json:"lastError,omitempty"`
	Cart      CartResponse   `json:"cart"`
}

type OrderPlacedResponseDTO struct {
	Order   *domain.OrderSnapshot `json:"order"`
	Receipt string                `json:"receipt"`
}

type ReceiptResponseDTO struct {
	OrderNumber string `json:"orderNumber"`
	Receipt     string `json:"receipt"`
}

func (h *CheckoutHandler) logger(r *http.Request) *zap.Logger {
	return logger.FromContext(r.Context(), h.log)
}

// cartState reads the current cart of a session.
type cartState func() domain.CartState

func (h *CheckoutHandler) flow(w http.ResponseWriter, r *http.Request) (*checkout.Flow, cartState, bool) {
	sess, ok := loadSession(w, r, h.sessions, h.timeout, h.logger(r))
	if !ok {
		return nil, nil, false
	}
	return h.flows.For(sess), sess.Store.State, true
}

func (h *CheckoutHandler) respondState(w http.ResponseWriter, r *http.Request, status int, f *checkout.Flow, cart cartState) {
	st, lastErr := f.State(r.Context())
	resp := CheckoutResponseDTO{State: st, Cart: newCartResponse(cart())}
	if lastErr != nil {
		resp.LastError = lastErr.Error()
	}
	respondJSON(w, status, resp)
}

// GET /api/v1/checkout
func (h *CheckoutHandler) GetState(w http.ResponseWriter, r *http.Request) {
	f, cart, ok := h.flow(w, r)
	if !ok {
		return
	}
	h.respondState(w, r, http.StatusOK, f, cart)
}

// POST /api/v1/checkout/open
func (h *CheckoutHandler) Open(w http.ResponseWriter, r *http.Request) {
	f, cart, ok := h.flow(w, r)
	if !ok {
		return
	}
	if err := f.Open(r.Context(), auth.UserFromContext(r.Context())); err != nil {
		h.handleCheckoutError(w, r, err)
		return
	}
	h.respondState(w, r, http.StatusOK, f, cart)
}

// POST /api/v1/checkout/close
func (h *CheckoutHandler) Close(w http.ResponseWriter, r *http.Request) {
	f, cart, ok := h.flow(w, r)
	if !ok {
		return
	}
	if err := f.Close(); err != nil {
		h.handleCheckoutError(w, r, err)
		return
	}
	h.respondState(w, r, http.StatusOK, f, cart)
}

// POST /api/v1/checkout/submit
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var addr domain.ShippingInfo
	if !decodeJSON(w, r, &addr, false) {
		return
	}
	f, _, ok := h.flow(w, r)
	if !ok {
		return
	}

	snap, err := f.Submit(r.Context(), auth.UserFromContext(r.Context()), addr)
	if err != nil {
		h.handleCheckoutError(w, r, err)
		return
	}
	receipt, err := checkout.FormatReceipt(*snap)
	if err != nil {
		// the order exists, only the receipt text is missing
		h.logger(r).Error("failed to format receipt", zap.String("order_number", snap.OrderNumber), zap.Error(err))
	}
	respondJSON(w, http.StatusCreated, OrderPlacedResponseDTO{Order: snap, Receipt: receipt})
}

// GET /api/v1/checkout/receipt
func (h *CheckoutHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	f, cart, ok := h.flow(w, r)
	if !ok {
		return
	}
	receipt, err := f.Receipt()
	if err != nil {
		h.handleCheckoutError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(receipt))
		return
	}
	resp := ReceiptResponseDTO{Receipt: receipt}
	if o := cart().CurrentOrder; o != nil {
		resp.OrderNumber = o.OrderNumber
	}
	respondJSON(w, http.StatusOK, resp)
}

// POST /api/v1/checkout/dismiss
func (h *CheckoutHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	f, cart, ok := h.flow(w, r)
	if !ok {
		return
	}
	if err := f.Dismiss(r.Context()); err != nil {
		if errors.Is(err, checkout.ErrInvalidState) {
			h.handleCheckoutError(w, r, err)
			return
		}
		h.logger(r).Warn("completed order not persisted", zap.Error(err))
	}
	h.respondState(w, r, http.StatusOK, f, cart)
}

// handleCheckoutError maps flow errors to HTTP statuses. Anything unmatched
// came from the orders-service call.
func (h *CheckoutHandler) handleCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *checkout.ValidationError
	var serr *client.StatusError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid shipping address", Code: "validation_failed", Fields: verr.Fields})
	case errors.Is(err, checkout.ErrNotAuthenticated):
		respondError(w, http.StatusUnauthorized, "unauthorized", "please log in to proceed to checkout")
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "cart is empty")
	case errors.Is(err, checkout.ErrSubmitInProgress):
		respondError(w, http.StatusConflict, "submit_in_progress", err.Error())
	case errors.Is(err, checkout.ErrInvalidState):
		respondError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, checkout.ErrNoOrder):
		respondError(w, http.StatusNotFound, "no_order", "no confirmed order")
	case errors.Is(err, domain.ErrUnknownPaymentMethod), errors.Is(err, domain.ErrUnknownShippingMethod):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "cart cannot be priced", Code: "pricing_error", Details: err.Error()})
	case errors.Is(err, checkout.ErrOrderTimeout):
		respondJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: "order service timed out", Code: "timeout", Details: err.Error()})
	case errors.Is(err, circuitbreaker.ErrOpen):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "order service is unavailable, please retry shortly")
	case errors.As(err, &serr):
		respondJSON(w, http.StatusBadGateway, ErrorResponse{Error: "order was rejected", Code: "order_rejected", Details: serr.Error()})
	default:
		h.logger(r).Error("order submission failed", zap.Error(err))
		respondJSON(w, http.StatusBadGateway, ErrorResponse{Error: "failed to place order", Code: "order_failed", Details: err.Error()})
	}
}
