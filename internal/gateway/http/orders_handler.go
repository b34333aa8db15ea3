package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/CrispyPorkGang/boxpacks/internal/checkout/client"
	orders "github.com/CrispyPorkGang/boxpacks/internal/orders/domain"
	"github.com/CrispyPorkGang/boxpacks/pkg/circuitbreaker"
	"github.com/CrispyPorkGang/boxpacks/pkg/logger"
)

// OrdersReader is implemented by *client.OrdersClient. The caller's token
// travels in the context.
type OrdersReader interface {
	ListOrders(ctx context.Context) ([]orders.Order, error)
	GetOrder(ctx context.Context, id int64) (*orders.Order, error)
}

type OrdersHandler struct {
	orders  OrdersReader
	timeout time.Duration
	log     *zap.Logger
}

func NewOrdersHandler(o OrdersReader, timeout time.Duration, log *zap.Logger) *OrdersHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrdersHandler{orders: o, timeout: timeout, log: log}
}

type OrdersResponse struct {
	Orders []orders.Order `json:"orders"`
}

// GET /api/v1/orders
func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	list, err := h.orders.ListOrders(ctx)
	if err != nil {
		h.handleUpstreamError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, &OrdersResponse{Orders: list})
}

// GET /api/v1/orders/{id}
func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "id must be a positive integer")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		h.handleUpstreamError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// handleUpstreamError passes 4xx answers through and reports the rest as a
// bad gateway.
func (h *OrdersHandler) handleUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var serr *client.StatusError
	switch {
	case errors.As(err, &serr):
		code := serr.Code
		if code == "" {
			code = "upstream_error"
		}
		respondError(w, serr.StatusCode, code, serr.Message)
	case errors.Is(err, circuitbreaker.ErrOpen):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "order service is unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "order service timed out")
	default:
		logger.FromContext(r.Context(), h.log).Error("orders-service request failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "bad_gateway", "order service request failed")
	}
}
