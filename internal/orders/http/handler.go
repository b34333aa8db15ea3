package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/CrispyPorkGang/boxpacks/internal/auth"
	"github.com/CrispyPorkGang/boxpacks/internal/orders/domain"
	"github.com/CrispyPorkGang/boxpacks/pkg/logger"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	maxBodyBytes         = 1 << 20
	maxIdempotencyKey    = 64
)

// Service is implemented by *service.OrderService.
type Service interface {
	CreateOrder(ctx context.Context, user *auth.User, req domain.CreateOrderRequest, key string) (*domain.Order, bool, error)
	GetOrder(ctx context.Context, user *auth.User, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, user *auth.User) ([]*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, user *auth.User, id int64, status string) (*domain.Order, error)
}

type OrdersHandler struct {
	svc Service
	log *zap.Logger
}

func NewOrdersHandler(svc Service, log *zap.Logger) *OrdersHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrdersHandler{svc: svc, log: log}
}

// Routes mounts the order endpoints. All of them need a valid token.
func (h *OrdersHandler) Routes(r chi.Router, verifier *auth.Verifier) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(verifier.Required)
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.With(auth.RequireAdmin).Put("/{id}/status", h.UpdateOrderStatus)
	})
}

func (h *OrdersHandler) logger(r *http.Request) *zap.Logger {
	return logger.FromContext(r.Context(), h.log)
}

// POST /api/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(HeaderIdempotencyKey)
	if len(key) > maxIdempotencyKey {
		respondError(w, http.StatusBadRequest, "invalid_idempotency_key", "Idempotency-Key is too long")
		return
	}

	var req domain.CreateOrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, created, err := h.svc.CreateOrder(r.Context(), auth.UserFromContext(r.Context()), req, key)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	respondJSON(w, status, order)
}

// GET /api/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(r.Context(), auth.UserFromContext(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// GET /api/orders/{id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.svc.GetOrder(r.Context(), auth.UserFromContext(r.Context()), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// PUT /api/orders/{id}/status
func (h *OrdersHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req domain.UpdateStatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.svc.UpdateOrderStatus(r.Context(), auth.UserFromContext(r.Context()), id, req.Status)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a positive integer")
		return 0, false
	}
	return id, true
}
