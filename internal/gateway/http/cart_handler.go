package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/pricing"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/service"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/store"
	product "github.com/CrispyPorkGang/boxpacks/internal/product/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/product/repository"
	"github.com/CrispyPorkGang/boxpacks/pkg/logger"
)

const (
	maxBodyBytes = 1 << 20
	maxQuantity  = 99
)

// Sessions is implemented by *service.CartService.
type Sessions interface {
	Session(ctx context.Context, sessionID string) (*service.Session, error)
}

type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
}

type CartHandler struct {
	sessions Sessions
	products ProductLookup
	flows    *Flows
	timeout  time.Duration
	log      *zap.Logger
}

func NewCartHandler(sessions Sessions, products ProductLookup, flows *Flows, timeout time.Duration, log *zap.Logger) *CartHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartHandler{
		sessions: sessions,
		products: products,
		flows:    flows,
		timeout:  timeout,
		log:      log,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type ShippingMethodRequestDTO struct {
	Method domain.ShippingMethod `json:"method"`
}

type PaymentMethodRequestDTO struct {
	Method domain.PaymentMethod `json:"method"`
}

type ToggleRequestDTO struct {
	Open *bool `json:"open"`
}

// CartResponse is the cart state plus its priced totals. Totals are left out
// and PricingError set when the cart cannot be priced.
type CartResponse struct {
	domain.CartState
	ItemCount    int             `json:"itemCount"`
	Totals       *pricing.Totals `json:"totals,omitempty"`
	PricingError string          `json:"pricingError,omitempty"`
}

func newCartResponse(st domain.CartState) CartResponse {
	resp := CartResponse{CartState: st, ItemCount: st.ItemCount()}
	totals, err := pricing.Calculate(st.Items, st.ShippingMethod, st.PaymentMethod)
	if err != nil {
		resp.PricingError = err.Error()
		return resp
	}
	resp.Totals = &totals
	return resp
}

func (h *CartHandler) logger(r *http.Request) *zap.Logger {
	return logger.FromContext(r.Context(), h.log)
}

// session loads the caller's cart, writing a 503 when the stores are down.
func (h *CartHandler) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	return loadSession(w, r, h.sessions, h.timeout, h.logger(r))
}

func loadSession(w http.ResponseWriter, r *http.Request, sessions Sessions, timeout time.Duration, log *zap.Logger) (*service.Session, bool) {
	id := sessionIDFromContext(r.Context())
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "cart session cookie is required")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	sess, err := sessions.Session(ctx, id)
	if err != nil {
		log.Error("failed to load cart session", zap.String("session_id", id), zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "cart_unavailable", "cart is temporarily unavailable")
		return nil, false
	}
	return sess, true
}

// persistWarning logs a failed snapshot write. The in-memory cart stays
// authoritative and the next change retries the write.
func (h *CartHandler) persistWarning(r *http.Request, err error) {
	if err != nil {
		h.logger(r).Warn("cart change not persisted", zap.Error(err))
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(sess.Store.State()))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId must be positive")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 1 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	p, err := h.products.GetProduct(ctx, req.ProductID)
	if errors.Is(err, repository.ErrProductNotFound) {
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
		return
	}
	if err != nil {
		h.logger(r).Error("product lookup failed", zap.Int64("product_id", req.ProductID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	err = sess.Store.AddItem(ctx, domain.LineItem{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.EffectivePrice(),
		Quantity:  req.Quantity,
		SKU:       p.SKU,
		Weight:    p.Weight,
		ImageURL:  p.FirstImage(),
	})
	if errors.Is(err, store.ErrInvalidItem) || errors.Is(err, store.ErrInvalidQuantity) {
		respondError(w, http.StatusBadRequest, "invalid_item", err.Error())
		return
	}
	h.persistWarning(r, err)

	respondJSON(w, http.StatusCreated, newCartResponse(sess.Store.State()))
}

// PUT /api/v1/cart/items/{productId}
//
// Quantities below 1 leave the line unchanged; removal is a DELETE.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.persistWarning(r, sess.Store.UpdateQuantity(r.Context(), productID, req.Quantity))
	respondJSON(w, http.StatusOK, newCartResponse(sess.Store.State()))
}

// DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.persistWarning(r, sess.Store.RemoveItem(r.Context(), productID))
	respondJSON(w, http.StatusOK, newCartResponse(sess.Store.State()))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.persistWarning(r, sess.Store.ClearCart(r.Context()))
	respondJSON(w, http.StatusOK, newCartResponse(sess.Store.State()))
}

// PUT /api/v1/cart/shipping-method
func (h *CartHandler) SetShippingMethod(w http.ResponseWriter, r *http.Request) {
	var req ShippingMethodRequestDTO
	if !decodeJSON(w, r, &req, false) {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	_, err := h.flows.For(sess).SelectShipping(r.Context(), req.Method)
	if errors.Is(err, domain.ErrUnknownShippingMethod) {
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "unknown shipping method", Code: "unknown_shipping_method", Details: err.Error()})
		return
	}
	h.methodChanged(w, r, sess, err)
}

// PUT /api/v1/cart/payment-method
func (h *CartHandler) SetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req PaymentMethodRequestDTO
	if !decodeJSON(w, r, &req, false) {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	_, err := h.flows.For(sess).SelectPayment(r.Context(), req.Method)
	if errors.Is(err, domain.ErrUnknownPaymentMethod) {
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "unknown payment method", Code: "unknown_payment_method", Details: err.Error()})
		return
	}
	h.methodChanged(w, r, sess, err)
}

// methodChanged answers a method selection. A pricing error is already in the
// response body, anything else is a persistence failure.
func (h *CartHandler) methodChanged(w http.ResponseWriter, r *http.Request, sess *service.Session, err error) {
	if err != nil && !errors.Is(err, domain.ErrUnknownPaymentMethod) && !errors.Is(err, domain.ErrUnknownShippingMethod) {
		h.persistWarning(r, err)
	}
	respondJSON(w, http.StatusOK, newCartResponse(sess.Store.State()))
}

// PUT /api/v1/cart/shipping-info
func (h *CartHandler) SetShippingInfo(w http.ResponseWriter, r *http.Request) {
	var req domain.ShippingInfo
	if !decodeJSON(w, r, &req, false) {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.persistWarning(r, sess.Store.SetShippingInfo(r.Context(), req))
	respondJSON(w, http.StatusOK, newCartResponse(sess.Store.State()))
}

// POST /api/v1/cart/toggle
func (h *CartHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequestDTO
	if !decodeJSON(w, r, &req, true) {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(sess.Store.ToggleCart(req.Open)))
}

// GET /api/v1/cart/notices
func (h *CartHandler) Notices(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string][]store.Notice{"notices": sess.Notices.Drain()})
}
