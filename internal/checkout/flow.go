// Package checkout drives a cart from address collection through order
// placement to the confirmation receipt.
//
//	Idle -> CollectingAddress -> Submitting -> Confirmed -> Idle
//	                 ^               |
//	                 +---- Failed <--+
//
// Failed accepts the same operations as CollectingAddress. A failed
// submission never changes the cart.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CrispyPorkGang/boxpacks/internal/auth"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/pricing"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/store"
	orders "github.com/CrispyPorkGang/boxpacks/internal/orders/domain"
)

type State string

const (
	StateIdle              State = "idle"
	StateCollectingAddress State = "collecting_address"
	StateSubmitting        State = "submitting"
	StateConfirmed         State = "confirmed"
	StateFailed            State = "failed"
)

const DefaultSubmitTimeout = 15 * time.Second

// OrderCreator places an order. The key lets the order service recognise a
// resent request.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest, idempotencyKey string) (*orders.Order, error)
}

type Flow struct {
	mu      sync.Mutex
	store   *store.Store
	orders  OrderCreator
	timeout time.Duration
	log     *zap.Logger
	newKey  func() string

	state   State
	lastErr error
}

func NewFlow(s *store.Store, oc OrderCreator, timeout time.Duration, log *zap.Logger) *Flow {
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Flow{
		store:   s,
		orders:  oc,
		timeout: timeout,
		log:     log,
		newKey:  uuid.NewString,
		state:   StateIdle,
	}
}

// State reports the current step and the error of the last failed submit.
func (f *Flow) State(ctx context.Context) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncLocked(ctx)
	return f.state, f.lastErr
}

// Submitting reports whether an order call is in flight.
func (f *Flow) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == StateSubmitting
}

// syncLocked drops back to Idle when a surface was closed from elsewhere,
// for instance by opening the cart drawer. A confirmation closed that way
// counts as dismissed.
func (f *Flow) syncLocked(ctx context.Context) {
	st := f.store.State()
	switch f.state {
	case StateCollectingAddress, StateFailed:
		if !st.CheckoutOpen {
			f.state = StateIdle
			f.lastErr = nil
		}
	case StateConfirmed:
		if !st.OrderConfirmationOpen {
			f.state = StateIdle
			if err := f.store.CompleteOrder(ctx); err != nil {
				f.log.Warn("completed order not persisted", zap.Error(err))
			}
		}
	}
}

func (f *Flow) Open(ctx context.Context, user *auth.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncLocked(ctx)

	switch f.state {
	case StateSubmitting:
		return ErrSubmitInProgress
	case StateConfirmed:
		return ErrInvalidState
	}

	if user == nil {
		f.store.ToggleCart(store.Bool(true))
		f.store.Notify(ctx, store.Notice{
			Title:   "Authentication required",
			Message: "Please log in to proceed to checkout",
			Variant: "destructive",
		})
		return ErrNotAuthenticated
	}

	st := f.store.State()
	if len(st.Items) == 0 {
		return ErrEmptyCart
	}

	info := domain.ShippingInfo{}
	if st.ShippingInfo != nil {
		info = *st.ShippingInfo
	}
	if info.Email == "" || info.TelegramHandle == "" {
		if info.Email == "" {
			info.Email = user.Email
		}
		if info.TelegramHandle == "" {
			info.TelegramHandle = user.TelegramHandle
		}
		if err := f.store.SetShippingInfo(ctx, info); err != nil {
			f.log.Warn("failed to persist prefilled shipping info", zap.Error(err))
		}
	}

	f.store.ToggleCheckout(store.Bool(true))
	f.state = StateCollectingAddress
	f.lastErr = nil
	return nil
}

func (f *Flow) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case StateSubmitting:
		return ErrSubmitInProgress
	case StateCollectingAddress, StateFailed:
		f.store.ToggleCheckout(store.Bool(false))
		f.state = StateIdle
		f.lastErr = nil
	}
	return nil
}

func (f *Flow) SelectShipping(ctx context.Context, m domain.ShippingMethod) (pricing.Totals, error) {
	if !m.Valid() {
		return pricing.Totals{}, fmt.Errorf("%w: %q", domain.ErrUnknownShippingMethod, string(m))
	}
	if err := f.store.SetShippingMethod(ctx, m); err != nil {
		return pricing.Totals{}, err
	}
	return f.store.Totals()
}

func (f *Flow) SelectPayment(ctx context.Context, m domain.PaymentMethod) (pricing.Totals, error) {
	if !m.Valid() {
		return pricing.Totals{}, fmt.Errorf("%w: %q", domain.ErrUnknownPaymentMethod, string(m))
	}
	if err := f.store.SetPaymentMethod(ctx, m); err != nil {
		return pricing.Totals{}, err
	}
	return f.store.Totals()
}

// Submit validates the address, prices the cart and places the order. Only
// one submission runs at a time.
func (f *Flow) Submit(ctx context.Context, user *auth.User, addr domain.ShippingInfo) (*domain.OrderSnapshot, error) {
	req, st, totals, err := f.beginSubmit(ctx, user, addr)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	log := f.log.With(zap.Int64("user_id", user.ID), zap.Int("items", len(req.Items)))
	order, err := f.orders.CreateOrder(callCtx, req, f.newKey())

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrOrderTimeout, err)
		}
		log.Warn("order submission failed", zap.Error(err))
		f.state = StateFailed
		f.lastErr = err
		return nil, err
	}

	snap := &domain.OrderSnapshot{
		OrderNumber:     order.OrderNumber,
		Items:           append([]domain.LineItem{}, st.Items...),
		Subtotal:        totals.Subtotal,
		Shipping:        totals.Shipping,
		PaymentFee:      totals.PaymentFee,
		Total:           totals.Total,
		ShippingMethod:  st.ShippingMethod,
		PaymentMethod:   st.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
	}
	f.store.SetCurrentOrder(snap)
	f.store.ToggleCheckout(store.Bool(false))
	f.store.ToggleOrderConfirmation(store.Bool(true))
	f.state = StateConfirmed
	f.lastErr = nil

	log.Info("order placed", zap.String("order_number", order.OrderNumber))
	return snap, nil
}

func (f *Flow) beginSubmit(ctx context.Context, user *auth.User, addr domain.ShippingInfo) (orders.CreateOrderRequest, domain.CartState, pricing.Totals, error) {
	var (
		req    orders.CreateOrderRequest
		st     domain.CartState
		totals pricing.Totals
	)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncLocked(ctx)

	switch f.state {
	case StateSubmitting:
		return req, st, totals, ErrSubmitInProgress
	case StateCollectingAddress, StateFailed:
	default:
		return req, st, totals, ErrInvalidState
	}
	if user == nil {
		return req, st, totals, ErrNotAuthenticated
	}

	addr = normalizeAddress(addr)
	if err := f.store.SetShippingInfo(ctx, addr); err != nil {
		f.log.Warn("failed to persist shipping info", zap.Error(err))
	}
	if err := ValidateAddress(addr); err != nil {
		return req, st, totals, err
	}

	st = f.store.State()
	if len(st.Items) == 0 {
		return req, st, totals, ErrEmptyCart
	}
	totals, err := pricing.Calculate(st.Items, st.ShippingMethod, st.PaymentMethod)
	if err != nil {
		return req, st, totals, err
	}
	shipLabel, err := st.ShippingMethod.Label()
	if err != nil {
		return req, st, totals, err
	}

	req = orders.CreateOrderRequest{
		UserID:          user.ID,
		TotalAmount:     totals.Total,
		ShippingMethod:  shipLabel,
		ShippingCost:    totals.Shipping,
		PaymentMethod:   st.PaymentMethod,
		PaymentFee:      totals.PaymentFee,
		ShippingAddress: addr,
		Items:           make([]orders.OrderItem, 0, len(st.Items)),
	}
	for _, it := range st.Items {
		req.Items = append(req.Items, orders.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.UnitPrice,
			Quantity:  it.Quantity,
			SKU:       it.SKU,
			Weight:    it.Weight,
		})
	}

	f.state = StateSubmitting
	f.lastErr = nil
	return req, st, totals, nil
}

// Dismiss closes the confirmation and removes the ordered lines from the
// cart.
func (f *Flow) Dismiss(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateConfirmed {
		return ErrInvalidState
	}
	f.state = StateIdle
	return f.store.CompleteOrder(ctx)
}

func (f *Flow) Receipt() (string, error) {
	st := f.store.State()
	if st.CurrentOrder == nil {
		return "", ErrNoOrder
	}
	return FormatReceipt(*st.CurrentOrder)
}
