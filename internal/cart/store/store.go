package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/pricing"
)

var (
	ErrInvalidItem     = errors.New("invalid cart item")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// Persister receives the encoded snapshot after every durable change.
type Persister interface {
	Persist(ctx context.Context, snapshot []byte) error
}

type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

type Notice struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	// Variant is "default" or "destructive".
	Variant string `json:"variant,omitempty"`
}

// Store owns one cart. All writes go through Reduce under the store lock.
type Store struct {
	mu        sync.Mutex
	state     domain.CartState
	persister Persister
	notifier  Notifier
	log       *zap.Logger
	lastSaved []byte
}

// New returns an empty store. persister, notifier and log may be nil.
func New(persister Persister, notifier Notifier, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		state:     domain.NewCartState(),
		persister: persister,
		notifier:  notifier,
		log:       log,
	}
}

// Hydrate loads a stored snapshot. Corrupt data is logged and replaced by the
// defaults. Hydration neither opens the drawer nor writes back.
func (s *Store) Hydrate(raw []byte) {
	snap, err := Decode(raw)
	if err != nil {
		s.log.Warn("discarding stored cart", zap.Error(err))
		snap = defaultSnapshot()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, Hydrate{Snapshot: snap})
	if enc, err := Encode(s.state); err == nil {
		s.lastSaved = enc
	}
}

func (s *Store) Dispatch(ctx context.Context, a Action) (domain.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = Reduce(s.state, a)
	if !a.persists() || s.persister == nil {
		return s.state.Clone(), nil
	}

	enc, err := Encode(s.state)
	if err != nil {
		return s.state.Clone(), fmt.Errorf("encode cart: %w", err)
	}
	if bytes.Equal(enc, s.lastSaved) {
		return s.state.Clone(), nil
	}
	if err := s.persister.Persist(ctx, enc); err != nil {
		return s.state.Clone(), fmt.Errorf("persist cart: %w", err)
	}
	s.lastSaved = enc
	return s.state.Clone(), nil
}

func (s *Store) State() domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Store) Totals() (pricing.Totals, error) {
	st := s.State()
	return pricing.Calculate(st.Items, st.ShippingMethod, st.PaymentMethod)
}

func (s *Store) AddItem(ctx context.Context, item domain.LineItem) error {
	if item.ProductID <= 0 || item.UnitPrice.IsNegative() {
		return ErrInvalidItem
	}
	if item.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if item.Weight == "" {
		item.Weight = domain.DefaultWeight
	}

	_, err := s.Dispatch(ctx, AddItem{Item: item})
	s.notify(ctx, Notice{
		Title:   "Added to Cart",
		Message: fmt.Sprintf("%s has been added to your cart", item.Name),
	})
	return err
}

func (s *Store) RemoveItem(ctx context.Context, productID int64) error {
	_, err := s.Dispatch(ctx, RemoveItem{ProductID: productID})
	return err
}

// UpdateQuantity ignores quantities below 1.
func (s *Store) UpdateQuantity(ctx context.Context, productID int64, quantity int) error {
	_, err := s.Dispatch(ctx, UpdateQuantity{ProductID: productID, Quantity: quantity})
	return err
}

func (s *Store) ClearCart(ctx context.Context) error {
	_, err := s.Dispatch(ctx, ClearCart{})
	return err
}

func (s *Store) SetShippingMethod(ctx context.Context, m domain.ShippingMethod) error {
	_, err := s.Dispatch(ctx, SetShippingMethod{Method: m})
	return err
}

func (s *Store) SetPaymentMethod(ctx context.Context, m domain.PaymentMethod) error {
	_, err := s.Dispatch(ctx, SetPaymentMethod{Method: m})
	return err
}

func (s *Store) SetShippingInfo(ctx context.Context, info domain.ShippingInfo) error {
	_, err := s.Dispatch(ctx, SetShippingInfo{Info: info})
	return err
}

func (s *Store) ToggleCart(open *bool) domain.CartState {
	st, _ := s.Dispatch(context.Background(), ToggleCart{Open: open})
	return st
}

func (s *Store) ToggleCheckout(open *bool) domain.CartState {
	st, _ := s.Dispatch(context.Background(), ToggleCheckout{Open: open})
	return st
}

func (s *Store) ToggleOrderConfirmation(open *bool) domain.CartState {
	st, _ := s.Dispatch(context.Background(), ToggleOrderConfirmation{Open: open})
	return st
}

func (s *Store) SetCurrentOrder(o *domain.OrderSnapshot) {
	_, _ = s.Dispatch(context.Background(), SetCurrentOrder{Order: o})
}

func (s *Store) CompleteOrder(ctx context.Context) error {
	_, err := s.Dispatch(ctx, CompleteOrder{})
	return err
}

func (s *Store) Notify(ctx context.Context, n Notice) {
	s.notify(ctx, n)
}

func (s *Store) notify(ctx context.Context, n Notice) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, n)
	}
}

// Bool is shorthand for the explicit form of the toggle operations.
func Bool(v bool) *bool {
	return &v
}
