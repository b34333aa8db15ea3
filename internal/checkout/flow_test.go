package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrispyPorkGang/boxpacks/internal/auth"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/store"
	orders "github.com/CrispyPorkGang/boxpacks/internal/orders/domain"
)

var testUser = &auth.User{ID: 42, Email: "jane@example.com", TelegramHandle: "@janedoe"}

func validAddress() domain.ShippingInfo {
	return domain.ShippingInfo{
		FirstName:      "Jane",
		LastName:       "Doe",
		Address1:       "1 Main St",
		City:           "Denver",
		State:          "CO",
		ZipCode:        "80202",
		Country:        "US",
		Email:          "jane@example.com",
		TelegramHandle: "@janedoe",
	}
}

func newCartWithItems(t *testing.T, notices *store.NoticeBuffer) *store.Store {
	t.Helper()
	var n store.Notifier
	if notices != nil {
		n = notices
	}
	s := store.New(nil, n, nil)
	require.NoError(t, s.AddItem(context.Background(), domain.LineItem{
		ProductID: 1, Name: "Blue Dream", UnitPrice: decimal.RequireFromString("100.00"),
		Quantity: 1, SKU: "BD-1", Weight: "1 lb",
	}))
	return s
}

func TestOpen_RequiresAuth(t *testing.T) {
	notices := &store.NoticeBuffer{}
	s := newCartWithItems(t, notices)
	notices.Drain()
	s.ToggleCart(store.Bool(false))
	f := NewFlow(s, &MockOrderCreator{}, time.Second, nil)

	err := f.Open(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	st := s.State()
	assert.True(t, st.IsOpen)
	assert.False(t, st.CheckoutOpen)
	got := notices.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, "Please log in to proceed to checkout", got[0].Message)

	state, _ := f.State(context.Background())
	assert.Equal(t, StateIdle, state)
}

func TestOpen_EmptyCartBlocked(t *testing.T) {
	f := NewFlow(store.New(nil, nil, nil), &MockOrderCreator{}, time.Second, nil)

	assert.ErrorIs(t, f.Open(context.Background(), testUser), ErrEmptyCart)
}

func TestOpen_PrefillsContactFromUser(t *testing.T) {
	s := newCartWithItems(t, nil)
	f := NewFlow(s, &MockOrderCreator{}, time.Second, nil)

	require.NoError(t, f.Open(context.Background(), testUser))

	st := s.State()
	assert.True(t, st.CheckoutOpen)
	assert.False(t, st.IsOpen)
	require.NotNil(t, st.ShippingInfo)
	assert.Equal(t, "jane@example.com", st.ShippingInfo.Email)
	assert.Equal(t, "@janedoe", st.ShippingInfo.TelegramHandle)

	state, _ := f.State(context.Background())
	assert.Equal(t, StateCollectingAddress, state)
}

func TestSelectMethods_RecomputeTotals(t *testing.T) {
	s := newCartWithItems(t, nil)
	f := NewFlow(s, &MockOrderCreator{}, time.Second, nil)
	ctx := context.Background()

	totals, err := f.SelectShipping(ctx, domain.ShippingOvernight)
	require.NoError(t, err)
	assert.Equal(t, "106.00", totals.Total.Sub(totals.Shipping).StringFixed(2))
	assert.Equal(t, "206.00", totals.Total.StringFixed(2))

	totals, err = f.SelectPayment(ctx, domain.PaymentUSDT)
	require.NoError(t, err)
	assert.Equal(t, "200.00", totals.Total.StringFixed(2))

	_, err = f.SelectPayment(ctx, "paypal")
	assert.ErrorIs(t, err, domain.ErrUnknownPaymentMethod)
	assert.Equal(t, domain.PaymentUSDT, s.State().PaymentMethod)
}

func TestSubmit_Success(t *testing.T) {
	s := newCartWithItems(t, nil)
	oc := &MockOrderCreator{Order: &orders.Order{ID: 1, OrderNumber: "2000"}}
	f := NewFlow(s, oc, time.Second, nil)
	ctx := context.Background()
	require.NoError(t, f.Open(ctx, testUser))

	snap, err := f.Submit(ctx, testUser, validAddress())
	require.NoError(t, err)

	assert.Equal(t, "2000", snap.OrderNumber)
	assert.Equal(t, "156.00", snap.Total.StringFixed(2))

	require.Equal(t, 1, oc.calls())
	req := oc.Requests[0]
	assert.Equal(t, int64(42), req.UserID)
	assert.Equal(t, "Standard Shipping", req.ShippingMethod)
	assert.Equal(t, "50.00", req.ShippingCost.StringFixed(2))
	assert.Equal(t, "6.00", req.PaymentFee.StringFixed(2))
	assert.Equal(t, "156.00", req.TotalAmount.StringFixed(2))
	require.Len(t, req.Items, 1)
	assert.Equal(t, "BD-1", req.Items[0].SKU)
	assert.NotEmpty(t, oc.Keys[0])

	st := s.State()
	assert.False(t, st.CheckoutOpen)
	assert.True(t, st.OrderConfirmationOpen)
	require.NotNil(t, st.CurrentOrder)
	assert.Equal(t, "2000", st.CurrentOrder.OrderNumber)
	assert.Len(t, st.Items, 1, "cart is kept until the confirmation is dismissed")

	state, _ := f.State(context.Background())
	assert.Equal(t, StateConfirmed, state)
}

func TestSubmit_FailureLeavesCartUntouched(t *testing.T) {
	s := newCartWithItems(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetShippingMethod(ctx, domain.ShippingOvernight))
	require.NoError(t, s.SetPaymentMethod(ctx, domain.PaymentBTC))
	oc := &MockOrderCreator{Err: errors.New("orders service unavailable")}
	f := NewFlow(s, oc, time.Second, nil)
	require.NoError(t, f.Open(ctx, testUser))

	before := s.State()
	_, err := f.Submit(ctx, testUser, validAddress())
	require.Error(t, err)

	after := s.State()
	assert.Equal(t, before.Items, after.Items)
	assert.Equal(t, domain.ShippingOvernight, after.ShippingMethod)
	assert.Equal(t, domain.PaymentBTC, after.PaymentMethod)
	assert.True(t, after.CheckoutOpen)
	assert.Nil(t, after.CurrentOrder)

	state, lastErr := f.State(context.Background())
	assert.Equal(t, StateFailed, state)
	assert.ErrorContains(t, lastErr, "unavailable")

	// retry from Failed
	oc.Err = nil
	oc.Order = &orders.Order{OrderNumber: "2001"}
	snap, err := f.Submit(ctx, testUser, validAddress())
	require.NoError(t, err)
	assert.Equal(t, "2001", snap.OrderNumber)
	assert.NotEqual(t, oc.Keys[0], oc.Keys[1])
}

func TestSubmit_ValidationBlocksSubmission(t *testing.T) {
	s := newCartWithItems(t, nil)
	oc := &MockOrderCreator{}
	f := NewFlow(s, oc, time.Second, nil)
	ctx := context.Background()
	require.NoError(t, f.Open(ctx, testUser))

	addr := validAddress()
	addr.Email = "not-an-email"
	addr.TelegramHandle = "ab"
	addr.City = " "

	_, err := f.Submit(ctx, testUser, addr)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "telegramHandle")
	assert.Contains(t, verr.Fields, "city")
	assert.Equal(t, 0, oc.calls())

	state, _ := f.State(context.Background())
	assert.Equal(t, StateCollectingAddress, state)
}

func TestSubmit_NotAllowedWhenIdle(t *testing.T) {
	f := NewFlow(newCartWithItems(t, nil), &MockOrderCreator{}, time.Second, nil)

	_, err := f.Submit(context.Background(), testUser, validAddress())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSubmit_UnknownPaymentFailsClosed(t *testing.T) {
	s := store.New(nil, nil, nil)
	s.Hydrate([]byte(`{"items":[{"productId":1,"name":"x","price":"10","quantity":1,"sku":"X"}],"shippingMethod":"standard","paymentMethod":"paypal"}`))
	oc := &MockOrderCreator{}
	f := NewFlow(s, oc, time.Second, nil)
	ctx := context.Background()
	require.NoError(t, f.Open(ctx, testUser))

	_, err := f.Submit(ctx, testUser, validAddress())
	assert.ErrorIs(t, err, domain.ErrUnknownPaymentMethod)
	assert.Equal(t, 0, oc.calls())
}

func TestSubmit_NoDoubleSubmit(t *testing.T) {
	s := newCartWithItems(t, nil)
	oc := &MockOrderCreator{
		Order:   &orders.Order{OrderNumber: "2000"},
		Block:   make(chan struct{}),
		Entered: make(chan struct{}, 1),
	}
	f := NewFlow(s, oc, 5*time.Second, nil)
	ctx := context.Background()
	require.NoError(t, f.Open(ctx, testUser))

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(ctx, testUser, validAddress())
		done <- err
	}()
	<-oc.Entered

	state, _ := f.State(context.Background())
	assert.Equal(t, StateSubmitting, state)

	_, err := f.Submit(ctx, testUser, validAddress())
	assert.ErrorIs(t, err, ErrSubmitInProgress)
	assert.ErrorIs(t, f.Close(), ErrSubmitInProgress)

	close(oc.Block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, oc.calls())
}

func TestSubmit_Timeout(t *testing.T) {
	s := newCartWithItems(t, nil)
	oc := &MockOrderCreator{Block: make(chan struct{})}
	f := NewFlow(s, oc, 20*time.Millisecond, nil)
	ctx := context.Background()
	require.NoError(t, f.Open(ctx, testUser))

	_, err := f.Submit(ctx, testUser, validAddress())
	assert.ErrorIs(t, err, ErrOrderTimeout)
	assert.Len(t, s.State().Items, 1)

	state, _ := f.State(context.Background())
	assert.Equal(t, StateFailed, state)
}

func TestDismiss_ClearsCartAndOrder(t *testing.T) {
	s := newCartWithItems(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SetPaymentMethod(ctx, domain.PaymentZelle))
	f := NewFlow(s, &MockOrderCreator{Order: &orders.Order{OrderNumber: "2000"}}, time.Second, nil)
	require.NoError(t, f.Open(ctx, testUser))
	_, err := f.Submit(ctx, testUser, validAddress())
	require.NoError(t, err)

	receipt, err := f.Receipt()
	require.NoError(t, err)
	assert.Contains(t, receipt, "Order Number: #2000")

	require.NoError(t, f.Dismiss(ctx))

	st := s.State()
	assert.Empty(t, st.Items)
	assert.Nil(t, st.CurrentOrder)
	assert.False(t, st.OrderConfirmationOpen)
	assert.Equal(t, domain.PaymentZelle, st.PaymentMethod)

	state, _ := f.State(context.Background())
	assert.Equal(t, StateIdle, state)
	assert.ErrorIs(t, f.Dismiss(ctx), ErrInvalidState)
	_, err = f.Receipt()
	assert.ErrorIs(t, err, ErrNoOrder)
}

func TestFlow_ClosedElsewhereReturnsToIdle(t *testing.T) {
	s := newCartWithItems(t, nil)
	f := NewFlow(s, &MockOrderCreator{}, time.Second, nil)
	require.NoError(t, f.Open(context.Background(), testUser))

	s.ToggleCart(store.Bool(true))

	state, _ := f.State(context.Background())
	assert.Equal(t, StateIdle, state)
}

func TestConfirmation_ClosedByDrawerKeepsNewItems(t *testing.T) {
	s := newCartWithItems(t, nil)
	ctx := context.Background()
	f := NewFlow(s, &MockOrderCreator{Order: &orders.Order{OrderNumber: "2000"}}, time.Second, nil)
	require.NoError(t, f.Open(ctx, testUser))
	_, err := f.Submit(ctx, testUser, validAddress())
	require.NoError(t, err)

	require.NoError(t, s.AddItem(ctx, domain.LineItem{
		ProductID: 7, Name: "OG Kush", UnitPrice: decimal.RequireFromString("50.00"), Quantity: 2, SKU: "OG-7",
	}))
	assert.False(t, s.State().OrderConfirmationOpen)

	state, _ := f.State(ctx)
	assert.Equal(t, StateIdle, state)

	st := s.State()
	require.Len(t, st.Items, 1)
	assert.Equal(t, int64(7), st.Items[0].ProductID)
	assert.Nil(t, st.CurrentOrder)

	// a new checkout can start right away
	require.NoError(t, f.Open(ctx, testUser))
	state, _ = f.State(ctx)
	assert.Equal(t, StateCollectingAddress, state)
}

func TestDismiss_KeepsQuantityAddedAfterOrder(t *testing.T) {
	s := newCartWithItems(t, nil)
	ctx := context.Background()
	f := NewFlow(s, &MockOrderCreator{Order: &orders.Order{OrderNumber: "2000"}}, time.Second, nil)
	require.NoError(t, f.Open(ctx, testUser))
	_, err := f.Submit(ctx, testUser, validAddress())
	require.NoError(t, err)

	require.NoError(t, s.AddItem(ctx, domain.LineItem{
		ProductID: 1, Name: "Blue Dream", UnitPrice: decimal.RequireFromString("100.00"), Quantity: 1, SKU: "BD-1",
	}))
	require.NoError(t, f.Dismiss(ctx))

	st := s.State()
	require.Len(t, st.Items, 1)
	assert.Equal(t, 1, st.Items[0].Quantity)
	assert.Nil(t, st.CurrentOrder)
}
