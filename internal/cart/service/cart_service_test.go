package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrispyPorkGang/boxpacks/internal/cart/cache"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
)

const storedCart = `{"items":[{"productId":3,"name":"Gelato","price":"900","quantity":1,"sku":"GL-3","weight":"1 lb"}],"shippingMethod":"overnight","paymentMethod":"zelle"}`

func TestSession_NewSessionStartsEmpty(t *testing.T) {
	svc := NewCartService(NewMockRepository(), NewMockCache(), nil)

	sess, err := svc.Session(context.Background(), "s1")
	require.NoError(t, err)

	st := sess.Store.State()
	assert.Empty(t, st.Items)
	assert.Equal(t, domain.ShippingStandard, st.ShippingMethod)
	assert.Equal(t, domain.PaymentCashApp, st.PaymentMethod)
}

func TestSession_CacheHitSkipsRepository(t *testing.T) {
	repo := NewMockRepository()
	c := NewMockCache()
	c.Data["s1"] = []byte(storedCart)
	svc := NewCartService(repo, c, nil)

	sess, err := svc.Session(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int32(0), repo.GetCalls.Load())
	assert.Equal(t, domain.PaymentZelle, sess.Store.State().PaymentMethod)
}

func TestSession_RepositoryHitWarmsCache(t *testing.T) {
	repo := NewMockRepository()
	repo.Snapshots["s1"] = []byte(storedCart)
	c := NewMockCache()
	svc := NewCartService(repo, c, nil)

	sess, err := svc.Session(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, sess.Store.State().Items, 1)

	assert.Equal(t, int32(1), c.SetCalls.Load())
	assert.Equal(t, []byte(storedCart), c.Data["s1"])
}

func TestSession_WriteAfterWarmLeavesNoStaleCache(t *testing.T) {
	repo := NewMockRepository()
	repo.Snapshots["s1"] = []byte(storedCart)
	c := NewMockCache()
	svc := NewCartService(repo, c, nil)
	ctx := context.Background()

	sess, err := svc.Session(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, sess.Store.SetPaymentMethod(ctx, domain.PaymentBTC))

	_, err = c.Get(ctx, "s1")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	assert.Contains(t, string(repo.Snapshots["s1"]), `"paymentMethod":"btc"`)
}

func TestSession_CacheErrorFallsBackToRepository(t *testing.T) {
	repo := NewMockRepository()
	repo.Snapshots["s1"] = []byte(storedCart)
	c := NewMockCache()
	c.GetErr = errors.New("redis down")
	svc := NewCartService(repo, c, nil)

	sess, err := svc.Session(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, sess.Store.State().Items, 1)
}

func TestSession_RepositoryErrorReturned(t *testing.T) {
	repo := NewMockRepository()
	repo.GetErr = errors.New("mongo down")
	svc := NewCartService(repo, NewMockCache(), nil)

	_, err := svc.Session(context.Background(), "s1")
	assert.ErrorContains(t, err, "mongo down")
}

func TestSession_ConcurrentLoadsCollapse(t *testing.T) {
	repo := NewMockRepository()
	repo.Snapshots["s1"] = []byte(storedCart)
	repo.Delay = 50 * time.Millisecond
	svc := NewCartService(repo, NewMockCache(), nil)

	var wg sync.WaitGroup
	sessions := make([]*Session, 10)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := svc.Session(context.Background(), "s1")
			assert.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), repo.GetCalls.Load())
	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
}

func TestSession_WritesPersistAndInvalidate(t *testing.T) {
	repo := NewMockRepository()
	c := NewMockCache()
	svc := NewCartService(repo, c, nil)
	ctx := context.Background()

	sess, err := svc.Session(ctx, "s1")
	require.NoError(t, err)

	err = sess.Store.AddItem(ctx, domain.LineItem{
		ProductID: 1,
		Name:      "Runtz",
		UnitPrice: decimal.NewFromInt(800),
		Quantity:  1,
		SKU:       "RZ-1",
	})
	require.NoError(t, err)

	assert.Contains(t, string(repo.Snapshots["s1"]), `"productId":1`)
	assert.Equal(t, []string{"s1"}, c.deleted())
	assert.Len(t, sess.Notices.Drain(), 1)
}

func TestSession_DefaultCartIsDeleted(t *testing.T) {
	repo := NewMockRepository()
	c := NewMockCache()
	svc := NewCartService(repo, c, nil)
	ctx := context.Background()

	sess, err := svc.Session(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, sess.Store.AddItem(ctx, domain.LineItem{
		ProductID: 1, Name: "Runtz", UnitPrice: decimal.NewFromInt(800), Quantity: 1, SKU: "RZ-1",
	}))
	require.Contains(t, repo.Snapshots, "s1")

	require.NoError(t, sess.Store.RemoveItem(ctx, 1))
	assert.NotContains(t, repo.Snapshots, "s1")
	assert.Equal(t, int32(1), repo.DeleteCalls.Load())
	assert.Equal(t, []string{"s1", "s1"}, c.deleted())

	// selections survive an empty cart
	require.NoError(t, sess.Store.SetPaymentMethod(ctx, domain.PaymentUSDT))
	assert.Contains(t, string(repo.Snapshots["s1"]), `"paymentMethod":"usdt"`)
}

func TestSession_PersistErrorReturned(t *testing.T) {
	repo := NewMockRepository()
	repo.SaveErr = errors.New("write failed")
	c := NewMockCache()
	svc := NewCartService(repo, c, nil)
	ctx := context.Background()

	sess, err := svc.Session(ctx, "s1")
	require.NoError(t, err)

	err = sess.Store.SetPaymentMethod(ctx, domain.PaymentBTC)
	assert.ErrorContains(t, err, "write failed")
	assert.Empty(t, c.deleted())
}

func TestEvictIdle(t *testing.T) {
	repo := NewMockRepository()
	svc := NewCartService(repo, NewMockCache(), nil)
	now := time.Now()
	svc.now = func() time.Time { return now }

	_, err := svc.Session(context.Background(), "old")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = svc.Session(context.Background(), "fresh")
	require.NoError(t, err)

	assert.Equal(t, 1, svc.EvictIdle(time.Hour))
	assert.Nil(t, svc.lookup("old"))
	assert.NotNil(t, svc.lookup("fresh"))
}
