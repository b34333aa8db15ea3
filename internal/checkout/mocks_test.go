package checkout

import (
	"context"
	"sync"

	orders "github.com/CrispyPorkGang/boxpacks/internal/orders/domain"
)

type MockOrderCreator struct {
	mu       sync.Mutex
	Order    *orders.Order
	Err      error
	Requests []orders.CreateOrderRequest
	Keys     []string
	// Block, when set, holds CreateOrder until it is closed or ctx ends.
	Block   chan struct{}
	Entered chan struct{}
}

func (m *MockOrderCreator) CreateOrder(ctx context.Context, req orders.CreateOrderRequest, key string) (*orders.Order, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.Keys = append(m.Keys, key)
	m.mu.Unlock()

	if m.Entered != nil {
		m.Entered <- struct{}{}
	}
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Order, nil
}

func (m *MockOrderCreator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
