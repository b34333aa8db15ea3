package http

import (
	"context"
	"errors"
	"sync"

	"github.com/CrispyPorkGang/boxpacks/internal/cart/service"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/store"
	orders "github.com/CrispyPorkGang/boxpacks/internal/orders/domain"
	product "github.com/CrispyPorkGang/boxpacks/internal/product/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/product/repository"
)

// MockSessions keeps sessions in memory without persistence.
type MockSessions struct {
	mu       sync.Mutex
	sessions map[string]*service.Session
	err      error
}

func (m *MockSessions) Session(_ context.Context, id string) (*service.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.sessions == nil {
		m.sessions = map[string]*service.Session{}
	}
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	notices := &store.NoticeBuffer{}
	s := &service.Session{ID: id, Store: store.New(nil, notices, nil), Notices: notices}
	m.sessions[id] = s
	return s, nil
}

// reset drops a session the way eviction does.
func (m *MockSessions) reset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

type MockCatalog struct {
	products   []*product.Product
	categories []*product.Category
	err        error
}

func (m *MockCatalog) GetAllProducts(context.Context) ([]*product.Product, error) {
	return m.products, m.err
}

func (m *MockCatalog) GetProduct(_ context.Context, id int64) (*product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *MockCatalog) GetProductsByCategory(_ context.Context, slug string) ([]*product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, c := range m.categories {
		if c.Slug != slug {
			continue
		}
		out := []*product.Product{}
		for _, p := range m.products {
			if p.CategoryID != nil && *p.CategoryID == c.ID {
				out = append(out, p)
			}
		}
		return out, nil
	}
	return nil, repository.ErrCategoryNotFound
}

func (m *MockCatalog) GetCategories(context.Context) ([]*product.Category, error) {
	return m.categories, m.err
}

type MockOrders struct {
	mu      sync.Mutex
	order   *orders.Order
	list    []orders.Order
	err     error
	created []orders.CreateOrderRequest
}

func (m *MockOrders) CreateOrder(_ context.Context, req orders.CreateOrderRequest, _ string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

func (m *MockOrders) ListOrders(context.Context) ([]orders.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.list, nil
}

func (m *MockOrders) GetOrder(_ context.Context, id int64) (*orders.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.list {
		if m.list[i].ID == id {
			return &m.list[i], nil
		}
	}
	return nil, errors.New("unexpected order lookup")
}
