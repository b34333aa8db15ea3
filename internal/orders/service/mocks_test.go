package service

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/CrispyPorkGang/boxpacks/internal/orders/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/orders/repository"
)

// MockRepository is an in-memory OrderRepository.
type MockRepository struct {
	mu        sync.Mutex
	orders    map[int64]*domain.Order
	keys      map[string]int64
	nextID    int64
	nextNum   int64
	CreateErr error
	// RaceKey makes the next CreateOrder with this key behave as if a
	// concurrent request stored it first.
	RaceKey string
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		orders:  map[int64]*domain.Order{},
		keys:    map[string]int64{},
		nextID:  1,
		nextNum: 2000,
	}
}

func (m *MockRepository) CreateOrder(_ context.Context, o *domain.Order, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if key != "" && key == m.RaceKey {
		m.RaceKey = ""
		m.insertLocked(&domain.Order{UserID: o.UserID}, key)
		return repository.ErrDuplicateOrder
	}
	if _, ok := m.keys[key]; key != "" && ok {
		return repository.ErrDuplicateOrder
	}
	m.insertLocked(o, key)
	return nil
}

func (m *MockRepository) insertLocked(o *domain.Order, key string) {
	o.ID = m.nextID
	o.OrderNumber = strconv.FormatInt(m.nextNum, 10)
	o.Status = domain.OrderStatusPending
	o.CreatedAt = time.Now().Add(time.Duration(m.nextID) * time.Second)
	o.UpdatedAt = o.CreatedAt
	m.nextID++
	m.nextNum++
	cp := *o
	m.orders[o.ID] = &cp
	if key != "" {
		m.keys[key] = o.ID
	}
}

func (m *MockRepository) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockRepository) GetOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	m.mu.Lock()
	id, ok := m.keys[key]
	m.mu.Unlock()
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return m.GetOrder(ctx, id)
}

func (m *MockRepository) ListOrders(_ context.Context, userID int64) ([]*domain.Order, error) {
	return m.list(func(o *domain.Order) bool { return o.UserID == userID }), nil
}

func (m *MockRepository) ListAllOrders(_ context.Context) ([]*domain.Order, error) {
	return m.list(func(*domain.Order) bool { return true }), nil
}

func (m *MockRepository) list(keep func(*domain.Order) bool) []*domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Order{}
	for _, o := range m.orders {
		if keep(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MockRepository) UpdateOrderStatus(_ context.Context, id int64, status domain.OrderStatus) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	o.Status = status
	cp := *o
	return &cp, nil
}

func (m *MockRepository) Ping(context.Context) error { return nil }
func (m *MockRepository) Close() error               { return nil }
