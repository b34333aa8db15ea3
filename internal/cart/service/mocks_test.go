package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CrispyPorkGang/boxpacks/internal/cart/cache"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/repository"
)

type MockRepository struct {
	mu        sync.Mutex
	Snapshots map[string][]byte
	GetErr    error
	SaveErr   error
	GetCalls    atomic.Int32
	DeleteCalls atomic.Int32
	Delay       time.Duration
}

func NewMockRepository() *MockRepository {
	return &MockRepository{Snapshots: map[string][]byte{}}
}

func (m *MockRepository) GetSnapshot(_ context.Context, sessionID string) ([]byte, error) {
	m.GetCalls.Add(1)
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.Snapshots[sessionID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return raw, nil
}

func (m *MockRepository) SaveSnapshot(_ context.Context, sessionID string, snapshot []byte) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Snapshots[sessionID] = snapshot
	return nil
}

func (m *MockRepository) DeleteCart(_ context.Context, sessionID string) error {
	m.DeleteCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Snapshots[sessionID]; !ok {
		return repository.ErrCartNotFound
	}
	delete(m.Snapshots, sessionID)
	return nil
}

type MockCache struct {
	mu       sync.Mutex
	Data     map[string][]byte
	GetErr   error
	Deleted  []string
	SetCalls atomic.Int32
}

func NewMockCache() *MockCache {
	return &MockCache{Data: map[string][]byte{}}
}

func (m *MockCache) Get(_ context.Context, sessionID string) ([]byte, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.Data[sessionID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return raw, nil
}

func (m *MockCache) Set(_ context.Context, sessionID string, snapshot []byte) error {
	m.SetCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[sessionID] = snapshot
	return nil
}

func (m *MockCache) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Data, sessionID)
	m.Deleted = append(m.Deleted, sessionID)
	return nil
}

func (m *MockCache) deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.Deleted...)
}
