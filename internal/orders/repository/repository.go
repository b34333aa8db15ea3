package repository

import (
	"context"
	"errors"
	"time"

	"github.com/CrispyPorkGang/boxpacks/internal/orders/domain"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order for this idempotency key already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OutboxEvent is a row of outbox_events. Payload is the JSON encoded
// domain.OrderEvent.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type OrderRepository interface {
	// CreateOrder stores order with its items and an OrderPlaced outbox event.
	// It fills in ID, OrderNumber, Status and the timestamps.
	CreateOrder(ctx context.Context, order *domain.Order, idempotencyKey string) error
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]*domain.Order, error)
	ListAllOrders(ctx context.Context) ([]*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) (*domain.Order, error)
	Ping(ctx context.Context) error
	Close() error
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}
