package repository

import (
	"context"
	"errors"
	"time"
)

var ErrCartNotFound = errors.New("cart not found")

// CartDocument is one persisted cart snapshot.
type CartDocument struct {
	SessionID string    `bson:"session_id"`
	Snapshot  string    `bson:"snapshot"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type CartRepository interface {
	GetSnapshot(ctx context.Context, sessionID string) ([]byte, error)
	SaveSnapshot(ctx context.Context, sessionID string, snapshot []byte) error
	DeleteCart(ctx context.Context, sessionID string) error
}
