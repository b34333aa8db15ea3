package cache

import (
	"context"
	"errors"
)

// SnapshotCache holds encoded cart snapshots keyed by session id.
type SnapshotCache interface {
	Get(ctx context.Context, sessionID string) ([]byte, error)
	Set(ctx context.Context, sessionID string, snapshot []byte) error
	Delete(ctx context.Context, sessionID string) error
}

var ErrCacheMiss = errors.New("cache miss")
