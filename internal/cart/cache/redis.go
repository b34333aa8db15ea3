package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:    client,
		baseTTL:   15 * time.Minute,
		maxJitter: 5,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
	// whole minutes added at random to spread expiry
	maxJitter int
}

func (r *RedisCache) Get(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := r.client.Get(ctx, cacheKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("cached snapshot for %s is not valid json", sessionID)
	}
	return data, nil
}

func (r *RedisCache) Set(ctx context.Context, sessionID string, snapshot []byte) error {
	jitter := time.Duration(rand.Intn(r.maxJitter)) * time.Minute
	if err := r.client.Set(ctx, cacheKey(sessionID), snapshot, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, cacheKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func cacheKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}
