package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fingerprintKeyPrefix = "fp:"
	presenceKeyPrefix    = "seen:"
	presenceTTL          = 2 * time.Minute
)

// RedisAdapter persists the per-endpoint config fingerprint so a bridge
// restart does not trigger a redundant full push to every endpoint.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) GetFingerprint(ctx context.Context, mac string) (string, error) {
	val, err := r.client.Get(ctx, fingerprintKeyPrefix+mac).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get fingerprint: %w", err)
	}
	return val, nil
}

func (r *RedisAdapter) SetFingerprint(ctx context.Context, mac, fingerprint string) error {
	return r.client.Set(ctx, fingerprintKeyPrefix+mac, fingerprint, 0).Err()
}

func (r *RedisAdapter) ClearFingerprint(ctx context.Context, mac string) error {
	return r.client.Del(ctx, fingerprintKeyPrefix+mac).Err()
}

func (r *RedisAdapter) MarkSeen(ctx context.Context, mac string) error {
	return r.client.Set(ctx, presenceKeyPrefix+mac, time.Now().Unix(), presenceTTL).Err()
}
