// Package checkpoint remembers how far an interrupted sweep got so that the
// next run can resume from there.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoCheckpoint is returned by Load when no sweep is pending.
var ErrNoCheckpoint = errors.New("no checkpoint stored")

// DefaultTTL bounds how long a stale checkpoint is honored.
const DefaultTTL = 7 * 24 * time.Hour

type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisCheckpoint stores the last finished sweep position in Redis.
type RedisCheckpoint struct {
	client client
	key    string
	ttl    time.Duration
}

// NewRedis connects to addr. keyPrefix namespaces the checkpoint key.
func NewRedis(addr, keyPrefix string, ttl time.Duration) *RedisCheckpoint {
	return newWithClient(redis.NewClient(&redis.Options{Addr: addr}), keyPrefix, ttl)
}

func newWithClient(c client, keyPrefix string, ttl time.Duration) *RedisCheckpoint {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCheckpoint{client: c, key: keyPrefix + "sweep:position", ttl: ttl}
}

// Ping verifies connectivity.
func (r *RedisCheckpoint) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Load returns the stored position or ErrNoCheckpoint.
func (r *RedisCheckpoint) Load(ctx context.Context) (int, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNoCheckpoint
	}
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	position, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("decode checkpoint %q: %w", val, err)
	}
	return position, nil
}

// Save stores position, refreshing the TTL.
func (r *RedisCheckpoint) Save(ctx context.Context, position int) error {
	if err := r.client.Set(ctx, r.key, strconv.Itoa(position), r.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Clear removes the checkpoint after a completed sweep.
func (r *RedisCheckpoint) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisCheckpoint) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

// Noop is used when no checkpoint backend is configured. Load always reports
// ErrNoCheckpoint.
type Noop struct{}

// Load implements the checkpoint contract.
func (Noop) Load(context.Context) (int, error) { return 0, ErrNoCheckpoint }

// Save implements the checkpoint contract.
func (Noop) Save(context.Context, int) error { return nil }

// Clear implements the checkpoint contract.
func (Noop) Clear(context.Context) error { return nil }
