// Package cache holds read-mostly catalog responses. Every catalog write
// bumps a generation counter that is part of each key, so stale entries are
// never read again and simply expire.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"towerdocs/internal/config"
)

const (
	keyPrefix     = "towerdocs:catalog"
	generationKey = keyPrefix + ":gen"
)

// Cache is consulted by the catalog service. Implementations must be safe for
// concurrent use; failures are reported but never required for correctness.
type Cache interface {
	// Get decodes the entry for key into dst and reports whether it was found.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	// Invalidate makes every existing entry unreachable.
	Invalidate(ctx context.Context) error
	Close() error
}

// New returns a redis-backed cache, or a no-op cache when no address is set.
func New(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	if cfg.RedisAddr == "" {
		return Nop{}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, cfg.TTL), nil
}

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) generation(ctx context.Context) (int64, error) {
	v, err := r.client.Get(ctx, generationKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func entryKey(gen int64, key string) string {
	return keyPrefix + ":" + strconv.FormatInt(gen, 10) + ":" + key
}

func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	gen, err := r.generation(ctx)
	if err != nil {
		return false, fmt.Errorf("cache generation: %w", err)
	}
	raw, err := r.client.Get(ctx, entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value any) error {
	gen, err := r.generation(ctx)
	if err != nil {
		return fmt.Errorf("cache generation: %w", err)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return r.client.Set(ctx, entryKey(gen, key), raw, r.ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context) error {
	return r.client.Incr(ctx, generationKey).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string, any) (bool, error) { return false, nil }
func (Nop) Set(context.Context, string, any) error          { return nil }
func (Nop) Invalidate(context.Context) error                { return nil }
func (Nop) Close() error                                    { return nil }
