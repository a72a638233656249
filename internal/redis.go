package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the shared cache layer.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// redisLayer shares cached responses between replicas. Redis expires keys on
// its own so there is nothing to evict lazily here.
type redisLayer struct {
	rdb *redis.Client
}

var _ layer = (*redisLayer)(nil)

func newRedis(ctx context.Context, opts RedisOptions) (*redisLayer, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}

	Log(ctx).Info("connected to redis", "addr", opts.Addr, "db", opts.DB)

	return &redisLayer{rdb: rdb}, nil
}

func (r *redisLayer) Name() string {
	return "redis"
}

func (r *redisLayer) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	var get *redis.StringCmd
	var pttl *redis.DurationCmd

	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		pttl = pipe.PTTL(ctx, key)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, 0, errCacheMiss
	}
	if err != nil {
		return nil, 0, fmt.Errorf("redis get: %w", err)
	}

	val, err := get.Bytes()
	if err != nil {
		return nil, 0, fmt.Errorf("redis get: %w", err)
	}

	// A key without an expiry reports a negative PTTL. We never write those,
	// so treat them as stale.
	ttl := pttl.Val()
	if ttl <= 0 {
		return nil, 0, errCacheMiss
	}

	return val, ttl, nil
}

func (r *redisLayer) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, val, ttl).Err()
}

func (r *redisLayer) Delete(ctx context.Context, key string) error {
	return r.rdb.Unlink(ctx, key).Err()
}

func (r *redisLayer) Close() error {
	return r.rdb.Close()
}
