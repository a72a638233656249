package internal

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// errCacheMiss is returned by a layer which doesn't hold a live value.
var errCacheMiss = errors.New("cache miss")

// cache is the expiring key/value store the controller reads through. It's an
// interface so a shared implementation can be swapped in without touching
// resolution logic.
type cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	GetWithTTL(ctx context.Context, key string) (T, time.Duration, bool)
	Set(ctx context.Context, key string, val T, ttl time.Duration)
	Expire(ctx context.Context, key string) error
}

// layer is one tier of a LayeredCache.
type layer interface {
	Name() string
	GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// LayeredCache implements a simple tiered cache. In practice we use an
// in-memory cache optionally backed by Redis so replicas can share work. Hits
// at lower layers are automatically percolated up.
type LayeredCache struct {
	hits   atomic.Int64
	misses atomic.Int64

	wrapped []layer
}

var _ cache[[]byte] = (*LayeredCache)(nil)

// GetWithTTL returns the cached value and its remaining TTL. The boolean
// returned is false if no live value was found.
func (c *LayeredCache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	var val []byte
	var ttl time.Duration
	var err error

	for _, cc := range c.wrapped {
		val, ttl, err = cc.GetWithTTL(ctx, key)
		if err != nil {
			if !errors.Is(err, errCacheMiss) {
				Log(ctx).Warn("problem reading cache", "err", err, "layer", cc.Name())
			}
			// Percolate the value back up if we eventually find it.
			defer func(cc layer) {
				if val == nil {
					return
				}
				if err := cc.Set(ctx, key, val, ttl); err != nil {
					Log(ctx).Warn("problem caching", "key", key, "layer", cc.Name(), "err", err)
				}
			}(cc)
			continue
		}

		_ = c.hits.Add(1)
		_cacheHits.WithLabelValues(cc.Name()).Inc()

		return val, ttl, true
	}

	_ = c.misses.Add(1)
	_cacheMisses.Inc()

	return nil, 0, false
}

// Get returns a cache value, if it exists, and a boolean if a value was found.
func (c *LayeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, _, ok := c.GetWithTTL(ctx, key)
	return val, ok
}

// Expire removes a key from all layers of the cache.
func (c *LayeredCache) Expire(ctx context.Context, key string) error {
	var err error
	for _, cc := range c.wrapped {
		err = errors.Join(err, cc.Delete(ctx, key))
	}
	return err
}

// Set a key/value in all layers of the cache. Any existing value is replaced
// and its age reset.
func (c *LayeredCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if len(val) == 0 {
		Log(ctx).Warn("refusing to set empty value", "key", key)
		return
	}
	if ttl <= 0 {
		Log(ctx).Warn("refusing to set zero ttl", "key", key)
		return
	}

	for _, cc := range c.wrapped {
		err := cc.Set(ctx, key, val, ttl)
		if err != nil {
			Log(ctx).Warn("problem setting cache", "err", err, "layer", cc.Name())
		}
	}
}

// CacheOptions configures NewCache.
type CacheOptions struct {
	// MaxBytes bounds the in-memory layer. Zero uses 75% of the memory limit.
	MaxBytes int64

	// Redis enables a shared layer underneath memory when Addr is set.
	Redis RedisOptions
}

// NewCache constructs a new layered cache. Stats are logged until ctx is
// done.
func NewCache(ctx context.Context, opts CacheOptions) (*LayeredCache, error) {
	m := newMemory(opts.MaxBytes)
	layers := []layer{m}

	if opts.Redis.Addr != "" {
		r, err := newRedis(ctx, opts.Redis)
		if err != nil {
			return nil, err
		}
		layers = append(layers, r)
	}

	c := &LayeredCache{wrapped: layers}

	names := []string{}
	for _, l := range layers {
		names = append(names, l.Name())
	}
	Log(ctx).Info("cache ready",
		"layers", strings.Join(names, ","),
		"memory", humanize.IBytes(uint64(m.r.MaxCost())),
	)

	go c.logStats(ctx, time.Minute)

	return c, nil
}

// logStats periodically logs hit and miss counts until ctx is done.
func (c *LayeredCache) logStats(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		hits, misses := c.hits.Load(), c.misses.Load()
		Log(ctx).LogAttrs(ctx, slog.LevelDebug, "cache stats",
			slog.Int64("hits", hits),
			slog.Int64("misses", misses),
			slog.Float64("ratio", float64(hits)/(float64(hits)+float64(misses))),
		)
	}
}

// ReviewsKey returns the cache key for a set of external identifiers. The key
// doesn't depend on the order the identifiers were given in. Identifiers are
// escaped so one containing a comma can't collide with a batch.
func ReviewsKey(ids []string) string {
	escaped := make([]string, 0, len(ids))
	for _, id := range ids {
		escaped = append(escaped, url.QueryEscape(id))
	}
	slices.Sort(escaped)
	return "r" + strings.Join(escaped, ",")
}
