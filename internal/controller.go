package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap/buffer"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long an aggregated response is served from cache.
const DefaultTTL = 10 * time.Minute

// _buffers reduces GC.
var _buffers = buffer.NewPool()

// Controller answers review requests from the cache when it can and
// otherwise fans out to Judge.me, caching whatever it assembles.
//
// Misses for the same identifier set are coalesced inside a singleflight
// group, so a burst of identical requests costs one upstream round-trip.
type Controller struct {
	cache cache[[]byte]
	batch *coordinator
	group singleflight.Group // Coalesce lookups for the same key.
	ttl   time.Duration
}

// NewController creates a new controller. A non-positive ttl uses DefaultTTL.
func NewController(cache cache[[]byte], u upstream, ttl time.Duration, opts BatchOptions) (*Controller, error) {
	if cache == nil {
		return nil, fmt.Errorf("a cache is required")
	}
	if u == nil {
		return nil, fmt.Errorf("an upstream is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Controller{
		cache: cache,
		batch: newCoordinator(u, opts),
		ttl:   ttl,
	}, nil
}

// TTL returns how long responses are cached for.
func (c *Controller) TTL() time.Duration {
	return c.ttl
}

// GetReviews returns the serialized response for a set of identifiers. One
// identifier yields a single item; more yield a {count, results} envelope.
func (c *Controller) GetReviews(ctx context.Context, ids IdentifierSet) ([]byte, error) {
	out, _, err := c.GetReviewsWithTTL(ctx, ids)
	return out, err
}

// cachedResponse is a response along with how much longer it stays cached.
type cachedResponse struct {
	body []byte
	ttl  time.Duration
}

// GetReviewsWithTTL is like GetReviews but also returns how much longer the
// response will be served from cache.
func (c *Controller) GetReviewsWithTTL(ctx context.Context, ids IdentifierSet) ([]byte, time.Duration, error) {
	if len(ids) == 0 {
		return nil, 0, errMissingIDs
	}

	key := ReviewsKey(ids)
	if cached, ttl, ok := c.cache.GetWithTTL(ctx, key); ok {
		Log(ctx).Debug("cache hit", "key", key, "ttl", ttl)
		noteRequest(ctx, len(ids), true)
		return cached, ttl, nil
	}
	noteRequest(ctx, len(ids), false)

	out, err, shared := c.group.Do(key, func() (any, error) {
		// Don't let one caller going away fail everyone waiting on us. The
		// batch has its own deadline.
		return c.getReviews(context.WithoutCancel(ctx), key, ids)
	})
	if shared {
		Log(ctx).Debug("coalesced request", "key", key)
	}
	resp, _ := out.(cachedResponse)
	return resp.body, resp.ttl, err
}

func (c *Controller) getReviews(ctx context.Context, key string, ids IdentifierSet) (cachedResponse, error) {
	// Someone may have filled the cache while we waited for the group.
	if cached, ttl, ok := c.cache.GetWithTTL(ctx, key); ok {
		return cachedResponse{body: cached, ttl: ttl}, nil
	}

	// Work on the sorted set so the cached response doesn't depend on which
	// ordering of ids happened to fill it.
	results := c.batch.ResolveAndFetchAll(ctx, ids.Sorted())

	var resp any
	if len(ids) == 1 {
		resp = results[0]
	} else {
		resp = batchResource{Count: len(results), Results: results}
	}

	buf := _buffers.Get()
	defer buf.Free()

	if err := json.NewEncoder(buf).Encode(resp); err != nil {
		return cachedResponse{}, fmt.Errorf("encoding response: %w", err)
	}

	// We can't persist the shared buffer in the cache so clone it.
	out := bytes.Clone(buf.Bytes())

	c.cache.Set(ctx, key, out, c.ttl)
	Log(ctx).Debug("cached", "key", key, "size", len(out))

	return cachedResponse{body: out, ttl: c.ttl}, nil
}

// Expire drops the cached response for a set of identifiers.
func (c *Controller) Expire(ctx context.Context, ids IdentifierSet) error {
	return c.cache.Expire(ctx, ReviewsKey(ids))
}
