package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BatchOptions bounds how a batch fans out to Judge.me.
type BatchOptions struct {
	// MaxInFlight caps how many identifiers are worked on concurrently. Zero
	// means no limit.
	MaxInFlight int

	// Timeout bounds the whole batch. Identifiers still in flight when it
	// elapses fail individually. Zero means no deadline.
	Timeout time.Duration

	// PreserveOrder returns results in the order identifiers were given
	// instead of the order they completed in.
	PreserveOrder bool

	// PageSize is how many reviews to request per product.
	PageSize int
}

// coordinator resolves and fetches reviews for every identifier in a set.
// Failures are recorded on the identifier's result and never affect its
// siblings.
type coordinator struct {
	resolver *resolver
	fetcher  *reviewFetcher
	opts     BatchOptions
}

func newCoordinator(u upstream, opts BatchOptions) *coordinator {
	return &coordinator{
		resolver: newResolver(u),
		fetcher:  newReviewFetcher(u, opts.PageSize),
		opts:     opts,
	}
}

// ResolveAndFetchAll returns one result per identifier once every identifier
// has either succeeded or failed.
func (c *coordinator) ResolveAndFetchAll(ctx context.Context, ids IdentifierSet) []ItemResult {
	batchID := uuid.NewString()
	start := time.Now()

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	ctx = withBatch(ctx, batchID)
	Log(ctx).Debug("starting batch", "count", len(ids))

	// Slots are indexed by input position; completed records the order
	// they finished in.
	slots := make([]ItemResult, len(ids))
	completed := make([]int, 0, len(ids))
	mu := sync.Mutex{}

	// Errors are captured per item so the group never short-circuits.
	var g errgroup.Group
	if c.opts.MaxInFlight > 0 {
		g.SetLimit(c.opts.MaxInFlight)
	}

	for idx, id := range ids {
		g.Go(func() error {
			item := c.resolveAndFetch(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			slots[idx] = item
			completed = append(completed, idx)

			return nil
		})
	}
	_ = g.Wait()

	results := slots
	if !c.opts.PreserveOrder {
		results = make([]ItemResult, 0, len(slots))
		for _, idx := range completed {
			results = append(results, slots[idx])
		}
	}

	Log(ctx).Debug("finished batch", "count", len(results), "duration", time.Since(start))

	return results
}

// resolveAndFetch produces the result for a single identifier.
func (c *coordinator) resolveAndFetch(ctx context.Context, externalID string) (item ItemResult) {
	item.ShopifyID = externalID

	defer func() {
		if r := recover(); r != nil {
			Log(ctx).Error("panic", "details", r, "shopifyId", externalID)
			item = ItemResult{ShopifyID: externalID, Error: fmt.Sprintf("internal error: %v", r)}
		}
		outcome := "ok"
		switch {
		case item.Error != "":
			outcome = "error"
		case item.JudgeMeProductID == 0:
			outcome = "unresolved"
		}
		_itemOutcomes.WithLabelValues(outcome).Inc()
	}()

	rp, err := c.resolver.Resolve(ctx, externalID)
	if err != nil {
		Log(ctx).Warn("problem resolving product", "shopifyId", externalID, "err", err)
		item.Error = err.Error()
		return item
	}
	if rp.Method == Unresolved {
		item.Reviews = []ReviewRecord{}
		return item
	}

	reviews, err := c.fetcher.FetchReviews(ctx, rp.ProviderID)
	if err != nil {
		Log(ctx).Warn("problem fetching reviews", "shopifyId", externalID, "judgeMeProductId", rp.ProviderID, "err", err)
		item.Error = err.Error()
		return item
	}

	item.JudgeMeProductID = rp.ProviderID
	item.Reviews = reviews

	return item
}
