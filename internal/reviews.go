package internal

import (
	"context"
	"fmt"
)

// _defaultPageSize matches what the storefront widget asks for.
const _defaultPageSize = 20

// reviewFetcher loads the first page of reviews for a product. We
// deliberately don't paginate.
type reviewFetcher struct {
	upstream upstream
	pageSize int
}

func newReviewFetcher(u upstream, pageSize int) *reviewFetcher {
	if pageSize <= 0 {
		pageSize = _defaultPageSize
	}
	return &reviewFetcher{upstream: u, pageSize: pageSize}
}

// FetchReviews returns up to pageSize reviews. An empty slice is a valid
// result.
func (f *reviewFetcher) FetchReviews(ctx context.Context, providerID int64) ([]ReviewRecord, error) {
	reviews, err := f.upstream.ListReviews(ctx, providerID, f.pageSize, 1)
	if err != nil {
		return nil, fmt.Errorf("fetching reviews for product %d: %w", providerID, err)
	}
	Log(ctx).Debug("fetched reviews", "judgeMeProductId", providerID, "count", len(reviews))
	return reviews, nil
}
