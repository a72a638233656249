package internal

import (
	"context"
	"errors"
	"fmt"
)

// resolver maps external identifiers to Judge.me product IDs.
//
// Lookups are attempted by external ID first and then by handle. Any failure
// of the first lookup just moves us on to the next, but a failure of the last
// lookup is returned to the caller. Otherwise we'd report "no such product"
// when really we couldn't tell.
type resolver struct {
	upstream upstream
}

func newResolver(u upstream) *resolver {
	return &resolver{upstream: u}
}

// Resolve returns the Judge.me product for an external identifier. A product
// Judge.me doesn't know about is reported as Unresolved, not as an error. Only
// a successful response without a product counts as unknown; an HTTP 404 on
// the handle lookup is a failed request like any other.
func (r *resolver) Resolve(ctx context.Context, externalID string) (ResolvedProduct, error) {
	rp := ResolvedProduct{ExternalID: externalID, Method: Unresolved}

	id, err := r.upstream.LookupProduct(ctx, externalIDField, externalID)
	if err == nil {
		Log(ctx).Debug("resolved by external_id", "shopifyId", externalID, "judgeMeProductId", id)
		rp.ProviderID, rp.Method = id, ByExternalID
		_resolutions.WithLabelValues(string(rp.Method)).Inc()
		return rp, nil
	}
	if !errors.Is(err, errNotFound) {
		Log(ctx).Debug("external_id lookup failed, trying handle", "shopifyId", externalID, "err", err)
	}

	id, err = r.upstream.LookupProduct(ctx, handleField, externalID)
	switch {
	case err == nil:
		Log(ctx).Debug("resolved by handle", "shopifyId", externalID, "judgeMeProductId", id)
		rp.ProviderID, rp.Method = id, ByHandle
	case errors.Is(err, errNotFound):
		Log(ctx).Info("no Judge.me product found", "shopifyId", externalID)
	default:
		_resolutions.WithLabelValues("error").Inc()
		return rp, fmt.Errorf("resolving %q: %w", externalID, err)
	}

	_resolutions.WithLabelValues(string(rp.Method)).Inc()
	return rp, nil
}
