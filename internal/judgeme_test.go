package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestJudgeMe returns a client pointed at a fake Judge.me.
func newTestJudgeMe(t *testing.T, h http.HandlerFunc) *JudgeMe {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client, err := NewUpstream(UpstreamOptions{
		BaseURL:    srv.URL,
		ShopDomain: "example.myshopify.com",
		Token:      "secret",
		UserAgent:  "rrjudge-test",
		Timeout:    time.Second,
	})
	require.NoError(t, err)

	return NewJudgeMe(client)
}

func TestLookupProduct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		j := newTestJudgeMe(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/products/-1", r.URL.Path)
			assert.Equal(t, "example.myshopify.com", r.URL.Query().Get("shop_domain"))
			assert.Equal(t, "secret", r.URL.Query().Get("api_token"))
			assert.Equal(t, "123", r.URL.Query().Get("external_id"))
			assert.Empty(t, r.URL.Query().Get("handle"))
			assert.Equal(t, "rrjudge-test", r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte(`{"product":{"id":111,"handle":"socks"}}`))
		})

		id, err := j.LookupProduct(ctx, externalIDField, "123")
		require.NoError(t, err)
		assert.Equal(t, int64(111), id)
	})

	t.Run("by handle", func(t *testing.T) {
		t.Parallel()

		j := newTestJudgeMe(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "socks", r.URL.Query().Get("handle"))
			assert.Empty(t, r.URL.Query().Get("external_id"))
			_, _ = w.Write([]byte(`{"product":{"id":222}}`))
		})

		id, err := j.LookupProduct(ctx, handleField, "socks")
		require.NoError(t, err)
		assert.Equal(t, int64(222), id)
	})

	t.Run("404", func(t *testing.T) {
		t.Parallel()

		j := newTestJudgeMe(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		_, err := j.LookupProduct(ctx, externalIDField, "123")
		assert.ErrorIs(t, err, statusErr(http.StatusNotFound))
		assert.NotErrorIs(t, err, errNotFound)
	})

	t.Run("empty product", func(t *testing.T) {
		t.Parallel()

		j := newTestJudgeMe(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"product":null}`))
		})

		_, err := j.LookupProduct(ctx, externalIDField, "123")
		assert.ErrorIs(t, err, errNotFound)
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()

		j := newTestJudgeMe(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := j.LookupProduct(ctx, externalIDField, "123")
		assert.ErrorIs(t, err, statusErr(http.StatusInternalServerError))
		assert.NotErrorIs(t, err, errNotFound)
		assert.NotContains(t, err.Error(), "secret")
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()

		j := newTestJudgeMe(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		})

		_, err := j.LookupProduct(ctx, externalIDField, "123")
		assert.ErrorIs(t, err, errMalformed)
	})
}

func TestListReviews(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("page", func(t *testing.T) {
		t.Parallel()

		j := newTestJudgeMe(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/reviews", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "111", q.Get("product_id"))
			assert.Equal(t, "20", q.Get("per_page"))
			assert.Equal(t, "1", q.Get("page"))
			assert.Equal(t, "secret", q.Get("api_token"))
			_, _ = w.Write([]byte(`{"reviews":[{"id":1,"rating":5},{"id":2,"rating":4}]}`))
		})

		reviews, err := j.ListReviews(ctx, 111, 20, 1)
		require.NoError(t, err)
		require.Len(t, reviews, 2)
		assert.JSONEq(t, `{"id":1,"rating":5}`, string(reviews[0]))
	})

	t.Run("no reviews", func(t *testing.T) {
		t.Parallel()

		j := newTestJudgeMe(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})

		reviews, err := j.ListReviews(ctx, 111, 20, 1)
		require.NoError(t, err)
		assert.NotNil(t, reviews)
		assert.Empty(t, reviews)
	})
}

func TestUpstreamTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	client, err := NewUpstream(UpstreamOptions{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = NewJudgeMe(client).LookupProduct(context.Background(), externalIDField, "123")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errNotFound)
}

func TestThrottledTransportBacksOff(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	client, err := NewUpstream(UpstreamOptions{BaseURL: srv.URL, RPS: 100})
	require.NoError(t, err)

	_, err = NewJudgeMe(client).LookupProduct(context.Background(), externalIDField, "123")
	assert.ErrorIs(t, err, statusErr(http.StatusTooManyRequests))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewUpstreamRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewUpstream(UpstreamOptions{BaseURL: "judge.me"})
	assert.Error(t, err)
}

func TestResolveAgainstJudgeMe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("404 everywhere is an error", func(t *testing.T) {
		t.Parallel()

		j := newTestJudgeMe(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		rp, err := newResolver(j).Resolve(ctx, "x")
		assert.ErrorIs(t, err, statusErr(http.StatusNotFound))
		assert.Equal(t, Unresolved, rp.Method)
	})

	t.Run("no product anywhere is unresolved", func(t *testing.T) {
		t.Parallel()

		j := newTestJudgeMe(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"product":null}`))
		})

		rp, err := newResolver(j).Resolve(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, ResolvedProduct{ExternalID: "x", Method: Unresolved}, rp)
	})

	t.Run("404 by external id then found by handle", func(t *testing.T) {
		t.Parallel()

		j := newTestJudgeMe(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("external_id") != "" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"product":{"id":222}}`))
		})

		rp, err := newResolver(j).Resolve(ctx, "socks")
		require.NoError(t, err)
		assert.Equal(t, ResolvedProduct{ExternalID: "socks", ProviderID: 222, Method: ByHandle}, rp)
	})
}
