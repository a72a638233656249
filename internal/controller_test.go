package internal

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestController(t *testing.T, u upstream, opts BatchOptions) *Controller {
	t.Helper()

	cache := &LayeredCache{wrapped: []layer{newMemory(1 << 20)}}
	ctrl, err := NewController(cache, u, time.Hour, opts)
	require.NoError(t, err)

	return ctrl
}

func TestGetReviews(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("single", func(t *testing.T) {
		t.Parallel()

		c := gomock.NewController(t)
		u := NewMockupstream(c)

		u.EXPECT().LookupProduct(gomock.Any(), externalIDField, "123").Return(111, nil)
		u.EXPECT().ListReviews(gomock.Any(), int64(111), 20, 1).Return([]ReviewRecord{ReviewRecord(`{"id":1}`)}, nil)

		ctrl := newTestController(t, u, BatchOptions{})

		out, err := ctrl.GetReviews(ctx, IdentifierSet{"123"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"shopifyId":"123","judgeMeProductId":111,"reviews":[{"id":1}]}`, string(out))
	})

	t.Run("unresolved single", func(t *testing.T) {
		t.Parallel()

		c := gomock.NewController(t)
		u := NewMockupstream(c)

		u.EXPECT().LookupProduct(gomock.Any(), gomock.Any(), "123").Return(0, errNotFound).Times(2)

		ctrl := newTestController(t, u, BatchOptions{})

		out, err := ctrl.GetReviews(ctx, IdentifierSet{"123"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"shopifyId":"123","reviews":[]}`, string(out))
	})

	t.Run("batch", func(t *testing.T) {
		t.Parallel()

		c := gomock.NewController(t)
		u := NewMockupstream(c)

		u.EXPECT().LookupProduct(gomock.Any(), externalIDField, "A").Return(111, nil)
		u.EXPECT().ListReviews(gomock.Any(), int64(111), 20, 1).Return([]ReviewRecord{ReviewRecord(`{"id":1}`), ReviewRecord(`{"id":2}`)}, nil)
		u.EXPECT().LookupProduct(gomock.Any(), externalIDField, "B").Return(0, errNotFound)
		u.EXPECT().LookupProduct(gomock.Any(), handleField, "B").Return(0, statusErr(500))

		ctrl := newTestController(t, u, BatchOptions{PreserveOrder: true})

		out, err := ctrl.GetReviews(ctx, IdentifierSet{"A", "B"})
		require.NoError(t, err)

		var resp struct {
			Count   int               `json:"count"`
			Results []json.RawMessage `json:"results"`
		}
		require.NoError(t, json.Unmarshal(out, &resp))
		assert.Equal(t, 2, resp.Count)
		require.Len(t, resp.Results, 2)
		assert.JSONEq(t, `{"shopifyId":"A","judgeMeProductId":111,"reviews":[{"id":1},{"id":2}]}`, string(resp.Results[0]))

		var failed map[string]any
		require.NoError(t, json.Unmarshal(resp.Results[1], &failed))
		assert.Equal(t, "B", failed["shopifyId"])
		assert.NotEmpty(t, failed["error"])
		assert.NotContains(t, failed, "reviews")
		assert.NotContains(t, failed, "judgeMeProductId")
	})

	t.Run("cached regardless of order", func(t *testing.T) {
		t.Parallel()

		c := gomock.NewController(t)
		u := NewMockupstream(c)

		// Each identifier is only ever looked up once.
		u.EXPECT().LookupProduct(gomock.Any(), gomock.Any(), "A").Return(0, errNotFound).Times(2)
		u.EXPECT().LookupProduct(gomock.Any(), gomock.Any(), "B").Return(0, errNotFound).Times(2)

		ctrl := newTestController(t, u, BatchOptions{})

		first, err := ctrl.GetReviews(ctx, IdentifierSet{"A", "B"})
		require.NoError(t, err)

		second, err := ctrl.GetReviews(ctx, IdentifierSet{"B", "A"})
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("comma in an identifier isn't a batch", func(t *testing.T) {
		t.Parallel()

		c := gomock.NewController(t)
		u := NewMockupstream(c)

		u.EXPECT().LookupProduct(gomock.Any(), gomock.Any(), gomock.Any()).Return(0, errNotFound).AnyTimes()

		ctrl := newTestController(t, u, BatchOptions{})

		single, err := ctrl.GetReviews(ctx, IdentifierSet{"a,b"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"shopifyId":"a,b","reviews":[]}`, string(single))

		batch, err := ctrl.GetReviews(ctx, IdentifierSet{"a", "b"})
		require.NoError(t, err)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(batch, &resp))
		assert.EqualValues(t, 2, resp["count"])
	})

	t.Run("remaining ttl", func(t *testing.T) {
		t.Parallel()

		c := gomock.NewController(t)
		u := NewMockupstream(c)

		u.EXPECT().LookupProduct(gomock.Any(), gomock.Any(), "A").Return(0, errNotFound).Times(2)

		clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		m := newMemory(1 << 20)
		m.now = clock.now
		ctrl, err := NewController(&LayeredCache{wrapped: []layer{m}}, u, time.Hour, BatchOptions{})
		require.NoError(t, err)

		_, ttl, err := ctrl.GetReviewsWithTTL(ctx, IdentifierSet{"A"})
		require.NoError(t, err)
		assert.Equal(t, time.Hour, ttl)

		clock.advance(45 * time.Minute)

		_, ttl, err = ctrl.GetReviewsWithTTL(ctx, IdentifierSet{"A"})
		require.NoError(t, err)
		assert.Equal(t, 15*time.Minute, ttl)
	})

	t.Run("expire", func(t *testing.T) {
		t.Parallel()

		c := gomock.NewController(t)
		u := NewMockupstream(c)

		u.EXPECT().LookupProduct(gomock.Any(), gomock.Any(), "A").Return(0, errNotFound).Times(4)

		ctrl := newTestController(t, u, BatchOptions{})

		_, err := ctrl.GetReviews(ctx, IdentifierSet{"A"})
		require.NoError(t, err)

		require.NoError(t, ctrl.Expire(ctx, IdentifierSet{"A"}))

		_, err = ctrl.GetReviews(ctx, IdentifierSet{"A"})
		require.NoError(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		c := gomock.NewController(t)
		u := NewMockupstream(c)

		ctrl := newTestController(t, u, BatchOptions{})

		_, err := ctrl.GetReviews(ctx, IdentifierSet{})
		assert.ErrorIs(t, err, errMissingIDs)
		assert.Equal(t, 400, statusOf(err))
	})

	t.Run("coalesced", func(t *testing.T) {
		t.Parallel()

		c := gomock.NewController(t)
		u := NewMockupstream(c)

		release := make(chan struct{})
		u.EXPECT().LookupProduct(gomock.Any(), externalIDField, "A").DoAndReturn(
			func(context.Context, lookupField, string) (int64, error) {
				<-release
				return 111, nil
			})
		u.EXPECT().ListReviews(gomock.Any(), int64(111), 20, 1).Return([]ReviewRecord{}, nil)

		ctrl := newTestController(t, u, BatchOptions{})

		var wg sync.WaitGroup
		outs := make([][]byte, 10)
		for i := range outs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out, err := ctrl.GetReviews(ctx, IdentifierSet{"A"})
				assert.NoError(t, err)
				outs[i] = out
			}()
		}

		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		for _, out := range outs {
			assert.JSONEq(t, `{"shopifyId":"A","judgeMeProductId":111,"reviews":[]}`, string(out))
		}
	})

	t.Run("caller cancellation", func(t *testing.T) {
		t.Parallel()

		c := gomock.NewController(t)
		u := NewMockupstream(c)

		u.EXPECT().LookupProduct(gomock.Any(), externalIDField, "A").DoAndReturn(
			func(ctx context.Context, _ lookupField, _ string) (int64, error) {
				// The caller's cancellation doesn't reach us.
				return 111, ctx.Err()
			})
		u.EXPECT().ListReviews(gomock.Any(), int64(111), 20, 1).Return([]ReviewRecord{}, nil)

		ctrl := newTestController(t, u, BatchOptions{})

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		out, err := ctrl.GetReviews(cctx, IdentifierSet{"A"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"shopifyId":"A","judgeMeProductId":111,"reviews":[]}`, string(out))
	})
}

func TestNewController(t *testing.T) {
	t.Parallel()

	c := gomock.NewController(t)
	u := NewMockupstream(c)
	cache := &LayeredCache{wrapped: []layer{newMemory(1 << 20)}}

	_, err := NewController(nil, u, time.Hour, BatchOptions{})
	assert.Error(t, err)

	_, err = NewController(cache, nil, time.Hour, BatchOptions{})
	assert.Error(t, err)

	ctrl, err := NewController(cache, u, 0, BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, ctrl.TTL())
}
