package internal

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// memoryEntry is what we actually keep in ristretto. Expiry is computed
// against storedAt on read rather than delegated to ristretto, so stale
// entries are evicted lazily by the read which notices them.
type memoryEntry struct {
	val      []byte
	storedAt time.Time
	ttl      time.Duration
}

// memoryLayer is an in-process cache layer. Capacity is bounded by
// ristretto's cost budget, where the cost of an entry is its size in bytes.
type memoryLayer struct {
	r   *ristretto.Cache[string, memoryEntry]
	now func() time.Time
}

var _ layer = (*memoryLayer)(nil)

// newMemory creates an in-memory layer with the given budget in bytes. A
// non-positive budget uses 75% of the Go memory limit.
func newMemory(maxCost int64) *memoryLayer {
	if maxCost <= 0 {
		maxCost = 3 * (debug.SetMemoryLimit(-1) / 4)
	}
	r, err := ristretto.NewCache(&ristretto.Config[string, memoryEntry]{
		NumCounters:        1e6, // Track LFU for up to 1M keys.
		MaxCost:            maxCost,
		BufferItems:        64, // Number of keys per Get buffer.
		IgnoreInternalCost: true,
	})
	if err != nil {
		panic(err)
	}
	return &memoryLayer{r: r, now: time.Now}
}

func (m *memoryLayer) Name() string {
	return "memory"
}

func (m *memoryLayer) GetWithTTL(_ context.Context, key string) ([]byte, time.Duration, error) {
	e, ok := m.r.Get(key)
	if !ok {
		return nil, 0, errCacheMiss
	}

	age := m.now().Sub(e.storedAt)
	if age > e.ttl {
		m.r.Del(key)
		return nil, 0, errCacheMiss
	}

	return e.val, e.ttl - age, nil
}

func (m *memoryLayer) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	e := memoryEntry{val: val, storedAt: m.now(), ttl: ttl}
	if !m.r.Set(key, e, int64(len(val))) {
		return fmt.Errorf("memory cache rejected %q", key)
	}
	// Make the write visible to the next Get.
	m.r.Wait()
	return nil
}

func (m *memoryLayer) Delete(_ context.Context, key string) error {
	m.r.Del(key)
	return nil
}

