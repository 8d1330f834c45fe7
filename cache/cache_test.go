package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/textflow/types"
)

func newTestCache(t *testing.T, cfg Config) *ResponseCache {
	t.Helper()
	c := New(cfg, zap.NewNop())
	t.Cleanup(c.Close)
	return c
}

func TestCache_PutGet(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 10, TTL: time.Minute})

	c.Put("F", "abc")

	text, ok := c.Get("F")
	require.True(t, ok)
	assert.Equal(t, "abc", text)
}

func TestCache_MissOnUnknownKey(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 10, TTL: time.Minute})

	_, ok := c.Get("unknown")
	assert.False(t, ok)
}

func TestCache_TTLExpiry(t *testing.T) {
	// Sweep disabled: expiry must be enforced lazily on Get.
	c := newTestCache(t, Config{MaxSize: 10, TTL: 20 * time.Millisecond})

	c.Put("F", "abc")

	_, ok := c.Get("F")
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	_, ok = c.Get("F")
	assert.False(t, ok, "expired entry must not be served")
	assert.Equal(t, 0, c.Len(), "lazy expiry removes the entry")
}

func TestCache_LRUEviction(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 3, TTL: time.Minute})

	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("c", "3")

	// Touch "a" so "b" becomes least recently used.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("d", "4")

	_, ok = c.Get("b")
	assert.False(t, ok, "least-recently-used entry should be evicted")

	for _, key := range []types.Fingerprint{"a", "c", "d"} {
		_, ok := c.Get(key)
		assert.True(t, ok, "entry %s should survive", key)
	}
}

func TestCache_PutUpdatesExisting(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 2, TTL: time.Minute})

	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("a", "updated")

	// "a" was refreshed by the update, so "b" is evicted first.
	c.Put("c", "3")

	text, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "updated", text)

	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCache_ActiveSweep(t *testing.T) {
	c := newTestCache(t, Config{
		MaxSize:       10,
		TTL:           10 * time.Millisecond,
		SweepInterval: 20 * time.Millisecond,
	})

	c.Put("a", "1")
	c.Put("b", "2")

	assert.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 10*time.Millisecond, "sweep should remove expired entries")
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 10, TTL: time.Minute})

	c.Put("a", "1")
	c.Put("b", "2")

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCache_Stats(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 10, TTL: time.Minute})

	c.Put("a", "1")
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	hits, misses, size := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1, size)
}

func TestCache_CapacityNeverExceeded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 16).Draw(t, "capacity")
		c := New(Config{MaxSize: capacity, TTL: time.Minute}, zap.NewNop())
		defer c.Close()

		ops := rapid.IntRange(1, 200).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			key := types.Fingerprint(fmt.Sprintf("k%d", rapid.IntRange(0, 63).Draw(t, "key")))
			if rapid.Bool().Draw(t, "isPut") {
				c.Put(key, "v")
			} else {
				c.Get(key)
			}
			if c.Len() > capacity {
				t.Fatalf("size %d exceeds capacity %d", c.Len(), capacity)
			}
		}
	})
}
