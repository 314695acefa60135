package hotcache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	// Sweeper disabled: tests drive Sweep directly.
	opts = append([]Option{WithSweepInterval(0)}, opts...)
	c := New(opts...)
	t.Cleanup(c.Destroy)
	return c
}

func TestCache_GetSet(t *testing.T) {
	c := newTestCache(t)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", 42)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	// Overwrite replaces the value.
	c.Set("k", 43)
	v, _ = c.Get("k")
	assert.Equal(t, 43, v)
}

func TestCache_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, WithClock(clock.Now))

	c.SetTTL("k", "v", time.Minute)
	_, ok := c.Get("k")
	require.True(t, ok)

	clock.Advance(61 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "expired entry must read as a miss")

	// Lazy expiry evicted the entry and counted the eviction.
	st := c.Stats()
	assert.Equal(t, 0, st.Size)
	assert.Equal(t, int64(1), st.Evictions)
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, WithClock(clock.Now))

	c.SetTTL("k", "v", 0)
	clock.Advance(1000 * time.Hour)
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestCache_CapacityEvictsOldest(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, WithClock(clock.Now), WithCapacity(3))

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		clock.Advance(time.Second)
	}
	c.Set("k3", 3)

	_, ok := c.Get("k0")
	assert.False(t, ok, "oldest entry should be evicted")
	for i := 1; i <= 3; i++ {
		_, ok := c.Get(fmt.Sprintf("k%d", i))
		assert.True(t, ok, "k%d should survive", i)
	}
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c := newTestCache(t, WithCapacity(2))
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3)

	_, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Stats().Size)
}

func TestCache_InvalidateGlob(t *testing.T) {
	c := newTestCache(t)
	c.Set("/proj/a\x1findex", 1)
	c.Set("/proj/a\x1fq\x1fsymbols\x1fRun", 2)
	c.Set("/proj/ab\x1findex", 3)

	removed := c.Invalidate("/proj/a\x1f*")
	assert.Equal(t, 2, removed)

	_, ok := c.Get("/proj/ab\x1findex")
	assert.True(t, ok, "sibling root must be untouched")
}

func TestCache_InvalidateCrossesSeparators(t *testing.T) {
	c := newTestCache(t)
	c.Set("/proj\x1fq\x1fdeps\x1finternal/a", 1)

	// '*' must match through '/' in key suffixes.
	assert.Equal(t, 1, c.Invalidate("/proj\x1f*"))
}

func TestCache_InvalidateQuestionMark(t *testing.T) {
	c := newTestCache(t)
	c.Set("k1", 1)
	c.Set("k2", 2)
	c.Set("k10", 3)

	assert.Equal(t, 2, c.Invalidate("k?"))
	_, ok := c.Get("k10")
	assert.True(t, ok)
}

func TestCache_InvalidateNoMatch(t *testing.T) {
	c := newTestCache(t)
	c.Set("k", 1)
	assert.Equal(t, 0, c.Invalidate("other*"))
}

func TestCache_ClearResetsCounters(t *testing.T) {
	c := newTestCache(t)
	c.Set("k", 1)
	c.Get("k")
	c.Get("missing")

	c.Clear()
	st := c.Stats()
	assert.Equal(t, 0, st.Size)
	assert.Zero(t, st.Hits)
	assert.Zero(t, st.Misses)
	assert.Zero(t, st.Evictions)
}

func TestCache_Stats(t *testing.T) {
	c := newTestCache(t)
	c.Set("k", 1)
	c.Get("k")
	c.Get("k")
	c.Get("missing")

	st := c.Stats()
	assert.Equal(t, 1, st.Size)
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.InDelta(t, 2.0/3.0, st.HitRate, 1e-9)
	assert.InDelta(t, 1.0/3.0, st.MissRate, 1e-9)
}

func TestCache_SweepExpired(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, WithClock(clock.Now))

	c.SetTTL("short", 1, time.Minute)
	c.SetTTL("long", 2, time.Hour)
	clock.Advance(2 * time.Minute)

	expired, trimmed := c.Sweep()
	assert.Equal(t, 1, expired)
	assert.Zero(t, trimmed)
	assert.Equal(t, 1, c.Stats().Size)
}

func TestCache_SweepTrimsToHighWater(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, WithClock(clock.Now), WithCapacity(10), WithHighWater(0.5))

	for i := 0; i < 9; i++ {
		c.SetTTL(fmt.Sprintf("k%d", i), i, time.Hour)
		clock.Advance(time.Second)
	}

	expired, trimmed := c.Sweep()
	assert.Zero(t, expired)
	assert.Equal(t, 4, trimmed, "9 live entries trimmed down to the 0.5*10 mark")
	assert.Equal(t, 5, c.Stats().Size)

	// The oldest entries went first.
	for i := 0; i < 4; i++ {
		_, ok := c.Get(fmt.Sprintf("k%d", i))
		assert.False(t, ok)
	}
}

func TestCache_DestroyIdempotent(t *testing.T) {
	c := New(WithSweepInterval(time.Millisecond))
	c.Set("k", 1)
	c.Destroy()
	c.Destroy()
	assert.Equal(t, 0, c.Stats().Size)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := newTestCache(t, WithCapacity(64))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%32)
				c.Set(key, g)
				c.Get(key)
				if i%50 == 0 {
					c.Invalidate("k1*")
					c.Sweep()
				}
			}
		}(g)
	}
	wg.Wait()
}
