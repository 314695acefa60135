// Package hotcache implements the in-process tier of the index cache: a
// bounded map with per-entry TTLs, glob invalidation, and a periodic sweep.
// It is a performance layer only: no operation can fail, and losing an
// entry is always safe.
package hotcache

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Default configuration values.
const (
	DefaultCapacity      = 256
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
	DefaultHighWater     = 0.8
)

// Record wraps a cached value with its insertion time and time-to-live.
// A Record is expired once storedAt + ttl is in the past; ttl <= 0 means the
// entry never expires on its own.
type Record struct {
	Value    any
	StoredAt time.Time
	TTL      time.Duration
}

func (r Record) expired(now time.Time) bool {
	return r.TTL > 0 && now.Sub(r.StoredAt) > r.TTL
}

// Stats is a snapshot of cache counters. Hit and miss counters are
// cumulative since construction or the last Clear.
type Stats struct {
	Size      int
	Hits      int64
	Misses    int64
	HitRate   float64
	MissRate  float64
	Evictions int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity bounds the number of entries. At capacity, Set evicts the
// single oldest entry by insertion time first.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithDefaultTTL sets the TTL applied by Set.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.defaultTTL = ttl }
}

// WithSweepInterval sets the period of the background sweep. Zero or
// negative disables the sweeper; Sweep can still be called directly.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) { c.sweepInterval = d }
}

// WithHighWater sets the occupancy fraction the sweep trims down to when the
// cache is over it. Values outside (0, 1] are ignored.
func WithHighWater(f float64) Option {
	return func(c *Cache) {
		if f > 0 && f <= 1 {
			c.highWater = f
		}
	}
}

// WithClock overrides the time source. Tests use this to expire entries
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used by the background sweep.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// Cache is the hot tier. All methods are safe for concurrent use. The mutex
// is scoped to individual operations and is never held across I/O.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Record

	capacity      int
	defaultTTL    time.Duration
	sweepInterval time.Duration
	highWater     float64
	now           func() time.Time
	logger        *slog.Logger

	hits      int64
	misses    int64
	evictions int64

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Cache and, unless the sweep interval is disabled, starts its
// background sweeper. Call Destroy to stop it.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:       make(map[string]Record),
		capacity:      DefaultCapacity,
		defaultTTL:    DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		highWater:     DefaultHighWater,
		now:           time.Now,
		logger:        slog.Default(),
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sweepInterval > 0 {
		go c.sweepLoop()
	}
	return c
}

// Get returns the value stored under key if present and unexpired. A
// found-but-expired entry is evicted on the spot and reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if rec.expired(c.now()) {
		delete(c.entries, key)
		c.evictions++
		c.misses++
		return nil, false
	}
	c.hits++
	return rec.Value, true
}

// Set inserts or overwrites key with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL inserts or overwrites key with an explicit TTL. If the cache is at
// capacity and key is new, the oldest entry by insertion time is evicted
// first. Reads do not refresh insertion age, so this approximates LRU with
// O(1) bookkeeping rather than implementing it exactly.
func (c *Cache) SetTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[key] = Record{Value: value, StoredAt: c.now(), TTL: ttl}
}

// evictOldestLocked removes the entry with the earliest StoredAt.
// Caller holds c.mu.
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, rec := range c.entries {
		if first || rec.StoredAt.Before(oldestAt) {
			first = false
			oldestKey = key
			oldestAt = rec.StoredAt
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

// Invalidate removes every key matching the glob pattern, where '*' matches
// any run of characters and '?' matches a single character. Unlike path
// globs, '*' crosses path separators: keys embed absolute project roots and
// a root-prefix pattern must cover everything under it. Returns the number
// of entries removed. An unparseable pattern removes nothing.
func (c *Cache) Invalidate(pattern string) int {
	re, err := compileGlob(pattern)
	if err != nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key := range c.entries {
		if re.MatchString(key) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// compileGlob translates a '*'/'?' glob into an anchored regexp.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?s)\A`)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`\z`)
	return regexp.Compile(b.String())
}

// Clear removes everything and resets the hit, miss, and eviction counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Record)
	c.hits = 0
	c.misses = 0
	c.evictions = 0
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:      len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
		s.MissRate = float64(c.misses) / float64(total)
	}
	return s
}

// Destroy stops the background sweeper and drops all entries. Safe to call
// multiple times.
func (c *Cache) Destroy() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.Clear()
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			expired, trimmed := c.Sweep()
			if expired+trimmed > 0 {
				c.logger.Debug("hot cache sweep",
					"expired", expired,
					"trimmed", trimmed,
				)
			}
		}
	}
}

// Sweep evicts every expired entry and, if occupancy still exceeds the
// high-water mark, evicts the oldest remaining entries down to it. The lock
// is held for a snapshot and again for the deletes, never for the full scan
// in between, so concurrent Get/Set calls are not blocked by the sort.
func (c *Cache) Sweep() (expired, trimmed int) {
	type aged struct {
		key      string
		storedAt time.Time
	}

	// Snapshot under the lock.
	c.mu.Lock()
	now := c.now()
	var dead []string
	var live []aged
	for key, rec := range c.entries {
		if rec.expired(now) {
			dead = append(dead, key)
		} else {
			live = append(live, aged{key, rec.StoredAt})
		}
	}
	c.mu.Unlock()

	// Pick trim victims outside the lock.
	var victims []string
	mark := int(float64(c.capacity) * c.highWater)
	if over := len(live) - mark; over > 0 {
		for i := 0; i < over; i++ {
			oldest := 0
			for j := 1; j < len(live); j++ {
				if live[j].storedAt.Before(live[oldest].storedAt) {
					oldest = j
				}
			}
			victims = append(victims, live[oldest].key)
			live[oldest] = live[len(live)-1]
			live = live[:len(live)-1]
		}
	}

	// Delete under the lock, rechecking against concurrent overwrites: an
	// entry refreshed since the snapshot is left alone.
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range dead {
		if rec, ok := c.entries[key]; ok && rec.expired(now) {
			delete(c.entries, key)
			c.evictions++
			expired++
		}
	}
	for _, key := range victims {
		if rec, ok := c.entries[key]; ok && !rec.StoredAt.After(now) {
			delete(c.entries, key)
			c.evictions++
			trimmed++
		}
	}
	return expired, trimmed
}
