package lattice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jward/lattice/internal/coldstore"
	"github.com/jward/lattice/internal/hotcache"
	"github.com/jward/lattice/internal/watch"
	"golang.org/x/sync/singleflight"
)

// Analyzer is the contract the coordinator consumes: given a project root,
// produce its catalog. The cache never looks inside the analysis; it only
// stores and serves the result. An analyzer must honor context cancellation
// so a caller-supplied timeout can bound an indexing pass.
type Analyzer interface {
	ProduceIndex(ctx context.Context, projectRoot string) (*ProjectIndex, error)
}

// ChangeKind classifies an external file-change signal.
type ChangeKind = watch.Kind

// Re-exported change kinds.
const (
	Created  = watch.Created
	Modified = watch.Modified
	Deleted  = watch.Deleted
)

// ChangeEvent is one external file-change signal.
type ChangeEvent = watch.Event

// CacheStats is a snapshot of the hot tier's counters.
type CacheStats = hotcache.Stats

// Strategy selects the cold store serialization.
type Strategy string

const (
	// StrategyJSON persists the catalog as one whole-object envelope file.
	StrategyJSON Strategy = "json"
	// StrategySQLite persists the catalog as rows in a SQLite database.
	StrategySQLite Strategy = "sqlite"
)

// rootState is the per-root lifecycle position.
type rootState int

const (
	stateUnindexed rootState = iota
	stateIndexing
	stateValid
	stateStale
)

func (s rootState) String() string {
	switch s {
	case stateIndexing:
		return "indexing"
	case stateValid:
		return "valid"
	case stateStale:
		return "stale"
	default:
		return "unindexed"
	}
}

// keySep separates the project root from the entry kind in hot-tier keys.
// A control character keeps symbol and module names out of the pattern
// namespace, so invalidating root+"*" can never cross into another root.
const keySep = "\x1f"

func indexKey(root string) string { return root + keySep + "index" }

func queryKey(root string, parts ...string) string {
	return root + keySep + "q" + keySep + strings.Join(parts, keySep)
}

func rootPattern(root string) string { return root + keySep + "*" }

// Option configures a Coordinator.
type Option func(*settings)

type settings struct {
	strategy      Strategy
	contentHashes bool
	excludes      []string
	capacity      int
	ttl           time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
}

// WithStrategy selects the cold store serialization. Default is JSON.
func WithStrategy(s Strategy) Option {
	return func(c *settings) { c.strategy = s }
}

// WithContentHashes fingerprints files by content hash instead of
// modification timestamp.
func WithContentHashes() Option {
	return func(c *settings) { c.contentHashes = true }
}

// WithExcludes adds glob patterns skipped by fingerprinting. They should
// match the analyzer's own exclusions.
func WithExcludes(patterns ...string) Option {
	return func(c *settings) { c.excludes = append(c.excludes, patterns...) }
}

// WithHotCapacity bounds the hot tier's entry count.
func WithHotCapacity(n int) Option {
	return func(c *settings) { c.capacity = n }
}

// WithHotTTL sets the hot tier's default time-to-live.
func WithHotTTL(ttl time.Duration) Option {
	return func(c *settings) { c.ttl = ttl }
}

// WithSweepInterval sets the hot tier's background sweep period.
func WithSweepInterval(d time.Duration) Option {
	return func(c *settings) { c.sweepInterval = d }
}

// WithLogger sets the logger shared by both tiers and the coordinator.
func WithLogger(logger *slog.Logger) Option {
	return func(c *settings) { c.logger = logger }
}

// Coordinator is the single entry point for index queries and file-change
// signals. It owns the policy of when to trust the hot tier, when to fall
// back to the cold tier, and when to demand a fresh analysis. Safe for
// concurrent use.
type Coordinator struct {
	analyzer Analyzer
	hot      *hotcache.Cache
	cold     coldstore.Store
	group    singleflight.Group
	logger   *slog.Logger

	mu     sync.Mutex
	states map[string]rootState
}

// New creates a Coordinator around the given analyzer.
func New(analyzer Analyzer, opts ...Option) *Coordinator {
	cfg := settings{
		strategy:      StrategyJSON,
		capacity:      hotcache.DefaultCapacity,
		ttl:           hotcache.DefaultTTL,
		sweepInterval: hotcache.DefaultSweepInterval,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var coldOpts []coldstore.Option
	if cfg.contentHashes {
		coldOpts = append(coldOpts, coldstore.WithContentHashes())
	}
	if len(cfg.excludes) > 0 {
		coldOpts = append(coldOpts, coldstore.WithExcludes(cfg.excludes...))
	}
	coldOpts = append(coldOpts, coldstore.WithLogger(cfg.logger))

	var cold coldstore.Store
	if cfg.strategy == StrategySQLite {
		cold = coldstore.NewSQLiteStore(coldOpts...)
	} else {
		cold = coldstore.NewJSONStore(coldOpts...)
	}

	return &Coordinator{
		analyzer: analyzer,
		hot: hotcache.New(
			hotcache.WithCapacity(cfg.capacity),
			hotcache.WithDefaultTTL(cfg.ttl),
			hotcache.WithSweepInterval(cfg.sweepInterval),
			hotcache.WithLogger(cfg.logger),
		),
		cold:   cold,
		logger: cfg.logger,
		states: make(map[string]rootState),
	}
}

// GetIndex returns a valid ProjectIndex for the root: from the hot tier if
// present, from the cold tier if its fingerprint still matches, otherwise
// by invoking the analyzer. Concurrent calls for the same root share one
// build. A context deadline bounds the analysis; on timeout the in-flight
// build fails and the root is retryable immediately.
func (c *Coordinator) GetIndex(ctx context.Context, projectRoot string) (*ProjectIndex, error) {
	return c.getIndex(ctx, projectRoot, false)
}

// Refresh bypasses both tiers, forces a fresh analysis, and repopulates
// them with the result.
func (c *Coordinator) Refresh(ctx context.Context, projectRoot string) (*ProjectIndex, error) {
	return c.getIndex(ctx, projectRoot, true)
}

func (c *Coordinator) getIndex(ctx context.Context, projectRoot string, force bool) (*ProjectIndex, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("lattice: resolve root %s: %w", projectRoot, err)
	}

	if !force {
		if v, ok := c.hot.Get(indexKey(root)); ok {
			return v.(*ProjectIndex), nil
		}
	}

	v, err, _ := c.group.Do(root, func() (any, error) {
		// A concurrent flight may have landed between the miss above and
		// acquiring this flight.
		if !force {
			if v, ok := c.hot.Get(indexKey(root)); ok {
				return v, nil
			}
		}

		c.setState(root, stateIndexing)
		idx, err := c.build(ctx, root, force)
		if err != nil {
			// Never leave a root parked in Indexing: the next query
			// starts a fresh flight.
			c.setState(root, stateUnindexed)
			return nil, err
		}
		c.hot.Set(indexKey(root), idx)
		c.setState(root, stateValid)
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ProjectIndex), nil
}

// build resolves a hot-tier miss: cold tier first, analyzer as the last
// resort. Cold-tier faults degrade to a rebuild; only analyzer failure
// surfaces.
func (c *Coordinator) build(ctx context.Context, root string, force bool) (*ProjectIndex, error) {
	if !force && c.cold.IsValid(ctx, root) {
		if idx := c.loadCold(ctx, root); idx != nil {
			c.logger.Debug("index served from cold tier", "root", root)
			return idx, nil
		}
	}

	idx, err := c.analyzer.ProduceIndex(ctx, root)
	if err != nil {
		return nil, &AnalysisError{Root: root, Err: err}
	}
	if err := c.cold.Save(ctx, idx); err != nil {
		// Persistence failure costs a future rebuild, not this query.
		c.logger.Warn("cold tier save failed", "root", root, "error", err)
	}
	return idx, nil
}

// loadCold loads from the cold tier, retrying once: a transiently locked or
// unavailable file deserves a second read before being treated as a miss.
func (c *Coordinator) loadCold(ctx context.Context, root string) *ProjectIndex {
	idx, err := c.cold.Load(ctx, root)
	if err != nil {
		c.logger.Debug("cold load failed, retrying once", "root", root, "error", err)
		idx, err = c.cold.Load(ctx, root)
		if err != nil {
			return nil
		}
	}
	return idx
}

// ObserveChange feeds one external file-change signal into the coordinator.
// Every tracked root the path falls under moves to Stale and loses its hot
// entries. The cold copy stays on disk: its fingerprint no longer matches,
// so the next access judges it invalid on its own. Nothing is rebuilt here:
// re-indexing is deferred to the next query, so a burst of changes does not
// trigger a rebuild storm.
func (c *Coordinator) ObserveChange(kind ChangeKind, path string) {
	var affected []string
	c.mu.Lock()
	for root, st := range c.states {
		if pathUnder(root, path) {
			if st == stateValid {
				c.states[root] = stateStale
			}
			affected = append(affected, root)
		}
	}
	c.mu.Unlock()

	for _, root := range affected {
		n := c.hot.Invalidate(rootPattern(root))
		c.logger.Debug("root marked stale",
			"root", root, "path", path, "kind", kind, "dropped", n)
	}
}

// ObserveBatch applies a debounced batch of change events.
func (c *Coordinator) ObserveBatch(events []ChangeEvent) {
	for _, ev := range events {
		c.ObserveChange(ev.Kind, ev.Path)
	}
}

// ClearCache drops both tiers for a root: hot entries immediately, the cold
// directory from disk. The root returns to Unindexed.
func (c *Coordinator) ClearCache(projectRoot string) error {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return fmt.Errorf("lattice: resolve root %s: %w", projectRoot, err)
	}
	c.hot.Invalidate(rootPattern(root))
	c.mu.Lock()
	delete(c.states, root)
	c.mu.Unlock()
	return c.cold.Clear(root)
}

// Valid reports whether a persisted cold-tier copy exists for the root and
// still matches the current file state.
func (c *Coordinator) Valid(ctx context.Context, projectRoot string) bool {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return false
	}
	return c.cold.IsValid(ctx, root)
}

// Stats returns the hot tier's counters.
func (c *Coordinator) Stats() CacheStats {
	return c.hot.Stats()
}

// Close stops the hot tier's background sweep and drops its entries. Safe
// to call multiple times.
func (c *Coordinator) Close() error {
	c.hot.Destroy()
	return nil
}

func (c *Coordinator) setState(root string, st rootState) {
	c.mu.Lock()
	prev := c.states[root]
	c.states[root] = st
	c.mu.Unlock()
	if st != prev {
		c.logger.Debug("root state change", "root", root, "from", prev, "to", st)
	}
}

// pathUnder reports whether path is root itself or inside it.
func pathUnder(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(os.PathSeparator))
}
