// Package coldstore persists a ProjectIndex across process restarts and
// decides, without re-analysis, whether the persisted copy still reflects
// the files on disk.
//
// Layout per project root, under <root>/.lattice/<formatVersion>/:
//
//	index-<v>.json | index-<v>.db   serialized catalog (strategy-dependent)
//	fingerprint-<v>.json            per-file markers + format version
//	project-<v>.json                descriptive metadata for introspection
//
// Two strategies satisfy the same Store contract: JSONStore serializes the
// whole catalog into one envelope file, SQLiteStore flattens each entity map
// into rows. Every fault on the read side degrades to "no cached data";
// the store is never a correctness dependency for queries.
package coldstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jward/lattice/internal/catalog"
)

// FormatVersion tags the on-disk layout. Any reader seeing a different
// version treats the cache as absent; there is no partial migration.
const FormatVersion = "v1"

const cacheDirName = ".lattice"

// CacheDir returns the versioned cache directory for a project root.
func CacheDir(root string) string {
	return filepath.Join(root, cacheDirName, FormatVersion)
}

func fingerprintPath(root string) string {
	return filepath.Join(CacheDir(root), "fingerprint-"+FormatVersion+".json")
}

func projectPath(root string) string {
	return filepath.Join(CacheDir(root), "project-"+FormatVersion+".json")
}

// Store is the cold-tier contract. Implementations must be safe for
// concurrent calls against different roots; the coordinator serializes
// concurrent work on the same root.
type Store interface {
	// InitLayout idempotently creates the cache directory structure.
	InitLayout(root string) error

	// Save computes a fresh ProjectFingerprint and persists the index,
	// the fingerprint, and the project metadata. Data writes may run in
	// parallel; a crash mid-write leaves a state IsValid detects.
	Save(ctx context.Context, idx *catalog.ProjectIndex) error

	// IsValid reports whether the persisted copy matches the current file
	// state. It fails closed: any missing, unreadable, or unparseable
	// required file yields false. Pure read-side check.
	IsValid(ctx context.Context, root string) bool

	// Load deserializes the persisted index. Missing or unparseable data
	// yields (nil, nil), not an error: callers gate freshness-sensitive
	// decisions on IsValid, which Load does not re-run.
	Load(ctx context.Context, root string) (*catalog.ProjectIndex, error)

	// Clear removes the cache directory. Best-effort: a directory that is
	// already gone is success.
	Clear(root string) error
}

type options struct {
	contentHashes bool
	excludes      []string
	logger        *slog.Logger
}

// Option configures a store strategy.
type Option func(*options)

// WithContentHashes switches file markers from modification timestamps to
// content hashes. Stronger staleness detection at the cost of reading every
// tracked file on each validity check.
func WithContentHashes() Option {
	return func(o *options) { o.contentHashes = true }
}

// WithExcludes adds glob patterns (relative paths) omitted from
// fingerprinting. Must match the analyzer's exclusions, or saved indexes
// would immediately read as stale.
func WithExcludes(patterns ...string) Option {
	return func(o *options) { o.excludes = append(o.excludes, patterns...) }
}

// WithLogger sets the logger used for degraded-to-miss conditions.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// base carries the layout and fingerprint behavior shared by both
// strategies. The data file is the only part they disagree on.
type base struct {
	opts options
}

func (b *base) initLayout(root string) error {
	if err := os.MkdirAll(CacheDir(root), 0o755); err != nil {
		return fmt.Errorf("coldstore: init layout for %s: %w", root, err)
	}
	return nil
}

func (b *base) clear(root string) error {
	err := os.RemoveAll(filepath.Join(root, cacheDirName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("coldstore: clear %s: %w", root, err)
	}
	return nil
}

// fingerprintFile is the wire form of the fingerprint metadata file.
type fingerprintFile struct {
	FormatVersion string            `json:"formatVersion"`
	GeneratedAt   time.Time         `json:"generatedAt"`
	Files         map[string]string `json:"files"`
}

// projectFile is the wire form of the descriptive metadata file.
type projectFile struct {
	FormatVersion string    `json:"formatVersion"`
	Name          string    `json:"name"`
	Root          string    `json:"root"`
	Symbols       int       `json:"symbols"`
	Types         int       `json:"types"`
	Modules       int       `json:"modules"`
	Edges         int       `json:"edges"`
	BuiltAt       time.Time `json:"builtAt"`
	SavedAt       time.Time `json:"savedAt"`
}

func (b *base) writeFingerprint(root string, pf catalog.ProjectFingerprint) error {
	return writeJSON(fingerprintPath(root), fingerprintFile{
		FormatVersion: pf.FormatVersion,
		GeneratedAt:   time.Now(),
		Files:         pf.Files,
	})
}

func (b *base) writeProject(root string, idx *catalog.ProjectIndex) error {
	symbols, types, modules, edges := idx.Counts()
	return writeJSON(projectPath(root), projectFile{
		FormatVersion: FormatVersion,
		Name:          filepath.Base(root),
		Root:          root,
		Symbols:       symbols,
		Types:         types,
		Modules:       modules,
		Edges:         edges,
		BuiltAt:       idx.BuiltAt(),
		SavedAt:       time.Now(),
	})
}

func (b *base) readFingerprint(root string) (catalog.ProjectFingerprint, error) {
	var ff fingerprintFile
	if err := readJSON(fingerprintPath(root), &ff); err != nil {
		return catalog.ProjectFingerprint{}, err
	}
	return catalog.ProjectFingerprint{
		FormatVersion: ff.FormatVersion,
		Files:         ff.Files,
	}, nil
}

// isValid runs the strategy-independent validity check. checkData verifies
// the strategy's data file is present and decodable.
func (b *base) isValid(ctx context.Context, root string, checkData func() error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err := checkData(); err != nil {
		b.opts.logger.Debug("cold cache data check failed", "root", root, "error", err)
		return false
	}
	stored, err := b.readFingerprint(root)
	if err != nil {
		b.opts.logger.Debug("cold cache fingerprint unreadable", "root", root, "error", err)
		return false
	}
	if stored.FormatVersion != FormatVersion {
		// Version mismatch is silent invalidation, never an error.
		return false
	}
	current, err := b.fingerprintNow(root)
	if err != nil {
		b.opts.logger.Debug("cold cache fingerprint recompute failed", "root", root, "error", err)
		return false
	}
	// Cheap short-circuit before the per-file pass.
	if len(current.Files) != len(stored.Files) {
		return false
	}
	return current.Diff(stored).Empty()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("coldstore: encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("coldstore: write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("coldstore: parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
