// Package analyze is the built-in reference analyzer: it walks a project
// root, parses Go sources with tree-sitter, and produces the ProjectIndex
// the cache tiers store. The cache treats any analyzer as an opaque
// producer; this one exists so the system works out of the box.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"runtime"
	"sort"
	"sync"

	"github.com/jward/lattice/internal/catalog"
	"github.com/jward/lattice/internal/scan"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxFileSize is the largest source file the analyzer will parse.
const DefaultMaxFileSize = 10 * 1024 * 1024

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithExcludes adds glob patterns (root-relative paths) skipped during
// discovery.
func WithExcludes(patterns ...string) Option {
	return func(a *Analyzer) { a.excludes = append(a.excludes, patterns...) }
}

// WithMaxFileSize caps the size of files the analyzer parses.
func WithMaxFileSize(bytes int64) Option {
	return func(a *Analyzer) {
		if bytes > 0 {
			a.maxFileSize = bytes
		}
	}
}

// WithWorkers bounds the parse worker pool. Defaults to NumCPU.
func WithWorkers(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithLogger sets the logger for per-file parse failures.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

// Analyzer produces a ProjectIndex from Go sources. Safe for concurrent use;
// each parse creates its own tree-sitter parser.
type Analyzer struct {
	excludes    []string
	maxFileSize int64
	workers     int
	logger      *slog.Logger
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		maxFileSize: DefaultMaxFileSize,
		workers:     runtime.NumCPU(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// fileResult is the extraction output for one source file.
type fileResult struct {
	relPath string
	pkg     string
	symbols []catalog.Symbol
	types   []catalog.TypeDescriptor
	imports []string
}

// ProduceIndex analyzes root and returns its catalog. An inaccessible root
// is an error; a readable root with no recognizable source files yields an
// empty but valid index. Individual files that fail to parse are logged and
// skipped; they never abort the pass.
func (a *Analyzer) ProduceIndex(ctx context.Context, root string) (*catalog.ProjectIndex, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("analyze: project root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("analyze: project root %s is not a directory", root)
	}

	files, err := scan.SourceFiles(root, scan.Options{Exclude: a.excludes})
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	var (
		mu      sync.Mutex
		results []fileResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for _, f := range files {
		if f.Language != "go" {
			continue
		}
		f := f
		g.Go(func() error {
			res, err := a.parseFile(gctx, f)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				a.logger.Warn("skipping unparseable file", "path", f.Path, "error", err)
				return nil
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze: %s: %w", root, err)
	}

	// Deterministic merge order regardless of worker scheduling.
	sort.Slice(results, func(i, j int) bool { return results[i].relPath < results[j].relPath })
	return a.merge(root, results), nil
}

// merge assembles per-file results into the aggregate. One module per
// package directory; dependency edges go from the directory to each import
// path its files mention.
func (a *Analyzer) merge(root string, results []fileResult) *catalog.ProjectIndex {
	b := catalog.NewBuilder(root)

	type moduleAcc struct {
		name    string
		files   []string
		symbols int
		imports map[string]bool
	}
	modules := make(map[string]*moduleAcc)
	var order []string

	for _, res := range results {
		dir := path.Dir(res.relPath)
		acc, ok := modules[dir]
		if !ok {
			acc = &moduleAcc{imports: make(map[string]bool)}
			modules[dir] = acc
			order = append(order, dir)
		}
		if acc.name == "" {
			acc.name = res.pkg
		}
		acc.files = append(acc.files, res.relPath)
		acc.symbols += len(res.symbols)
		for _, imp := range res.imports {
			acc.imports[imp] = true
		}

		for _, sym := range res.symbols {
			sym.Module = dir
			b.AddSymbol(sym)
		}
		for _, td := range res.types {
			td.Module = dir
			b.AddType(td)
		}
	}

	sort.Strings(order)
	for _, dir := range order {
		acc := modules[dir]
		b.AddModule(catalog.ModuleDescriptor{
			Path:        dir,
			Name:        acc.name,
			Files:       acc.files,
			SymbolCount: acc.symbols,
		})
	}
	for _, dir := range order {
		for imp := range modules[dir].imports {
			// Cannot fail: every dir in order was just added as a module.
			_ = b.AddDependency(dir, imp)
		}
	}
	return b.Build()
}
