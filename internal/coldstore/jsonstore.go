package coldstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jward/lattice/internal/catalog"
	"golang.org/x/sync/errgroup"
)

// JSONStore persists the whole catalog as one versioned envelope file.
// Adequate for small and medium projects; for large catalogs prefer
// SQLiteStore, which supports partial reads.
type JSONStore struct {
	base
}

// NewJSONStore creates the whole-object strategy.
func NewJSONStore(opts ...Option) *JSONStore {
	return &JSONStore{base{opts: newOptions(opts)}}
}

var _ Store = (*JSONStore)(nil)

func dataJSONPath(root string) string {
	return filepath.Join(CacheDir(root), "index-"+FormatVersion+".json")
}

// Wire schema. Explicit row structs, versioned independently of the
// in-memory container types, so the catalog can evolve without silently
// changing the persisted format.

type indexEnvelope struct {
	FormatVersion string      `json:"formatVersion"`
	ProjectRoot   string      `json:"projectRoot"`
	BuiltAt       time.Time   `json:"builtAt"`
	Symbols       []symbolRow `json:"symbols"`
	Types         []typeRow   `json:"types"`
	Modules       []moduleRow `json:"modules"`
	Edges         []edgeRow   `json:"edges"`
}

type symbolRow struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Module    string `json:"module"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Signature string `json:"signature,omitempty"`
}

type typeRow struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Module     string `json:"module"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Underlying string `json:"underlying,omitempty"`
}

type moduleRow struct {
	Path        string   `json:"path"`
	Name        string   `json:"name"`
	Files       []string `json:"files"`
	SymbolCount int      `json:"symbolCount"`
}

type edgeRow struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// InitLayout implements Store.
func (s *JSONStore) InitLayout(root string) error { return s.initLayout(root) }

// Clear implements Store.
func (s *JSONStore) Clear(root string) error { return s.clear(root) }

// Save implements Store. The data, fingerprint, and project files are
// independent, so the three writes run concurrently.
func (s *JSONStore) Save(ctx context.Context, idx *catalog.ProjectIndex) error {
	root := idx.ProjectRoot()
	if err := s.initLayout(root); err != nil {
		return err
	}
	pf, err := s.fingerprintNow(root)
	if err != nil {
		return err
	}
	env := flattenIndex(idx)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return fmt.Errorf("coldstore: encode index: %w", err)
		}
		if err := os.WriteFile(dataJSONPath(root), data, 0o644); err != nil {
			return fmt.Errorf("coldstore: write index: %w", err)
		}
		return nil
	})
	g.Go(func() error { return s.writeFingerprint(root, pf) })
	g.Go(func() error { return s.writeProject(root, idx) })
	return g.Wait()
}

// IsValid implements Store.
func (s *JSONStore) IsValid(ctx context.Context, root string) bool {
	return s.isValid(ctx, root, func() error {
		// Decoding the header fields is enough: truncated or garbled JSON
		// fails the decode even against a partial struct.
		var header struct {
			FormatVersion string `json:"formatVersion"`
		}
		if err := readJSON(dataJSONPath(root), &header); err != nil {
			return err
		}
		if header.FormatVersion != FormatVersion {
			return fmt.Errorf("coldstore: index format %q, want %q", header.FormatVersion, FormatVersion)
		}
		return nil
	})
}

// Load implements Store.
func (s *JSONStore) Load(ctx context.Context, root string) (*catalog.ProjectIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var env indexEnvelope
	if err := readJSON(dataJSONPath(root), &env); err != nil {
		if !os.IsNotExist(err) {
			s.opts.logger.Warn("cold cache index unreadable, treating as miss", "root", root, "error", err)
		}
		return nil, nil
	}
	if env.FormatVersion != FormatVersion {
		return nil, nil
	}
	idx, err := rebuildIndex(root, env)
	if err != nil {
		s.opts.logger.Warn("cold cache index corrupt, treating as miss", "root", root, "error", err)
		return nil, nil
	}
	return idx, nil
}

// flattenIndex converts the in-memory aggregate into wire rows, in sorted
// key order for byte-stable output.
func flattenIndex(idx *catalog.ProjectIndex) indexEnvelope {
	env := indexEnvelope{
		FormatVersion: FormatVersion,
		ProjectRoot:   idx.ProjectRoot(),
		BuiltAt:       idx.BuiltAt(),
	}
	for _, name := range idx.SymbolNames() {
		for _, s := range idx.SymbolsNamed(name) {
			env.Symbols = append(env.Symbols, symbolRow{
				Name: s.Name, Kind: s.Kind, Module: s.Module,
				File: s.File, Line: s.Line, Signature: s.Signature,
			})
		}
	}
	for _, name := range idx.TypeNames() {
		td, _ := idx.TypeNamed(name)
		env.Types = append(env.Types, typeRow{
			Name: td.Name, Kind: td.Kind, Module: td.Module,
			File: td.File, Line: td.Line, Underlying: td.Underlying,
		})
	}
	for _, path := range idx.ModulePaths() {
		m, _ := idx.Module(path)
		env.Modules = append(env.Modules, moduleRow{
			Path: m.Path, Name: m.Name, Files: m.Files, SymbolCount: m.SymbolCount,
		})
	}
	for _, from := range idx.EdgeSources() {
		for _, to := range idx.DependenciesOf(from) {
			env.Edges = append(env.Edges, edgeRow{From: from, To: to})
		}
	}
	return env
}

// rebuildIndex reconstructs the aggregate from wire rows. An edge whose
// source module is missing violates the catalog invariant and marks the
// whole file corrupt.
func rebuildIndex(root string, env indexEnvelope) (*catalog.ProjectIndex, error) {
	b := catalog.NewBuilder(root)
	b.BuiltAt(env.BuiltAt)
	for _, m := range env.Modules {
		b.AddModule(catalog.ModuleDescriptor{
			Path: m.Path, Name: m.Name, Files: m.Files, SymbolCount: m.SymbolCount,
		})
	}
	for _, s := range env.Symbols {
		b.AddSymbol(catalog.Symbol{
			Name: s.Name, Kind: s.Kind, Module: s.Module,
			File: s.File, Line: s.Line, Signature: s.Signature,
		})
	}
	for _, td := range env.Types {
		b.AddType(catalog.TypeDescriptor{
			Name: td.Name, Kind: td.Kind, Module: td.Module,
			File: td.File, Line: td.Line, Underlying: td.Underlying,
		})
	}
	for _, e := range env.Edges {
		if err := b.AddDependency(e.From, e.To); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
