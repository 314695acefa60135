package coldstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jward/lattice/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both strategies must satisfy the same contract, so every behavioral test
// runs against each.
func stores() map[string]func(opts ...Option) Store {
	return map[string]func(opts ...Option) Store{
		"json":   func(opts ...Option) Store { return NewJSONStore(opts...) },
		"sqlite": func(opts ...Option) Store { return NewSQLiteStore(opts...) },
	}
}

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newProject creates a root with two source files and returns the root plus
// an index describing them.
func newProject(t *testing.T) (string, *catalog.ProjectIndex) {
	t.Helper()
	root := t.TempDir()
	writeSource(t, root, "a.go", "package main\n\nfunc A() {}\n")
	writeSource(t, root, "sub/b.go", "package sub\n\nfunc B() {}\n")

	b := catalog.NewBuilder(root)
	b.AddModule(catalog.ModuleDescriptor{Path: ".", Name: "main", Files: []string{"a.go"}, SymbolCount: 1})
	b.AddModule(catalog.ModuleDescriptor{Path: "sub", Name: "sub", Files: []string{"sub/b.go"}, SymbolCount: 1})
	b.AddSymbol(catalog.Symbol{Name: "A", Kind: "func", Module: ".", File: "a.go", Line: 3, Signature: "()"})
	b.AddSymbol(catalog.Symbol{Name: "B", Kind: "func", Module: "sub", File: "sub/b.go", Line: 3, Signature: "()"})
	b.AddType(catalog.TypeDescriptor{Name: "T", Kind: "struct", Module: "sub", File: "sub/b.go", Line: 5, Underlying: "struct{}"})
	require.NoError(t, b.AddDependency(".", "sub"))
	b.BuiltAt(time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC))
	return root, b.Build()
}

func TestStore_SaveThenValid(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			root, idx := newProject(t)
			s := newStore()
			ctx := context.Background()

			assert.False(t, s.IsValid(ctx, root), "nothing persisted yet")
			require.NoError(t, s.Save(ctx, idx))
			assert.True(t, s.IsValid(ctx, root))
		})
	}
}

func TestStore_LoadRoundTrip(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			root, idx := newProject(t)
			s := newStore()
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, idx))

			loaded, err := s.Load(ctx, root)
			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.True(t, idx.Equal(loaded), "round trip must preserve catalog content")
			assert.True(t, idx.BuiltAt().Equal(loaded.BuiltAt()), "round trip must preserve BuiltAt")
		})
	}
}

func TestStore_ModifiedFileInvalidates(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			root, idx := newProject(t)
			s := newStore(WithContentHashes())
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, idx))
			require.True(t, s.IsValid(ctx, root))

			writeSource(t, root, "a.go", "package main\n\nfunc A2() {}\n")
			assert.False(t, s.IsValid(ctx, root))
		})
	}
}

func TestStore_AddedFileInvalidates(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			root, idx := newProject(t)
			s := newStore()
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, idx))

			writeSource(t, root, "c.go", "package main\n")
			assert.False(t, s.IsValid(ctx, root))
		})
	}
}

// A deletion paired with an addition keeps the file count the same; the
// path-set comparison must still catch it.
func TestStore_SwappedFileInvalidates(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			root, idx := newProject(t)
			s := newStore()
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, idx))

			require.NoError(t, os.Remove(filepath.Join(root, "a.go")))
			writeSource(t, root, "z.go", "package main\n")
			assert.False(t, s.IsValid(ctx, root))
		})
	}
}

func TestStore_DeletedRootReadsInvalid(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			root, idx := newProject(t)
			s := newStore()
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, idx))

			require.NoError(t, os.RemoveAll(root))
			assert.False(t, s.IsValid(ctx, root), "vanished root must read invalid, not raise")
		})
	}
}

func TestStore_CorruptDataReadsInvalid(t *testing.T) {
	root, idx := newProject(t)
	s := NewJSONStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, idx))

	require.NoError(t, os.WriteFile(dataJSONPath(root), []byte("{ not json"), 0o644))
	assert.False(t, s.IsValid(ctx, root))

	loaded, err := s.Load(ctx, root)
	require.NoError(t, err)
	assert.Nil(t, loaded, "corrupt data degrades to a miss")
}

func TestStore_VersionMismatchSilentlyInvalid(t *testing.T) {
	root, idx := newProject(t)
	s := NewJSONStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, idx))

	// Rewrite the fingerprint file claiming a different format version.
	ff := fingerprintFile{FormatVersion: "v0", GeneratedAt: time.Now(), Files: map[string]string{}}
	require.NoError(t, writeJSON(fingerprintPath(root), ff))
	assert.False(t, s.IsValid(ctx, root))
}

func TestStore_LoadMissing(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			loaded, err := s.Load(context.Background(), t.TempDir())
			require.NoError(t, err)
			assert.Nil(t, loaded)
		})
	}
}

func TestStore_InitLayoutIdempotent(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			s := newStore()
			require.NoError(t, s.InitLayout(root))
			require.NoError(t, s.InitLayout(root))

			info, err := os.Stat(CacheDir(root))
			require.NoError(t, err)
			assert.True(t, info.IsDir())
		})
	}
}

func TestStore_Clear(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			root, idx := newProject(t)
			s := newStore()
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, idx))

			require.NoError(t, s.Clear(root))
			_, err := os.Stat(filepath.Join(root, cacheDirName))
			assert.True(t, os.IsNotExist(err))

			// Clearing an already-clean root is success.
			require.NoError(t, s.Clear(root))
		})
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			root, idx := newProject(t)
			s := newStore()
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, idx))

			// A second save with different content replaces the first.
			b := catalog.NewBuilder(root)
			b.AddModule(catalog.ModuleDescriptor{Path: ".", Name: "main"})
			b.AddSymbol(catalog.Symbol{Name: "Only", Kind: "func", Module: ".", File: "a.go", Line: 1})
			next := b.Build()
			require.NoError(t, s.Save(ctx, next))

			loaded, err := s.Load(ctx, root)
			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.True(t, next.Equal(loaded))
			assert.False(t, idx.Equal(loaded))
		})
	}
}

func TestStore_ContentHashIgnoresTouch(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			root, idx := newProject(t)
			s := newStore(WithContentHashes())
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, idx))

			// Bump mtime without changing content.
			later := time.Now().Add(time.Hour)
			require.NoError(t, os.Chtimes(filepath.Join(root, "a.go"), later, later))
			assert.True(t, s.IsValid(ctx, root), "content hashing must ignore timestamp-only changes")
		})
	}
}

func TestStore_ExcludedFilesIgnored(t *testing.T) {
	root, idx := newProject(t)
	s := NewJSONStore(WithExcludes("gen/**"))
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, idx))

	writeSource(t, root, "gen/api.go", "package gen\n")
	assert.True(t, s.IsValid(ctx, root), "excluded paths must not affect validity")
}

func TestFingerprintNow_MarkersChangeWithContent(t *testing.T) {
	root, _ := newProject(t)
	b := &base{opts: options{contentHashes: true}}

	before, err := b.fingerprintNow(root)
	require.NoError(t, err)
	require.Len(t, before.Files, 2)

	writeSource(t, root, "a.go", "package main\n\nfunc Changed() {}\n")
	after, err := b.fingerprintNow(root)
	require.NoError(t, err)

	d := after.Diff(before)
	assert.Len(t, d.Changed, 1)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
}
