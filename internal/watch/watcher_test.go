package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_String(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "modified", Modified.String())
	assert.Equal(t, "deleted", Deleted.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestDebouncer_CollapsesBurst(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)

	d.add("/p/a.go", Created)
	d.add("/p/a.go", Modified)
	d.add("/p/b.go", Modified)

	select {
	case batch := <-d.output():
		require.Len(t, batch, 2)
		byPath := map[string]Kind{}
		for _, ev := range batch {
			byPath[ev.Path] = ev.Kind
		}
		// The latest kind per path wins.
		assert.Equal(t, Modified, byPath["/p/a.go"])
		assert.Equal(t, Modified, byPath["/p/b.go"])
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
	}
}

func TestDebouncer_SeparateQuietPeriods(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)

	d.add("/p/a.go", Modified)
	first := <-d.output()
	require.Len(t, first, 1)

	d.add("/p/b.go", Deleted)
	second := <-d.output()
	require.Len(t, second, 1)
	assert.Equal(t, "/p/b.go", second[0].Path)
}

func newTestWatcher(t *testing.T, root string, opts ...Option) *Watcher {
	t.Helper()
	opts = append([]Option{WithDebounce(30 * time.Millisecond)}, opts...)
	w, err := New(root, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	go w.Start()
	return w
}

func awaitBatch(t *testing.T, w *Watcher) []Event {
	t.Helper()
	select {
	case batch := <-w.Events():
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
		return nil
	}
}

func TestWatcher_ReportsWrite(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	w := newTestWatcher(t, root)
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc X() {}\n"), 0o644))

	batch := awaitBatch(t, w)
	require.NotEmpty(t, batch)
	assert.Equal(t, path, batch[0].Path)
}

func TestWatcher_ReportsDelete(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	w := newTestWatcher(t, root)
	require.NoError(t, os.Remove(path))

	batch := awaitBatch(t, w)
	found := false
	for _, ev := range batch {
		if ev.Path == path && ev.Kind == Deleted {
			found = true
		}
	}
	assert.True(t, found, "expected a Deleted event for %s, got %v", path, batch)
}

func TestWatcher_IgnoresHiddenDirs(t *testing.T) {
	root := t.TempDir()
	hidden := filepath.Join(root, ".lattice", "v1")
	require.NoError(t, os.MkdirAll(hidden, 0o755))

	w := newTestWatcher(t, root)
	require.NoError(t, os.WriteFile(filepath.Join(hidden, "index.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "seen.go"), []byte("package main\n"), 0o644))

	batch := awaitBatch(t, w)
	for _, ev := range batch {
		assert.NotContains(t, ev.Path, ".lattice", "cache writes must not feed back as change signals")
	}
}

func TestWatcher_Excludes(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, root, WithExcludes("*.tmp"))

	require.NoError(t, os.WriteFile(filepath.Join(root, "scratch.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "kept.go"), []byte("package main\n"), 0o644))

	batch := awaitBatch(t, w)
	for _, ev := range batch {
		assert.NotContains(t, ev.Path, "scratch.tmp")
	}
}

func TestWatcher_CloseIdempotent(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
