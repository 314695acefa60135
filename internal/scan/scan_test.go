package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func relPaths(files []File) []string {
	rels := make([]string, len(files))
	for i, f := range files {
		rels[i] = f.RelPath
	}
	return rels
}

func TestLanguageForFile(t *testing.T) {
	lang, ok := LanguageForFile("a/b/main.go")
	require.True(t, ok)
	assert.Equal(t, "go", lang)

	lang, ok = LanguageForFile("app.TSX")
	require.True(t, ok)
	assert.Equal(t, "typescript", lang)

	_, ok = LanguageForFile("README.md")
	assert.False(t, ok)
}

func TestSourceFiles_RecognizedOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, "lib/util.py", "x = 1")
	writeFile(t, root, "README.md", "# readme")
	writeFile(t, root, "data.bin", "\x00")

	files, err := SourceFiles(root, Options{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main.go", "lib/util.py"}, relPaths(files))
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.Path))
	}
}

func TestSourceFiles_SkipsHiddenAndVendored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, ".git/hook.go", "package hooks")
	writeFile(t, root, ".lattice/v1/stale.go", "package stale")
	writeFile(t, root, "vendor/dep/dep.go", "package dep")
	writeFile(t, root, "node_modules/x/index.js", "x")

	files, err := SourceFiles(root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, relPaths(files))
}

func TestSourceFiles_Excludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, "gen/api.go", "package gen")
	writeFile(t, root, "main_test.go", "package main")

	files, err := SourceFiles(root, Options{Exclude: []string{"gen/**", "*_test.go"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, relPaths(files))
}

func TestSourceFiles_MissingRoot(t *testing.T) {
	_, err := SourceFiles(filepath.Join(t.TempDir(), "absent"), Options{})
	require.Error(t, err)
}

func TestSourceFiles_EmptyRoot(t *testing.T) {
	files, err := SourceFiles(t.TempDir(), Options{})
	require.NoError(t, err)
	assert.Empty(t, files)
}
