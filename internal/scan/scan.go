// Package scan discovers the source files under a project root. Both the
// cold store's fingerprinting and the reference analyzer walk the same file
// set, so the discovery rules live in one place.
package scan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// File is one discovered source file.
type File struct {
	Path     string // absolute
	RelPath  string // relative to the project root, forward slashes
	Language string
}

// extToLanguage maps file extensions to canonical language names. The set
// mirrors what the catalog's analyzers can recognize; files outside it do
// not participate in fingerprinting either.
var extToLanguage = map[string]string{
	".go":   "go",
	".ts":   "typescript",
	".tsx":  "typescript",
	".js":   "javascript",
	".jsx":  "javascript",
	".py":   "python",
	".rs":   "rust",
	".java": "java",
	".rb":   "ruby",
}

// skipDirs are directory names excluded from every walk.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// LanguageForFile returns the canonical language name for a file path based
// on its extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	lang, ok := extToLanguage[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// Options controls a walk.
type Options struct {
	// Exclude holds doublestar glob patterns matched against each file's
	// root-relative path (forward slashes). Matching files are skipped.
	Exclude []string
}

// SourceFiles walks root and returns every recognized source file in
// deterministic (lexical walk) order. Hidden directories (including the on-disk cache directory),
// node_modules, vendor, and __pycache__ are skipped. Unreadable entries are
// skipped rather than failing the walk; an unreadable root is an error.
func SourceFiles(root string, opts Options) ([]File, error) {
	var files []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("scan: walk %s: %w", root, err)
			}
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		lang, ok := LanguageForFile(path)
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range opts.Exclude {
			if matched, _ := doublestar.Match(pattern, rel); matched {
				return nil
			}
		}
		files = append(files, File{Path: path, RelPath: rel, Language: lang})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
