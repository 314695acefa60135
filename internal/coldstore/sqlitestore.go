package coldstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jward/lattice/internal/catalog"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/errgroup"
)

// SQLiteStore flattens each entity map into rows of a SQLite database, one
// table per map. Preferred for large projects: readers can pull a single
// table instead of decoding the whole catalog, and the page format
// compresses better than pretty-printed JSON. Fingerprint and project
// metadata stay in the same sidecar files JSONStore writes, so the two
// strategies share one validity check.
type SQLiteStore struct {
	base
}

// NewSQLiteStore creates the columnar strategy.
func NewSQLiteStore(opts ...Option) *SQLiteStore {
	return &SQLiteStore{base{opts: newOptions(opts)}}
}

var _ Store = (*SQLiteStore)(nil)

func dataDBPath(root string) string {
	return filepath.Join(CacheDir(root), "index-"+FormatVersion+".db")
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS symbols (
  id        INTEGER PRIMARY KEY,
  name      TEXT NOT NULL,
  kind      TEXT NOT NULL,
  module    TEXT NOT NULL,
  file      TEXT NOT NULL,
  line      INTEGER NOT NULL,
  signature TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS types (
  name       TEXT PRIMARY KEY,
  kind       TEXT NOT NULL,
  module     TEXT NOT NULL,
  file       TEXT NOT NULL,
  line       INTEGER NOT NULL,
  underlying TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS modules (
  path         TEXT PRIMARY KEY,
  name         TEXT NOT NULL,
  symbol_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS module_files (
  module_path TEXT NOT NULL,
  ord         INTEGER NOT NULL,
  path        TEXT NOT NULL,
  PRIMARY KEY (module_path, ord)
);

CREATE TABLE IF NOT EXISTS dependency_edges (
  from_path TEXT NOT NULL,
  to_path   TEXT NOT NULL,
  PRIMARY KEY (from_path, to_path)
);

CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_edges_from ON dependency_edges(from_path);
`

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("coldstore: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("coldstore: ping database: %w", err)
	}
	return db, nil
}

// InitLayout implements Store.
func (s *SQLiteStore) InitLayout(root string) error { return s.initLayout(root) }

// Clear implements Store.
func (s *SQLiteStore) Clear(root string) error { return s.clear(root) }

// Save implements Store. The database write and the two sidecar files are
// independent and run concurrently; within the database, the whole catalog
// lands in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, idx *catalog.ProjectIndex) error {
	root := idx.ProjectRoot()
	if err := s.initLayout(root); err != nil {
		return err
	}
	pf, err := s.fingerprintNow(root)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.writeData(gctx, idx) })
	g.Go(func() error { return s.writeFingerprint(root, pf) })
	g.Go(func() error { return s.writeProject(root, idx) })
	return g.Wait()
}

func (s *SQLiteStore) writeData(ctx context.Context, idx *catalog.ProjectIndex) error {
	db, err := openDB(dataDBPath(idx.ProjectRoot()))
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("coldstore: migrate: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("coldstore: begin save: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"symbols", "types", "modules", "module_files", "dependency_edges", "meta"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("coldstore: reset %s: %w", table, err)
		}
	}

	for key, value := range map[string]string{
		"format_version": FormatVersion,
		"project_root":   idx.ProjectRoot(),
		"built_at":       idx.BuiltAt().Format(time.RFC3339Nano),
	} {
		if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("coldstore: insert meta: %w", err)
		}
	}

	for _, name := range idx.SymbolNames() {
		for _, sym := range idx.SymbolsNamed(name) {
			if _, err := tx.Exec(
				"INSERT INTO symbols (name, kind, module, file, line, signature) VALUES (?, ?, ?, ?, ?, ?)",
				sym.Name, sym.Kind, sym.Module, sym.File, sym.Line, sym.Signature,
			); err != nil {
				return fmt.Errorf("coldstore: insert symbol %s: %w", sym.Name, err)
			}
		}
	}
	for _, name := range idx.TypeNames() {
		td, _ := idx.TypeNamed(name)
		if _, err := tx.Exec(
			"INSERT INTO types (name, kind, module, file, line, underlying) VALUES (?, ?, ?, ?, ?, ?)",
			td.Name, td.Kind, td.Module, td.File, td.Line, td.Underlying,
		); err != nil {
			return fmt.Errorf("coldstore: insert type %s: %w", td.Name, err)
		}
	}
	for _, path := range idx.ModulePaths() {
		m, _ := idx.Module(path)
		if _, err := tx.Exec(
			"INSERT INTO modules (path, name, symbol_count) VALUES (?, ?, ?)",
			m.Path, m.Name, m.SymbolCount,
		); err != nil {
			return fmt.Errorf("coldstore: insert module %s: %w", m.Path, err)
		}
		for ord, file := range m.Files {
			if _, err := tx.Exec(
				"INSERT INTO module_files (module_path, ord, path) VALUES (?, ?, ?)",
				m.Path, ord, file,
			); err != nil {
				return fmt.Errorf("coldstore: insert module file: %w", err)
			}
		}
	}
	for _, from := range idx.EdgeSources() {
		for _, to := range idx.DependenciesOf(from) {
			if _, err := tx.Exec(
				"INSERT INTO dependency_edges (from_path, to_path) VALUES (?, ?)",
				from, to,
			); err != nil {
				return fmt.Errorf("coldstore: insert edge %s->%s: %w", from, to, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("coldstore: commit save: %w", err)
	}
	return nil
}

// IsValid implements Store.
func (s *SQLiteStore) IsValid(ctx context.Context, root string) bool {
	return s.isValid(ctx, root, func() error {
		version, err := s.readMetaVersion(ctx, root)
		if err != nil {
			return err
		}
		if version != FormatVersion {
			return fmt.Errorf("coldstore: database format %q, want %q", version, FormatVersion)
		}
		return nil
	})
}

func (s *SQLiteStore) readMetaVersion(ctx context.Context, root string) (string, error) {
	if _, err := os.Stat(dataDBPath(root)); err != nil {
		return "", err
	}
	db, err := openDB(dataDBPath(root))
	if err != nil {
		return "", err
	}
	defer db.Close()
	var version string
	err = db.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = 'format_version'").Scan(&version)
	if err != nil {
		return "", fmt.Errorf("coldstore: read format version: %w", err)
	}
	return version, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, root string) (*catalog.ProjectIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	version, err := s.readMetaVersion(ctx, root)
	if err != nil {
		if !os.IsNotExist(err) {
			s.opts.logger.Warn("cold cache database unreadable, treating as miss", "root", root, "error", err)
		}
		return nil, nil
	}
	if version != FormatVersion {
		return nil, nil
	}

	idx, err := s.readData(ctx, root)
	if err != nil {
		s.opts.logger.Warn("cold cache database corrupt, treating as miss", "root", root, "error", err)
		return nil, nil
	}
	return idx, nil
}

func (s *SQLiteStore) readData(ctx context.Context, root string) (*catalog.ProjectIndex, error) {
	db, err := openDB(dataDBPath(root))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	b := catalog.NewBuilder(root)

	var builtAt string
	if err := db.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = 'built_at'").Scan(&builtAt); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, builtAt); err == nil {
			b.BuiltAt(t)
		}
	}

	moduleFiles := make(map[string][]string)
	rows, err := db.QueryContext(ctx,
		"SELECT module_path, path FROM module_files ORDER BY module_path, ord")
	if err != nil {
		return nil, fmt.Errorf("coldstore: query module files: %w", err)
	}
	for rows.Next() {
		var modPath, file string
		if err := rows.Scan(&modPath, &file); err != nil {
			rows.Close()
			return nil, fmt.Errorf("coldstore: scan module file: %w", err)
		}
		moduleFiles[modPath] = append(moduleFiles[modPath], file)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("coldstore: module files rows: %w", err)
	}

	rows, err = db.QueryContext(ctx,
		"SELECT path, name, symbol_count FROM modules")
	if err != nil {
		return nil, fmt.Errorf("coldstore: query modules: %w", err)
	}
	for rows.Next() {
		var m catalog.ModuleDescriptor
		if err := rows.Scan(&m.Path, &m.Name, &m.SymbolCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("coldstore: scan module: %w", err)
		}
		m.Files = moduleFiles[m.Path]
		b.AddModule(m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("coldstore: modules rows: %w", err)
	}

	rows, err = db.QueryContext(ctx,
		"SELECT name, kind, module, file, line, signature FROM symbols ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("coldstore: query symbols: %w", err)
	}
	for rows.Next() {
		var sym catalog.Symbol
		if err := rows.Scan(&sym.Name, &sym.Kind, &sym.Module, &sym.File, &sym.Line, &sym.Signature); err != nil {
			rows.Close()
			return nil, fmt.Errorf("coldstore: scan symbol: %w", err)
		}
		b.AddSymbol(sym)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("coldstore: symbols rows: %w", err)
	}

	rows, err = db.QueryContext(ctx,
		"SELECT name, kind, module, file, line, underlying FROM types")
	if err != nil {
		return nil, fmt.Errorf("coldstore: query types: %w", err)
	}
	for rows.Next() {
		var td catalog.TypeDescriptor
		if err := rows.Scan(&td.Name, &td.Kind, &td.Module, &td.File, &td.Line, &td.Underlying); err != nil {
			rows.Close()
			return nil, fmt.Errorf("coldstore: scan type: %w", err)
		}
		b.AddType(td)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("coldstore: types rows: %w", err)
	}

	rows, err = db.QueryContext(ctx,
		"SELECT from_path, to_path FROM dependency_edges")
	if err != nil {
		return nil, fmt.Errorf("coldstore: query edges: %w", err)
	}
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			rows.Close()
			return nil, fmt.Errorf("coldstore: scan edge: %w", err)
		}
		if err := b.AddDependency(from, to); err != nil {
			rows.Close()
			return nil, err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("coldstore: edges rows: %w", err)
	}

	return b.Build(), nil
}
