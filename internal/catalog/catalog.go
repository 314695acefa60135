// Package catalog defines the data model for a project's code catalog:
// symbols, type descriptors, module descriptors, and inter-module dependency
// edges, aggregated into an immutable ProjectIndex per project root.
package catalog

import (
	"fmt"
	"sort"
	"time"
)

// Symbol is one declaration produced by the analyzer. A name may carry
// multiple declarations (overloads, redeclarations across build tags), so
// symbols are stored as ordered sequences per name.
type Symbol struct {
	Name      string
	Kind      string // func, method, var, const, ...
	Module    string // path of the module the symbol belongs to
	File      string // path relative to the project root, forward slashes
	Line      int
	Signature string
}

// TypeDescriptor describes one named type. Exactly one descriptor exists per
// type name; a later declaration with the same name replaces the earlier one.
type TypeDescriptor struct {
	Name       string
	Kind       string // struct, interface, alias, ...
	Module     string
	File       string
	Line       int
	Underlying string
}

// ModuleDescriptor describes one indexed module (a package directory).
// Path is the descriptor's identity key.
type ModuleDescriptor struct {
	Path        string
	Name        string
	Files       []string
	SymbolCount int
}

// ProjectIndex is the aggregate catalog for one project root. It is immutable
// once built: updates produce a new ProjectIndex, so concurrent readers never
// observe a partially-updated aggregate. Construct through a Builder.
type ProjectIndex struct {
	projectRoot     string
	symbolsByName   map[string][]Symbol
	typesByName     map[string]TypeDescriptor
	modulesByPath   map[string]ModuleDescriptor
	dependencyEdges map[string][]string
	builtAt         time.Time
}

// ProjectRoot returns the absolute path identifying this index.
func (idx *ProjectIndex) ProjectRoot() string { return idx.projectRoot }

// BuiltAt returns the construction timestamp.
func (idx *ProjectIndex) BuiltAt() time.Time { return idx.builtAt }

// SymbolsNamed returns the declarations recorded under name, in insertion
// order. The returned slice is shared; callers must not modify it.
func (idx *ProjectIndex) SymbolsNamed(name string) []Symbol {
	return idx.symbolsByName[name]
}

// TypeNamed returns the descriptor for the given type name.
func (idx *ProjectIndex) TypeNamed(name string) (TypeDescriptor, bool) {
	td, ok := idx.typesByName[name]
	return td, ok
}

// Module returns the descriptor for the given module path.
func (idx *ProjectIndex) Module(path string) (ModuleDescriptor, bool) {
	m, ok := idx.modulesByPath[path]
	return m, ok
}

// DependenciesOf returns the sorted module paths the given module depends on.
func (idx *ProjectIndex) DependenciesOf(path string) []string {
	return idx.dependencyEdges[path]
}

// SymbolNames returns all symbol names, sorted.
func (idx *ProjectIndex) SymbolNames() []string {
	return sortedKeys(idx.symbolsByName)
}

// TypeNames returns all type names, sorted.
func (idx *ProjectIndex) TypeNames() []string {
	return sortedKeys(idx.typesByName)
}

// ModulePaths returns all indexed module paths, sorted.
func (idx *ProjectIndex) ModulePaths() []string {
	return sortedKeys(idx.modulesByPath)
}

// EdgeSources returns the module paths that have recorded dependencies, sorted.
func (idx *ProjectIndex) EdgeSources() []string {
	return sortedKeys(idx.dependencyEdges)
}

// Counts reports the number of symbol declarations, types, modules, and
// dependency edges in the index.
func (idx *ProjectIndex) Counts() (symbols, types, modules, edges int) {
	for _, syms := range idx.symbolsByName {
		symbols += len(syms)
	}
	for _, deps := range idx.dependencyEdges {
		edges += len(deps)
	}
	return symbols, len(idx.typesByName), len(idx.modulesByPath), edges
}

// Equal reports whether two indexes hold the same catalog content. BuiltAt is
// not compared: two passes over identical sources are equal.
func (idx *ProjectIndex) Equal(other *ProjectIndex) bool {
	if idx.projectRoot != other.projectRoot {
		return false
	}
	if len(idx.symbolsByName) != len(other.symbolsByName) ||
		len(idx.typesByName) != len(other.typesByName) ||
		len(idx.modulesByPath) != len(other.modulesByPath) ||
		len(idx.dependencyEdges) != len(other.dependencyEdges) {
		return false
	}
	for name, syms := range idx.symbolsByName {
		o := other.symbolsByName[name]
		if len(o) != len(syms) {
			return false
		}
		for i := range syms {
			if syms[i] != o[i] {
				return false
			}
		}
	}
	for name, td := range idx.typesByName {
		if o, ok := other.typesByName[name]; !ok || o != td {
			return false
		}
	}
	for path, m := range idx.modulesByPath {
		o, ok := other.modulesByPath[path]
		if !ok || o.Path != m.Path || o.Name != m.Name || o.SymbolCount != m.SymbolCount {
			return false
		}
		if len(o.Files) != len(m.Files) {
			return false
		}
		for i := range m.Files {
			if m.Files[i] != o.Files[i] {
				return false
			}
		}
	}
	for path, deps := range idx.dependencyEdges {
		o := other.dependencyEdges[path]
		if len(o) != len(deps) {
			return false
		}
		for i := range deps {
			if deps[i] != o[i] {
				return false
			}
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Builder accumulates catalog entities and produces an immutable
// ProjectIndex. It enforces the structural invariant that a module cannot
// have recorded dependencies without being indexed itself, and applies
// last-write-wins semantics for types and modules. Not safe for concurrent
// use; build on one goroutine, share the result freely.
type Builder struct {
	root    string
	symbols map[string][]Symbol
	types   map[string]TypeDescriptor
	modules map[string]ModuleDescriptor
	edges   map[string]map[string]bool
	builtAt time.Time
}

// NewBuilder creates a Builder for the given project root.
func NewBuilder(projectRoot string) *Builder {
	return &Builder{
		root:    projectRoot,
		symbols: make(map[string][]Symbol),
		types:   make(map[string]TypeDescriptor),
		modules: make(map[string]ModuleDescriptor),
		edges:   make(map[string]map[string]bool),
	}
}

// AddSymbol appends a declaration under its name.
func (b *Builder) AddSymbol(s Symbol) {
	b.symbols[s.Name] = append(b.symbols[s.Name], s)
}

// AddType records a type descriptor. A collision on Name replaces the
// previous descriptor.
func (b *Builder) AddType(td TypeDescriptor) {
	b.types[td.Name] = td
}

// AddModule records a module descriptor. A collision on Path replaces the
// previous descriptor.
func (b *Builder) AddModule(m ModuleDescriptor) {
	b.modules[m.Path] = m
}

// AddDependency records that the module at fromPath depends on toPath.
// fromPath must already have been added via AddModule; edges from an
// unindexed module are rejected. Duplicate edges collapse to one.
func (b *Builder) AddDependency(fromPath, toPath string) error {
	if _, ok := b.modules[fromPath]; !ok {
		return fmt.Errorf("catalog: dependency from unindexed module %q", fromPath)
	}
	set := b.edges[fromPath]
	if set == nil {
		set = make(map[string]bool)
		b.edges[fromPath] = set
	}
	set[toPath] = true
	return nil
}

// BuiltAt overrides the construction timestamp Build would stamp. The cold
// store uses this to preserve the original build time across a reload.
func (b *Builder) BuiltAt(t time.Time) {
	b.builtAt = t
}

// Build finalizes the index, stamping BuiltAt and sorting each edge set for
// deterministic serialization. The Builder must not be reused afterwards.
func (b *Builder) Build() *ProjectIndex {
	edges := make(map[string][]string, len(b.edges))
	for from, set := range b.edges {
		deps := make([]string, 0, len(set))
		for to := range set {
			deps = append(deps, to)
		}
		sort.Strings(deps)
		edges[from] = deps
	}
	builtAt := b.builtAt
	if builtAt.IsZero() {
		builtAt = time.Now()
	}
	return &ProjectIndex{
		projectRoot:     b.root,
		symbolsByName:   b.symbols,
		typesByName:     b.types,
		modulesByPath:   b.modules,
		dependencyEdges: edges,
		builtAt:         builtAt,
	}
}
