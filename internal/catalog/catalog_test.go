package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *ProjectIndex {
	t.Helper()
	b := NewBuilder("/proj")
	b.AddModule(ModuleDescriptor{Path: "internal/a", Name: "a", Files: []string{"internal/a/a.go"}, SymbolCount: 2})
	b.AddModule(ModuleDescriptor{Path: "internal/b", Name: "b", Files: []string{"internal/b/b.go"}, SymbolCount: 1})
	b.AddSymbol(Symbol{Name: "Run", Kind: "func", Module: "internal/a", File: "internal/a/a.go", Line: 10})
	b.AddSymbol(Symbol{Name: "Run", Kind: "method", Module: "internal/b", File: "internal/b/b.go", Line: 4})
	b.AddSymbol(Symbol{Name: "limit", Kind: "const", Module: "internal/a", File: "internal/a/a.go", Line: 3})
	b.AddType(TypeDescriptor{Name: "Widget", Kind: "struct", Module: "internal/a", File: "internal/a/a.go", Line: 20})
	require.NoError(t, b.AddDependency("internal/a", "internal/b"))
	return b.Build()
}

func TestBuilder_Build(t *testing.T) {
	idx := newTestIndex(t)

	assert.Equal(t, "/proj", idx.ProjectRoot())
	assert.False(t, idx.BuiltAt().IsZero())

	syms := idx.SymbolsNamed("Run")
	require.Len(t, syms, 2)
	assert.Equal(t, "func", syms[0].Kind)
	assert.Equal(t, "method", syms[1].Kind)
	assert.Empty(t, idx.SymbolsNamed("missing"))

	td, ok := idx.TypeNamed("Widget")
	require.True(t, ok)
	assert.Equal(t, "struct", td.Kind)
	_, ok = idx.TypeNamed("Gadget")
	assert.False(t, ok)

	m, ok := idx.Module("internal/a")
	require.True(t, ok)
	assert.Equal(t, 2, m.SymbolCount)

	assert.Equal(t, []string{"internal/b"}, idx.DependenciesOf("internal/a"))
	assert.Empty(t, idx.DependenciesOf("internal/b"))
}

func TestBuilder_SymbolsAppendInOrder(t *testing.T) {
	b := NewBuilder("/proj")
	b.AddSymbol(Symbol{Name: "x", Line: 1})
	b.AddSymbol(Symbol{Name: "x", Line: 2})
	b.AddSymbol(Symbol{Name: "x", Line: 3})
	idx := b.Build()

	syms := idx.SymbolsNamed("x")
	require.Len(t, syms, 3)
	for i, s := range syms {
		assert.Equal(t, i+1, s.Line)
	}
}

func TestBuilder_TypeCollisionLastWins(t *testing.T) {
	b := NewBuilder("/proj")
	b.AddType(TypeDescriptor{Name: "T", Kind: "struct"})
	b.AddType(TypeDescriptor{Name: "T", Kind: "interface"})
	idx := b.Build()

	td, ok := idx.TypeNamed("T")
	require.True(t, ok)
	assert.Equal(t, "interface", td.Kind)
}

func TestBuilder_DependencyFromUnindexedModule(t *testing.T) {
	b := NewBuilder("/proj")
	err := b.AddDependency("internal/ghost", "internal/a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal/ghost")
}

func TestBuilder_DuplicateEdgesCollapse(t *testing.T) {
	b := NewBuilder("/proj")
	b.AddModule(ModuleDescriptor{Path: "m"})
	require.NoError(t, b.AddDependency("m", "n"))
	require.NoError(t, b.AddDependency("m", "n"))
	require.NoError(t, b.AddDependency("m", "a"))
	idx := b.Build()

	// Sorted and deduplicated.
	assert.Equal(t, []string{"a", "n"}, idx.DependenciesOf("m"))
}

func TestBuilder_BuiltAtOverride(t *testing.T) {
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBuilder("/proj")
	b.BuiltAt(stamp)
	assert.Equal(t, stamp, b.Build().BuiltAt())
}

func TestProjectIndex_SortedViews(t *testing.T) {
	idx := newTestIndex(t)

	assert.Equal(t, []string{"Run", "limit"}, idx.SymbolNames())
	assert.Equal(t, []string{"Widget"}, idx.TypeNames())
	assert.Equal(t, []string{"internal/a", "internal/b"}, idx.ModulePaths())
	assert.Equal(t, []string{"internal/a"}, idx.EdgeSources())
}

func TestProjectIndex_Counts(t *testing.T) {
	idx := newTestIndex(t)
	symbols, types, modules, edges := idx.Counts()
	assert.Equal(t, 3, symbols)
	assert.Equal(t, 1, types)
	assert.Equal(t, 2, modules)
	assert.Equal(t, 1, edges)
}

func TestProjectIndex_Equal(t *testing.T) {
	a := newTestIndex(t)
	b := newTestIndex(t)
	assert.True(t, a.Equal(b), "identical content should compare equal despite BuiltAt")

	// Any content difference breaks equality.
	c := NewBuilder("/proj")
	c.AddModule(ModuleDescriptor{Path: "internal/a"})
	assert.False(t, a.Equal(c.Build()))

	d := NewBuilder("/other")
	assert.False(t, d.Build().Equal(NewBuilder("/proj").Build()))
}
