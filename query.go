package lattice

import (
	"context"
)

// Derived queries answer common lookups against a root's index. Each result
// is cached in the hot tier under a root-scoped key, so it is dropped
// together with the index whenever the root is invalidated.

// SymbolsNamed returns every symbol with the given name, resolving the
// index first if needed.
func (c *Coordinator) SymbolsNamed(ctx context.Context, projectRoot, name string) ([]Symbol, error) {
	idx, key, err := c.forQuery(ctx, projectRoot, "symbols", name)
	if err != nil {
		return nil, err
	}
	if v, ok := c.hot.Get(key); ok {
		return v.([]Symbol), nil
	}
	syms := idx.SymbolsNamed(name)
	c.hot.Set(key, syms)
	return syms, nil
}

// TypeNamed returns the type descriptor for a name, or nil when the root
// defines no such type.
func (c *Coordinator) TypeNamed(ctx context.Context, projectRoot, name string) (*TypeDescriptor, error) {
	idx, key, err := c.forQuery(ctx, projectRoot, "type", name)
	if err != nil {
		return nil, err
	}
	if v, ok := c.hot.Get(key); ok {
		return v.(*TypeDescriptor), nil
	}
	var out *TypeDescriptor
	if td, ok := idx.TypeNamed(name); ok {
		out = &td
	}
	c.hot.Set(key, out)
	return out, nil
}

// Dependencies returns the module paths the given module depends on.
func (c *Coordinator) Dependencies(ctx context.Context, projectRoot, modulePath string) ([]string, error) {
	idx, err := c.GetIndex(ctx, projectRoot)
	if err != nil {
		return nil, err
	}
	return idx.DependenciesOf(modulePath), nil
}

// Dependents returns the module paths that depend on the given module.
// The reverse edge set is not stored in the catalog, so the scan over all
// edges is cached.
func (c *Coordinator) Dependents(ctx context.Context, projectRoot, modulePath string) ([]string, error) {
	idx, key, err := c.forQuery(ctx, projectRoot, "dependents", modulePath)
	if err != nil {
		return nil, err
	}
	if v, ok := c.hot.Get(key); ok {
		return v.([]string), nil
	}
	var dependents []string
	for _, from := range idx.EdgeSources() {
		for _, to := range idx.DependenciesOf(from) {
			if to == modulePath {
				dependents = append(dependents, from)
				break
			}
		}
	}
	c.hot.Set(key, dependents)
	return dependents, nil
}

// forQuery resolves the index and builds the root-scoped cache key for a
// derived query.
func (c *Coordinator) forQuery(ctx context.Context, projectRoot string, parts ...string) (*ProjectIndex, string, error) {
	idx, err := c.GetIndex(ctx, projectRoot)
	if err != nil {
		return nil, "", err
	}
	return idx, queryKey(idx.ProjectRoot(), parts...), nil
}
