package lattice

import "github.com/jward/lattice/internal/catalog"

// Public type aliases for internal catalog types used in the Coordinator
// API. These are Go type aliases (=), identical to the internal types at
// compile time. External consumers use these names; no conversion is needed.

type ProjectIndex = catalog.ProjectIndex
type Builder = catalog.Builder
type Symbol = catalog.Symbol
type TypeDescriptor = catalog.TypeDescriptor
type ModuleDescriptor = catalog.ModuleDescriptor
type ProjectFingerprint = catalog.ProjectFingerprint
type FingerprintDiff = catalog.FingerprintDiff

// NewBuilder creates a Builder for the given project root. Analyzer
// implementations use it to assemble the ProjectIndex they return.
func NewBuilder(projectRoot string) *Builder {
	return catalog.NewBuilder(projectRoot)
}
