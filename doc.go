// Package lattice caches a codebase's structural catalog (symbols, types,
// modules, and inter-module dependency edges) across two tiers: a hot
// in-process cache with TTL expiry and bounded memory, and a cold on-disk
// store validated against per-file fingerprints. A coordinator ties the
// tiers together so a catalog is re-derived only when the files under a
// project root actually changed.
//
// # Tiers
//
// The hot tier serves repeated queries within one process lifetime. The
// cold tier survives restarts: alongside the serialized catalog it keeps a
// fingerprint of every source file, and a persisted copy is trusted only
// while the current fingerprint still matches. Either tier failing is a
// performance event, never a correctness one; all cache faults degrade to
// "re-index".
//
// # Usage
//
// Create a Coordinator around an analyzer, then ask it for indexes:
//
//	coord := lattice.New(analyzer)
//	defer coord.Close()
//
//	idx, err := coord.GetIndex(ctx, "/path/to/project")
//	if err != nil { ... }
//	syms := idx.SymbolsNamed("ServeHTTP")
//
// The first call per root analyzes and persists; later calls are answered
// from memory, or from disk after a restart, as long as no file under the
// root changed. Concurrent first calls for the same root share one analysis
// (single-flight).
//
// # Invalidation
//
// Feed file-change signals to [Coordinator.ObserveChange], typically from
// the internal watch adapter. A change marks the root stale and drops its
// hot entries; nothing is rebuilt until the next query, so a burst of
// changes (a branch switch, a checkout) costs one re-index, not hundreds.
//
// # Persistence
//
// Two cold-store strategies exist behind one contract: a whole-object JSON
// envelope, and a columnar SQLite layout for large projects. Both embed a
// format version in the cache directory and file names; a reader seeing an
// unknown version treats the cache as absent.
package lattice
