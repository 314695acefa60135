package catalog

// FileFingerprint is the modification marker for one source file. The marker
// is an opaque string: a modification timestamp by default, a content hash
// when the store is configured for stronger guarantees. Two markers are
// comparable only for equality.
type FileFingerprint = string

// ProjectFingerprint is the full set of file fingerprints under a project
// root at one point in time, plus the serialization format version the
// producing implementation wrote.
type ProjectFingerprint struct {
	FormatVersion string
	Files         map[string]FileFingerprint // keyed by absolute path
}

// FingerprintDiff describes how a current fingerprint differs from a stored
// one. Paths are compared as a set, not as a count, so a same-interval
// delete-plus-add still shows up as Removed and Added.
type FingerprintDiff struct {
	Added   []string // present now, absent from stored
	Removed []string // present in stored, absent now
	Changed []string // present in both with a different marker
}

// Empty reports whether the two fingerprints matched exactly.
func (d FingerprintDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff compares the receiver (the current file state) against a stored
// fingerprint. FormatVersion is not compared here; version checks happen
// before any per-file comparison is worth doing.
func (pf ProjectFingerprint) Diff(stored ProjectFingerprint) FingerprintDiff {
	var d FingerprintDiff
	for path, marker := range pf.Files {
		old, ok := stored.Files[path]
		switch {
		case !ok:
			d.Added = append(d.Added, path)
		case old != marker:
			d.Changed = append(d.Changed, path)
		}
	}
	for path := range stored.Files {
		if _, ok := pf.Files[path]; !ok {
			d.Removed = append(d.Removed, path)
		}
	}
	return d
}
