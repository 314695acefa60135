package lattice

import (
	"errors"
	"fmt"
)

// AnalysisError reports that the external analyzer failed for a root. It is
// the only cache-path failure surfaced to query callers: with no index to
// serve there is nothing to degrade to. Every other fault class (transient
// I/O, corrupt cache files, format version mismatches) is absorbed as a
// cache miss.
type AnalysisError struct {
	Root string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("lattice: analysis of %s failed: %v", e.Root, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// IsAnalysisError reports whether err wraps an AnalysisError.
func IsAnalysisError(err error) bool {
	var ae *AnalysisError
	return errors.As(err, &ae)
}
