package coldstore

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/jward/lattice/internal/catalog"
	"github.com/jward/lattice/internal/scan"
)

// fingerprintNow computes the current ProjectFingerprint for root: one entry
// per discovered source file, keyed by absolute path. The default marker is
// the modification timestamp; a file rewritten within the filesystem's
// timestamp resolution slips through. Content-hash mode closes that gap by
// reading every tracked file.
//
// Save always calls this fresh; a fingerprint is never reused from an
// earlier in-memory snapshot, so a change signal racing a save cannot be
// absorbed into markers that predate it.
func (b *base) fingerprintNow(root string) (catalog.ProjectFingerprint, error) {
	files, err := scan.SourceFiles(root, scan.Options{Exclude: b.opts.excludes})
	if err != nil {
		return catalog.ProjectFingerprint{}, fmt.Errorf("coldstore: fingerprint %s: %w", root, err)
	}

	pf := catalog.ProjectFingerprint{
		FormatVersion: FormatVersion,
		Files:         make(map[string]catalog.FileFingerprint, len(files)),
	}
	for _, f := range files {
		marker, err := b.fileMarker(f.Path)
		if err != nil {
			// A file that vanished between walk and stat simply drops out;
			// it will surface as a set difference against the stored side.
			continue
		}
		pf.Files[f.Path] = marker
	}
	return pf, nil
}

func (b *base) fileMarker(path string) (string, error) {
	if b.opts.contentHashes {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(info.ModTime().UnixNano(), 10), nil
}
