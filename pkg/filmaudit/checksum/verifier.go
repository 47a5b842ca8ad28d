package checksum

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/logging"
)

// DefaultManifestExt is the checksum manifest extension.
const DefaultManifestExt = ".md5"

// Result is the outcome of verifying one file.
type Result struct {
	// Found is true when the manifest has a line for the file.
	Found bool `json:"found"`

	// Verified is true when the computed digest equals the expected one.
	// It is only meaningful when Found is true.
	Verified bool `json:"verified"`

	// Digest is the computed digest, empty when Found is false.
	Digest string `json:"digest,omitempty"`

	// Expected is the digest taken from the manifest line.
	Expected string `json:"expected,omitempty"`

	// Ambiguous is true when more than one manifest line contains the file name.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// Verifier checks files against manifests.
type Verifier struct {
	hasher  Hasher
	indexes *IndexCache
	log     *logging.Logger
}

// NewVerifier returns a verifier using hasher for digests and cache for
// parsed manifests. A nil cache gets a default-sized one.
func NewVerifier(hasher Hasher, cache *IndexCache) *Verifier {
	if cache == nil {
		cache = NewIndexCache(DefaultIndexCacheSize)
	}
	return &Verifier{
		hasher:  hasher,
		indexes: cache,
		log:     logging.Get("checksum"),
	}
}

// Verify looks the file up in the manifest and, if listed, compares its
// digest case-insensitively with the manifest's.
//
// The manifest is read before any hashing: an unavailable manifest returns
// ErrManifestUnavailable without touching the file. A file the manifest does
// not list returns Found=false and is not hashed.
func (v *Verifier) Verify(ctx context.Context, filePath, manifestPath string) (Result, error) {
	idx, err := v.indexes.Get(manifestPath)
	if err != nil {
		return Result{}, err
	}

	name := filepath.Base(filePath)
	entry, ok := idx.Lookup(name)
	if !ok {
		v.log.Warn("file not listed in manifest", "file", name, "manifest", manifestPath)
		return Result{}, nil
	}

	result := Result{
		Found:     true,
		Expected:  entry.Digest,
		Ambiguous: idx.Ambiguous(name),
	}
	if result.Ambiguous {
		v.log.Warn("file name matches more than one manifest line; using the first",
			"file", name, "manifest", manifestPath, "line", entry.Line)
	}

	digest, err := v.hasher.Digest(ctx, filePath)
	if err != nil {
		return result, err
	}
	result.Digest = digest
	result.Verified = entry.Digest != "" && strings.EqualFold(digest, entry.Digest)

	if result.Verified {
		v.log.Debug("checksum verified", "file", name)
	} else {
		v.log.Error("checksum mismatch", "file", filePath, "computed", digest, "expected", entry.Digest)
	}
	return result, nil
}

// SidecarPath returns the per-file manifest path for file.
func SidecarPath(file, ext string) string {
	if ext == "" {
		ext = DefaultManifestExt
	}
	return file + ext
}

// FindDirectoryManifest returns the shared manifest in dir: the first file
// with the given extension in name order.
func FindDirectoryManifest(dir, ext string) (string, error) {
	if ext == "" {
		ext = DefaultManifestExt
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrManifestUnavailable, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ext) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: no %s file in %s", ErrManifestUnavailable, ext, dir)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0]), nil
}

// PickManifest selects the shared manifest from already discovered
// candidates, using the same ordering as FindDirectoryManifest.
func PickManifest(dir string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no manifest in %s", ErrManifestUnavailable, dir)
	}
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	return sorted[0], nil
}
