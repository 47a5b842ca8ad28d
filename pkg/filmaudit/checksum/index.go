package checksum

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrManifestUnavailable is returned when a checksum manifest is missing or unreadable.
var ErrManifestUnavailable = errors.New("checksum manifest unavailable")

// Entry is one manifest line.
type Entry struct {
	// Line is the 1-based line number in the manifest.
	Line int

	// Digest is the expected digest: the first 32 characters of the line,
	// or empty when the line is shorter than a digest.
	Digest string

	// Text is the full line with any trailing carriage return removed.
	Text string
}

// Index is a parsed checksum manifest.
type Index struct {
	path    string
	entries []Entry
}

// ParseIndex reads every line of the manifest at path.
func ParseIndex(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestUnavailable, err)
	}
	defer f.Close()

	idx := &Index{path: path}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		text := strings.TrimSuffix(scanner.Text(), "\r")
		entry := Entry{Line: n, Text: text}
		if len(text) >= DigestLen {
			entry.Digest = text[:DigestLen]
		}
		idx.entries = append(idx.entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrManifestUnavailable, path, err)
	}
	return idx, nil
}

// Path returns the manifest path.
func (idx *Index) Path() string {
	return idx.path
}

// LineCount returns the number of records in the manifest. A final line
// without a trailing newline still counts.
func (idx *Index) LineCount() int {
	return len(idx.entries)
}

// Entries returns the parsed lines.
func (idx *Index) Entries() []Entry {
	return idx.entries
}

// Lookup returns the first line containing name as a substring.
//
// The match is deliberately loose: manifest lines carry a digest, a
// separator and a path in no fixed format. A name that is a substring of
// another file's name can therefore match the wrong line; see Ambiguous.
func (idx *Index) Lookup(name string) (Entry, bool) {
	if name == "" {
		return Entry{}, false
	}
	for _, e := range idx.entries {
		if strings.Contains(e.Text, name) {
			return e, true
		}
	}
	return Entry{}, false
}

// Ambiguous reports whether more than one line contains name.
func (idx *Index) Ambiguous(name string) bool {
	if name == "" {
		return false
	}
	matches := 0
	for _, e := range idx.entries {
		if strings.Contains(e.Text, name) {
			matches++
			if matches > 1 {
				return true
			}
		}
	}
	return false
}

// DefaultIndexCacheSize is the number of parsed manifests kept in memory.
const DefaultIndexCacheSize = 64

// IndexCache keeps recently parsed manifests so a shared directory manifest
// is read once rather than once per frame.
type IndexCache struct {
	lru *lru.Cache[string, *Index]
}

// NewIndexCache returns a cache holding up to size manifests.
func NewIndexCache(size int) *IndexCache {
	if size <= 0 {
		size = DefaultIndexCacheSize
	}
	c, err := lru.New[string, *Index](size)
	if err != nil {
		// Only returned for non-positive sizes, which are excluded above.
		panic(err)
	}
	return &IndexCache{lru: c}
}

// Get returns the parsed manifest at path, parsing it on a miss.
// Failures are not cached.
func (c *IndexCache) Get(path string) (*Index, error) {
	if idx, ok := c.lru.Get(path); ok {
		return idx, nil
	}
	idx, err := ParseIndex(path)
	if err != nil {
		return nil, err
	}
	c.lru.Add(path, idx)
	return idx, nil
}

// Forget drops a manifest from the cache.
func (c *IndexCache) Forget(path string) {
	c.lru.Remove(path)
}

// Len returns the number of cached manifests.
func (c *IndexCache) Len() int {
	return c.lru.Len()
}
