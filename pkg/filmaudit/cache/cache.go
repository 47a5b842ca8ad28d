// Package cache keeps computed file digests across runs so that a resumed
// audit of a multi-terabyte transfer does not re-hash files that have not
// changed. An entry is trusted only while the file's size and modification
// time are unchanged.
package cache

import (
	"context"
	"errors"
	"os"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/checksum"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/logging"
)

// DigestCache provides validated digest lookups.
type DigestCache struct {
	store *Store
}

// Open opens or creates a digest cache at the given directory.
func Open(path string) (*DigestCache, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}
	return &DigestCache{store: store}, nil
}

// Close closes the cache.
func (c *DigestCache) Close() error {
	return c.store.Close()
}

// Get returns the cached digest for path if it was computed from a file
// with the given size and mtime.
func (c *DigestCache) Get(path string, size, mtime int64, algo string) (string, bool, error) {
	entry, err := c.store.Get(algo, path)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !entry.Matches(size, mtime) {
		return "", false, nil
	}
	return entry.Digest, true, nil
}

// Put records the digest of path at the given size and mtime.
func (c *DigestCache) Put(path string, size, mtime int64, algo, digest string) error {
	return c.store.Put(algo, path, &DigestEntry{
		Version: CacheVersion,
		Digest:  digest,
		Size:    size,
		Mtime:   mtime,
	})
}

// Clear removes all entries under pathPrefix. An empty prefix clears everything.
func (c *DigestCache) Clear(algo, pathPrefix string) (int, error) {
	return c.store.DeletePrefix(algo, pathPrefix)
}

// Len returns the number of cached digests for algo.
func (c *DigestCache) Len(algo string) (int, error) {
	return c.store.Count(algo)
}

// CachedHasher serves digests from a DigestCache, falling back to an inner
// hasher on a miss and recording the result.
type CachedHasher struct {
	Hasher checksum.Hasher
	Cache  *DigestCache
	Algo   string

	log *logging.Logger
}

// NewCachedHasher wraps inner with cache.
func NewCachedHasher(inner checksum.Hasher, cache *DigestCache) *CachedHasher {
	return &CachedHasher{
		Hasher: inner,
		Cache:  cache,
		Algo:   checksum.Algorithm,
		log:    logging.Get("cache"),
	}
}

var _ checksum.Hasher = (*CachedHasher)(nil)

// Digest returns the cached digest when the file is unchanged, otherwise it
// hashes the file and stores the result. Cache failures are logged and
// never fail the digest.
func (h *CachedHasher) Digest(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		// Let the inner hasher produce the canonical unreadable error.
		return h.Hasher.Digest(ctx, path)
	}
	size, mtime := info.Size(), info.ModTime().UnixNano()

	if digest, ok, err := h.Cache.Get(path, size, mtime, h.Algo); err != nil {
		h.logger().Warn("digest cache read failed", "path", path, "error", err)
	} else if ok {
		h.logger().Debug("digest cache hit", "path", path)
		return digest, nil
	}

	digest, err := h.Hasher.Digest(ctx, path)
	if err != nil {
		return "", err
	}

	if err := h.Cache.Put(path, size, mtime, h.Algo, digest); err != nil {
		h.logger().Warn("digest cache write failed", "path", path, "error", err)
	}
	return digest, nil
}

func (h *CachedHasher) logger() *logging.Logger {
	if h.log != nil {
		return h.log
	}
	return logging.Get("cache")
}
