package cache

import (
	"bytes"
	"encoding/gob"
)

// CacheVersion is incremented when the cache format changes. Entries written
// by another version are treated as misses.
const CacheVersion = 1

// KeySeparator separates the algorithm from the file path in cache keys.
const KeySeparator = '\x00'

// DigestEntry is a cached file digest and the file state it was computed from.
type DigestEntry struct {
	Version int
	Digest  string
	Size    int64 // File size in bytes when hashed
	Mtime   int64 // Modification time as UnixNano when hashed
}

// Encode serializes the entry to bytes using gob.
func (e *DigestEntry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes bytes into the entry using gob.
func (e *DigestEntry) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// Matches reports whether the entry was computed from a file with this size and mtime.
func (e *DigestEntry) Matches(size, mtime int64) bool {
	return e.Version == CacheVersion && e.Size == size && e.Mtime == mtime && e.Digest != ""
}

// MakeKey creates a cache key from an algorithm and an absolute path.
// Format: <algo>\x00<path>
func MakeKey(algo, path string) []byte {
	return []byte(algo + string(KeySeparator) + path)
}

// ParseKey extracts the algorithm and path from a cache key.
func ParseKey(key []byte) (algo, path string) {
	idx := bytes.IndexByte(key, KeySeparator)
	if idx == -1 {
		return string(key), ""
	}
	return string(key[:idx]), string(key[idx+1:])
}

// MakeKeyPrefix returns the prefix for all keys under an algorithm and path prefix.
func MakeKeyPrefix(algo, pathPrefix string) []byte {
	return []byte(algo + string(KeySeparator) + pathPrefix)
}
