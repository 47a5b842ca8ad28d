// Package checksum verifies file integrity against MD5 checksum manifests.
//
// Two manifest layouts are supported: a sidecar manifest per file (mag
// audio, "<file>.md5") and one shared manifest per directory covering every
// frame of a film scan. The verifier itself does not care which is used.
package checksum

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultChunkSize is the read size used when streaming files through the digest.
const DefaultChunkSize = 8192

// DigestLen is the length of a hex-encoded MD5 digest.
const DigestLen = 32

// ErrUnreadableFile is returned when a file cannot be opened or read.
var ErrUnreadableFile = errors.New("file unreadable")

// Hasher computes the content digest of a file.
type Hasher interface {
	// Digest returns the lowercase hex digest of the file at path.
	Digest(ctx context.Context, path string) (string, error)
}

// Algorithm names the digest algorithm for cache keys and reports.
const Algorithm = "md5"

// MD5Hasher streams files through MD5 in fixed-size chunks.
type MD5Hasher struct {
	// ChunkSize is the read buffer size. Zero uses DefaultChunkSize.
	ChunkSize int

	pool sync.Pool
}

// NewMD5Hasher returns a hasher reading chunkSize bytes at a time.
func NewMD5Hasher(chunkSize int) *MD5Hasher {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &MD5Hasher{ChunkSize: chunkSize}
}

// Digest streams the file through MD5. The context is checked before the
// file is opened; a digest that has started runs to completion.
func (h *MD5Hasher) Digest(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	defer f.Close()

	buf := h.buffer()
	defer h.pool.Put(buf)

	sum := md5.New()
	if _, err := io.CopyBuffer(sum, struct{ io.Reader }{f}, *buf); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnreadableFile, path, err)
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

func (h *MD5Hasher) buffer() *[]byte {
	if b, ok := h.pool.Get().(*[]byte); ok {
		return b
	}
	size := h.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	b := make([]byte, size)
	return &b
}
