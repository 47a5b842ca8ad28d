package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/checksum"
)

type countingHasher struct {
	calls  int
	digest string
	err    error
}

func (h *countingHasher) Digest(_ context.Context, _ string) (string, error) {
	h.calls++
	return h.digest, h.err
}

func openCache(t *testing.T) *DigestCache {
	t.Helper()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKeyRoundTrip(t *testing.T) {
	key := MakeKey("md5", "/archive/reel1/frame_00000001.dpx")
	algo, path := ParseKey(key)
	if algo != "md5" || path != "/archive/reel1/frame_00000001.dpx" {
		t.Errorf("ParseKey = (%q, %q)", algo, path)
	}

	algo, path = ParseKey([]byte("bare"))
	if algo != "bare" || path != "" {
		t.Errorf("ParseKey without separator = (%q, %q)", algo, path)
	}
}

func TestDigestEntryMatches(t *testing.T) {
	e := &DigestEntry{Version: CacheVersion, Digest: "abc", Size: 10, Mtime: 99}

	if !e.Matches(10, 99) {
		t.Error("expected match for identical size and mtime")
	}
	if e.Matches(11, 99) {
		t.Error("size change must invalidate")
	}
	if e.Matches(10, 100) {
		t.Error("mtime change must invalidate")
	}

	old := *e
	old.Version = CacheVersion + 1
	if old.Matches(10, 99) {
		t.Error("other cache version must invalidate")
	}
}

func TestStoreGetPut(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.Get("md5", "/a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	entry := &DigestEntry{Version: CacheVersion, Digest: "d41d8cd98f00b204e9800998ecf8427e", Size: 0, Mtime: 1}
	if err := store.Put("md5", "/a", entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get("md5", "/a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if *got != *entry {
		t.Errorf("Get = %+v, want %+v", got, entry)
	}

	if err := store.Delete("md5", "/a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get("md5", "/a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStoreBatchAndPrefix(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	entries := map[string]*DigestEntry{
		"/reel1/a.dpx": {Version: CacheVersion, Digest: "a"},
		"/reel1/b.dpx": {Version: CacheVersion, Digest: "b"},
		"/reel2/c.dpx": {Version: CacheVersion, Digest: "c"},
	}
	if err := store.PutBatch("md5", entries); err != nil {
		t.Fatalf("PutBatch failed: %v", err)
	}

	n, err := store.Count("md5")
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, %v; want 3", n, err)
	}

	removed, err := store.DeletePrefix("md5", "/reel1/")
	if err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	if _, err := store.Get("md5", "/reel2/c.dpx"); err != nil {
		t.Errorf("entry outside prefix should survive: %v", err)
	}
}

func TestCachedHasher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tape.wav")
	if err := os.WriteFile(path, []byte("pcm"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := openCache(t)
	inner := &countingHasher{digest: "0123456789abcdef0123456789abcdef"}
	h := NewCachedHasher(inner, c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := h.Digest(ctx, path)
		if err != nil {
			t.Fatalf("Digest failed: %v", err)
		}
		if got != inner.digest {
			t.Errorf("Digest = %q, want %q", got, inner.digest)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner hasher called %d times, want 1", inner.calls)
	}

	// A modified file is re-hashed.
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Digest(ctx, path); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("inner hasher called %d times after touch, want 2", inner.calls)
	}
}

func TestCachedHasherMissingFile(t *testing.T) {
	c := openCache(t)
	h := NewCachedHasher(checksum.NewMD5Hasher(0), c)

	_, err := h.Digest(context.Background(), filepath.Join(t.TempDir(), "gone.wav"))
	if !errors.Is(err, checksum.ErrUnreadableFile) {
		t.Errorf("expected ErrUnreadableFile, got %v", err)
	}

	n, err := c.Len(checksum.Algorithm)
	if err != nil || n != 0 {
		t.Errorf("Len = %d, %v; want 0", n, err)
	}
}

func TestCachedHasherDoesNotCacheFailures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tape.wav")
	if err := os.WriteFile(path, []byte("pcm"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := openCache(t)
	inner := &countingHasher{err: checksum.ErrUnreadableFile}
	h := NewCachedHasher(inner, c)

	for i := 0; i < 2; i++ {
		if _, err := h.Digest(context.Background(), path); !errors.Is(err, checksum.ErrUnreadableFile) {
			t.Fatalf("expected ErrUnreadableFile, got %v", err)
		}
	}
	if inner.calls != 2 {
		t.Errorf("inner hasher called %d times, want 2", inner.calls)
	}
}
