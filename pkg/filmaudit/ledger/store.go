package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by Open when another process holds the ledger lock.
var ErrLocked = errors.New("ledger is locked by another run")

// ErrInvalidBackend is returned for unknown backend names.
var ErrInvalidBackend = errors.New("invalid ledger backend")

// Backend selects the persistence format.
type Backend string

// Supported backends.
const (
	BackendJSON   Backend = "json"
	BackendSQLite Backend = "sqlite"
)

// ParseBackend parses a backend name (case-insensitive).
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case BackendJSON, "":
		return BackendJSON, nil
	case BackendSQLite:
		return BackendSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q (want json or sqlite)", ErrInvalidBackend, s)
	}
}

// Store persists a ledger. Save replaces the whole document atomically.
type Store interface {
	// Load reads the persisted ledger. A store that has never been saved
	// yields an empty ledger.
	Load(ctx context.Context) (*Ledger, error)

	// Save replaces the persisted ledger with l's current state.
	Save(ctx context.Context, l *Ledger) error

	// Close releases the store's resources.
	Close() error
}

// lockedStore holds an exclusive file lock for the lifetime of the store.
type lockedStore struct {
	Store
	lock *flock.Flock
}

// Close closes the underlying store and releases the lock.
func (s *lockedStore) Close() error {
	err := s.Store.Close()
	if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
		err = fmt.Errorf("releasing ledger lock: %w", unlockErr)
	}
	return err
}

// LockPath returns the lock file used for a ledger path.
func LockPath(path string) string {
	return path + ".lock"
}

// Open opens the ledger at path with the given backend and takes an
// exclusive lock beside it. A second concurrent Open fails with ErrLocked.
func Open(backend Backend, path string) (Store, error) {
	if path == "" {
		return nil, errors.New("ledger path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	lock := flock.New(LockPath(path))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring ledger lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	var store Store
	switch backend {
	case BackendJSON:
		store = NewJSONStore(path)
	case BackendSQLite:
		store, err = OpenSQLite(path)
	default:
		err = fmt.Errorf("%w: %q", ErrInvalidBackend, backend)
	}
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	return &lockedStore{Store: store, lock: lock}, nil
}
