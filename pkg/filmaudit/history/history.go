// Package history records finished audit runs as JSON files, one per run,
// so earlier outcomes can be listed and compared.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/audit"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/logging"
)

const entryExt = ".json"

var (
	// ErrNotFound is returned by Get when no run has the given ID.
	ErrNotFound = errors.New("run not found")

	// ErrInvalidID is returned for IDs that cannot name a history file.
	ErrInvalidID = errors.New("invalid run ID")
)

// Store manages run history in a directory.
type Store struct {
	dir string

	// Full keeps the complete report in each entry rather than totals only.
	Full bool

	mu sync.Mutex
}

// New creates a Store rooted at dir. The directory is created on first Save.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("history directory cannot be empty")
	}
	return &Store{dir: dir}, nil
}

// Dir returns the history directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save records a finished run and returns the stored entry.
func (s *Store) Save(r *audit.Report) (*Entry, error) {
	if err := validID(r.RunID); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:          r.RunID,
		Root:        r.Root,
		Started:     r.Started,
		Finished:    r.Finished,
		Interrupted: r.Interrupted,
		Findings:    r.HasFindings(),
		Totals:      r.Totals(),
	}
	if s.Full {
		entry.Report = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	if err := s.write(entry); err != nil {
		return nil, fmt.Errorf("write history entry: %w", err)
	}
	logging.Get("history").Debug("run recorded", "id", entry.ID, "full", s.Full)
	return entry, nil
}

func (s *Store) write(entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	path := filepath.Join(s.dir, entry.ID+entryExt)
	tmp, err := os.CreateTemp(s.dir, "."+entry.ID+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// List returns recorded runs newest first, without their full reports.
// A limit of zero or less returns every run.
func (s *Store) List(limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("read history directory: %w", err)
	}

	entries := []Entry{}
	for _, f := range files {
		if f.IsDir() || !isEntryFile(f.Name()) {
			continue
		}
		entry, err := s.read(f.Name())
		if err != nil {
			logging.Get("history").Warn("skipping unreadable entry", "file", f.Name(), "error", err)
			continue
		}
		entry.Report = nil
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Finished.After(entries[j].Finished)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get returns one run by ID, including its full report when one was kept.
func (s *Store) Get(id string) (*Entry, error) {
	if err := validID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.read(id + entryExt)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entry, err
}

func (s *Store) read(name string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return &entry, nil
}

// Cleanup removes entries last written more than retentionDays ago and
// returns how many were removed. A retention of zero or less keeps all.
func (s *Store) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read history directory: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, f := range files {
		if f.IsDir() || !isEntryFile(f.Name()) {
			continue
		}
		info, err := f.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, f.Name())); err != nil {
			logging.Get("history").Warn("cleanup failed", "file", f.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func isEntryFile(name string) bool {
	return strings.HasSuffix(name, entryExt) && !strings.HasPrefix(name, ".")
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
