// Package ledger holds the inventory of expected archival assets and the
// found/size/type state accumulated for each one during reconciliation.
//
// The ledger is closed: records are created in bulk from a seed before any
// file is seen, and discovered files only ever update existing records.
// All mutation goes through a single mutex so that a parallel verification
// pass can share one ledger without interleaving partial updates.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

// SchemaVersion is the version of the persisted ledger document.
const SchemaVersion = 1

// Sentinel errors returned by ledger operations.
var (
	// ErrRecordNotFound is returned when no record has the requested identity.
	ErrRecordNotFound = errors.New("ledger record not found")

	// ErrDuplicateIdentity is returned when two records share one identity.
	ErrDuplicateIdentity = errors.New("duplicate ledger identity")

	// ErrInvalidRecord is returned for records without an identity or expected kind.
	ErrInvalidRecord = errors.New("invalid ledger record")

	// ErrAlreadyProcessed is returned when a file path has already been applied.
	ErrAlreadyProcessed = errors.New("file already applied to ledger")

	// ErrSchemaVersion is returned when a persisted ledger has an unsupported version.
	ErrSchemaVersion = errors.New("unsupported ledger schema version")
)

// Record is one expected logical asset, keyed by its shelfmark identity.
type Record struct {
	// Identity is the shelfmark, unique within the ledger.
	Identity string `json:"identity"`

	// ExpectedKind is the kind of media the inventory says this asset is.
	ExpectedKind types.AssetKind `json:"expected_type"`

	// Found is set on the first matching file and never cleared by reconciliation.
	Found bool `json:"found"`

	// TypeConfirmed is set once a matching file's kind equals ExpectedKind.
	TypeConfirmed bool `json:"type_confirmed"`

	// Location is the directory of the first matching file.
	Location string `json:"location,omitempty"`

	// AggregateSize is the sum of the sizes of all matching files.
	AggregateSize uint64 `json:"aggregate_size"`

	// FileCount is the number of matching files.
	FileCount uint32 `json:"file_count"`
}

// Document is the persisted form of a ledger.
type Document struct {
	SchemaVersion int      `json:"schema_version"`
	Inventory     []Record `json:"inventory"`
	Processed     []string `json:"processed"`
}

// Match describes one discovered file to apply to a record.
type Match struct {
	// Path is the absolute file path, used for idempotence tracking.
	Path string

	// Identity is the identity derived from the file name.
	Identity string

	// Kind is the asset kind derived from the file extension.
	Kind types.AssetKind

	// Dir is the directory containing the file.
	Dir string

	// Size is the file size in bytes.
	Size uint64
}

// Change reports what applying a Match did to its record.
type Change struct {
	// FirstFound is true when this match flipped Found from false to true.
	FirstFound bool

	// TypeConfirmed is true when this match's kind equals the expected kind.
	TypeConfirmed bool

	// Record is the record state after the match was applied.
	Record Record
}

// Summary aggregates the ledger's state.
type Summary struct {
	Records       int    `json:"records"`
	Found         int    `json:"found"`
	Missing       int    `json:"missing"`
	TypeConfirmed int    `json:"type_confirmed"`
	TypeMismatch  int    `json:"type_mismatch"`
	TotalSize     uint64 `json:"total_size"`
	TotalFiles    uint64 `json:"total_files"`
	Processed     int    `json:"processed"`
}

// Ledger is the in-memory inventory. It is safe for concurrent use.
type Ledger struct {
	mu        sync.RWMutex
	records   []Record
	index     map[string]int
	processed map[string]struct{}
}

// New builds a ledger from seed records, preserving their order.
func New(records []Record) (*Ledger, error) {
	l := &Ledger{
		records:   make([]Record, 0, len(records)),
		index:     make(map[string]int, len(records)),
		processed: make(map[string]struct{}),
	}
	for _, r := range records {
		r.Identity = strings.TrimSpace(r.Identity)
		if r.Identity == "" {
			return nil, fmt.Errorf("%w: empty identity", ErrInvalidRecord)
		}
		if r.ExpectedKind != types.KindFilm && r.ExpectedKind != types.KindMag {
			return nil, fmt.Errorf("%w: %s has no expected type", ErrInvalidRecord, r.Identity)
		}
		if _, dup := l.index[r.Identity]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateIdentity, r.Identity)
		}
		l.index[r.Identity] = len(l.records)
		l.records = append(l.records, r)
	}
	return l, nil
}

// FromDocument rebuilds a ledger from its persisted form.
func FromDocument(doc Document) (*Ledger, error) {
	if doc.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %d (want %d)", ErrSchemaVersion, doc.SchemaVersion, SchemaVersion)
	}
	l, err := New(doc.Inventory)
	if err != nil {
		return nil, err
	}
	for _, p := range doc.Processed {
		l.processed[p] = struct{}{}
	}
	return l, nil
}

// Document returns a snapshot of the ledger suitable for persistence.
// Processed paths are sorted so that identical state serializes identically.
func (l *Ledger) Document() Document {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Document{
		SchemaVersion: SchemaVersion,
		Inventory:     append([]Record(nil), l.records...),
		Processed:     l.processedPathsLocked(),
	}
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Lookup returns a copy of the record with the given identity.
func (l *Ledger) Lookup(identity string) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.index[identity]
	if !ok {
		return Record{}, false
	}
	return l.records[i], true
}

// Records returns a copy of all records in seed order.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Record(nil), l.records...)
}

// MarkFound sets Found and Location on the record if it has not been found
// yet. It reports whether the transition happened.
func (l *Ledger) MarkFound(identity, dir string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.recordLocked(identity)
	if err != nil {
		return false, err
	}
	return markFound(r, dir), nil
}

// Accumulate adds one file of the given size to the record's aggregates.
func (l *Ledger) Accumulate(identity string, size uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.recordLocked(identity)
	if err != nil {
		return err
	}
	accumulate(r, size)
	return nil
}

// ConfirmType sets TypeConfirmed when kind equals the expected kind. The flag
// is never cleared. It reports whether kind matched.
func (l *Ledger) ConfirmType(identity string, kind types.AssetKind) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.recordLocked(identity)
	if err != nil {
		return false, err
	}
	return confirmType(r, kind), nil
}

// Processed reports whether a file path has already been applied.
func (l *Ledger) Processed(path string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.processed[path]
	return ok
}

// MarkProcessed records a file path as applied. It reports false if the path
// was already recorded.
func (l *Ledger) MarkProcessed(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.processed[path]; ok {
		return false
	}
	l.processed[path] = struct{}{}
	return true
}

// Apply performs a complete reconciliation of one file under a single lock:
// it rejects paths already applied, marks the record found, accumulates the
// file's size and confirms its type, then records the path as processed.
// A path that matches no record is not marked processed.
func (l *Ledger) Apply(m Match) (Change, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.processed[m.Path]; ok {
		return Change{}, fmt.Errorf("%w: %s", ErrAlreadyProcessed, m.Path)
	}

	r, err := l.recordLocked(m.Identity)
	if err != nil {
		return Change{}, err
	}

	change := Change{
		FirstFound:    markFound(r, m.Dir),
		TypeConfirmed: confirmType(r, m.Kind),
	}
	accumulate(r, m.Size)
	l.processed[m.Path] = struct{}{}

	change.Record = *r
	return change, nil
}

// Summary returns aggregate counts over all records.
func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Summary{Records: len(l.records), Processed: len(l.processed)}
	for _, r := range l.records {
		if r.Found {
			s.Found++
			if r.TypeConfirmed {
				s.TypeConfirmed++
			} else {
				s.TypeMismatch++
			}
		}
		s.TotalSize += r.AggregateSize
		s.TotalFiles += uint64(r.FileCount)
	}
	s.Missing = s.Records - s.Found
	return s
}

// Missing returns the records that have not been found, in seed order.
func (l *Ledger) Missing() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Record
	for _, r := range l.records {
		if !r.Found {
			out = append(out, r)
		}
	}
	return out
}

// Reset clears all reconciliation state while keeping the records.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.records {
		r := &l.records[i]
		r.Found = false
		r.TypeConfirmed = false
		r.Location = ""
		r.AggregateSize = 0
		r.FileCount = 0
	}
	l.processed = make(map[string]struct{})
}

// recordLocked returns a pointer to the record. Caller must hold l.mu.
func (l *Ledger) recordLocked(identity string) (*Record, error) {
	i, ok := l.index[identity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, identity)
	}
	return &l.records[i], nil
}

func (l *Ledger) processedPathsLocked() []string {
	paths := make([]string, 0, len(l.processed))
	for p := range l.processed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func markFound(r *Record, dir string) bool {
	if r.Found {
		return false
	}
	r.Found = true
	r.Location = dir
	return true
}

func accumulate(r *Record, size uint64) {
	r.AggregateSize += size
	r.FileCount++
}

func confirmType(r *Record, kind types.AssetKind) bool {
	matched := kind == r.ExpectedKind
	if matched {
		r.TypeConfirmed = true
	}
	return matched
}
