// Package inventory reconciles discovered files against the ledger.
package inventory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/ledger"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/logging"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/naming"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

// ErrAlreadyReconciled is returned when a path has already been applied to the ledger.
var ErrAlreadyReconciled = errors.New("file already reconciled")

// ErrUnreadableFile is returned when a file's size cannot be determined.
var ErrUnreadableFile = errors.New("file unreadable")

// AnomalyKind classifies a file that could not be reconciled.
type AnomalyKind string

// Anomaly kinds.
const (
	AnomalyUnrecognizedType AnomalyKind = "unrecognized_type"
	AnomalyBadName          AnomalyKind = "bad_name"
	AnomalyRecordNotFound   AnomalyKind = "record_not_found"
	AnomalyUnreadable       AnomalyKind = "unreadable"
)

// Result describes the reconciliation of one file.
type Result struct {
	Path          string          `json:"path"`
	Identity      string          `json:"identity"`
	Kind          types.AssetKind `json:"kind"`
	FirstFound    bool            `json:"first_found"`
	TypeConfirmed bool            `json:"type_confirmed"`
}

// Anomaly is a file skipped from reconciliation.
type Anomaly struct {
	Path     string      `json:"path"`
	Identity string      `json:"identity,omitempty"`
	Kind     AnomalyKind `json:"kind"`
	Error    string      `json:"error"`
}

// BatchResult collects the outcome of reconciling one batch of files.
type BatchResult struct {
	Reconciled []Result  `json:"reconciled"`
	Anomalies  []Anomaly `json:"anomalies"`

	// Repeats counts files skipped because an earlier run already applied them.
	Repeats int `json:"repeats"`
}

// Reconciler applies discovered files to a ledger.
type Reconciler struct {
	ledger      *ledger.Ledger
	conventions naming.Conventions
	log         *logging.Logger
}

// NewReconciler returns a reconciler over l using the given naming conventions.
func NewReconciler(l *ledger.Ledger, c naming.Conventions) *Reconciler {
	return &Reconciler{
		ledger:      l,
		conventions: c,
		log:         logging.Get("inventory"),
	}
}

// Reconcile derives the file's identity and kind, then marks the matching
// record found, accumulates the file's size and confirms its type.
//
// A path that was already applied returns ErrAlreadyReconciled and leaves
// the ledger unchanged. Files whose name matches no record are not inserted.
func (r *Reconciler) Reconcile(file types.FileInfo) (Result, error) {
	path := file.Path
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	if r.ledger.Processed(path) {
		return Result{}, fmt.Errorf("%w: %s", ErrAlreadyReconciled, path)
	}

	asset, err := naming.Classify(path, r.conventions)
	if err != nil {
		return Result{Path: path}, err
	}

	size := file.Size
	if file.ModTime.IsZero() {
		info, statErr := os.Stat(path)
		if statErr != nil {
			return Result{Path: path, Identity: asset.Identity, Kind: asset.Kind},
				fmt.Errorf("%w: %v", ErrUnreadableFile, statErr)
		}
		size = info.Size()
	}
	if size < 0 {
		size = 0
	}

	change, err := r.ledger.Apply(ledger.Match{
		Path:     path,
		Identity: asset.Identity,
		Kind:     asset.Kind,
		Dir:      filepath.Dir(path),
		Size:     uint64(size),
	})
	result := Result{
		Path:          path,
		Identity:      asset.Identity,
		Kind:          asset.Kind,
		FirstFound:    change.FirstFound,
		TypeConfirmed: change.TypeConfirmed,
	}
	if errors.Is(err, ledger.ErrAlreadyProcessed) {
		return result, fmt.Errorf("%w: %s", ErrAlreadyReconciled, path)
	}
	if err != nil {
		return result, err
	}

	if change.FirstFound {
		r.log.Info("record found", "identity", asset.Identity, "location", change.Record.Location)
	}
	if !change.TypeConfirmed {
		r.log.Warn("type disagrees with inventory",
			"identity", asset.Identity,
			"expected", change.Record.ExpectedKind,
			"derived", asset.Kind,
			"path", path)
	}
	return result, nil
}

// ReconcileBatch reconciles every file, collecting anomalies instead of
// stopping at the first failure.
func (r *Reconciler) ReconcileBatch(files []types.FileInfo) BatchResult {
	var batch BatchResult
	for _, f := range files {
		res, err := r.Reconcile(f)
		switch {
		case err == nil:
			batch.Reconciled = append(batch.Reconciled, res)
		case errors.Is(err, ErrAlreadyReconciled):
			batch.Repeats++
			r.log.Debug("skipping already reconciled file", "path", f.Path)
		default:
			anomaly := Anomaly{
				Path:     res.Path,
				Identity: res.Identity,
				Kind:     classify(err),
				Error:    err.Error(),
			}
			if anomaly.Path == "" {
				anomaly.Path = f.Path
			}
			batch.Anomalies = append(batch.Anomalies, anomaly)
			r.log.Error("file not reconciled", "path", anomaly.Path, "reason", anomaly.Kind, "error", err)
		}
	}
	return batch
}

func classify(err error) AnomalyKind {
	switch {
	case errors.Is(err, naming.ErrUnrecognizedFileType):
		return AnomalyUnrecognizedType
	case errors.Is(err, naming.ErrBadFrameName):
		return AnomalyBadName
	case errors.Is(err, ledger.ErrRecordNotFound):
		return AnomalyRecordNotFound
	default:
		return AnomalyUnreadable
	}
}
