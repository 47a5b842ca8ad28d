package audit

import (
	"sort"
	"time"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/checksum"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/inventory"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/ledger"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/profile"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/sequence"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

// Report is the complete outcome of one run.
type Report struct {
	RunID    string    `json:"run_id" yaml:"run_id"`
	Root     string    `json:"root" yaml:"root"`
	Started  time.Time `json:"started" yaml:"started"`
	Finished time.Time `json:"finished" yaml:"finished"`

	// Interrupted is true when the run was cancelled before every
	// directory was verified.
	Interrupted bool `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`

	// AttributesChecked is false when attribute inspection was disabled.
	AttributesChecked bool `json:"attributes_checked" yaml:"attributes_checked"`

	Inventory   InventoryReport   `json:"inventory" yaml:"inventory"`
	Directories []DirectoryReport `json:"directories" yaml:"directories"`
	Files       []FileOutcome     `json:"files" yaml:"files"`
	ScanErrors  []types.ScanError `json:"scan_errors,omitempty" yaml:"scan_errors,omitempty"`
}

// InventoryReport summarises the reconciliation pass.
type InventoryReport struct {
	Reconciled int                 `json:"reconciled" yaml:"reconciled"`
	Repeats    int                 `json:"repeats" yaml:"repeats"`
	Anomalies  []inventory.Anomaly `json:"anomalies,omitempty" yaml:"anomalies,omitempty"`
	Summary    ledger.Summary      `json:"summary" yaml:"summary"`

	// Missing lists ledger records no file has matched yet.
	Missing []ledger.Record `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// DirectoryReport is the per-directory verification outcome.
type DirectoryReport struct {
	Dir  string `json:"dir" yaml:"dir"`
	Film int    `json:"film" yaml:"film"`
	Mag  int    `json:"mag" yaml:"mag"`

	// Manifest is the shared film manifest, empty for mag-only directories.
	Manifest string `json:"manifest,omitempty" yaml:"manifest,omitempty"`

	// ManifestError is set when film frames exist but no shared manifest
	// could be read; the directory's checksum and sequence checks failed.
	ManifestError string `json:"manifest_error,omitempty" yaml:"manifest_error,omitempty"`

	// Sequence is the continuity result, nil when not checked.
	Sequence *sequence.Result `json:"sequence,omitempty" yaml:"sequence,omitempty"`
}

// FileOutcome is the verification outcome of one file.
type FileOutcome struct {
	Path string          `json:"path" yaml:"path"`
	Dir  string          `json:"dir" yaml:"dir"`
	Kind types.AssetKind `json:"kind" yaml:"kind"`
	Size int64           `json:"size" yaml:"size"`

	ChecksumVerified   bool `json:"checksum_verified" yaml:"checksum_verified"`
	AttributesVerified bool `json:"attributes_verified" yaml:"attributes_verified"`

	// Manifest is the manifest consulted for this file.
	Manifest string `json:"manifest,omitempty" yaml:"manifest,omitempty"`

	// ChecksumMissing is true when no manifest was available for the file.
	ChecksumMissing bool            `json:"checksum_missing,omitempty" yaml:"checksum_missing,omitempty"`
	Checksum        checksum.Result `json:"checksum" yaml:"checksum"`
	ChecksumError   string          `json:"checksum_error,omitempty" yaml:"checksum_error,omitempty"`

	Attributes     *profile.Comparison `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	AttributeError string              `json:"attribute_error,omitempty" yaml:"attribute_error,omitempty"`
}

// Gap lists the frames missing from one directory.
type Gap struct {
	Dir      string   `json:"dir" yaml:"dir"`
	Ordinals []uint64 `json:"ordinals" yaml:"ordinals"`
}

// Totals are the headline counts of a report.
type Totals struct {
	Directories         int `json:"directories" yaml:"directories"`
	Files               int `json:"files" yaml:"files"`
	Film                int `json:"film" yaml:"film"`
	Mag                 int `json:"mag" yaml:"mag"`
	ChecksumVerified    int `json:"checksum_verified" yaml:"checksum_verified"`
	ChecksumFailed      int `json:"checksum_failed" yaml:"checksum_failed"`
	ChecksumMissing     int `json:"checksum_missing" yaml:"checksum_missing"`
	AttributesVerified  int `json:"attributes_verified" yaml:"attributes_verified"`
	AttributesFailed    int `json:"attributes_failed" yaml:"attributes_failed"`
	MissingFrames       int `json:"missing_frames" yaml:"missing_frames"`
	LineCountMismatches int `json:"line_count_mismatches" yaml:"line_count_mismatches"`
	ManifestErrors      int `json:"manifest_errors" yaml:"manifest_errors"`
	Anomalies           int `json:"anomalies" yaml:"anomalies"`
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// ChecksumFailures returns files whose checksum did not verify, including
// files with no manifest entry or an unreadable manifest.
func (r *Report) ChecksumFailures() []FileOutcome {
	var out []FileOutcome
	for _, f := range r.Files {
		if !f.ChecksumVerified {
			out = append(out, f)
		}
	}
	return out
}

// AttributeFailures returns files whose attributes did not match their
// profile or could not be inspected. Empty when inspection was disabled.
func (r *Report) AttributeFailures() []FileOutcome {
	if !r.AttributesChecked {
		return nil
	}
	var out []FileOutcome
	for _, f := range r.Files {
		if !f.AttributesVerified {
			out = append(out, f)
		}
	}
	return out
}

// MissingFrames returns the directories with sequence gaps, in directory order.
func (r *Report) MissingFrames() []Gap {
	var out []Gap
	for _, d := range r.Directories {
		if d.Sequence != nil && len(d.Sequence.MissingOrdinals) > 0 {
			out = append(out, Gap{Dir: d.Dir, Ordinals: d.Sequence.MissingOrdinals})
		}
	}
	return out
}

// LineCountMismatches returns directories whose frame count differs from
// their manifest's line count.
func (r *Report) LineCountMismatches() []DirectoryReport {
	var out []DirectoryReport
	for _, d := range r.Directories {
		if d.Sequence != nil && !d.Sequence.LineCountMatch {
			out = append(out, d)
		}
	}
	return out
}

// Totals computes the headline counts.
func (r *Report) Totals() Totals {
	t := Totals{
		Directories: len(r.Directories),
		Files:       len(r.Files),
		Anomalies:   len(r.Inventory.Anomalies),
	}
	for _, f := range r.Files {
		switch f.Kind {
		case types.KindFilm:
			t.Film++
		case types.KindMag:
			t.Mag++
		}
		switch {
		case f.ChecksumVerified:
			t.ChecksumVerified++
		case f.ChecksumMissing:
			t.ChecksumMissing++
		default:
			t.ChecksumFailed++
		}
		if r.AttributesChecked {
			if f.AttributesVerified {
				t.AttributesVerified++
			} else {
				t.AttributesFailed++
			}
		}
	}
	for _, d := range r.Directories {
		if d.ManifestError != "" {
			t.ManifestErrors++
		}
		if d.Sequence != nil {
			t.MissingFrames += len(d.Sequence.MissingOrdinals)
			if !d.Sequence.LineCountMatch {
				t.LineCountMismatches++
			}
		}
	}
	return t
}

// HasFindings reports whether anything needs an archivist's attention.
func (r *Report) HasFindings() bool {
	t := r.Totals()
	return t.ChecksumFailed+t.ChecksumMissing+t.AttributesFailed+t.MissingFrames+
		t.LineCountMismatches+t.ManifestErrors+t.Anomalies > 0
}

// sortFiles orders outcomes by path so reports do not depend on worker
// scheduling.
func (r *Report) sortFiles() {
	sort.SliceStable(r.Files, func(i, j int) bool { return r.Files[i].Path < r.Files[j].Path })
}
