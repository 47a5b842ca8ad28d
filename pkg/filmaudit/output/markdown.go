package output

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/audit"
)

// MarkdownFormatter renders the archival report: summary, file count,
// sequence, checksum and attribute sections, each ending in PASS or ERROR.
type MarkdownFormatter struct{}

// Format writes the report as Markdown.
func (f *MarkdownFormatter) Format(w *bytes.Buffer, r *audit.Report) error {
	t := r.Totals()

	w.WriteString("# AUDIT REPORT\n\n")

	w.WriteString("## Report Summary\n")
	fmt.Fprintf(w, "* Run: %s\n", r.RunID)
	fmt.Fprintf(w, "* Location: %s\n", r.Root)
	fmt.Fprintf(w, "* Started on %s\n", r.Started.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "* Ended on %s\n", r.Finished.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "* Total duration: %s\n", formatDuration(r.Duration()))
	fmt.Fprintf(w, "* Directories: %d, film frames: %d, mag files: %d\n", t.Directories, t.Film, t.Mag)
	if r.Interrupted {
		w.WriteString("\nWARNING: run interrupted before every directory was verified\n")
	}
	w.WriteString("\n")

	f.inventory(w, r)
	f.fileCount(w, r)
	f.sequence(w, r)
	f.checksums(w, r)
	f.attributes(w, r)
	return nil
}

func (f *MarkdownFormatter) inventory(w *bytes.Buffer, r *audit.Report) {
	s := r.Inventory.Summary
	w.WriteString("## Inventory\n")
	fmt.Fprintf(w, "* Records: %d\n", s.Records)
	fmt.Fprintf(w, "* Found: %d\n", s.Found)
	fmt.Fprintf(w, "* Missing: %d\n", s.Missing)
	fmt.Fprintf(w, "* Type confirmed: %d\n", s.TypeConfirmed)
	fmt.Fprintf(w, "* Total size: %s in %d files\n", humanize.IBytes(s.TotalSize), s.TotalFiles)
	if len(r.Inventory.Anomalies) == 0 {
		w.WriteString("\nPASS: every file matched an inventory record\n\n")
		return
	}
	fmt.Fprintf(w, "\nERROR: %d files could not be reconciled\n\n", len(r.Inventory.Anomalies))
	for _, a := range r.Inventory.Anomalies {
		fmt.Fprintf(w, "* %s (%s)\n", a.Path, a.Kind)
	}
	w.WriteString("\n")
}

func (f *MarkdownFormatter) fileCount(w *bytes.Buffer, r *audit.Report) {
	w.WriteString("## File Count\n")
	shown := false
	for _, d := range r.Directories {
		if d.Film == 0 {
			continue
		}
		shown = true
		fmt.Fprintf(w, "\n### %s\n", d.Dir)
		if d.Sequence == nil {
			fmt.Fprintf(w, "* Frame files in folder: %d\n\nERROR: checksum manifest unavailable: %s\n", d.Film, d.ManifestError)
			continue
		}
		fmt.Fprintf(w, "* Frame files in folder: %d\n", d.Sequence.FileCount)
		fmt.Fprintf(w, "* Frame files in manifest: %d\n\n", d.Sequence.ManifestLineCount)
		if d.Sequence.LineCountMatch {
			w.WriteString("PASS: number of frame files in folder == number listed in the checksum manifest\n")
		} else {
			w.WriteString("ERROR: number of frame files in folder != number listed in the checksum manifest\n")
		}
	}
	if !shown {
		w.WriteString("\nNo film directories audited\n")
	}
	w.WriteString("\n")
}

func (f *MarkdownFormatter) sequence(w *bytes.Buffer, r *audit.Report) {
	w.WriteString("## Sequence Validation\n")
	for _, d := range r.Directories {
		if d.Sequence == nil {
			continue
		}
		fmt.Fprintf(w, "\n### %s\n", d.Dir)
		fmt.Fprintf(w, "* First file in sequence: %s\n", d.Sequence.FirstFile)
		fmt.Fprintf(w, "* Last file in sequence: %s\n\n", d.Sequence.LastFile)
		if n := len(d.Sequence.MissingOrdinals); n > 0 {
			fmt.Fprintf(w, "ERROR: %d missing items from file sequence\n\n", n)
			for _, o := range formatOrdinals(d.Sequence.MissingOrdinals) {
				fmt.Fprintf(w, "* %s\n", o)
			}
		} else {
			w.WriteString("PASS: no missing items from file sequence\n")
		}
		for _, s := range d.Sequence.Skipped {
			fmt.Fprintf(w, "* skipped %s: %s\n", filepath.Base(s.Path), s.Error)
		}
	}
	w.WriteString("\n")
}

func (f *MarkdownFormatter) checksums(w *bytes.Buffer, r *audit.Report) {
	w.WriteString("## Checksum Validation\n\n")
	failed := r.ChecksumFailures()
	if len(failed) == 0 {
		w.WriteString("PASS: all checksums verified\n\n")
		return
	}
	fmt.Fprintf(w, "ERROR: %d checksums failed\n\n", len(failed))
	for _, o := range failed {
		fmt.Fprintf(w, "* %s: %s\n", o.Path, checksumReason(o))
	}
	w.WriteString("\n")
}

func (f *MarkdownFormatter) attributes(w *bytes.Buffer, r *audit.Report) {
	w.WriteString("## File Attributes Validation\n\n")
	if !r.AttributesChecked {
		w.WriteString("SKIPPED: attribute inspection disabled\n")
		return
	}
	failed := r.AttributeFailures()
	if len(failed) == 0 {
		w.WriteString("PASS: all files passed profile validation\n")
		return
	}
	fmt.Fprintf(w, "ERROR: %d files failed profile validation\n\n", len(failed))
	for _, o := range failed {
		fmt.Fprintf(w, "* %s: %s\n", o.Path, attributeReason(o))
	}
}

// checksumReason explains why a file did not verify.
func checksumReason(o audit.FileOutcome) string {
	switch {
	case o.ChecksumMissing:
		return "no checksum manifest"
	case o.ChecksumError != "":
		return o.ChecksumError
	case o.Checksum.Expected == "":
		return "manifest line has no digest"
	default:
		return fmt.Sprintf("computed %s, expected %s", o.Checksum.Digest, o.Checksum.Expected)
	}
}

// attributeReason explains why a file failed its profile.
func attributeReason(o audit.FileOutcome) string {
	if o.AttributeError != "" {
		return o.AttributeError
	}
	if o.Attributes == nil {
		return "not inspected"
	}
	parts := make([]string, len(o.Attributes.Mismatches))
	for i, m := range o.Attributes.Mismatches {
		parts[i] = m.String()
	}
	return strings.Join(parts, "; ")
}

func init() {
	Register("markdown", func() Formatter {
		return &MarkdownFormatter{}
	})
}

var _ Formatter = (*MarkdownFormatter)(nil)
