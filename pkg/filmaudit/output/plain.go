package output

import (
	"bytes"
	"fmt"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/audit"
)

// PlainFormatter writes one tab-separated line per finding, suited to grep
// and awk. A run with no findings writes nothing.
//
//	checksum	<path>	<reason>
//	attributes	<path>	<reason>
//	missing_frame	<dir>	<ordinals>
//	line_count	<dir>	<files>/<lines>
//	manifest	<dir>	<error>
//	anomaly	<path>	<kind>
type PlainFormatter struct{}

// Format writes the findings.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *audit.Report) error {
	for _, a := range r.Inventory.Anomalies {
		fmt.Fprintf(w, "anomaly\t%s\t%s\n", a.Path, a.Kind)
	}
	for _, d := range r.Directories {
		if d.ManifestError != "" {
			fmt.Fprintf(w, "manifest\t%s\t%s\n", d.Dir, d.ManifestError)
		}
	}
	for _, d := range r.LineCountMismatches() {
		fmt.Fprintf(w, "line_count\t%s\t%d/%d\n", d.Dir, d.Sequence.FileCount, d.Sequence.ManifestLineCount)
	}
	for _, g := range r.MissingFrames() {
		for _, o := range formatOrdinals(g.Ordinals) {
			fmt.Fprintf(w, "missing_frame\t%s\t%s\n", g.Dir, o)
		}
	}
	for _, o := range r.ChecksumFailures() {
		fmt.Fprintf(w, "checksum\t%s\t%s\n", o.Path, checksumReason(o))
	}
	for _, o := range r.AttributeFailures() {
		fmt.Fprintf(w, "attributes\t%s\t%s\n", o.Path, attributeReason(o))
	}
	return nil
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
