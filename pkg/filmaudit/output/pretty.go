package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/audit"
)

// maxListed caps the failures listed per section; the rest are counted.
const maxListed = 20

// PrettyFormatter renders a styled terminal summary.
type PrettyFormatter struct{}

// Format writes the styled report.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *audit.Report) error {
	t := r.Totals()

	w.WriteString(f.header(r, t))
	w.WriteString("\n")

	f.section(w, "Inventory", len(r.Inventory.Anomalies) == 0,
		fmt.Sprintf("%d of %d records found, %s in %s files",
			r.Inventory.Summary.Found, r.Inventory.Summary.Records,
			humanize.IBytes(r.Inventory.Summary.TotalSize),
			humanize.Comma(int64(r.Inventory.Summary.TotalFiles))),
		anomalyLines(r))

	f.section(w, "Sequence", t.MissingFrames == 0 && t.LineCountMismatches == 0 && t.ManifestErrors == 0,
		fmt.Sprintf("%d missing frames, %d count mismatches, %d unreadable manifests",
			t.MissingFrames, t.LineCountMismatches, t.ManifestErrors),
		sequenceLines(r))

	f.section(w, "Checksums", t.ChecksumFailed == 0 && t.ChecksumMissing == 0,
		fmt.Sprintf("%d verified, %d failed, %d without manifest", t.ChecksumVerified, t.ChecksumFailed, t.ChecksumMissing),
		outcomeLines(r.ChecksumFailures(), checksumReason))

	if r.AttributesChecked {
		f.section(w, "Attributes", t.AttributesFailed == 0,
			fmt.Sprintf("%d verified, %d failed", t.AttributesVerified, t.AttributesFailed),
			outcomeLines(r.AttributeFailures(), attributeReason))
	} else {
		w.WriteString(TitleStyle.Render("Attributes") + "  " + MutedStyle.Render("skipped") + "\n")
	}

	w.WriteString(f.footer(r, t))
	w.WriteString("\n")
	return nil
}

func (f *PrettyFormatter) header(r *audit.Report, t audit.Totals) string {
	lines := []string{
		LabelStyle.Render("Root:") + " " + ValueStyle.Render(r.Root),
		fmt.Sprintf("%s %s  %s %s  %s %s",
			LabelStyle.Render("Directories:"), ValueStyle.Render(humanize.Comma(int64(t.Directories))),
			LabelStyle.Render("Film:"), ValueStyle.Render(humanize.Comma(int64(t.Film))),
			LabelStyle.Render("Mag:"), ValueStyle.Render(humanize.Comma(int64(t.Mag)))),
	}
	if r.Interrupted {
		lines = append(lines, WarningStyle.Bold(true).Render("Run interrupted"))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) section(w *bytes.Buffer, title string, pass bool, summary string, details []string) {
	status := SuccessStyle.Render("PASS")
	if !pass {
		status = ErrorStyle.Bold(true).Render("FAIL")
	}
	fmt.Fprintf(w, "%s  %s  %s\n", TitleStyle.Render(title), status, MutedStyle.Render(summary))

	for i, d := range details {
		if i == maxListed {
			w.WriteString(MutedStyle.Render(fmt.Sprintf("    ... and %d more", len(details)-maxListed)) + "\n")
			break
		}
		w.WriteString("    " + ErrorStyle.Render(d) + "\n")
	}
}

func (f *PrettyFormatter) footer(r *audit.Report, t audit.Totals) string {
	verdict := SuccessStyle.Bold(true).Render("No findings")
	if r.HasFindings() {
		verdict = ErrorStyle.Bold(true).Render("Findings need review")
	}
	parts := []string{
		verdict,
		LabelStyle.Render("Files:") + " " + ValueStyle.Render(humanize.Comma(int64(t.Files))),
		LabelStyle.Render("Took:") + " " + ValueStyle.Render(formatDuration(r.Duration())),
		MutedStyle.Render("run " + r.RunID),
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func anomalyLines(r *audit.Report) []string {
	out := make([]string, 0, len(r.Inventory.Anomalies))
	for _, a := range r.Inventory.Anomalies {
		out = append(out, fmt.Sprintf("%s  %s", a.Kind, a.Path))
	}
	return out
}

func sequenceLines(r *audit.Report) []string {
	var out []string
	for _, d := range r.Directories {
		if d.ManifestError != "" {
			out = append(out, fmt.Sprintf("%s  manifest unavailable", d.Dir))
			continue
		}
		if d.Sequence == nil {
			continue
		}
		if !d.Sequence.LineCountMatch {
			out = append(out, fmt.Sprintf("%s  %d files, manifest lists %d",
				d.Dir, d.Sequence.FileCount, d.Sequence.ManifestLineCount))
		}
		if len(d.Sequence.MissingOrdinals) > 0 {
			out = append(out, fmt.Sprintf("%s  missing %s",
				d.Dir, strings.Join(formatOrdinals(d.Sequence.MissingOrdinals), ", ")))
		}
	}
	return out
}

func outcomeLines(outcomes []audit.FileOutcome, reason func(audit.FileOutcome) string) []string {
	out := make([]string, len(outcomes))
	for i, o := range outcomes {
		out[i] = fmt.Sprintf("%s  %s", o.Path, reason(o))
	}
	return out
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
