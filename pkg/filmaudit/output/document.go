package output

import (
	"time"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/audit"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/inventory"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

// document is the machine-readable form shared by the json and yaml formatters.
type document struct {
	Meta        documentMeta            `json:"meta" yaml:"meta"`
	Totals      audit.Totals            `json:"totals" yaml:"totals"`
	Inventory   audit.InventoryReport   `json:"inventory" yaml:"inventory"`
	Directories []audit.DirectoryReport `json:"directories" yaml:"directories"`
	Files       []audit.FileOutcome     `json:"files" yaml:"files"`
	ScanErrors  []types.ScanError       `json:"scan_errors,omitempty" yaml:"scan_errors,omitempty"`
}

type documentMeta struct {
	RunID             string    `json:"run_id" yaml:"run_id"`
	Root              string    `json:"root" yaml:"root"`
	Started           time.Time `json:"started" yaml:"started"`
	Finished          time.Time `json:"finished" yaml:"finished"`
	Duration          string    `json:"duration" yaml:"duration"`
	Interrupted       bool      `json:"interrupted" yaml:"interrupted"`
	AttributesChecked bool      `json:"attributes_checked" yaml:"attributes_checked"`
}

func buildDocument(r *audit.Report) document {
	doc := document{
		Meta: documentMeta{
			RunID:             r.RunID,
			Root:              r.Root,
			Started:           r.Started,
			Finished:          r.Finished,
			Duration:          r.Duration().String(),
			Interrupted:       r.Interrupted,
			AttributesChecked: r.AttributesChecked,
		},
		Totals:      r.Totals(),
		Inventory:   r.Inventory,
		Directories: r.Directories,
		Files:       r.Files,
		ScanErrors:  r.ScanErrors,
	}
	if doc.Directories == nil {
		doc.Directories = []audit.DirectoryReport{}
	}
	if doc.Files == nil {
		doc.Files = []audit.FileOutcome{}
	}
	if doc.Inventory.Anomalies == nil {
		doc.Inventory.Anomalies = []inventory.Anomaly{}
	}
	return doc
}
