package history

import (
	"time"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/audit"
)

// Entry is one recorded audit run.
type Entry struct {
	ID          string        `json:"id"`
	Root        string        `json:"root"`
	Started     time.Time     `json:"started"`
	Finished    time.Time     `json:"finished"`
	Interrupted bool          `json:"interrupted,omitempty"`
	Findings    bool          `json:"findings"`
	Totals      audit.Totals  `json:"totals"`
	Report      *audit.Report `json:"report,omitempty"`
}

// Duration returns the wall time of the recorded run.
func (e Entry) Duration() time.Duration {
	return e.Finished.Sub(e.Started)
}
