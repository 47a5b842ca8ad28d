package output

import (
	"bytes"
	"encoding/json"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/audit"
)

// JSONFormatter renders the report as one indented JSON document.
type JSONFormatter struct{}

// Format writes the report as JSON.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *audit.Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildDocument(r))
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)
