package output

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/audit"
)

// YAMLFormatter renders the same document as JSONFormatter in YAML.
type YAMLFormatter struct{}

// Format writes the report as YAML.
func (f *YAMLFormatter) Format(w *bytes.Buffer, r *audit.Report) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(buildDocument(r)); err != nil {
		return err
	}
	return encoder.Close()
}

func init() {
	Register("yaml", func() Formatter {
		return &YAMLFormatter{}
	})
}

var _ Formatter = (*YAMLFormatter)(nil)
