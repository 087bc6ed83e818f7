// Package render executes the Go templates behind generated host files
// (systemd units, launchd plists, shell profile stanzas).
package render

import (
	"bytes"
	"fmt"
	"text/template"
)

// Render executes the template string s with data.
func Render(s string, data any) ([]byte, error) {
	t, err := template.New("").Option("missingkey=error").Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}
	return buf.Bytes(), nil
}
