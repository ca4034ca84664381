package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/sprig/v3"

	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/jsonutil"
)

//go:embed report.html.tmpl
var htmlTemplate string

var htmlTmpl = template.Must(template.New("report").Funcs(funcMap()).Parse(htmlTemplate))

func funcMap() template.FuncMap {
	fm := sprig.FuncMap()
	fm["severityClass"] = func(s finding.Severity) string { return "sev-" + string(s) }
	fm["severities"] = func() []finding.Severity { return finding.Severities }
	fm["paragraphs"] = paragraphs
	return fm
}

// paragraphs splits model output on blank lines.
func paragraphs(s string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HTMLOptions tunes the HTML renderer.
type HTMLOptions struct {
	IncludeEvidence bool
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	return jsonutil.Encode(w, r)
}

// WriteHTML renders r as a standalone HTML page.
func WriteHTML(w io.Writer, r *Report, opts HTMLOptions) error {
	data := struct {
		*Report
		IncludeEvidence bool
	}{r, opts.IncludeEvidence}
	if err := htmlTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("rendering html report: %w", err)
	}
	return nil
}

// SaveJSON writes r to dir and returns the file path.
func SaveJSON(dir string, r *Report) (string, error) {
	path := Path(dir, r, "json")
	if err := jsonutil.WriteFile(path, r, 0o644); err != nil {
		return "", fmt.Errorf("saving json report: %w", err)
	}
	return path, nil
}

// SaveHTML renders r to dir and returns the file path.
func SaveHTML(dir string, r *Report, opts HTMLOptions) (string, error) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, r, opts); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	path := Path(dir, r, "html")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("saving html report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("saving html report: %w", err)
	}
	return filepath.Clean(path), nil
}
