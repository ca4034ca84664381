package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"

	"github.com/waftester/wpscout/pkg/finding"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestTerminalDetection(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, IsTerminal(&buf))
	assert.False(t, UnicodeCapable(&buf))
	assert.Equal(t, 80, Width(&buf, 80))
	assert.Equal(t, "[+]", Icon(&buf, "✔", "[+]"))
}

func TestSanitize(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, "café  ok", Sanitize(&buf, "café 🔥 ok"))
	assert.Equal(t, "a?b", Sanitize(&buf, "a\xffb"))
}

func TestSeverityLabel(t *testing.T) {
	assert.Equal(t, "Critical", SeverityLabel(finding.Critical))
	assert.Equal(t, "Info", SeverityLabel(finding.Info))
}

func TestFormatFinding(t *testing.T) {
	var buf bytes.Buffer
	line := FormatFinding(&buf, finding.Finding{
		Code:      "WPS-010",
		Title:     "Outdated plugin",
		Severity:  finding.High,
		Component: "contact-form-7",
	})
	assert.Equal(t, "[ high ] WPS-010 Outdated plugin (contact-form-7)", line)
}

func TestPrintFindings(t *testing.T) {
	var buf bytes.Buffer
	PrintFindings(&buf, []finding.Finding{
		{Code: "WPS-050", Title: "Missing HSTS", Severity: finding.Low},
		{Code: "WPS-030", Title: "Backup", Severity: finding.Critical,
			Evidence: finding.URLEvidence("https://example.com/wp-config.php.bak", "")},
	}, true)

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "WPS-030")
	assert.Contains(t, lines[1], "wp-config.php.bak")
	assert.Contains(t, lines[2], "WPS-050")

	buf.Reset()
	PrintFindings(&buf, nil, false)
	assert.Contains(t, buf.String(), "No findings.")
}

func TestPrintSeveritySummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSeveritySummary(&buf, finding.Summary{High: 2, Info: 1, Total: 3})
	out := buf.String()
	assert.Contains(t, out, "High 2")
	assert.Contains(t, out, "Critical 0")
	assert.Contains(t, out, "Total 3")
}

func TestPrintPhasesAndStatus(t *testing.T) {
	var buf bytes.Buffer
	PrintPhases(&buf, []PhaseRow{
		{Label: "Security headers", Findings: 1, Requests: 1, Duration: 400 * time.Millisecond},
		{Label: "Users", Duration: 2 * time.Second, Failed: true},
	})
	PrintStatus(&buf, "completed", 42, 83*time.Second, "/tmp/r.json", "")

	out := buf.String()
	assert.Contains(t, out, "400ms")
	assert.Contains(t, out, "2.0s")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "1m23s")
	assert.Contains(t, out, "Report: /tmp/r.json")
	assert.Equal(t, 1, strings.Count(out, "Report:"))
}

func TestBannerAndOptions(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	PrintOptions(&buf, []Option{{Name: "Target", Value: "https://example.com"}})
	PrintWarning(&buf, "rate limited")
	out := buf.String()
	assert.Contains(t, out, "WPScout v")
	assert.Contains(t, out, "https://example.com")
	assert.Contains(t, out, "[!] rate limited")
}

func TestStatusLines(t *testing.T) {
	var buf bytes.Buffer
	PrintSuccess(&buf, "done")
	PrintWarning(&buf, "careful")
	PrintError(&buf, "broken")
	out := buf.String()
	assert.Contains(t, out, "[+] done")
	assert.Contains(t, out, "[!] careful")
	assert.Contains(t, out, "[x] broken")
	assert.Equal(t, 3, strings.Count(out, "\n"))
}
