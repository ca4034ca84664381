package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/waftester/wpscout/pkg/finding"
)

var titleCaser = cases.Title(language.English)

// SeverityLabel returns the display name of a severity, e.g. "Critical".
func SeverityLabel(sev finding.Severity) string {
	return titleCaser.String(sev.String())
}

// FormatFinding renders one finding as a single line:
//
//	[high] WPS-010 Vulnerable plugin: contact-form-7 (contact-form-7)
func FormatFinding(w io.Writer, f finding.Finding) string {
	var b strings.Builder
	b.WriteString(BracketStyle.Render("["))
	b.WriteString(SeverityStyle(f.Severity).Render(f.Severity.String()))
	b.WriteString(BracketStyle.Render("]"))
	b.WriteString(" ")
	b.WriteString(StatValueStyle.Render(f.Code))
	b.WriteString(" ")
	b.WriteString(Sanitize(w, f.Title))
	if f.Component != "" {
		b.WriteString(" ")
		b.WriteString(BracketStyle.Render("(" + Sanitize(w, f.Component) + ")"))
	}
	return b.String()
}

// PrintFindings writes findings most severe first. Evidence URLs are shown
// when verbose is set.
func PrintFindings(w io.Writer, findings []finding.Finding, verbose bool) {
	if len(findings) == 0 {
		fmt.Fprintln(w, HelpStyle.Render("  No findings."))
		return
	}
	sorted := append([]finding.Finding(nil), findings...)
	finding.SortBySeverity(sorted)
	for _, f := range sorted {
		fmt.Fprintln(w, FormatFinding(w, f))
		if verbose && f.Evidence != nil && f.Evidence.Type == finding.EvidenceURL {
			fmt.Fprintf(w, "      %s %s\n", StatLabelStyle.Render("->"), URLStyle.Render(Sanitize(w, f.Evidence.Value)))
		}
	}
}

// PrintSeveritySummary writes one count per severity bucket.
func PrintSeveritySummary(w io.Writer, s finding.Summary) {
	fmt.Fprintln(w, SectionStyle.Render("Summary"))
	cells := make([]string, 0, len(finding.Severities)+1)
	for _, sev := range finding.Severities {
		label := fmt.Sprintf("%s %d", SeverityLabel(sev), s.Count(sev))
		if s.Count(sev) > 0 {
			cells = append(cells, SeverityStyle(sev).Render(label))
		} else {
			cells = append(cells, StatLabelStyle.Padding(0, 1).Render(label))
		}
	}
	cells = append(cells, StatValueStyle.Padding(0, 1).Render(fmt.Sprintf("Total %d", s.Total)))
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
}

// PhaseRow is one line of the phase table.
type PhaseRow struct {
	Label    string
	Findings int
	Requests int64
	Duration time.Duration
	Failed   bool
}

// PrintPhases writes a table of phase timings.
func PrintPhases(w io.Writer, rows []PhaseRow) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintln(w, SectionStyle.Render("Phases"))
	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r.Label))
	}
	for _, r := range rows {
		status := SuccessStyle.Render("ok")
		if r.Failed {
			status = ErrorStyle.Render("failed")
		}
		fmt.Fprintf(w, "  %-*s  %3d findings  %4d requests  %8s  %s\n",
			width, r.Label, r.Findings, r.Requests, formatDuration(r.Duration), status)
	}
}

// PrintStatus writes the final scan status line.
func PrintStatus(w io.Writer, status string, requests int64, elapsed time.Duration, reportPaths ...string) {
	fmt.Fprintf(w, "\n%s %s  %s %d  %s %s\n",
		StatLabelStyle.Render("Status:"), StatusStyle(status).Render(status),
		StatLabelStyle.Render("Requests:"), requests,
		StatLabelStyle.Render("Elapsed:"), formatDuration(elapsed))
	for _, p := range reportPaths {
		if p != "" {
			fmt.Fprintf(w, "%s %s\n", StatLabelStyle.Render("Report:"), URLStyle.Render(p))
		}
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}
