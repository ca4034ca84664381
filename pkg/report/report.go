// Package report assembles the outcome of a scan into a document and
// renders it as JSON or HTML.
package report

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/waftester/wpscout/pkg/defaults"
	"github.com/waftester/wpscout/pkg/finding"
)

// Disclaimer is attached to every report with notes.
const Disclaimer = "Manual verification recommended for all findings before remediation."

// Report is the serialized scan result.
type Report struct {
	Tool       string            `json:"tool"`
	Version    string            `json:"version"`
	ScanID     string            `json:"scan_id,omitempty"`
	Target     string            `json:"target"`
	Domain     string            `json:"domain"`
	Mode       string            `json:"mode"`
	Status     string            `json:"status"`
	Date       time.Time         `json:"date"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Summary    finding.Summary   `json:"summary"`
	Findings   []finding.Finding `json:"findings"`
	Phases     []Phase           `json:"phases,omitempty"`
	Notes      *Notes            `json:"notes,omitempty"`
	Consent    *Consent          `json:"consent,omitempty"`
	AI         *AIAnalysis       `json:"ai_analysis,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Phase is the per-phase accounting shown in the report.
type Phase struct {
	Name            string  `json:"name"`
	Label           string  `json:"label"`
	Findings        int     `json:"findings"`
	Requests        int64   `json:"requests"`
	DurationSeconds float64 `json:"duration_seconds"`
	Failed          bool    `json:"failed,omitempty"`
}

// Notes carries scan accounting.
type Notes struct {
	ScanDurationSeconds     float64 `json:"scan_duration_seconds"`
	RequestsSent            int64   `json:"requests_sent"`
	RateLimitApplied        bool    `json:"rate_limit_applied"`
	RateLimit               float64 `json:"rate_limit_rps"`
	FalsePositiveDisclaimer string  `json:"false_positive_disclaimer"`
}

// Consent records whether the domain was verified when the scan ran.
type Consent struct {
	Verified bool `json:"verified"`
}

// AIAnalysis is the optional model-written summary.
type AIAnalysis struct {
	ExecutiveSummary     string    `json:"executive_summary,omitempty"`
	TechnicalRemediation string    `json:"technical_remediation,omitempty"`
	Provider             string    `json:"provider"`
	Model                string    `json:"model"`
	GeneratedAt          time.Time `json:"generated_at"`
}

// Input is what Create needs from a finished scan.
type Input struct {
	ScanID          string
	Target          string
	Domain          string
	Mode            string
	Status          string
	StartedAt       time.Time
	FinishedAt      time.Time
	Findings        []finding.Finding
	Phases          []Phase
	Requests        int64
	Rate            float64
	ConsentVerified bool
	Error           string
}

// Create builds a report. Findings are deduplicated and ordered by
// severity, so the report lists the most severe first.
func Create(in Input) *Report {
	findings := finding.Dedupe(in.Findings)
	finding.SortBySeverity(findings)
	if findings == nil {
		findings = []finding.Finding{}
	}

	date := in.FinishedAt
	if date.IsZero() {
		date = time.Now()
	}

	r := &Report{
		Tool:       defaults.ToolName,
		Version:    defaults.Version,
		ScanID:     in.ScanID,
		Target:     in.Target,
		Domain:     in.Domain,
		Mode:       in.Mode,
		Status:     in.Status,
		Date:       date.UTC(),
		StartedAt:  in.StartedAt.UTC(),
		FinishedAt: in.FinishedAt.UTC(),
		Summary:    finding.Summarize(findings),
		Findings:   findings,
		Phases:     in.Phases,
		Consent:    &Consent{Verified: in.ConsentVerified},
		Error:      in.Error,
	}

	if dur := in.FinishedAt.Sub(in.StartedAt); dur > 0 || in.Requests > 0 {
		r.Notes = &Notes{
			ScanDurationSeconds:     math.Round(dur.Seconds()*100) / 100,
			RequestsSent:            in.Requests,
			RateLimitApplied:        true,
			RateLimit:               in.Rate,
			FalsePositiveDisclaimer: Disclaimer,
		}
	}
	return r
}

// Filename returns wpscout_report_<domain>_<timestamp>.<ext>.
func Filename(r *Report, ext string) string {
	domain := r.Domain
	if domain == "" {
		domain = r.Target
	}
	clean := strings.NewReplacer("://", "_", "/", "_", ":", "_", "\\", "_").Replace(domain)
	return fmt.Sprintf("%s_report_%s_%s.%s", defaults.ToolName, clean, r.Date.UTC().Format("20060102_150405"), ext)
}

// Path joins dir and Filename.
func Path(dir string, r *Report, ext string) string {
	return filepath.Join(dir, Filename(r, ext))
}
