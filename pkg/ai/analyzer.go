package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/waftester/wpscout/pkg/config"
	"github.com/waftester/wpscout/pkg/jsonutil"
	"github.com/waftester/wpscout/pkg/report"
)

const systemPrompt = "You are a senior WordPress security consultant. " +
	"You only use the facts in the scan report you are given and never invent findings."

const executivePrompt = `Write an executive summary of this WordPress security scan for a non-technical
site owner. Explain the overall risk in plain language, name the most important
problems and what happens if they are ignored, and end with three prioritized
actions. Keep it under 300 words.

Scan report (JSON):
%s`

const technicalPrompt = `Write technical remediation guidance for this WordPress security scan.
For each finding, ordered by severity, give the root cause, concrete remediation
steps (configuration snippets or commands where useful) and how to verify the fix.
Use Markdown headings per finding.

Scan report (JSON):
%s`

// Analyzer produces the AI section of a report.
type Analyzer struct {
	client Client
	cfg    config.AI
	logger *slog.Logger
	now    func() time.Time
}

// NewAnalyzer wraps client. A nil logger uses slog.Default.
func NewAnalyzer(client Client, cfg config.AI, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{client: client, cfg: cfg, logger: logger, now: time.Now}
}

// Analyze sanitizes r and asks the model for both summaries. A failure of
// one summary is logged and leaves that field empty; Analyze fails only
// when both fail.
func (a *Analyzer) Analyze(ctx context.Context, r *report.Report) (*report.AIAnalysis, error) {
	clean, stats := Sanitize(r, a.cfg)
	a.logger.DebugContext(ctx, "report sanitized for AI",
		slog.Int("tokens", stats.Tokens),
		slog.Int("credentials", stats.Credentials),
		slog.Int("truncated", stats.Truncated),
		slog.Int("urls", stats.URLs))

	payload, err := jsonutil.MarshalIndent(clean, "  ")
	if err != nil {
		return nil, fmt.Errorf("ai: encoding report: %w", err)
	}

	out := &report.AIAnalysis{
		Provider: string(a.client.Provider()),
		Model:    a.client.Model(),
	}

	exec, execErr := a.client.Complete(ctx, systemPrompt, fmt.Sprintf(executivePrompt, payload))
	if execErr != nil {
		a.logger.WarnContext(ctx, "executive summary failed", slog.String("error", execErr.Error()))
	}
	out.ExecutiveSummary = exec

	tech, techErr := a.client.Complete(ctx, systemPrompt, fmt.Sprintf(technicalPrompt, payload))
	if techErr != nil {
		a.logger.WarnContext(ctx, "technical remediation failed", slog.String("error", techErr.Error()))
	}
	out.TechnicalRemediation = tech

	if execErr != nil && techErr != nil {
		return nil, fmt.Errorf("ai analysis failed: %w", execErr)
	}
	out.GeneratedAt = a.now().UTC()
	return out, nil
}
