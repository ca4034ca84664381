package ai

import (
	"net/url"
	"strings"

	"github.com/waftester/wpscout/pkg/config"
	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/regexcache"
	"github.com/waftester/wpscout/pkg/report"
)

const redactedToken = "[REDACTED-TOKEN]"

var tokenPatterns = []string{
	`(?i)verify-[a-f0-9]{16}`,
	`(?i)Bearer\s+[A-Za-z0-9\-_.]+`,
	`sk-ant-[A-Za-z0-9\-]+`,
	`sk-[A-Za-z0-9]{32,}`,
	`[A-Za-z0-9]{32,}`,
}

var credentialPatterns = []string{
	`(?i)(password["']?\s*[:=]\s*["']?)([^"'}\s]+)`,
	`(?i)(passwd["']?\s*[:=]\s*["']?)([^"'}\s]+)`,
	`(?i)(pwd["']?\s*[:=]\s*["']?)([^"'}\s]+)`,
	`(?i)(apikey["']?\s*[:=]\s*["']?)([^"'}\s]+)`,
	`(?i)(api_key["']?\s*[:=]\s*["']?)([^"'}\s]+)`,
	`(?i)(secret["']?\s*[:=]\s*["']?)([^"'}\s]+)`,
	`(?i)(DB_PASSWORD['"]?\s*,\s*['"])([^'"]+)`,
}

// SanitizeStats counts what Sanitize removed.
type SanitizeStats struct {
	Tokens      int
	Credentials int
	Truncated   int
	URLs        int
}

// Sanitize returns a copy of r safe to send to a model. The consent
// section and scan id are dropped, and finding evidence is scrubbed per
// cfg. r itself is not modified.
func Sanitize(r *report.Report, cfg config.AI) (*report.Report, SanitizeStats) {
	var stats SanitizeStats
	out := *r
	out.Consent = nil
	out.ScanID = ""
	out.AI = nil
	out.Findings = make([]finding.Finding, len(r.Findings))

	for i, f := range r.Findings {
		f = f.Clone()
		if f.Evidence != nil {
			ev := f.Evidence
			if cfg.RemoveTokens {
				if v := redactTokens(ev.Value); v != ev.Value {
					ev.Value = v
					stats.Tokens++
				}
				ev.Context = redactTokens(ev.Context)
			}
			if cfg.RemoveCredentials {
				if v := redactCredentials(ev.Value); v != ev.Value {
					ev.Value = v
					stats.Credentials++
				}
				ev.Context = redactCredentials(ev.Context)
			}
			if cfg.MaxEvidenceLength > 0 && len(ev.Value) > cfg.MaxEvidenceLength {
				ev.Value = finding.Truncate(ev.Value, cfg.MaxEvidenceLength) + " [truncated]"
				stats.Truncated++
			}
			if cfg.MaxEvidenceLength > 0 {
				ev.Context = finding.Truncate(ev.Context, cfg.MaxEvidenceLength)
			}
			if cfg.RemoveURLs && ev.Type == finding.EvidenceURL {
				ev.Value = redactURL(ev.Value)
				stats.URLs++
			}
		}
		out.Findings[i] = f
	}
	return &out, stats
}

func redactTokens(s string) string {
	if s == "" {
		return s
	}
	for _, p := range tokenPatterns {
		s = regexcache.MustGet(p).ReplaceAllString(s, redactedToken)
	}
	return s
}

func redactCredentials(s string) string {
	if s == "" {
		return s
	}
	for _, p := range credentialPatterns {
		s = regexcache.MustGet(p).ReplaceAllString(s, "${1}[REDACTED]")
	}
	return s
}

func redactURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "[url-redacted]"
	}
	return u.Scheme + "://" + u.Host + "/[path-redacted]"
}
