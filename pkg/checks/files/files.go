// Package files looks for configuration backups, database dumps, logs and
// repository metadata left readable in the web root.
package files

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/waftester/wpscout/pkg/check"
	"github.com/waftester/wpscout/pkg/checks/internal/wp"
	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/probe"
	"github.com/waftester/wpscout/pkg/workerpool"
)

// Name is the phase name.
const Name = "files"

// BackupPatterns are probed in addition to the configured common paths.
var BackupPatterns = []string{
	"wp-config.php.bak", "wp-config.php~", "wp-config.php.old",
	"wp-config.php.save", "wp-config.php.swp", "wp-config.php.txt",
	"wp-config.bak", "wp-config.old",

	"backup.sql", "database.sql", "db.sql", "dump.sql",
	"mysql.sql", "wordpress.sql", "wp.sql", "site.sql",
	"backup.zip", "database.zip", "wp-backup.zip",
	"backup.tar.gz", "backup.tar",

	".htaccess.bak", ".htaccess~", ".htaccess.old",
	"wp-content.zip", "wp-content.tar.gz",
}

var exactSeverity = map[string]finding.Severity{
	"wp-config.php":        finding.Critical,
	"wp-config.php.bak":    finding.Critical,
	"wp-config.php~":       finding.Critical,
	"wp-config.php.old":    finding.Critical,
	"wp-config.php.save":   finding.Critical,
	".env":                 finding.Critical,
	"backup.sql":           finding.Critical,
	"database.sql":         finding.Critical,
	"db.sql":               finding.Critical,
	"dump.sql":             finding.Critical,
	"readme.html":          finding.High,
	"wp-content/debug.log": finding.High,
	".git/HEAD":            finding.High,
	".git/config":          finding.High,
	"license.txt":          finding.Medium,
	"xmlrpc.php":           finding.Medium,
	"wp-admin":             finding.Medium,
	"backup.zip":           finding.Low,
	".htaccess.bak":        finding.Low,
}

// Exposed is a file that answered 200 with plausible content.
type Exposed struct {
	Path string
	URL  string
	Size int
}

// Check implements check.Check.
type Check struct{}

// New returns the sensitive files check.
func New() *Check { return &Check{} }

// Name implements check.Check.
func (*Check) Name() string { return Name }

// Paths returns the normalized, deduplicated and sorted probe list.
func Paths(common []string) []string {
	all := make([]string, 0, len(common)+len(BackupPatterns))
	for _, p := range slices.Concat(common, BackupPatterns) {
		if n := Normalize(p); n != "" {
			all = append(all, n)
		}
	}
	slices.Sort(all)
	return slices.Compact(all)
}

// Normalize strips whitespace, any scheme and the surrounding slashes.
func Normalize(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "http://")
	p = strings.TrimPrefix(p, "https://")
	return strings.Trim(p, "/")
}

// Scan implements check.Check.
func (c *Check) Scan(ctx context.Context, target check.Target, env *check.Env) ([]finding.Finding, error) {
	paths := Paths(env.Settings.CommonPaths)
	env.Log().InfoContext(ctx, "checking sensitive file paths", slog.Int("paths", len(paths)))

	results := workerpool.Map(ctx, env.Pool, paths, func(ctx context.Context, p string) *Exposed {
		return probeFile(ctx, target, env, p)
	})

	var exposed []Exposed
	for _, r := range results {
		if r != nil {
			env.Log().WarnContext(ctx, "exposed file", slog.String("path", r.Path))
			exposed = append(exposed, *r)
		}
	}
	return Findings(exposed), nil
}

func probeFile(ctx context.Context, target check.Target, env *check.Env, path string) *Exposed {
	url := target.Join(path)
	resp, ok := wp.GetOK(ctx, env, url, probe.NoRedirects())
	if !ok || len(resp.Body) == 0 {
		return nil
	}
	if !ValidContent(path, resp.Text()) {
		return nil
	}
	return &Exposed{Path: path, URL: url, Size: len(resp.Body)}
}

// ValidContent reports whether content looks like the file path names,
// filtering out soft-404 pages served with status 200.
func ValidContent(path, content string) bool {
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, "wp-config"):
		return containsAny(content, "DB_NAME", "DB_USER", "DB_PASSWORD", "DB_HOST")
	case strings.Contains(path, ".env"):
		return strings.Contains(content, "=") && strings.Contains(content, "\n")
	case strings.HasSuffix(path, ".sql"):
		return containsAny(strings.ToUpper(content), "CREATE TABLE", "INSERT INTO", "DROP TABLE", "SELECT")
	case strings.Contains(lower, "readme"):
		return strings.Contains(strings.ToLower(content), "wordpress")
	case strings.Contains(path, ".git"):
		return containsAny(content, "ref:", "[core]")
	case strings.Contains(path, "debug.log"):
		return containsAny(content, "[", "]", "PHP", "Warning", "Error")
	}
	head := content
	if len(head) > 500 {
		head = head[:500]
	}
	return !strings.Contains(strings.ToLower(head), "<html")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Severity grades an exposed path.
func Severity(path string) finding.Severity {
	p := Normalize(path)
	if sev, ok := exactSeverity[p]; ok {
		return sev
	}
	lower := strings.ToLower(p)
	switch {
	case containsAny(lower, "wp-config", ".env", ".sql"):
		return finding.Critical
	case containsAny(lower, "debug.log", ".git", "readme"):
		return finding.High
	case containsAny(lower, "backup", ".bak", ".old"):
		return finding.Medium
	}
	return finding.Low
}

// Findings turns the exposed files into one WPS-030 each plus a WPS-031
// summary, or a single good-practice WPS-030 when nothing was exposed.
func Findings(exposed []Exposed) []finding.Finding {
	if len(exposed) == 0 {
		return []finding.Finding{{
			Code:           "WPS-030",
			Title:          "No sensitive files exposed (Good practice)",
			Severity:       finding.Info,
			Confidence:     finding.ConfidenceHigh,
			Description:    "No sensitive files were publicly accessible.",
			Recommendation: "Continue protecting sensitive files and regularly audit file permissions.",
		}}
	}

	out := make([]finding.Finding, 0, len(exposed)+1)
	critical := 0
	for _, e := range exposed {
		f := fileFinding(e)
		if f.Severity == finding.Critical {
			critical++
		}
		out = append(out, f)
	}

	summarySev := finding.High
	if critical > 0 {
		summarySev = finding.Critical
	}
	out = append(out, finding.Finding{
		Code:       "WPS-031",
		Title:      fmt.Sprintf("%d sensitive file(s) exposed", len(exposed)),
		Severity:   summarySev,
		Confidence: finding.ConfidenceHigh,
		Description: fmt.Sprintf("Found %d publicly accessible sensitive files. %d are critical "+
			"(contain credentials/secrets).", len(exposed), critical),
		Recommendation: "URGENT: Secure or remove all exposed files:\n" +
			"1. Block access via .htaccess or web server config\n" +
			"2. Move sensitive files outside webroot\n" +
			"3. Delete backup files and database dumps\n" +
			"4. Regenerate compromised credentials\n" +
			"5. Enable proper file permissions (644 for files, 755 for dirs)",
	})
	return out
}

func fileFinding(e Exposed) finding.Finding {
	f := finding.Finding{
		Code:       "WPS-030",
		Severity:   Severity(e.Path),
		Confidence: finding.ConfidenceHigh,
		Evidence:   finding.URLEvidence(e.URL, fmt.Sprintf("HTTP 200, Size: %d bytes", e.Size)),
		References: []string{wp.HardeningGuide, wp.AdvancedGuide},
		Component:  e.Path,
	}

	lower := strings.ToLower(e.Path)
	switch {
	case strings.Contains(lower, "wp-config"):
		f.Title = "wp-config.php backup exposed"
		f.Description = fmt.Sprintf("WordPress configuration file '%s' is publicly accessible. This file "+
			"contains database credentials, security keys, and other sensitive information.", e.Path)
		f.Recommendation = "CRITICAL - Immediate action required:\n" +
			"1. Remove this file immediately\n" +
			"2. Change all database credentials\n" +
			"3. Regenerate WordPress security keys: https://api.wordpress.org/secret-key/1.1/salt/\n" +
			"4. Review access logs for potential compromise\n" +
			"5. Add deny rules to prevent future exposure"
	case strings.Contains(e.Path, ".env"):
		f.Title = "Environment file (.env) exposed"
		f.Description = "Environment configuration file contains API keys, secrets, and credentials."
		f.Recommendation = "CRITICAL:\n" +
			"1. Remove or restrict .env file access\n" +
			"2. Rotate all API keys and secrets\n" +
			"3. Move .env outside webroot\n" +
			"4. Add .env to .htaccess deny rules"
	case strings.HasSuffix(e.Path, ".sql"):
		f.Title = "Database dump exposed: " + e.Path
		f.Description = "SQL database backup is publicly downloadable, containing all site data."
		f.Recommendation = "CRITICAL:\n" +
			"1. Delete this file immediately\n" +
			"2. Store backups outside webroot\n" +
			"3. Review for data breach\n" +
			"4. Use encrypted backups with restricted access"
	case strings.Contains(e.Path, "debug.log"):
		f.Title = "Debug log file exposed"
		f.Description = "WordPress debug log may contain sensitive information like file paths, " +
			"plugin errors, and database queries."
		f.Recommendation = "1. Disable WP_DEBUG in production (wp-config.php)\n" +
			"2. Delete or restrict access to debug.log\n" +
			"3. Use proper error logging to secure location"
	case strings.Contains(e.Path, ".git"):
		f.Title = "Git repository exposed"
		f.Description = "Git repository files are accessible, potentially exposing source code and history."
		f.Recommendation = "1. Block access to .git directory in web server config\n" +
			"2. Remove .git folder from webroot\n" +
			"3. Review commit history for exposed secrets\n" +
			"4. Use deployment processes that exclude .git"
	case strings.Contains(e.Path, "readme.html"):
		f.Title = "WordPress readme.html accessible"
		f.Description = "Default WordPress readme file exposes version information."
		f.Recommendation = "Remove or restrict access to readme.html and license.txt files."
	case strings.Contains(e.Path, "xmlrpc.php"):
		f.Title = "XML-RPC interface accessible"
		f.Description = "XML-RPC can be abused for brute force attacks and DDoS amplification."
		f.Recommendation = "1. Disable XML-RPC if not needed (via plugin or filter)\n" +
			"2. Restrict access via .htaccess if required\n" +
			"3. Use security plugins to protect against XML-RPC attacks"
	default:
		f.Title = "Sensitive file exposed: " + e.Path
		f.Description = fmt.Sprintf("File '%s' is publicly accessible.", e.Path)
		f.Recommendation = "Remove or restrict access to this file."
	}
	return f
}
