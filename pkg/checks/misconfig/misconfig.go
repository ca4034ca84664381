// Package misconfig covers server and WordPress configuration mistakes:
// an open XML-RPC endpoint, directory indexes, debug output and the
// default admin login location.
package misconfig

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/waftester/wpscout/pkg/check"
	"github.com/waftester/wpscout/pkg/checks/internal/wp"
	"github.com/waftester/wpscout/pkg/defaults"
	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/probe"
	"github.com/waftester/wpscout/pkg/workerpool"
)

// Name is the phase name.
const Name = "misconfig"

// Directories are probed for auto-generated index pages.
var Directories = []string{
	"/wp-content/",
	"/wp-content/uploads/",
	"/wp-content/uploads/2024/",
	"/wp-content/uploads/2025/",
	"/wp-content/plugins/",
	"/wp-content/themes/",
	"/wp-includes/",
}

var listingIndicators = []string{"index of /", "parent directory", "<title>index of", "directory listing"}

// DebugIndicators betray PHP error output rendered into a page.
var DebugIndicators = []string{
	"Call Stack",
	"Fatal error:",
	"Warning: ",
	"Notice: ",
	"/var/www/",
	"/home/",
	"wp-config.php",
}

const listMethods = `<?xml version="1.0"?>
<methodCall>
  <methodName>system.listMethods</methodName>
  <params></params>
</methodCall>`

const minDebugLogSize = 100

// Check implements check.Check.
type Check struct{}

// New returns the configuration check.
func New() *Check { return &Check{} }

// Name implements check.Check.
func (*Check) Name() string { return Name }

// Scan implements check.Check.
func (c *Check) Scan(ctx context.Context, target check.Target, env *check.Env) ([]finding.Finding, error) {
	var out []finding.Finding
	out = append(out, XMLRPC(ctx, target, env)...)
	out = append(out, DirectoryListing(ctx, target, env)...)
	out = append(out, DebugMode(ctx, target, env)...)
	out = append(out, AdminLogin(ctx, target, env)...)
	return out, nil
}

// XMLRPC confirms the endpoint answers a system.listMethods call.
func XMLRPC(ctx context.Context, target check.Target, env *check.Env) []finding.Finding {
	rpcURL := target.Join("/xmlrpc.php")
	resp, ok := wp.Get(ctx, env, rpcURL)
	if !ok {
		return nil
	}

	switch {
	case resp.StatusCode == http.StatusMethodNotAllowed:
		return []finding.Finding{{
			Code:           "WPS-060",
			Title:          "XML-RPC partially restricted (Good)",
			Severity:       finding.Info,
			Confidence:     finding.ConfidenceHigh,
			Description:    "XML-RPC file exists but returns 405, indicating some restriction.",
			Recommendation: "Verify XML-RPC is fully disabled or properly restricted.",
		}}
	case resp.OK() && resp.Contains("xml-rpc"):
	default:
		return nil
	}

	rpc, ok := wp.Post(ctx, env, rpcURL, defaults.ContentTypeXML, []byte(listMethods))
	if !ok || !rpc.OK() {
		return nil
	}
	methods := strings.Count(rpc.Text(), "<string>")
	env.Log().WarnContext(ctx, "xml-rpc enabled", slog.Int("methods", methods))
	return []finding.Finding{{
		Code:       "WPS-060",
		Title:      "XML-RPC interface enabled",
		Severity:   finding.Medium,
		Confidence: finding.ConfidenceHigh,
		Description: fmt.Sprintf("WordPress XML-RPC interface is enabled and responding with %d methods. "+
			"XML-RPC can be abused for brute force attacks, DDoS amplification, and pingback exploits.", methods),
		Evidence: finding.URLEvidence(rpcURL, fmt.Sprintf("HTTP %d, %d methods available", rpc.StatusCode, methods)),
		Recommendation: "Disable XML-RPC if not needed:\n" +
			"1. Add to .htaccess:\n" +
			"   <Files xmlrpc.php>\n" +
			"     Order Deny,Allow\n" +
			"     Deny from all\n" +
			"   </Files>\n" +
			"2. Or use security plugin to disable\n" +
			"3. Or add to wp-config.php: add_filter(\"xmlrpc_enabled\", \"__return_false\");\n" +
			"4. If needed for Jetpack, restrict to Jetpack IPs only",
		References: []string{"https://kinsta.com/blog/xmlrpc-php/"},
		Component:  "xmlrpc.php",
	}}
}

type listing struct {
	path  string
	url   string
	items int
}

// DirectoryListing probes Directories without following redirects.
func DirectoryListing(ctx context.Context, target check.Target, env *check.Env) []finding.Finding {
	results := workerpool.Map(ctx, env.Pool, Directories, func(ctx context.Context, dir string) *listing {
		u := target.Join(dir)
		resp, ok := wp.GetOK(ctx, env, u, probe.NoRedirects())
		if !ok || !IsDirectoryListing(resp.Body) {
			return nil
		}
		env.Log().WarnContext(ctx, "directory listing enabled", slog.String("path", dir))
		return &listing{path: dir, url: u, items: strings.Count(resp.Text(), "<a href=")}
	})

	var out []finding.Finding
	for _, l := range results {
		if l == nil {
			continue
		}
		out = append(out, finding.Finding{
			Code:       "WPS-061",
			Title:      "Directory listing enabled: " + l.path,
			Severity:   finding.Medium,
			Confidence: finding.ConfidenceHigh,
			Description: fmt.Sprintf("Directory listing is enabled for %s, exposing %d items. "+
				"Attackers can browse and download files.", l.path, l.items),
			Evidence: finding.URLEvidence(l.url, fmt.Sprintf("HTTP 200, %d items listed", l.items)),
			Recommendation: fmt.Sprintf("Disable directory listing for %s:\n", l.path) +
				"1. Add to .htaccess: Options -Indexes\n" +
				"2. Or add blank index.html to each directory\n" +
				"3. Or configure in Apache/Nginx:\n" +
				"   Apache: <Directory> Options -Indexes </Directory>\n" +
				"   Nginx: autoindex off;",
			References: []string{"https://www.acunetix.com/vulnerabilities/web/directory-listings/"},
			Component:  l.path,
		})
	}
	if len(out) == 0 {
		return nil
	}
	return append(out, finding.Finding{
		Code:           "WPS-062",
		Title:          fmt.Sprintf("%d directory/directories exposed", len(out)),
		Severity:       finding.Medium,
		Confidence:     finding.ConfidenceHigh,
		Description:    fmt.Sprintf("Found %d directories with listing enabled.", len(out)),
		Recommendation: "Disable directory indexing globally across the WordPress installation.",
	})
}

// IsDirectoryListing recognizes Apache and nginx autoindex pages.
func IsDirectoryListing(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, ind := range listingIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	for _, pre := range wp.FindAll(wp.Parse(body), wp.Tag(atom.Pre)) {
		if len(wp.FindAll(pre, func(n *html.Node) bool { return n.DataAtom == atom.A })) > 2 {
			return true
		}
	}
	return false
}

// DebugMode looks for a populated debug.log and PHP errors on the homepage.
func DebugMode(ctx context.Context, target check.Target, env *check.Env) []finding.Finding {
	var out []finding.Finding

	logURL := target.Join("/wp-content/debug.log")
	if resp, ok := wp.GetOK(ctx, env, logURL); ok && len(resp.Body) > minDebugLogSize {
		out = append(out, finding.Finding{
			Code:        "WPS-063",
			Title:       "Debug mode potentially enabled",
			Severity:    finding.High,
			Confidence:  finding.ConfidenceHigh,
			Description: "debug.log file is accessible and contains error logs, indicating WP_DEBUG is enabled.",
			Evidence:    finding.URLEvidence(logURL, fmt.Sprintf("File size: %d bytes", len(resp.Body))),
			Recommendation: "Disable debug mode in production:\n" +
				"1. Edit wp-config.php:\n" +
				"   define('WP_DEBUG', false);\n" +
				"   define('WP_DEBUG_LOG', false);\n" +
				"   define('WP_DEBUG_DISPLAY', false);\n" +
				"2. Delete existing debug.log file\n" +
				"3. Use error logging to secure location outside webroot",
			References: []string{"https://wordpress.org/documentation/article/debugging-in-wordpress/"},
		})
	}

	resp, ok := wp.GetOK(ctx, env, target.Join(""))
	if !ok {
		return out
	}
	var found []string
	for _, ind := range DebugIndicators {
		if strings.Contains(resp.Text(), ind) {
			found = append(found, ind)
		}
	}
	if len(found) == 0 {
		return out
	}
	shown := strings.Join(found[:min(len(found), 3)], ", ")
	return append(out, finding.Finding{
		Code:        "WPS-064",
		Title:       "PHP errors/warnings visible in HTML",
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceMedium,
		Description: "PHP error output detected in HTML: " + shown,
		Evidence: &finding.Evidence{
			Type:    finding.EvidenceBody,
			Value:   "Found: " + shown + "...",
			Context: "Debug output in page source",
		},
		Recommendation: "Disable error display in production:\n" +
			"1. Set display_errors = Off in php.ini\n" +
			"2. Set WP_DEBUG_DISPLAY to false in wp-config.php\n" +
			"3. Log errors to file instead of displaying",
	})
}

// AdminLogin reports the login page served from the default location.
func AdminLogin(ctx context.Context, target check.Target, env *check.Env) []finding.Finding {
	resp, ok := wp.GetOK(ctx, env, target.Join("/wp-admin/"), probe.FollowRedirects())
	if !ok || !strings.Contains(strings.ToLower(resp.URL), "wp-login") {
		return nil
	}
	return []finding.Finding{{
		Code:        "WPS-065",
		Title:       "Admin login page publicly accessible",
		Severity:    finding.Info,
		Confidence:  finding.ConfidenceHigh,
		Description: "WordPress admin login page is accessible at default URL.",
		Evidence:    finding.URLEvidence(resp.URL, fmt.Sprintf("HTTP %d", resp.StatusCode)),
		Recommendation: "Harden admin access:\n" +
			"1. Consider changing wp-admin URL (security plugin)\n" +
			"2. Implement login attempt limiting\n" +
			"3. Enable 2FA for all admin users\n" +
			"4. Use IP whitelisting if possible\n" +
			"5. Monitor for brute force attempts",
		References: []string{wp.HardeningGuide + "#securing-wp-admin"},
	}}
}
