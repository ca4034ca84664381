// Package headers grades the homepage's security response headers and the
// flags on the cookies it sets.
package headers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/waftester/wpscout/pkg/check"
	"github.com/waftester/wpscout/pkg/checks/internal/wp"
	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/probe"
	"github.com/waftester/wpscout/pkg/regexcache"
)

// Name is the phase name.
const Name = "headers"

const oneYear = 31536000

// Header describes an expected security header.
type Header struct {
	Name            string
	Display         string
	MissingSeverity finding.Severity
	Description     string
	Recommendation  string
	HTTPSOnly       bool
	// Aliases are legacy names accepted when Name is absent.
	Aliases []string
}

// Expected lists the graded headers in report order.
var Expected = []Header{
	{
		Name:            "Strict-Transport-Security",
		Display:         "HSTS (HTTP Strict Transport Security)",
		MissingSeverity: finding.Medium,
		Description:     "Forces browsers to use HTTPS, preventing protocol downgrade attacks.",
		Recommendation:  "Add header: Strict-Transport-Security: max-age=31536000; includeSubDomains; preload",
		HTTPSOnly:       true,
	},
	{
		Name:            "Content-Security-Policy",
		Display:         "Content Security Policy (CSP)",
		MissingSeverity: finding.Medium,
		Description:     "Mitigates XSS, clickjacking, and other code injection attacks.",
		Recommendation:  "Add CSP header with appropriate directives (e.g., default-src 'self')",
		Aliases:         []string{"X-Content-Security-Policy", "X-WebKit-CSP"},
	},
	{
		Name:            "X-Frame-Options",
		Display:         "X-Frame-Options",
		MissingSeverity: finding.Medium,
		Description:     "Prevents clickjacking attacks by controlling iframe embedding.",
		Recommendation:  "Add header: X-Frame-Options: SAMEORIGIN or DENY",
	},
	{
		Name:            "X-Content-Type-Options",
		Display:         "X-Content-Type-Options",
		MissingSeverity: finding.Low,
		Description:     "Prevents MIME-sniffing attacks.",
		Recommendation:  "Add header: X-Content-Type-Options: nosniff",
	},
	{
		Name:            "X-XSS-Protection",
		Display:         "X-XSS-Protection (Legacy)",
		MissingSeverity: finding.Low,
		Description:     "Legacy XSS filter (modern browsers use CSP instead).",
		Recommendation:  "Add header: X-XSS-Protection: 1; mode=block (or rely on CSP)",
	},
	{
		Name:            "Referrer-Policy",
		Display:         "Referrer-Policy",
		MissingSeverity: finding.Low,
		Description:     "Controls how much referrer information is shared.",
		Recommendation:  "Add header: Referrer-Policy: strict-origin-when-cross-origin",
	},
	{
		Name:            "Permissions-Policy",
		Display:         "Permissions-Policy",
		MissingSeverity: finding.Info,
		Description:     "Controls which browser features can be used.",
		Recommendation:  "Add header with appropriate feature restrictions",
	},
}

// Value returns the header's value from h, falling back to its aliases.
func (hd Header) Value(h http.Header) string {
	if v := h.Get(hd.Name); v != "" {
		return v
	}
	for _, a := range hd.Aliases {
		if v := h.Get(a); v != "" {
			return v
		}
	}
	return ""
}

// Check implements check.Check.
type Check struct{}

// New returns the security headers check.
func New() *Check { return &Check{} }

// Name implements check.Check.
func (*Check) Name() string { return Name }

// Scan implements check.Check. Headers and cookies are both read from one
// homepage response.
func (c *Check) Scan(ctx context.Context, target check.Target, env *check.Env) ([]finding.Finding, error) {
	resp, ok := wp.Get(ctx, env, target.Join(""), probe.FollowRedirects())
	if !ok {
		return nil, nil
	}
	return Evaluate(resp.Header, resp.Cookies(), target.IsHTTPS()), nil
}

// Evaluate grades a response's headers and cookies.
func Evaluate(h http.Header, cookies []*http.Cookie, https bool) []finding.Finding {
	var out []finding.Finding
	var missing, weak, present int

	for _, hd := range Expected {
		if hd.HTTPSOnly && !https {
			continue
		}
		v := hd.Value(h)
		if v == "" {
			missing++
			out = append(out, missingFinding(hd))
			continue
		}
		present++
		if issues := Validate(hd.Name, v); len(issues) > 0 {
			weak++
			out = append(out, weakFinding(hd, v, issues))
		}
	}

	cookieFindings := CookieFindings(cookies, https)
	out = append(out, cookieFindings...)

	if missing+weak+len(cookieFindings) == 0 {
		return append(out, finding.Finding{
			Code:           "WPS-050",
			Title:          "Security headers properly configured",
			Severity:       finding.Info,
			Confidence:     finding.ConfidenceHigh,
			Description:    fmt.Sprintf("All %d critical security headers are present.", present),
			Recommendation: "Continue monitoring and updating security header configurations.",
		})
	}

	sev := finding.Low
	if missing > 0 {
		sev = finding.Medium
	}
	return append(out, finding.Finding{
		Code:       "WPS-053",
		Title:      fmt.Sprintf("%d security header/cookie issue(s) detected", missing+weak+len(cookieFindings)),
		Severity:   sev,
		Confidence: finding.ConfidenceHigh,
		Description: fmt.Sprintf("Found %d missing headers, %d weak headers, and %d insecure cookies.",
			missing, weak, len(cookieFindings)),
		Recommendation: "Implement security headers best practices:\n" +
			"1. Add all missing security headers\n" +
			"2. Strengthen weak header configurations\n" +
			"3. Set proper cookie security flags\n" +
			"4. Test configuration at https://securityheaders.com/\n" +
			"5. Use WordPress security plugins for easy header management",
	})
}

func missingFinding(hd Header) finding.Finding {
	return finding.Finding{
		Code:        "WPS-050",
		Title:       "Missing security header: " + hd.Display,
		Severity:    hd.MissingSeverity,
		Confidence:  finding.ConfidenceHigh,
		Description: hd.Display + " header is not set. " + hd.Description,
		Evidence: &finding.Evidence{
			Type:    finding.EvidenceHeader,
			Value:   hd.Name + ": [not set]",
			Context: "Header missing in HTTP response",
		},
		Recommendation: hd.Recommendation,
		References:     []string{wp.OWASPHeaders, wp.SecurityHeaders},
	}
}

func weakFinding(hd Header, value string, issues []string) finding.Finding {
	shown := finding.Truncate(value, 100)
	return finding.Finding{
		Code:        "WPS-051",
		Title:       "Weak " + hd.Display + " configuration",
		Severity:    finding.Low,
		Confidence:  finding.ConfidenceMedium,
		Description: hd.Display + ": " + strings.Join(issues, ", "),
		Evidence: &finding.Evidence{
			Type:    finding.EvidenceHeader,
			Value:   hd.Name + ": " + shown,
			Context: "Issues: " + strings.Join(issues, ", "),
		},
		Recommendation: "Review and strengthen " + hd.Name + " configuration. " + hd.Recommendation,
	}
}

// Validate returns the problems with a present header's value.
func Validate(name, value string) []string {
	v := strings.ToLower(strings.TrimSpace(value))
	var issues []string
	switch name {
	case "Strict-Transport-Security":
		switch {
		case !strings.Contains(v, "max-age"):
			issues = append(issues, "missing max-age directive")
		case strings.Contains(v, "max-age=0"):
			issues = append(issues, "max-age set to 0 (ineffective)")
		default:
			if s, ok := regexcache.Group(`max-age=(\d+)`, v); ok {
				if age, err := strconv.Atoi(s); err == nil && age < oneYear {
					issues = append(issues, fmt.Sprintf("max-age too short (%ds, recommend %d+)", age, oneYear))
				}
			}
		}
		if !strings.Contains(v, "includesubdomains") {
			issues = append(issues, "missing includeSubDomains (recommended)")
		}
	case "Content-Security-Policy":
		if strings.Contains(v, "unsafe-inline") {
			issues = append(issues, "'unsafe-inline' allows inline scripts (reduces CSP effectiveness)")
		}
		if strings.Contains(v, "unsafe-eval") {
			issues = append(issues, "'unsafe-eval' allows eval() (security risk)")
		}
	case "X-Frame-Options":
		if v != "deny" && v != "sameorigin" && !strings.HasPrefix(v, "allow-from") {
			issues = append(issues, "invalid value (should be DENY, SAMEORIGIN, or ALLOW-FROM)")
		}
	case "X-Content-Type-Options":
		if v != "nosniff" {
			issues = append(issues, `should be set to "nosniff"`)
		}
	}
	return issues
}

// CookieIssues lists what is wrong with a cookie's attributes. The Secure
// flag is only required on HTTPS sites.
func CookieIssues(c *http.Cookie, https bool) []string {
	var issues []string
	if https && !c.Secure {
		issues = append(issues, "missing Secure flag")
	}
	if !c.HttpOnly {
		issues = append(issues, "missing HttpOnly flag")
	}
	switch {
	case c.SameSite == 0:
		issues = append(issues, "missing SameSite attribute")
	case c.SameSite == http.SameSiteNoneMode && !c.Secure:
		issues = append(issues, "SameSite=None without Secure flag")
	}
	return issues
}

// CookieFindings reports one WPS-052 per cookie with issues.
func CookieFindings(cookies []*http.Cookie, https bool) []finding.Finding {
	var out []finding.Finding
	for _, c := range cookies {
		issues := CookieIssues(c, https)
		if len(issues) == 0 {
			continue
		}
		sev := finding.Low
		if strings.Contains(issues[0], "Secure") || strings.Contains(issues[0], "HttpOnly") {
			sev = finding.Medium
		}
		joined := strings.Join(issues, ", ")

		rec := fmt.Sprintf("Set proper cookie flags for '%s':", c.Name)
		if strings.Contains(joined, "Secure") {
			rec += "\n- Add Secure flag (HTTPS only)"
		}
		if strings.Contains(joined, "HttpOnly") {
			rec += "\n- Add HttpOnly flag (prevent JavaScript access)"
		}
		if strings.Contains(joined, "SameSite") {
			rec += "\n- Add SameSite attribute (Strict or Lax)"
		}

		out = append(out, finding.Finding{
			Code:        "WPS-052",
			Title:       "Insecure cookie: " + c.Name,
			Severity:    sev,
			Confidence:  finding.ConfidenceHigh,
			Description: fmt.Sprintf("Cookie '%s' has security issues: %s.", c.Name, joined),
			Evidence: &finding.Evidence{
				Type:    finding.EvidenceHeader,
				Value:   "Set-Cookie: " + c.Name,
				Context: "Issues: " + joined,
			},
			Recommendation: rec,
			References: []string{
				"https://owasp.org/www-community/controls/SecureCookieAttribute",
				"https://developer.mozilla.org/en-US/docs/Web/HTTP/Cookies",
			},
		})
	}
	return out
}
