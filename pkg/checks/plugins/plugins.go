// Package plugins enumerates installed plugins and themes, either
// referenced from the homepage or found by probing well-known slugs.
package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/waftester/wpscout/pkg/check"
	"github.com/waftester/wpscout/pkg/checks/internal/wp"
	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/probe"
	"github.com/waftester/wpscout/pkg/regexcache"
	"github.com/waftester/wpscout/pkg/workerpool"
)

// Name is the phase name.
const Name = "plugins"

// KnownPlugins are popular or historically vulnerable plugin slugs probed
// after the ones discovered on the page and the configured ones.
var KnownPlugins = []string{
	"wordfence", "jetpack", "akismet", "all-in-one-wp-security-and-firewall",
	"sucuri-scanner", "ithemes-security", "wp-super-cache", "w3-total-cache",
	"yoast-seo", "google-analytics-for-wordpress", "wordpress-seo",
	"all-in-one-seo-pack", "redirection",
	"contact-form-7", "wpforms-lite", "ninja-forms", "formidable",
	"gravityforms", "contact-form-by-supsystic",
	"elementor", "wpbakery-visual-composer", "beaver-builder", "divi-builder",
	"siteorigin-panels",
	"woocommerce", "woocommerce-gateway-stripe", "woocommerce-services",
	"easy-digital-downloads", "wp-ecommerce",
	"updraftplus", "all-in-one-wp-migration", "duplicator", "backwpup",
	"nextgen-gallery", "envira-gallery-lite", "smush", "regenerate-thumbnails",
	"social-media-share-buttons", "instagram-feed", "facebook-for-wordpress",
	"slider-revolution", "revslider", "wpdatatables", "wp-file-manager",
	"simple-file-list", "email-subscribers", "wp-google-maps",
	"wordpress-importer", "classic-editor",
}

// KnownThemes are default and popular theme slugs.
var KnownThemes = []string{
	"twentytwentyfour", "twentytwentythree", "twentytwentytwo",
	"twentytwentyone", "twentytwenty", "twentynineteen",
	"astra", "generatepress", "oceanwp", "neve", "kadence",
	"hello-elementor", "storefront", "divi", "avada", "enfold",
}

var historicallyVulnerable = []string{"slider-revolution", "revslider", "wp-file-manager"}

// Kind selects plugins or themes.
type Kind string

const (
	KindPlugin Kind = "plugin"
	KindTheme  Kind = "theme"
)

func (k Kind) dir() string { return "wp-content/" + string(k) + "s/" }

// Component is an installed plugin or theme.
type Component struct {
	Kind    Kind
	Slug    string
	URL     string
	Version string
}

// Check implements check.Check.
type Check struct{}

// New returns the plugin and theme enumeration check.
func New() *Check { return &Check{} }

// Name implements check.Check.
func (*Check) Name() string { return Name }

// Scan implements check.Check.
func (c *Check) Scan(ctx context.Context, target check.Target, env *check.Env) ([]finding.Finding, error) {
	var home string
	if resp, ok := wp.GetOK(ctx, env, target.Join("")); ok {
		home = resp.Text()
	}
	s := env.Settings

	plugins := Candidates(Discover(home, KindPlugin), s.CommonPlugins, KnownPlugins, s.MaxPlugins)
	env.Log().InfoContext(ctx, "enumerating plugins", slog.Int("candidates", len(plugins)))
	foundPlugins := enumerate(ctx, target, env, KindPlugin, plugins)

	themes := Candidates(Discover(home, KindTheme), s.CommonThemes, KnownThemes, s.MaxThemes)
	env.Log().InfoContext(ctx, "enumerating themes", slog.Int("candidates", len(themes)))
	foundThemes := enumerate(ctx, target, env, KindTheme, themes)

	return append(PluginFindings(foundPlugins), ThemeFindings(foundThemes)...), nil
}

// Discover returns the slugs of kind referenced from body, in order of
// first appearance.
func Discover(body string, kind Kind) []string {
	pattern := `(?i)/wp-content/` + string(kind) + `s/([a-z0-9_-]+)/`
	var out []string
	for _, slug := range regexcache.AllGroups(pattern, body) {
		slug = strings.ToLower(slug)
		if !slices.Contains(out, slug) {
			out = append(out, slug)
		}
	}
	return out
}

// Candidates merges the slug lists in priority order without duplicates
// and caps the result at max. A max of zero or less means no cap.
func Candidates(discovered, configured, known []string, max int) []string {
	var out []string
	for _, slug := range slices.Concat(discovered, configured, known) {
		if max > 0 && len(out) == max {
			break
		}
		if slug != "" && !slices.Contains(out, slug) {
			out = append(out, slug)
		}
	}
	return out
}

func enumerate(ctx context.Context, target check.Target, env *check.Env, kind Kind, slugs []string) []Component {
	results := workerpool.Map(ctx, env.Pool, slugs, func(ctx context.Context, slug string) *Component {
		return probeComponent(ctx, target, env, kind, slug)
	})
	var found []Component
	for _, r := range results {
		if r != nil {
			env.Log().InfoContext(ctx, string(kind)+" found",
				slog.String("slug", r.Slug),
				slog.String("version", r.Version))
			found = append(found, *r)
		}
	}
	return found
}

// probeComponent treats 200 (listing) and 403 (present but forbidden) on the
// component directory as installed.
func probeComponent(ctx context.Context, target check.Target, env *check.Env, kind Kind, slug string) *Component {
	url := target.Join(kind.dir() + slug + "/")
	resp, ok := wp.Get(ctx, env, url, probe.NoRedirects())
	if !ok || (resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusForbidden) {
		return nil
	}
	return &Component{Kind: kind, Slug: slug, URL: url, Version: version(ctx, target, env, kind, slug)}
}

func version(ctx context.Context, target check.Target, env *check.Env, kind Kind, slug string) string {
	file, pattern := "readme.txt", `(?i)Stable tag:\s*(\d+\.\d+(?:\.\d+)?)`
	if kind == KindTheme {
		file, pattern = "style.css", `(?i)Version:\s*(\d+\.\d+(?:\.\d+)?)`
	}
	resp, ok := wp.GetOK(ctx, env, target.Join(kind.dir()+slug+"/"+file))
	if !ok {
		return ""
	}
	v, _ := regexcache.Group(pattern, resp.Text())
	return v
}

func versionOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// PluginFindings emits WPS-010 per plugin and a WPS-011 summary. Nothing
// is reported when no plugin was found.
func PluginFindings(found []Component) []finding.Finding {
	if len(found) == 0 {
		return nil
	}
	out := make([]finding.Finding, 0, len(found)+1)
	for _, p := range found {
		f := finding.Finding{
			Code:        "WPS-010",
			Title:       "Plugin detected: " + p.Slug,
			Severity:    finding.Info,
			Confidence:  finding.ConfidenceHigh,
			Description: fmt.Sprintf("WordPress plugin '%s' is installed.", p.Slug),
			Evidence:    finding.URLEvidence(p.URL, "Version: "+versionOrUnknown(p.Version)),
			Recommendation: fmt.Sprintf("1. Verify %s is necessary\n", p.Slug) +
				"2. Update to latest version\n" +
				"3. Remove if unused\n" +
				"4. Check for known CVEs: https://wpscan.com/plugins/",
			Component: strings.TrimSpace(p.Slug + " " + p.Version),
		}
		if slices.Contains(historicallyVulnerable, p.Slug) {
			f.Severity = finding.Medium
			f.Title += " (historically vulnerable)"
		}
		out = append(out, f)
	}
	return append(out, finding.Finding{
		Code:        "WPS-011",
		Title:       fmt.Sprintf("%d plugin(s) detected", len(found)),
		Severity:    finding.Info,
		Confidence:  finding.ConfidenceHigh,
		Description: fmt.Sprintf("Found %d WordPress plugins installed.", len(found)),
		Recommendation: "Review all plugins:\n" +
			"- Remove unused plugins\n" +
			"- Update all plugins to latest versions\n" +
			"- Monitor for security updates\n" +
			"- Use only reputable plugins from WordPress.org",
	})
}

// ThemeFindings emits WPS-020 per theme and a WPS-021 summary.
func ThemeFindings(found []Component) []finding.Finding {
	if len(found) == 0 {
		return nil
	}
	out := make([]finding.Finding, 0, len(found)+1)
	for _, th := range found {
		out = append(out, finding.Finding{
			Code:        "WPS-020",
			Title:       "Theme detected: " + th.Slug,
			Severity:    finding.Info,
			Confidence:  finding.ConfidenceHigh,
			Description: fmt.Sprintf("WordPress theme '%s' is installed.", th.Slug),
			Evidence:    finding.URLEvidence(th.URL, "Version: "+versionOrUnknown(th.Version)),
			Recommendation: fmt.Sprintf("1. Update %s to latest version\n", th.Slug) +
				"2. Remove unused themes (keep only active + one backup)\n" +
				"3. Use child themes for customizations",
			Component: th.Slug + " theme",
		})
	}
	return append(out, finding.Finding{
		Code:           "WPS-021",
		Title:          fmt.Sprintf("%d theme(s) detected", len(found)),
		Severity:       finding.Info,
		Confidence:     finding.ConfidenceHigh,
		Description:    fmt.Sprintf("Found %d WordPress themes installed.", len(found)),
		Recommendation: "Keep only necessary themes installed and updated.",
	})
}
