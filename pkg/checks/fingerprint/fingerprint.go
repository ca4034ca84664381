// Package fingerprint is the mandatory detection phase: it decides whether
// the target runs WordPress and which core version it discloses.
package fingerprint

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/waftester/wpscout/pkg/check"
	"github.com/waftester/wpscout/pkg/checks/internal/wp"
	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/regexcache"
)

// Name is the phase name of the detector.
const Name = "fingerprint"

// MinIndicators is how many markers must appear on the homepage.
const MinIndicators = 2

// Indicators are substrings only a WordPress page tends to contain.
var Indicators = []string{
	"/wp-content/",
	"/wp-includes/",
	"/wp-admin/",
	"wp-json",
	"xmlrpc.php",
}

var versionPatterns = []string{
	`(?i)Version\s+(\d+\.\d+(?:\.\d+)?)`,
	`(?i)WordPress\s+(\d+\.\d+(?:\.\d+)?)`,
	`(?i)\?v=(\d+\.\d+(?:\.\d+)?)`,
	`(?i)ver=(\d+\.\d+(?:\.\d+)?)`,
}

const assetPattern = `(?i)/wp-(?:includes|content)/(?:js|css)/[^"']*\?ver=(\d+\.\d+(?:\.\d+)?)`

var feedPaths = []string{"/feed/", "/feed/atom/", "/?feed=rss2"}

// Detector implements check.Detector.
type Detector struct{}

// New returns the WordPress detector.
func New() *Detector { return &Detector{} }

// Name implements check.Detector.
func (*Detector) Name() string { return Name }

// Detect fetches the homepage. A transport error on that request is the
// only way this phase fails; every later probe is best effort.
func (d *Detector) Detect(ctx context.Context, target check.Target, env *check.Env) check.DetectionOutcome {
	home, err := env.Probe.Get(ctx, target.Join(""))
	if err != nil {
		return check.TransportFailure(err)
	}
	if !home.OK() {
		return check.Negative(fmt.Sprintf("homepage returned HTTP %d", home.StatusCode))
	}

	body := home.Text()
	found := CountIndicators(body)
	if found < MinIndicators {
		env.Log().InfoContext(ctx, "wordpress not detected", slog.Int("indicators", found))
		return check.Negative(fmt.Sprintf("found %d/%d WordPress indicators", found, len(Indicators)))
	}

	detected := finding.Finding{
		Code:       "WPS-000",
		Title:      "WordPress detected",
		Severity:   finding.Info,
		Confidence: finding.ConfidenceHigh,
		Evidence: &finding.Evidence{
			Type:    finding.EvidenceBody,
			Value:   fmt.Sprintf("Found %d/%d WP indicators", found, len(Indicators)),
			Context: "Indicators: " + strings.Join(Indicators[:3], ", "),
		},
		Recommendation: "WordPress installation confirmed. Proceed with security checks.",
	}

	version, methods := d.version(ctx, target, env, home.Body)
	return check.Positive(version, detected, versionFinding(version, methods))
}

// CountIndicators returns how many Indicators occur in body.
func CountIndicators(body string) int {
	n := 0
	for _, ind := range Indicators {
		if strings.Contains(body, ind) {
			n++
		}
	}
	return n
}

// version tries every source and reports the first version found along
// with the names of all sources that disclosed one.
func (d *Detector) version(ctx context.Context, target check.Target, env *check.Env, home []byte) (string, []string) {
	sources := []struct {
		name string
		fn   func() string
	}{
		{"meta_generator", func() string { return metaGenerator(home) }},
		{"readme.html", func() string { return d.readme(ctx, target, env) }},
		{"rss_feed", func() string { return d.feed(ctx, target, env) }},
		{"assets", func() string { return AssetVersion(string(home)) }},
	}

	var version string
	var methods []string
	for _, src := range sources {
		v := src.fn()
		if v == "" {
			continue
		}
		methods = append(methods, src.name)
		if version == "" {
			version = v
		}
	}
	return version, methods
}

func metaGenerator(home []byte) string {
	content, ok := wp.MetaContent(wp.Parse(home), "generator")
	if !ok {
		return ""
	}
	return MatchVersion(content)
}

func (d *Detector) readme(ctx context.Context, target check.Target, env *check.Env) string {
	resp, ok := wp.GetOK(ctx, env, target.Join("/readme.html"))
	if !ok {
		return ""
	}
	return MatchVersion(resp.Text())
}

func (d *Detector) feed(ctx context.Context, target check.Target, env *check.Env) string {
	for _, p := range feedPaths {
		resp, ok := wp.GetOK(ctx, env, target.Join(p))
		if !ok {
			continue
		}
		if v := MatchVersion(resp.Text()); v != "" {
			return v
		}
	}
	return ""
}

// MatchVersion returns the first version any known pattern extracts from s.
func MatchVersion(s string) string {
	for _, p := range versionPatterns {
		if v, ok := regexcache.Group(p, s); ok {
			return v
		}
	}
	return ""
}

// AssetVersion returns the most frequent ?ver= value on core script and
// style URLs. Ties go to the value seen first.
func AssetVersion(body string) string {
	matches := regexcache.AllGroups(assetPattern, body)
	counts := make(map[string]int, len(matches))
	best, bestN := "", 0
	for _, v := range matches {
		counts[v]++
		if counts[v] > bestN {
			best, bestN = v, counts[v]
		}
	}
	return best
}

func versionFinding(version string, methods []string) finding.Finding {
	if version == "" {
		return finding.Finding{
			Code:           "WPS-001",
			Title:          "WordPress version hidden (Good practice)",
			Severity:       finding.Info,
			Confidence:     finding.ConfidenceHigh,
			Description:    "WordPress version is not publicly disclosed, which is a security best practice.",
			Recommendation: "Continue hiding version information and keep WordPress updated.",
		}
	}
	return finding.Finding{
		Code:       "WPS-001",
		Title:      "WordPress core version disclosed",
		Severity:   finding.Medium,
		Confidence: finding.ConfidenceHigh,
		Description: fmt.Sprintf("WordPress version %s detected. Version disclosure helps attackers "+
			"identify known vulnerabilities for targeted exploits.", version),
		Evidence: &finding.Evidence{
			Type:    finding.EvidenceOther,
			Value:   "Version: " + version,
			Context: "Methods: " + strings.Join(methods, ", "),
		},
		Recommendation: "1. Update WordPress to latest version\n" +
			"2. Hide version info by removing generator tags\n" +
			"3. Restrict access to readme.html and license.txt\n" +
			"4. Use security plugins to mask WP fingerprints",
		References: []string{wp.HardeningGuide, "https://developer.wordpress.org/apis/security/"},
		Component:  "WordPress Core " + version,
	}
}
