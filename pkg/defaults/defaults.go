// Package defaults provides canonical default values for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for runtime configuration defaults.
//
// Usage:
//
//	limiter := ratelimit.New(defaults.RateSafe, 0)
//	req.Header.Set("User-Agent", defaults.UserAgent)
//
// Do not hardcode rates, worker counts or tool names elsewhere.
package defaults

import "fmt"

// Version is the current wpscout version
const Version = "0.4.0"

// ToolName is the lowercase tool identifier used in reports, metrics and the database.
const ToolName = "wpscout"

// ToolNameDisplay is the human-facing tool name.
const ToolNameDisplay = "WPScout"

// UserAgent is the fixed identifying user agent sent with every probe.
const UserAgent = ToolNameDisplay + "/" + Version + " (WordPress Security Scanner; +https://github.com/waftester/wpscout)"

// UserAgentWithContext returns the user agent annotated with a caller context,
// e.g. "consent-verify".
func UserAgentWithContext(context string) string {
	if context == "" {
		return UserAgent
	}
	return fmt.Sprintf("%s/%s (%s)", ToolNameDisplay, Version, context)
}

// ============================================================================
// RATE LIMITING
// ============================================================================
//
// Rates are requests per second against a single target.
// ============================================================================

const (
	// RateSafe is the safe-mode tier (3 req/s)
	RateSafe = 3.0

	// RateAggressive is the aggressive-mode tier (10 req/s)
	RateAggressive = 10.0

	// RateMin is the floor applied to every configured rate (0.1 req/s)
	RateMin = 0.1

	// RateConsentThreshold is the effective rate at or above which the
	// target domain must be verified, regardless of mode (10 req/s).
	RateConsentThreshold = 10.0

	// BurstMin is the smallest default burst capacity (10 tokens)
	BurstMin = 10
)

// ============================================================================
// CONCURRENCY SETTINGS
// ============================================================================

const (
	// MaxWorkers is the default probe-level worker count (5)
	MaxWorkers = 5

	// PhasePoolCap bounds concurrently running fan-out phases regardless of
	// the configured worker count (5)
	PhasePoolCap = 5

	// MaxWorkersLimit rejects absurd --threads values (50)
	MaxWorkersLimit = 50
)

// ============================================================================
// HTTP
// ============================================================================

const (
	// MaxRedirects is the default redirect budget when following redirects
	MaxRedirects = 5

	// MaxBodySize caps how much of any probe response is kept (2MB)
	MaxBodySize = 2 * 1024 * 1024

	// ContentTypeXML is used for XML-RPC probes
	ContentTypeXML = "text/xml"

	// ContentTypeJSON is application/json
	ContentTypeJSON = "application/json"

	// AcceptHTML is a browser-like Accept header
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// ============================================================================
// CONSENT
// ============================================================================

const (
	// TokenHexLength is the number of hex characters after "verify-"
	TokenHexLength = 16

	// TokenExpiryHours is how long a generated consent token stays valid
	TokenExpiryHours = 48

	// HTTPVerificationPath is where the token file must be served
	HTTPVerificationPath = "/.well-known/"

	// DNSTXTPrefix prefixes the TXT record value
	DNSTXTPrefix = ToolName + "-verify="

	// VerificationRetries is the number of verification attempts
	VerificationRetries = 3
)

// ============================================================================
// WORDPRESS
// ============================================================================

const (
	// MaxPluginsCheck caps plugin slugs probed per scan
	MaxPluginsCheck = 100

	// MaxThemesCheck caps theme slugs probed per scan
	MaxThemesCheck = 20

	// MaxUsersCheck caps ?author=N probes
	MaxUsersCheck = 10

	// MaxEvidenceLength truncates evidence sent to AI providers
	MaxEvidenceLength = 500
)

// CommonPaths are the sensitive paths probed by the files check.
var CommonPaths = []string{
	"/readme.html", "/license.txt", "/wp-config.php",
	"/wp-config.php.bak", "/wp-config.php~", "/wp-config.php.old",
	"/wp-config.php.save", "/wp-content/debug.log", "/xmlrpc.php",
	"/.git/HEAD", "/.env", "/backup.zip", "/backup.sql",
	"/dump.sql", "/database.sql",
}

// CommonPlugins are plugin slugs probed even when not referenced in HTML.
var CommonPlugins = []string{
	"akismet", "jetpack", "wordfence", "contact-form-7",
	"yoast-seo", "elementor", "woocommerce", "all-in-one-wp-migration",
}

// CommonThemes are theme slugs probed even when not referenced in HTML.
var CommonThemes = []string{
	"twentytwentyfour", "twentytwentythree", "twentytwentytwo",
	"twentytwentyone", "astra", "generatepress",
}
