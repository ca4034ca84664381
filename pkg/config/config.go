// Package config holds the scanner configuration and loads it in layers:
// built-in defaults, then the user's YAML file, then WPSCOUT_* environment
// variables. Command-line overrides are applied by the caller on the
// returned value before Validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/waftester/wpscout/pkg/defaults"
)

// Scan modes.
const (
	ModeSafe       = "safe"
	ModeAggressive = "aggressive"
)

// Config is the full configuration. Pass it by value: the orchestrator
// keeps its own copy for the lifetime of a scan.
type Config struct {
	Paths     Paths     `yaml:"paths"`
	Scan      Scan      `yaml:"scan"`
	WordPress WordPress `yaml:"wordpress"`
	Consent   Consent   `yaml:"consent"`
	Reporting Reporting `yaml:"reporting"`
	Logging   Logging   `yaml:"logging"`
	AI        AI        `yaml:"ai"`
	Advanced  Advanced  `yaml:"advanced"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Paths are filesystem locations. A leading "~/" expands to the home
// directory.
type Paths struct {
	ReportDir        string `yaml:"report_dir"`
	Database         string `yaml:"database"`
	ConsentProofsDir string `yaml:"consent_proofs_dir"`
}

// Scan controls request pacing and transport behavior.
type Scan struct {
	DefaultMode         string  `yaml:"default_mode"`
	RateLimitSafe       float64 `yaml:"rate_limit_safe"`
	RateLimitAggressive float64 `yaml:"rate_limit_aggressive"`
	// RateOverride, when positive, replaces the mode's rate tier.
	RateOverride    float64 `yaml:"rate_override"`
	TimeoutConnect  float64 `yaml:"timeout_connect"`
	TimeoutRead     float64 `yaml:"timeout_read"`
	UserAgent       string  `yaml:"user_agent"`
	FollowRedirects bool    `yaml:"follow_redirects"`
	MaxRedirects    int     `yaml:"max_redirects"`
	VerifySSL       bool    `yaml:"verify_ssl"`
}

// ConnectTimeout returns TimeoutConnect as a duration.
func (s Scan) ConnectTimeout() time.Duration { return seconds(s.TimeoutConnect) }

// ReadTimeout returns TimeoutRead as a duration.
func (s Scan) ReadTimeout() time.Duration { return seconds(s.TimeoutRead) }

// EffectiveRate returns the request rate a scan in mode will run at.
func (s Scan) EffectiveRate(mode string) float64 {
	if s.RateOverride > 0 {
		return s.RateOverride
	}
	if mode == ModeAggressive {
		return s.RateLimitAggressive
	}
	return s.RateLimitSafe
}

// WordPress holds per-check tunables.
type WordPress struct {
	CommonPaths     []string `yaml:"common_paths"`
	MaxPluginsCheck int      `yaml:"max_plugins_check"`
	MaxThemesCheck  int      `yaml:"max_themes_check"`
	CommonPlugins   []string `yaml:"common_plugins"`
	CommonThemes    []string `yaml:"common_themes"`
	CheckAuthorIDOR bool     `yaml:"check_author_idor"`
	CheckRESTAPI    bool     `yaml:"check_rest_api"`
	MaxUsersCheck   int      `yaml:"max_users_check"`
}

// Consent configures ownership verification.
type Consent struct {
	TokenExpiryHours       int     `yaml:"token_expiry_hours"`
	TokenHexLength         int     `yaml:"token_hex_length"`
	HTTPVerificationPath   string  `yaml:"http_verification_path"`
	DNSTXTPrefix           string  `yaml:"dns_txt_prefix"`
	VerificationRetries    int     `yaml:"verification_retries"`
	VerificationRetryDelay float64 `yaml:"verification_retry_delay"`
}

// TokenExpiry returns TokenExpiryHours as a duration.
func (c Consent) TokenExpiry() time.Duration {
	return time.Duration(c.TokenExpiryHours) * time.Hour
}

// RetryDelay returns VerificationRetryDelay as a duration.
func (c Consent) RetryDelay() time.Duration { return seconds(c.VerificationRetryDelay) }

// Reporting selects report outputs.
type Reporting struct {
	GenerateJSON        bool `yaml:"generate_json"`
	GenerateHTML        bool `yaml:"generate_html"`
	HTMLIncludeEvidence bool `yaml:"html_include_evidence"`
}

// Logging configures the process logger.
type Logging struct {
	Level         string `yaml:"level"`
	JSON          bool   `yaml:"json_format"`
	RedactSecrets bool   `yaml:"redact_secrets"`
}

// AI configures optional report summarization.
type AI struct {
	Enabled           bool    `yaml:"enabled"`
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	RemoveURLs        bool    `yaml:"remove_urls"`
	RemoveTokens      bool    `yaml:"remove_tokens"`
	RemoveCredentials bool    `yaml:"remove_credentials"`
	MaxEvidenceLength int     `yaml:"max_evidence_length"`
}

// Advanced holds concurrency and transport extras.
type Advanced struct {
	MaxWorkers    int               `yaml:"max_workers"`
	CustomHeaders map[string]string `yaml:"custom_headers"`
	Proxy         string            `yaml:"proxy"`
}

// Telemetry configures metrics and trace export. Empty disables each.
type Telemetry struct {
	MetricsAddr  string `yaml:"metrics_addr"`
	OTelEndpoint string `yaml:"otel_endpoint"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Paths: Paths{
			ReportDir:        "~/.wpscout/reports",
			Database:         "~/.wpscout/wpscout.db",
			ConsentProofsDir: "~/.wpscout/consent-proofs",
		},
		Scan: Scan{
			DefaultMode:         ModeSafe,
			RateLimitSafe:       defaults.RateSafe,
			RateLimitAggressive: defaults.RateAggressive,
			TimeoutConnect:      10,
			TimeoutRead:         30,
			UserAgent:           defaults.UserAgent,
			FollowRedirects:     true,
			MaxRedirects:        defaults.MaxRedirects,
			VerifySSL:           true,
		},
		WordPress: WordPress{
			CommonPaths:     slices.Clone(defaults.CommonPaths),
			MaxPluginsCheck: defaults.MaxPluginsCheck,
			MaxThemesCheck:  defaults.MaxThemesCheck,
			CommonPlugins:   slices.Clone(defaults.CommonPlugins),
			CommonThemes:    slices.Clone(defaults.CommonThemes),
			CheckAuthorIDOR: true,
			CheckRESTAPI:    true,
			MaxUsersCheck:   defaults.MaxUsersCheck,
		},
		Consent: Consent{
			TokenExpiryHours:       defaults.TokenExpiryHours,
			TokenHexLength:         defaults.TokenHexLength,
			HTTPVerificationPath:   defaults.HTTPVerificationPath,
			DNSTXTPrefix:           defaults.DNSTXTPrefix,
			VerificationRetries:    defaults.VerificationRetries,
			VerificationRetryDelay: 2,
		},
		Reporting: Reporting{
			GenerateJSON:        true,
			HTMLIncludeEvidence: true,
		},
		Logging: Logging{
			Level:         "info",
			RedactSecrets: true,
		},
		AI: AI{
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			Temperature:       0.3,
			MaxTokens:         2000,
			APIKeyEnv:         "OPENAI_API_KEY",
			RemoveTokens:      true,
			RemoveCredentials: true,
			MaxEvidenceLength: defaults.MaxEvidenceLength,
		},
		Advanced: Advanced{
			MaxWorkers: defaults.MaxWorkers,
		},
	}
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch c.Scan.DefaultMode {
	case ModeSafe, ModeAggressive:
	default:
		return invalid("scan.default_mode %q (want safe or aggressive)", c.Scan.DefaultMode)
	}
	if c.Scan.RateLimitSafe <= 0 || c.Scan.RateLimitAggressive <= 0 {
		return invalid("rate limits must be positive")
	}
	if c.Scan.RateOverride < 0 {
		return invalid("scan.rate_override must not be negative")
	}
	if c.Scan.TimeoutConnect <= 0 || c.Scan.TimeoutRead <= 0 {
		return invalid("timeouts must be positive")
	}
	if c.Scan.MaxRedirects < 0 {
		return invalid("scan.max_redirects must not be negative")
	}
	if c.Advanced.MaxWorkers < 1 || c.Advanced.MaxWorkers > defaults.MaxWorkersLimit {
		return invalid("advanced.max_workers %d (want 1..%d)", c.Advanced.MaxWorkers, defaults.MaxWorkersLimit)
	}
	if c.WordPress.MaxPluginsCheck < 0 || c.WordPress.MaxThemesCheck < 0 || c.WordPress.MaxUsersCheck < 0 {
		return invalid("wordpress limits must not be negative")
	}
	if c.Consent.TokenHexLength < 8 || c.Consent.TokenHexLength > 64 {
		return invalid("consent.token_hex_length %d (want 8..64)", c.Consent.TokenHexLength)
	}
	if c.Consent.TokenExpiryHours <= 0 {
		return invalid("consent.token_expiry_hours must be positive")
	}
	if p := c.Consent.HTTPVerificationPath; !strings.HasPrefix(p, "/") || !strings.HasSuffix(p, "/") {
		return invalid("consent.http_verification_path %q must start and end with /", p)
	}
	if c.Consent.DNSTXTPrefix == "" {
		return invalid("consent.dns_txt_prefix: %v", ErrMissingRequired)
	}
	if c.Consent.VerificationRetries < 1 {
		return invalid("consent.verification_retries must be at least 1")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("logging.level %q", c.Logging.Level)
	}
	switch c.AI.Provider {
	case "openai", "ollama":
	default:
		return invalid("ai.provider %q (want openai or ollama)", c.AI.Provider)
	}
	return nil
}

// ExpandPaths returns c with "~/" prefixes in Paths resolved.
func (c Config) ExpandPaths() Config {
	c.Paths.ReportDir = expandHome(c.Paths.ReportDir)
	c.Paths.Database = expandHome(c.Paths.Database)
	c.Paths.ConsentProofsDir = expandHome(c.Paths.ConsentProofsDir)
	return c
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
