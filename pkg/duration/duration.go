// Package duration provides canonical time constants for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for time-based configuration.
//
// Usage:
//
//	ctx, cancel := context.WithTimeout(ctx, duration.AIRequest)
//	cfg.ConnectTimeout = duration.Connect
//
// Do not hardcode time.Duration values like `30 * time.Second` elsewhere.
package duration

import "time"

// ============================================================================
// PROBE TIMEOUTS
// ============================================================================
//
// Every probe is bounded by a connect and a read timeout. There is no
// "unbounded" setting.
// ============================================================================

const (
	// Connect bounds TCP connect plus TLS handshake (10s)
	Connect = 10 * time.Second

	// Read bounds waiting for response headers and body (30s)
	Read = 30 * time.Second

	// KeepAlive is the dialer keep-alive period (30s)
	KeepAlive = 30 * time.Second

	// IdleConnTimeout is how long idle connections stay pooled (90s)
	IdleConnTimeout = 90 * time.Second

	// ExpectContinue bounds 100-continue waits (1s)
	ExpectContinue = 1 * time.Second
)

// ============================================================================
// CONSENT VERIFICATION
// ============================================================================

const (
	// VerifyHTTP bounds one token file fetch (10s)
	VerifyHTTP = 10 * time.Second

	// VerifyDNS bounds one DNS exchange (5s)
	VerifyDNS = 5 * time.Second

	// VerifyRetryDelay is the constant delay between verification attempts (2s)
	VerifyRetryDelay = 2 * time.Second

	// TokenExpiry is how long a consent token stays valid (48h)
	TokenExpiry = 48 * time.Hour
)

// ============================================================================
// OUTPUT / INTEGRATIONS
// ============================================================================

const (
	// AIRequest bounds one AI provider call (60s)
	AIRequest = 60 * time.Second

	// MetricsReadTimeout is the metrics server read timeout (5s)
	MetricsReadTimeout = 5 * time.Second

	// MetricsWriteTimeout is the metrics server write timeout (10s)
	MetricsWriteTimeout = 10 * time.Second

	// TelemetryShutdown bounds exporter flush on exit (5s)
	TelemetryShutdown = 5 * time.Second

	// TelemetryConnect bounds the OTLP exporter setup (10s)
	TelemetryConnect = 10 * time.Second

	// SignalGrace is how long a second interrupt is awaited before giving up (5s)
	SignalGrace = 5 * time.Second
)
