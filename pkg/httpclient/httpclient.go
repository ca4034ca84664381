// Package httpclient builds the single HTTP client a scan talks to its
// target through. It owns the transport-level policy: timeouts, TLS
// verification, redirect handling, proxies and the identifying headers.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/waftester/wpscout/pkg/defaults"
	"github.com/waftester/wpscout/pkg/duration"
)

// Config holds HTTP client configuration options.
type Config struct {
	// ConnectTimeout bounds dialing and the TLS handshake (default: 10s).
	ConnectTimeout time.Duration

	// ReadTimeout bounds the wait for response headers (default: 30s).
	// The whole exchange is capped at ConnectTimeout+ReadTimeout.
	ReadTimeout time.Duration

	// VerifyTLS enables certificate verification (default: true).
	VerifyTLS bool

	// FollowRedirects is the default redirect policy. Individual requests
	// override it with WithRedirects / WithoutRedirects.
	FollowRedirects bool

	// MaxRedirects caps a followed redirect chain (default: 5).
	MaxRedirects int

	// Proxy is an http, https, socks5 or socks5h proxy URL.
	Proxy string

	// UserAgent is sent on every request (default: defaults.UserAgent).
	UserAgent string

	// Headers are added to every request that does not already set them.
	Headers http.Header

	// MaxConnsPerHost limits open connections to the target (default: 25).
	MaxConnsPerHost int
}

// DefaultConfig returns the configuration a safe-mode scan uses.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:  duration.Connect,
		ReadTimeout:     duration.Read,
		VerifyTLS:       true,
		FollowRedirects: true,
		MaxRedirects:    defaults.MaxRedirects,
		UserAgent:       defaults.UserAgent,
		MaxConnsPerHost: 25,
	}
}

// New creates an HTTP client from cfg. Zero durations and limits take their
// DefaultConfig values. It fails only on an invalid proxy URL.
func New(cfg Config) (*http.Client, error) {
	base := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = base.ConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = base.ReadTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = base.MaxRedirects
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = base.UserAgent
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = base.MaxConnsPerHost
	}

	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: &headerTransport{
			base:      transport,
			userAgent: cfg.UserAgent,
			headers:   cfg.Headers.Clone(),
		},
		Timeout:       cfg.ConnectTimeout + cfg.ReadTimeout,
		CheckRedirect: redirectPolicy(cfg),
	}, nil
}

func newTransport(cfg Config) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: duration.KeepAlive,
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxConnsPerHost,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     duration.IdleConnTimeout,

		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: duration.ExpectContinue,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,

		DialContext: dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.VerifyTLS, //nolint:gosec // opt-in via --insecure
		},
	}

	pc, err := ParseProxyURL(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	switch {
	case pc == nil:
		transport.Proxy = http.ProxyFromEnvironment
	case pc.IsSOCKS:
		d, err := CreateSOCKSDialer(pc, cfg.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		transport.DialContext = d.DialContext
	default:
		transport.Proxy = http.ProxyURL(pc.URL)
	}
	return transport, nil
}

type redirectKey struct{}

// WithRedirects returns a context that makes requests follow redirects
// regardless of the client's default.
func WithRedirects(ctx context.Context) context.Context {
	return context.WithValue(ctx, redirectKey{}, true)
}

// WithoutRedirects returns a context that makes requests stop at the first
// response, returning 3xx responses to the caller as-is.
func WithoutRedirects(ctx context.Context) context.Context {
	return context.WithValue(ctx, redirectKey{}, false)
}

func followRedirects(ctx context.Context, def bool) bool {
	if v, ok := ctx.Value(redirectKey{}).(bool); ok {
		return v
	}
	return def
}

// redirectPolicy follows up to MaxRedirects hops when enabled and drops the
// configured custom headers once a redirect leaves the original host.
func redirectPolicy(cfg Config) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if !followRedirects(req.Context(), cfg.FollowRedirects) {
			return http.ErrUseLastResponse
		}
		if len(via) > cfg.MaxRedirects {
			return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, cfg.MaxRedirects)
		}
		if len(via) > 0 && req.URL.Host != via[0].URL.Host {
			for key := range cfg.Headers {
				req.Header.Del(key)
			}
			req.Header.Set(stripHeadersKey, "1")
		}
		return nil
	}
}
