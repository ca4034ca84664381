package httpclient

import "errors"

// Sentinel errors for client construction and proxy dialing.
// Callers should use errors.Is() to check for these.
var (
	// ErrInvalidProxy indicates a malformed proxy URL or unsupported scheme.
	ErrInvalidProxy = errors.New("httpclient: invalid proxy")

	// ErrProxyConnect indicates the client failed to connect through
	// the configured SOCKS proxy.
	ErrProxyConnect = errors.New("httpclient: proxy connection failed")

	// ErrTooManyRedirects is returned when a followed redirect chain
	// exceeds Config.MaxRedirects.
	ErrTooManyRedirects = errors.New("httpclient: too many redirects")
)
