package check

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidTarget is returned for input that cannot be turned into an
// http(s) URL with a host.
var ErrInvalidTarget = errors.New("check: invalid target")

// Target identifies the site being scanned.
type Target struct {
	// Input is what the user typed.
	Input string
	// URL is the normalized base URL, without a trailing slash.
	URL string
	// Domain is the lowercased host, with the port when one was given.
	Domain string
	Scheme string
}

// NewTarget normalizes raw into a Target. A missing scheme defaults to
// https.
func NewTarget(raw string) (Target, error) {
	in := strings.TrimSpace(raw)
	if in == "" {
		return Target{}, fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	s := in
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Target{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}
	if u.Hostname() == "" {
		return Target{}, fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}

	host := strings.ToLower(u.Host)
	base := url.URL{Scheme: scheme, Host: host, Path: strings.TrimRight(u.Path, "/")}
	return Target{
		Input:  in,
		URL:    base.String(),
		Domain: host,
		Scheme: scheme,
	}, nil
}

// Join resolves path against the target base URL. Paths starting with "/"
// are placed under the base path, not at the host root.
func (t Target) Join(path string) string {
	if path == "" {
		return t.URL + "/"
	}
	if strings.HasPrefix(path, "?") {
		return t.URL + "/" + path
	}
	return t.URL + "/" + strings.TrimLeft(path, "/")
}

// Hostname returns the domain without any port.
func (t Target) Hostname() string {
	if u, err := url.Parse(t.URL); err == nil {
		return u.Hostname()
	}
	return t.Domain
}

// IsHTTPS reports whether the target is served over TLS.
func (t Target) IsHTTPS() bool { return t.Scheme == "https" }
