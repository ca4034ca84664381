package httpclient

import (
	"net/http"
)

// stripHeadersKey marks a redirected request whose custom headers must not
// be re-added. The transport removes it before the request is sent.
const stripHeadersKey = "X-Wpscout-Cross-Origin"

// headerTransport stamps the identifying User-Agent and the configured
// custom headers onto every outgoing request.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   http.Header
}

// RoundTrip implements http.RoundTripper.
func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())

	crossOrigin := r.Header.Get(stripHeadersKey) != ""
	r.Header.Del(stripHeadersKey)

	if h.userAgent != "" {
		r.Header.Set("User-Agent", h.userAgent)
	}
	if !crossOrigin {
		for key, vals := range h.headers {
			if r.Header.Get(key) != "" {
				continue
			}
			for _, v := range vals {
				r.Header.Add(key, v)
			}
		}
	}
	return h.base.RoundTrip(r)
}

// Base returns the underlying transport of a client built by New, for tests
// and callers that need to inspect TLS or proxy settings.
func Base(c *http.Client) http.RoundTripper {
	if h, ok := c.Transport.(*headerTransport); ok {
		return h.base
	}
	return c.Transport
}
