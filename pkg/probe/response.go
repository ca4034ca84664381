package probe

import (
	"net/http"
	"strings"
	"time"
)

// Response is a fully read probe response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Truncated  bool
	// URL is the final URL after any followed redirects.
	URL     string
	Elapsed time.Duration
}

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Body) }

// OK reports a 200 response.
func (r *Response) OK() bool { return r.StatusCode == http.StatusOK }

// Contains reports whether the body contains substr, case-insensitively.
func (r *Response) Contains(substr string) bool {
	return strings.Contains(strings.ToLower(string(r.Body)), strings.ToLower(substr))
}

// Cookies parses the Set-Cookie headers.
func (r *Response) Cookies() []*http.Cookie {
	return (&http.Response{Header: r.Header}).Cookies()
}
