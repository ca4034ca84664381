package probe

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/waftester/wpscout/pkg/httpclient"
)

type redirectMode int

const (
	redirectDefault redirectMode = iota
	redirectFollow
	redirectNone
)

type requestOptions struct {
	headers  http.Header
	redirect redirectMode
}

func (o *requestOptions) context(ctx context.Context) context.Context {
	switch o.redirect {
	case redirectFollow:
		return httpclient.WithRedirects(ctx)
	case redirectNone:
		return httpclient.WithoutRedirects(ctx)
	}
	return ctx
}

// RequestOption adjusts a single probe.
type RequestOption func(*requestOptions)

// WithHeader adds a request header.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = http.Header{}
		}
		o.headers.Add(key, value)
	}
}

// FollowRedirects makes this probe follow redirects.
func FollowRedirects() RequestOption {
	return func(o *requestOptions) { o.redirect = redirectFollow }
}

// NoRedirects makes this probe return the first response, including 3xx.
func NoRedirects() RequestOption {
	return func(o *requestOptions) { o.redirect = redirectNone }
}

// Counter tallies probes issued under a context. The scheduler attaches one
// per phase so each phase reports the requests it actually made.
type Counter struct {
	n atomic.Int64
}

type counterKey struct{}

// WithCounter returns a context whose probes are tallied on c.
func WithCounter(ctx context.Context, c *Counter) context.Context {
	return context.WithValue(ctx, counterKey{}, c)
}

// Load returns the current tally.
func (c *Counter) Load() int64 { return c.n.Load() }

func countRequest(ctx context.Context) {
	if c, ok := ctx.Value(counterKey{}).(*Counter); ok && c != nil {
		c.n.Add(1)
	}
}
