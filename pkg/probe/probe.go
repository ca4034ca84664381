// Package probe is the single HTTP calling surface every check uses.
//
// A Client binds one http.Client to one ratelimit.Limiter. Each call waits
// for a token before touching the network, so all checks sharing a Client
// share the target's request budget.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/waftester/wpscout/pkg/defaults"
	"github.com/waftester/wpscout/pkg/hosterrors"
	"github.com/waftester/wpscout/pkg/httpclient"
	"github.com/waftester/wpscout/pkg/iohelper"
	"github.com/waftester/wpscout/pkg/ratelimit"
)

// Observer is notified after every probe. Implementations must be safe for
// concurrent use. kind is empty when a response was received.
type Observer interface {
	ObserveProbe(method string, status int, kind hosterrors.Kind, elapsed time.Duration)
}

// Client issues rate-limited probes against a target.
type Client struct {
	http     *http.Client
	limiter  *ratelimit.Limiter
	maxBody  int64
	logger   *slog.Logger
	observer Observer
	requests atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for per-probe debug records.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers o for per-probe notifications.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithMaxBodySize caps how much of each response body is kept.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// New returns a Client sending through hc and throttled by limiter.
func New(hc *http.Client, limiter *ratelimit.Limiter, opts ...Option) *Client {
	c := &Client{
		http:    hc,
		limiter: limiter,
		maxBody: defaults.MaxBodySize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds the underlying http.Client from cfg.
func NewFromConfig(cfg httpclient.Config, limiter *ratelimit.Limiter, opts ...Option) (*Client, error) {
	hc, err := httpclient.New(cfg)
	if err != nil {
		return nil, err
	}
	return New(hc, limiter, opts...), nil
}

// Limiter returns the bucket this client draws from.
func (c *Client) Limiter() *ratelimit.Limiter { return c.limiter }

// Requests returns how many probes reached the network.
func (c *Client) Requests() int64 { return c.requests.Load() }

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, opts...)
}

// Post issues a POST request with body sent as contentType.
func (c *Client) Post(ctx context.Context, url, contentType string, body []byte, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, url, body, append([]RequestOption{WithHeader("Content-Type", contentType)}, opts...)...)
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodHead, url, nil, opts...)
}

// Do waits for a token, sends the request and reads the body. Network
// failures are returned as *TransportError. Context cancellation while
// waiting for a token is returned unwrapped.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, opts ...RequestOption) (*Response, error) {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	if err := c.limiter.Wait(ctx, 1); err != nil {
		return nil, err
	}

	ctx = ro.context(ctx)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("probe: build %s %s: %w", method, url, err)
	}
	for k, vals := range ro.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	c.requests.Add(1)
	countRequest(ctx)

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, ctxErr
		}
		terr := &TransportError{Method: method, URL: url, Kind: hosterrors.Classify(err), Err: err}
		c.observe(method, 0, terr.Kind, elapsed)
		c.logger.DebugContext(ctx, "probe failed",
			slog.String("method", method),
			slog.String("url", url),
			slog.String("kind", terr.Kind.String()),
			slog.String("error", err.Error()))
		return nil, terr
	}
	defer iohelper.DrainAndClose(resp.Body)

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		URL:        resp.Request.URL.String(),
		Elapsed:    elapsed,
	}
	if method != http.MethodHead {
		b, truncated, err := iohelper.ReadBody(resp.Body, c.maxBody)
		if err != nil {
			terr := &TransportError{Method: method, URL: url, Kind: hosterrors.Classify(err), Err: err}
			c.observe(method, resp.StatusCode, terr.Kind, elapsed)
			return nil, terr
		}
		out.Body, out.Truncated = b, truncated
	}

	c.observe(method, resp.StatusCode, "", elapsed)
	c.logger.DebugContext(ctx, "probe",
		slog.String("method", method),
		slog.String("url", url),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", elapsed))
	return out, nil
}

func (c *Client) observe(method string, status int, kind hosterrors.Kind, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveProbe(method, status, kind, elapsed)
	}
}
