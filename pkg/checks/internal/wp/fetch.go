// Package wp holds helpers shared by the WordPress checks: probe wrappers
// that turn transport errors into "no evidence", and HTML traversal over
// golang.org/x/net/html.
package wp

import (
	"context"
	"log/slog"

	"github.com/waftester/wpscout/pkg/check"
	"github.com/waftester/wpscout/pkg/probe"
)

// Reference URLs cited by several checks.
const (
	HardeningGuide  = "https://wordpress.org/documentation/article/hardening-wordpress/"
	AdvancedGuide   = "https://developer.wordpress.org/advanced-administration/security/hardening/"
	OWASPHeaders    = "https://owasp.org/www-project-secure-headers/"
	SecurityHeaders = "https://securityheaders.com/"
)

// Get fetches url through the shared probe client. A transport error is
// logged at debug level and reported as ok=false; the caller treats it as
// absence of evidence. Context cancellation is reported the same way.
func Get(ctx context.Context, env *check.Env, url string, opts ...probe.RequestOption) (*probe.Response, bool) {
	resp, err := env.Probe.Get(ctx, url, opts...)
	if err != nil {
		env.Log().DebugContext(ctx, "probe yielded no evidence",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return nil, false
	}
	return resp, true
}

// GetOK is Get that also requires a 200 response.
func GetOK(ctx context.Context, env *check.Env, url string, opts ...probe.RequestOption) (*probe.Response, bool) {
	resp, ok := Get(ctx, env, url, opts...)
	if !ok || !resp.OK() {
		return nil, false
	}
	return resp, true
}

// Post is Get for POST requests.
func Post(ctx context.Context, env *check.Env, url, contentType string, body []byte, opts ...probe.RequestOption) (*probe.Response, bool) {
	resp, err := env.Probe.Post(ctx, url, contentType, body, opts...)
	if err != nil {
		env.Log().DebugContext(ctx, "probe yielded no evidence",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return nil, false
	}
	return resp, true
}
