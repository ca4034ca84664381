// Package checktest wires a check environment to an httptest server.
package checktest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/waftester/wpscout/pkg/check"
	"github.com/waftester/wpscout/pkg/config"
	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/httpclient"
	"github.com/waftester/wpscout/pkg/probe"
	"github.com/waftester/wpscout/pkg/ratelimit"
	"github.com/waftester/wpscout/pkg/workerpool"
)

// Settings returns the default check settings.
func Settings() check.Settings {
	return check.SettingsFrom(config.Default().WordPress)
}

// Server starts an httptest server for h and returns it with a target
// pointing at its root. The server is closed with the test.
func Server(t testing.TB, h http.Handler) (*httptest.Server, check.Target) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	target, err := check.NewTarget(srv.URL)
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	return srv, target
}

// Env returns an environment with an unthrottled probe client that
// follows redirects by default, and a four-worker pool.
func Env(t testing.TB, settings check.Settings) *check.Env {
	t.Helper()
	cfg := httpclient.DefaultConfig()
	client, err := probe.NewFromConfig(cfg, ratelimit.New(10000, 10000))
	if err != nil {
		t.Fatalf("probe client: %v", err)
	}
	pool := workerpool.New(4)
	t.Cleanup(pool.Close)
	return &check.Env{Probe: client, Pool: pool, Settings: settings}
}

// Codes returns the finding codes in order.
func Codes(findings []finding.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Code
	}
	return out
}

// ByCode returns the findings with the given code.
func ByCode(findings []finding.Finding, code string) []finding.Finding {
	var out []finding.Finding
	for _, f := range findings {
		if f.Code == code {
			out = append(out, f)
		}
	}
	return out
}
