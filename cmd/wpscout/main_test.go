package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/wpscout/pkg/cli"
	"github.com/waftester/wpscout/pkg/config"
	"github.com/waftester/wpscout/pkg/defaults"
	"github.com/waftester/wpscout/pkg/regexcache"
)

const wpHome = `<html><head><link rel="https://api.w.org/" href="/wp-json/" /></head>
<body><img src="/wp-content/uploads/logo.png"><script src="/wp-includes/js/jquery.js"></script></body></html>`

// run executes the CLI with a private config file, database and report
// directory under dir.
func run(t *testing.T, dir string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cfgPath := filepath.Join(dir, "config.yaml")
	if _, statErr := os.Stat(cfgPath); statErr != nil {
		yaml := "paths:\n" +
			"  report_dir: " + filepath.Join(dir, "reports") + "\n" +
			"  database: " + filepath.Join(dir, "wpscout.db") + "\n" +
			"  consent_proofs_dir: " + filepath.Join(dir, "proofs") + "\n" +
			"consent:\n  verification_retries: 1\n  verification_retry_delay: 0.01\n"
		require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))
	}

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{"--config", cfgPath, "--no-color"}, args...))
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, defaults.ToolName+" "+defaults.Version+"\n", out)
}

func TestScan_RequiresTarget(t *testing.T) {
	_, _, err := run(t, t.TempDir(), "scan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target")
}

func TestScan_NotWordPressExitsAborted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>Hello</body></html>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	out, _, err := run(t, dir, "scan", "--target", srv.URL)
	require.Error(t, err)
	assert.Equal(t, cli.ExitAborted, cli.ExitCode(err))
	assert.Contains(t, out, "not a WordPress site")

	reports, _ := filepath.Glob(filepath.Join(dir, "reports", "*.json"))
	assert.Len(t, reports, 1)
}

func TestScan_UnreachableExitsFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out, _, err := run(t, t.TempDir(), "scan", "--target", url)
	require.Error(t, err)
	assert.Equal(t, cli.ExitFailure, cli.ExitCode(err))
	assert.Contains(t, out, "connection_refused")
}

func TestScan_AggressiveNeedsConsent(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(wpHome))
	}))
	defer srv.Close()

	_, stderr, err := run(t, t.TempDir(), "scan", "--target", srv.URL, "--aggressive")
	require.Error(t, err)
	assert.Equal(t, cli.ExitFailure, cli.ExitCode(err))
	assert.Contains(t, stderr, "consent gen --domain")
	assert.Zero(t, hits.Load())
}

func TestConsentFlowUnlocksHighRate(t *testing.T) {
	var token atomic.Value
	token.Store("")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := token.Load().(string)
		switch {
		case tok != "" && r.URL.Path == "/.well-known/"+tok+".txt":
			_, _ = w.Write([]byte(tok + "\n"))
		case r.URL.Path == "/" && r.URL.RawQuery == "":
			_, _ = w.Write([]byte(wpHome))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	domain := strings.TrimPrefix(srv.URL, "http://")

	out, _, err := run(t, dir, "consent", "gen", "--domain", domain)
	require.NoError(t, err)
	tok := regexcache.MustGet(`verify-[a-f0-9]{16}`).FindString(out)
	require.NotEmpty(t, tok, out)
	token.Store(tok)

	out, _, err = run(t, dir, "consent", "verify", "--domain", domain, "--method", "http", "--token", tok)
	require.NoError(t, err)
	assert.Contains(t, out, "verified via http")
	proofs, _ := filepath.Glob(filepath.Join(dir, "proofs", "*.json"))
	assert.Len(t, proofs, 1)

	out, _, err = run(t, dir, "scan", "--target", srv.URL, "--rate", "2000", "--json", "--html")
	require.NoError(t, err)
	assert.Contains(t, out, "Scan completed")
	reports, _ := filepath.Glob(filepath.Join(dir, "reports", "*"))
	assert.Len(t, reports, 2)
}

func TestConsentVerify_BadMethod(t *testing.T) {
	_, _, err := run(t, t.TempDir(), "consent", "verify", "--domain", "example.com",
		"--method", "smtp", "--token", "verify-0123456789abcdef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid verification method")
}

func TestScanFlags_Apply(t *testing.T) {
	cfg := config.Default()
	f := scanFlags{
		rate:      4,
		timeout:   12,
		threads:   8,
		html:      true,
		reportDir: "/tmp/r",
		insecure:  true,
		headers:   []string{"X-Team: blue", "Authorization: Bearer abc"},
	}
	require.NoError(t, f.apply(&cfg))

	assert.Equal(t, 4.0, cfg.Scan.RateOverride)
	assert.Equal(t, 12.0, cfg.Scan.TimeoutRead)
	assert.Equal(t, 8, cfg.Advanced.MaxWorkers)
	assert.False(t, cfg.Reporting.GenerateJSON, "an explicit format selection replaces the defaults")
	assert.True(t, cfg.Reporting.GenerateHTML)
	assert.Equal(t, "/tmp/r", cfg.Paths.ReportDir)
	assert.False(t, cfg.Scan.VerifySSL)
	assert.Equal(t, map[string]string{"X-Team": "blue", "Authorization": "Bearer abc"}, cfg.Advanced.CustomHeaders)

	cfg = config.Default()
	assert.ErrorIs(t, scanFlags{threads: 500}.apply(&cfg), config.ErrInvalidConfig)
	cfg = config.Default()
	assert.ErrorIs(t, scanFlags{rate: -1}.apply(&cfg), config.ErrInvalidConfig)
}

func TestParseHeaders(t *testing.T) {
	got, err := parseHeaders([]string{"A: 1", "B:two:parts", "C:"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "two:parts", "C": ""}, got)

	for _, bad := range []string{"novalue", ": x", "Bad Name: x"} {
		_, err := parseHeaders([]string{bad})
		assert.Error(t, err, bad)
	}
}
