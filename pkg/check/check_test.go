package check

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/wpscout/pkg/config"
	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/hosterrors"
	"github.com/waftester/wpscout/pkg/probe"
)

func TestNewTarget(t *testing.T) {
	tests := []struct {
		in         string
		wantURL    string
		wantDomain string
		wantScheme string
	}{
		{"example.com", "https://example.com", "example.com", "https"},
		{"http://Example.COM/", "http://example.com", "example.com", "http"},
		{"https://example.com:8443/blog/", "https://example.com:8443/blog", "example.com:8443", "https"},
		{"  example.com/wp  ", "https://example.com/wp", "example.com", "https"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NewTarget(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, got.URL)
			assert.Equal(t, tt.wantDomain, got.Domain)
			assert.Equal(t, tt.wantScheme, got.Scheme)
		})
	}
}

func TestNewTarget_Invalid(t *testing.T) {
	for _, in := range []string{"", "ftp://example.com", "https://", "http://[::1"} {
		_, err := NewTarget(in)
		assert.ErrorIs(t, err, ErrInvalidTarget, in)
	}
}

func TestTargetJoin(t *testing.T) {
	tgt, err := NewTarget("https://example.com/blog/")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/blog/wp-login.php", tgt.Join("/wp-login.php"))
	assert.Equal(t, "https://example.com/blog/wp-content/", tgt.Join("wp-content/"))
	assert.Equal(t, "https://example.com/blog/?author=1", tgt.Join("?author=1"))
	assert.Equal(t, "https://example.com/blog/", tgt.Join(""))

	port, _ := NewTarget("example.com:8080")
	assert.Equal(t, "example.com", port.Hostname())
	assert.True(t, port.IsHTTPS())
}

func TestTransportFailure_PreservesKind(t *testing.T) {
	err := &probe.TransportError{Method: "GET", URL: "https://example.com/", Kind: hosterrors.KindDNS, Err: errors.New("no such host")}
	out := TransportFailure(err)
	assert.Equal(t, VerdictTransportFailure, out.Verdict)
	assert.Equal(t, hosterrors.KindDNS, out.Kind)
	assert.ErrorIs(t, out.Err, err)

	raw := TransportFailure(syscall.ECONNREFUSED)
	assert.Equal(t, hosterrors.KindConnectionRefused, raw.Kind)
}

func TestFuncAdapter(t *testing.T) {
	c := Func{ID: "stub", Fn: func(context.Context, Target, *Env) ([]finding.Finding, error) {
		return []finding.Finding{{Code: "WPS-999"}}, nil
	}}
	got, err := c.Scan(context.Background(), Target{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "stub", c.Name())
	assert.Len(t, got, 1)
	assert.NotNil(t, (*Env)(nil).Log())
}

func TestCheckError(t *testing.T) {
	err := &CheckError{Check: "users", Err: ErrPanic}
	assert.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "users")
}

func TestSettingsFrom(t *testing.T) {
	wp := config.Default().WordPress
	s := SettingsFrom(wp)
	assert.Equal(t, wp.MaxPluginsCheck, s.MaxPlugins)
	assert.Equal(t, wp.CommonPaths, s.CommonPaths)

	s.CommonPaths[0] = "/changed"
	assert.NotEqual(t, "/changed", wp.CommonPaths[0], "settings own their slices")
}
