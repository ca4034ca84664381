package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/wpscout/pkg/finding"
)

func openTemp(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "wpscout.db")
	s, err := Open(context.Background(), path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestNormalizeDomain(t *testing.T) {
	tests := map[string]string{
		"Example.COM":                     "example.com",
		"https://Example.com/blog/":       "example.com",
		"http://example.com:8080/wp":      "example.com:8080",
		"  example.com/path?x=1  ":        "example.com",
		"https://sub.example.com?q=1#top": "sub.example.com",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDomain(in), in)
	}
}

func TestScanLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	require.False(t, s.ReadOnly())

	id, err := s.StartScan(ctx, "wpscout", "https://Example.com/", "https://example.com", "safe")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sc, err := s.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "example.com", sc.Domain)
	assert.Equal(t, StatusRunning, sc.Status)
	assert.False(t, sc.Finished())
	assert.False(t, sc.StartedAt.IsZero())

	sum := finding.Summary{High: 1, Low: 2, Total: 3}
	require.NoError(t, s.FinishScan(ctx, id, Completion{
		Status:         StatusCompleted,
		ReportJSONPath: "/tmp/r.json",
		Summary:        &sum,
	}))

	sc, err = s.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sc.Status)
	assert.True(t, sc.Finished())
	assert.Equal(t, "/tmp/r.json", sc.ReportJSONPath)
	assert.Empty(t, sc.ReportHTMLPath)
	require.NotNil(t, sc.Summary)
	assert.Equal(t, sum, *sc.Summary)
	assert.False(t, sc.FinishedAt.Before(sc.StartedAt))
}

func TestFinishScan_Errors(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	err := s.FinishScan(ctx, "missing", Completion{Status: StatusFailed, Error: "boom"})
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := s.StartScan(ctx, "wpscout", "example.com", "https://example.com", "safe")
	require.NoError(t, err)
	assert.Error(t, s.FinishScan(ctx, id, Completion{Status: StatusRunning}))

	_, err = s.GetScan(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListScans(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s, _ := openTemp(t, WithClock(func() time.Time { return now }))

	var ids []string
	for i, domain := range []string{"a.example", "b.example", "a.example"} {
		now = base.Add(time.Duration(i) * time.Minute)
		id, err := s.StartScan(ctx, "wpscout", domain, "https://"+domain, "safe")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, s.FinishScan(ctx, ids[0], Completion{Status: StatusAborted}))

	all, err := s.ListScans(ctx, ScanFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "newest first")

	byDomain, err := s.ListScans(ctx, ScanFilter{Domain: "https://A.example/"})
	require.NoError(t, err)
	assert.Len(t, byDomain, 2)

	aborted, err := s.ListScans(ctx, ScanFilter{Status: StatusAborted})
	require.NoError(t, err)
	require.Len(t, aborted, 1)
	assert.Equal(t, ids[0], aborted[0].ID)

	limited, err := s.ListScans(ctx, ScanFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestFindings(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	id, err := s.StartScan(ctx, "wpscout", "example.com", "https://example.com", "safe")
	require.NoError(t, err)

	exposed := finding.Finding{
		Code:           "WPS-030",
		Title:          "Sensitive file exposed",
		Severity:       finding.High,
		Confidence:     finding.ConfidenceHigh,
		Evidence:       finding.URLEvidence("https://example.com/wp-config.php.bak", "HTTP 200"),
		Recommendation: "Remove the file",
		References:     []string{"https://owasp.org/"},
		Component:      "wp-config.php.bak",
	}
	header := finding.Finding{
		Code:       "WPS-050",
		Title:      "Missing security header",
		Severity:   finding.Low,
		Confidence: finding.ConfidenceMedium,
	}

	n, err := s.AddFindings(ctx, id, []finding.Finding{exposed, header, exposed})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "duplicate fingerprint ignored")

	added, err := s.AddFinding(ctx, id, exposed)
	require.NoError(t, err)
	assert.False(t, added)

	got, err := s.GetFindings(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, exposed, got[0])
	assert.Equal(t, header.Code, got[1].Code)
	assert.Nil(t, got[1].Evidence)
	assert.Nil(t, got[1].References)

	sum, err := s.ScanSummary(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, finding.Summary{High: 1, Low: 1, Total: 2}, sum)

	none, err := s.GetFindings(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestConsentTokens(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, _ := openTemp(t, WithClock(func() time.Time { return now }))

	const token = "verify-0123456789abcdef"
	_, err := s.SaveToken(ctx, "https://Example.com", token, "http", now.Add(48*time.Hour))
	require.NoError(t, err)

	ok, err := s.IsDomainVerified(ctx, "example.com")
	require.NoError(t, err)
	assert.False(t, ok, "unverified token grants nothing")

	assert.ErrorIs(t, s.MarkTokenVerified(ctx, "example.com", "verify-ffffffffffffffff", "http", ""), ErrNotFound)
	require.NoError(t, s.MarkTokenVerified(ctx, "example.com", token, "dns", "/proofs/p.json"))
	assert.ErrorIs(t, s.MarkTokenVerified(ctx, "example.com", token, "dns", ""), ErrNotFound,
		"already verified")

	ok, err = s.IsDomainVerified(ctx, "EXAMPLE.com/")
	require.NoError(t, err)
	assert.True(t, ok)

	tok, err := s.GetToken(ctx, "example.com", token)
	require.NoError(t, err)
	assert.True(t, tok.Verified())
	assert.Equal(t, "dns", tok.Method)
	assert.Equal(t, "/proofs/p.json", tok.ProofPath)
	assert.Equal(t, now.Add(48*time.Hour), tok.ExpiresAt)

	now = now.Add(49 * time.Hour)
	ok, err = s.IsDomainVerified(ctx, "example.com")
	require.NoError(t, err)
	assert.False(t, ok, "expired token grants nothing")

	ok, err = s.IsDomainVerified(ctx, "other.example")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	rw, path := openTemp(t)
	id, err := rw.StartScan(ctx, "wpscout", "example.com", "https://example.com", "safe")
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	ro, err := Open(ctx, "file:"+path+"?mode=ro")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ro.Close() })
	require.True(t, ro.ReadOnly())

	_, err = ro.StartScan(ctx, "wpscout", "example.com", "https://example.com", "safe")
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = ro.AddFinding(ctx, id, finding.Finding{Code: "WPS-050"})
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, ro.FinishScan(ctx, id, Completion{Status: StatusCompleted}), ErrReadOnly)
	_, err = ro.SaveToken(ctx, "example.com", "verify-x", "http", time.Now())
	assert.ErrorIs(t, err, ErrReadOnly)

	sc, err := ro.GetScan(ctx, id)
	require.NoError(t, err, "reads keep working")
	assert.Equal(t, StatusRunning, sc.Status)
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()
	assert.False(t, s.ReadOnly())
	assert.Equal(t, ":memory:", s.Path())
}
