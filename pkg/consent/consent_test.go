package consent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/wpscout/pkg/config"
	"github.com/waftester/wpscout/pkg/httpclient"
	"github.com/waftester/wpscout/pkg/jsonutil"
	"github.com/waftester/wpscout/pkg/probe"
	"github.com/waftester/wpscout/pkg/ratelimit"
	"github.com/waftester/wpscout/pkg/store"
)

func newClient(t *testing.T) *probe.Client {
	t.Helper()
	c, err := probe.NewFromConfig(httpclient.DefaultConfig(), ratelimit.New(100, 100))
	require.NoError(t, err)
	return c
}

func testConsent() config.Consent {
	c := config.Default().Consent
	c.VerificationRetryDelay = 1
	return c
}

func TestGenerateToken(t *testing.T) {
	seen := map[string]bool{}
	for range 50 {
		tok, err := GenerateToken(16)
		require.NoError(t, err)
		assert.Regexp(t, `^verify-[a-f0-9]{16}$`, tok)
		assert.False(t, seen[tok])
		seen[tok] = true
	}

	_, err := GenerateToken(0)
	assert.Error(t, err)
}

func TestGenerateToken_OddLength(t *testing.T) {
	cfg := config.Default().Consent
	cfg.TokenHexLength = 15
	m := NewManager(cfg, nil)

	tok, err := GenerateToken(cfg.TokenHexLength)
	require.NoError(t, err)
	assert.Regexp(t, `^verify-[a-f0-9]{15}$`, tok)
	assert.True(t, m.ValidToken(tok))
	assert.False(t, m.ValidToken(tok+"0"))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" DNS ")
	require.NoError(t, err)
	assert.Equal(t, MethodDNS, m)

	_, err = ParseMethod("email")
	assert.ErrorIs(t, err, ErrInvalidMethod)
}

func TestManager_ValidToken(t *testing.T) {
	m := NewManager(testConsent(), nil)
	assert.True(t, m.ValidToken("verify-0123456789abcdef"))
	assert.False(t, m.ValidToken("verify-0123456789ABCDEF"))
	assert.False(t, m.ValidToken("verify-0123"))
	assert.False(t, m.ValidToken("token-0123456789abcdef"))
}

func TestManager_HTTPURLs(t *testing.T) {
	m := NewManager(testConsent(), nil)
	assert.Equal(t, []string{
		"https://example.com/.well-known/verify-0123456789abcdef.txt",
		"http://example.com/.well-known/verify-0123456789abcdef.txt",
	}, m.HTTPURLs("example.com", "verify-0123456789abcdef"))
	assert.Equal(t, []string{
		"http://localhost:8080/.well-known/verify-0123456789abcdef.txt",
	}, m.HTTPURLs("localhost:8080", "verify-0123456789abcdef"))
}

func TestGenerate_PersistsToken(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "db.sqlite"))
	require.NoError(t, err)
	defer st.Close()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	m := NewManager(testConsent(), nil, WithStore(st), WithClock(func() time.Time { return now }))

	tok, err := m.Generate(ctx, "https://Example.com/blog")
	require.NoError(t, err)
	assert.Equal(t, "example.com", tok.Domain)
	assert.Equal(t, now.Add(48*time.Hour), tok.ExpiresAt)

	row, err := st.GetToken(ctx, "example.com", tok.Value)
	require.NoError(t, err)
	assert.False(t, row.Verified())

	text := m.Instructions(tok)
	assert.Contains(t, text, "https://example.com/.well-known/"+tok.Value+".txt")
	assert.Contains(t, text, "wpscout-verify="+tok.Value)
}

func TestVerifyHTTP(t *testing.T) {
	const token = "verify-0123456789abcdef"

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "published",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/.well-known/"+token+".txt" {
					fmt.Fprintln(w, token)
					return
				}
				http.NotFound(w, r)
			},
		},
		{
			name: "mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "verify-ffffffffffffffff")
			},
			wantErr: ErrTokenMismatch,
		},
		{
			name:    "missing",
			handler: http.NotFound,
			wantErr: ErrNotPublished,
		},
		{
			name: "redirect not followed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/elsewhere" {
					fmt.Fprint(w, token)
					return
				}
				http.Redirect(w, r, "/elsewhere", http.StatusFound)
			},
			wantErr: ErrNotPublished,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			domain := strings.TrimPrefix(srv.URL, "http://")

			m := NewManager(testConsent(), newClient(t))
			proof, err := m.Verify(context.Background(), MethodHTTP, domain, token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, srv.URL+"/.well-known/"+token+".txt", proof.Evidence)
			assert.Equal(t, MethodHTTP, proof.Method)
		})
	}
}

func TestVerify_InvalidInput(t *testing.T) {
	m := NewManager(testConsent(), nil)
	_, err := m.Verify(context.Background(), MethodHTTP, "example.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.Verify(context.Background(), Method("smtp"), "example.com", "verify-0123456789abcdef")
	assert.ErrorIs(t, err, ErrInvalidMethod)
}

// startDNS serves example.test with an NS record whose glue points back at
// the same server, so the authoritative path is exercised.
func startDNS(t *testing.T, txt map[string][]string) (addr, port string) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		name := strings.TrimSuffix(strings.ToLower(q.Name), ".")
		records, known := txt[name]
		switch {
		case !known:
			m.Rcode = dns.RcodeNameError
		case q.Qtype == dns.TypeNS:
			m.Answer = append(m.Answer, &dns.NS{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: 60},
				Ns:  "ns1." + name + ".",
			})
			m.Extra = append(m.Extra, &dns.A{
				Hdr: dns.RR_Header{Name: "ns1." + name + ".", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.ParseIP("127.0.0.1"),
			})
		case q.Qtype == dns.TypeTXT:
			for _, rec := range records {
				m.Answer = append(m.Answer, &dns.TXT{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 60},
					Txt: []string{rec},
				})
			}
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	_, port, err = net.SplitHostPort(pc.LocalAddr().String())
	require.NoError(t, err)
	return pc.LocalAddr().String(), port
}

func TestVerifyDNS(t *testing.T) {
	const token = "verify-0123456789abcdef"
	addr, port := startDNS(t, map[string][]string{
		"example.test": {"v=spf1 -all", "wpscout-verify=" + token},
		"empty.test":   nil,
	})
	resolver := &DNSResolver{Servers: []string{addr}, NSPort: port, Timeout: 2 * time.Second}
	m := NewManager(testConsent(), nil, WithResolver(resolver))
	ctx := context.Background()

	proof, err := m.Verify(ctx, MethodDNS, "Example.test:8443", token)
	require.NoError(t, err)
	assert.Equal(t, "wpscout-verify="+token, proof.Evidence)
	assert.Equal(t, "example.test:8443", proof.Domain)

	_, err = m.Verify(ctx, MethodDNS, "empty.test", token)
	assert.ErrorIs(t, err, ErrNotPublished)

	_, err = m.Verify(ctx, MethodDNS, "missing.test", token)
	assert.ErrorIs(t, err, ErrNoSuchDomain)
}

type fakeResolver struct {
	calls   int
	visible int
	records []string
	err     error
}

func (f *fakeResolver) LookupTXT(context.Context, string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.calls < f.visible {
		return nil, nil
	}
	return f.records, nil
}

func TestVerifyWithRetry_RecordsProof(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		const token = "verify-0123456789abcdef"
		ctx := context.Background()
		st, err := store.Open(ctx, ":memory:")
		require.NoError(t, err)
		defer st.Close()

		dir := t.TempDir()
		res := &fakeResolver{visible: 3, records: []string{"wpscout-verify=" + token}}
		m := NewManager(testConsent(), nil, WithResolver(res), WithStore(st), WithProofsDir(dir))

		_, err = m.Generate(ctx, "example.com")
		require.NoError(t, err)

		start := time.Now()
		_, err = m.VerifyWithRetry(ctx, MethodDNS, "example.com", token)
		require.NoError(t, err)
		assert.Equal(t, 3, res.calls)
		assert.Equal(t, 2*time.Second, time.Since(start))

		verified, err := m.IsDomainVerified(ctx, "https://example.com/")
		require.NoError(t, err)
		assert.True(t, verified, "token generated elsewhere is stored as verified")

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
		require.NoError(t, err)
		var proof Proof
		require.NoError(t, jsonutil.Unmarshal(data, &proof))
		assert.Equal(t, token, proof.Token)
		assert.Equal(t, MethodDNS, proof.Method)
	})
}

func TestVerifyWithRetry_Exhausted(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		res := &fakeResolver{err: errors.New("SERVFAIL")}
		m := NewManager(testConsent(), nil, WithResolver(res))

		_, err := m.VerifyWithRetry(context.Background(), MethodDNS, "example.com", "verify-0123456789abcdef")
		assert.ErrorIs(t, err, ErrNotPublished)
		assert.Equal(t, 3, res.calls)
	})
}

func TestVerifyWithRetry_NoSuchDomainNotRetried(t *testing.T) {
	res := &fakeResolver{err: ErrNoSuchDomain}
	m := NewManager(testConsent(), nil, WithResolver(res))

	_, err := m.VerifyWithRetry(context.Background(), MethodDNS, "example.com", "verify-0123456789abcdef")
	assert.ErrorIs(t, err, ErrNoSuchDomain)
	assert.Equal(t, 1, res.calls)
}

func TestIsDomainVerified_NoStore(t *testing.T) {
	ok, err := NewManager(testConsent(), nil).IsDomainVerified(context.Background(), "example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}
