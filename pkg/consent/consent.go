// Package consent proves that the operator controls a domain before
// intrusive scanning is allowed against it.
//
// A token of the form verify-<hex> is generated and stored with an expiry.
// The owner publishes it either as a file under the HTTP verification path
// or as a TXT record, and Verify checks the publication. A verified,
// unexpired token unlocks aggressive mode and AI analysis for the domain.
package consent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/waftester/wpscout/pkg/config"
	"github.com/waftester/wpscout/pkg/jsonutil"
	"github.com/waftester/wpscout/pkg/probe"
	"github.com/waftester/wpscout/pkg/regexcache"
	"github.com/waftester/wpscout/pkg/retry"
	"github.com/waftester/wpscout/pkg/store"
)

// TokenPrefix starts every consent token.
const TokenPrefix = "verify-"

// Method is how a token is published.
type Method string

const (
	MethodHTTP Method = "http"
	MethodDNS  Method = "dns"
)

// ParseMethod accepts "http" or "dns" in any case.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodHTTP, MethodDNS:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
}

var (
	ErrInvalidToken  = errors.New("consent: invalid token format")
	ErrInvalidMethod = errors.New("consent: invalid verification method")
	ErrTokenMismatch = errors.New("consent: published token does not match")
	ErrNotPublished  = errors.New("consent: token not found")
	ErrNoSuchDomain  = errors.New("consent: domain does not exist")
)

// Store is the persistence the manager needs.
type Store interface {
	SaveToken(ctx context.Context, domain, token, method string, expiresAt time.Time) (int64, error)
	MarkTokenVerified(ctx context.Context, domain, token, method, proofPath string) error
	IsDomainVerified(ctx context.Context, domain string) (bool, error)
}

// TXTResolver looks up TXT records.
type TXTResolver interface {
	LookupTXT(ctx context.Context, domain string) ([]string, error)
}

// Token is a generated, not yet verified, consent token.
type Token struct {
	Domain    string
	Value     string
	ExpiresAt time.Time
}

// Proof is what a successful verification leaves behind.
type Proof struct {
	Domain     string    `json:"domain"`
	Token      string    `json:"token"`
	Method     Method    `json:"method"`
	Evidence   string    `json:"evidence"`
	VerifiedAt time.Time `json:"verified_at"`
	Path       string    `json:"-"`
}

// Manager generates and verifies tokens.
type Manager struct {
	cfg       config.Consent
	proofsDir string
	client    *probe.Client
	resolver  TXTResolver
	store     Store
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore persists tokens and verification results.
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithResolver replaces the DNS resolver.
func WithResolver(r TXTResolver) Option {
	return func(m *Manager) {
		if r != nil {
			m.resolver = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithProofsDir sets where proof files are written. Empty disables them.
func WithProofsDir(dir string) Option {
	return func(m *Manager) { m.proofsDir = dir }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager builds a Manager that fetches HTTP proofs through client.
func NewManager(cfg config.Consent, client *probe.Client, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		client:   client,
		resolver: NewDNSResolver(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateToken returns verify-<hex> with exactly hexLen lowercase hex
// digits.
func GenerateToken(hexLen int) (string, error) {
	if hexLen <= 0 {
		return "", fmt.Errorf("consent: token length must be positive, got %d", hexLen)
	}
	buf := make([]byte, (hexLen+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("consent: reading random bytes: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(buf)[:hexLen], nil
}

// ValidToken reports whether token has the configured shape.
func (m *Manager) ValidToken(token string) bool {
	return regexcache.MustGet(fmt.Sprintf(`^%s[a-f0-9]{%d}$`, TokenPrefix, m.cfg.TokenHexLength)).MatchString(token)
}

// Generate creates a token for domain and stores it when a store is set.
func (m *Manager) Generate(ctx context.Context, domain string) (Token, error) {
	domain = store.NormalizeDomain(domain)
	if domain == "" {
		return Token{}, errors.New("consent: empty domain")
	}
	value, err := GenerateToken(m.cfg.TokenHexLength)
	if err != nil {
		return Token{}, err
	}
	tok := Token{Domain: domain, Value: value, ExpiresAt: m.now().Add(m.cfg.TokenExpiry())}

	if m.store != nil {
		if _, err := m.store.SaveToken(ctx, domain, value, "pending", tok.ExpiresAt); err != nil {
			if !errors.Is(err, store.ErrReadOnly) {
				return Token{}, fmt.Errorf("consent: saving token: %w", err)
			}
			m.logger.WarnContext(ctx, "token not persisted, database is read-only",
				slog.String("domain", domain))
		}
	}
	m.logger.InfoContext(ctx, "generated consent token",
		slog.String("domain", domain), slog.Time("expires_at", tok.ExpiresAt))
	return tok, nil
}

// Verify checks the publication once.
func (m *Manager) Verify(ctx context.Context, method Method, domain, token string) (Proof, error) {
	if !m.ValidToken(token) {
		return Proof{}, fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	domain = store.NormalizeDomain(domain)

	var (
		evidence string
		err      error
	)
	switch method {
	case MethodHTTP:
		evidence, err = m.verifyHTTP(ctx, domain, token)
	case MethodDNS:
		evidence, err = m.verifyDNS(ctx, domain, token)
	default:
		return Proof{}, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	if err != nil {
		return Proof{}, err
	}
	return Proof{
		Domain:     domain,
		Token:      token,
		Method:     method,
		Evidence:   evidence,
		VerifiedAt: m.now().UTC(),
	}, nil
}

// VerifyWithRetry runs Verify up to the configured number of retries with
// a constant delay, then records the proof. A mismatching token and an
// unknown domain are not retried.
func (m *Manager) VerifyWithRetry(ctx context.Context, method Method, domain, token string) (Proof, error) {
	cfg := retry.ConstantConfig(m.cfg.VerificationRetries, m.cfg.RetryDelay())
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		m.logger.InfoContext(ctx, "verification attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.String("method", string(method)),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
	}

	var proof Proof
	err := retry.Do(ctx, cfg, func(ctx context.Context, _ int) error {
		p, err := m.Verify(ctx, method, domain, token)
		switch {
		case err == nil:
			proof = p
			return nil
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrInvalidMethod),
			errors.Is(err, ErrTokenMismatch), errors.Is(err, ErrNoSuchDomain):
			return retry.Permanent(err)
		default:
			return err
		}
	})
	if err != nil {
		return Proof{}, err
	}

	if err := m.record(ctx, &proof); err != nil {
		return proof, err
	}
	m.logger.InfoContext(ctx, "domain ownership verified",
		slog.String("domain", proof.Domain), slog.String("method", string(method)))
	return proof, nil
}

// record writes the proof file and marks the token verified.
func (m *Manager) record(ctx context.Context, proof *Proof) error {
	if m.proofsDir != "" {
		name := fmt.Sprintf("%s_%s_%s.json", baseDomain(proof.Domain), proof.Method,
			proof.VerifiedAt.Format("20060102_150405"))
		path := filepath.Join(m.proofsDir, name)
		if err := jsonutil.WriteFile(path, proof, 0o600); err != nil {
			return fmt.Errorf("consent: writing proof: %w", err)
		}
		proof.Path = path
	}

	if m.store == nil {
		return nil
	}
	err := m.store.MarkTokenVerified(ctx, proof.Domain, proof.Token, string(proof.Method), proof.Path)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Token generated elsewhere: store it as verified so the
		// consent gate sees it.
		if _, err := m.store.SaveToken(ctx, proof.Domain, proof.Token, string(proof.Method),
			proof.VerifiedAt.Add(m.cfg.TokenExpiry())); err != nil {
			return fmt.Errorf("consent: saving token: %w", err)
		}
		if err := m.store.MarkTokenVerified(ctx, proof.Domain, proof.Token, string(proof.Method), proof.Path); err != nil {
			return fmt.Errorf("consent: marking token verified: %w", err)
		}
	case errors.Is(err, store.ErrReadOnly):
		m.logger.WarnContext(ctx, "verification not persisted, database is read-only",
			slog.String("domain", proof.Domain))
	case err != nil:
		return fmt.Errorf("consent: marking token verified: %w", err)
	}
	return nil
}

// IsDomainVerified reports whether domain holds a verified, unexpired
// token. Without a store nothing is ever verified.
func (m *Manager) IsDomainVerified(ctx context.Context, domain string) (bool, error) {
	if m.store == nil {
		return false, nil
	}
	return m.store.IsDomainVerified(ctx, store.NormalizeDomain(domain))
}

// baseDomain strips the port.
func baseDomain(domain string) string {
	if host, _, err := net.SplitHostPort(domain); err == nil {
		return host
	}
	return domain
}
