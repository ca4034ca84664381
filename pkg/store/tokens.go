package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Token is one row of the consent_tokens table.
type Token struct {
	ID         int64
	Domain     string
	Token      string
	Method     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	VerifiedAt time.Time
	ProofPath  string
}

// Verified reports whether the token was ever verified.
func (t Token) Verified() bool {
	return !t.VerifiedAt.IsZero()
}

// SaveToken records a generated consent token.
func (s *Store) SaveToken(ctx context.Context, domain, token, method string, expiresAt time.Time) (int64, error) {
	if s.readOnly.Load() {
		return 0, ErrReadOnly
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO consent_tokens (domain, token, method, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		NormalizeDomain(domain), token, method, s.timestamp(), formatTime(expiresAt),
	)
	if err != nil {
		return 0, s.writeErr(ctx, "insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading token id failed: %w", err)
	}
	return id, nil
}

// MarkTokenVerified sets verified_at on an unverified token for domain.
// It returns ErrNotFound when no such token exists.
func (s *Store) MarkTokenVerified(ctx context.Context, domain, token, method, proofPath string) error {
	if s.readOnly.Load() {
		return ErrReadOnly
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE consent_tokens
		SET
			verified_at = ?,
			method = ?,
			proof_path = ?
		WHERE domain = ? AND token = ? AND verified_at IS NULL`,
		s.timestamp(), method, nullString(proofPath), NormalizeDomain(domain), token,
	)
	if err != nil {
		return s.writeErr(ctx, "update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows failed: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsDomainVerified reports whether domain holds a verified token that has
// not expired.
func (s *Store) IsDomainVerified(ctx context.Context, domain string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM consent_tokens
		WHERE domain = ? AND verified_at IS NOT NULL AND expires_at > ?`,
		NormalizeDomain(domain), s.timestamp(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("executing sql query failed: %w", err)
	}
	return count > 0, nil
}

// GetToken returns the newest row for domain and token, or ErrNotFound.
func (s *Store) GetToken(ctx context.Context, domain, token string) (Token, error) {
	var (
		t                               Token
		created, expires, verified, prf sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, domain, token, method, created_at, expires_at, verified_at, proof_path
		FROM consent_tokens WHERE domain = ? AND token = ?
		ORDER BY id DESC LIMIT 1`,
		NormalizeDomain(domain), token,
	).Scan(&t.ID, &t.Domain, &t.Token, &t.Method, &created, &expires, &verified, &prf)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Token{}, ErrNotFound
	case err != nil:
		return Token{}, fmt.Errorf("executing sql query failed: %w", err)
	}
	t.CreatedAt = parseTime(created)
	t.ExpiresAt = parseTime(expires)
	t.VerifiedAt = parseTime(verified)
	t.ProofPath = prf.String
	return t, nil
}
