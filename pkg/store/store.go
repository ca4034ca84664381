// Package store persists scans, findings and consent tokens in SQLite.
//
// A database that cannot be written is detected when it is opened. In that
// state every write returns ErrReadOnly and reads keep working, so a scan can
// run to completion without a history.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrReadOnly = errors.New("store: database is read-only")
)

// Times are stored as fixed-width UTC text so they compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id TEXT PRIMARY KEY,
	tool TEXT NOT NULL,
	domain TEXT NOT NULL,
	target_url TEXT NOT NULL,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT DEFAULT NULL,
	report_json_path TEXT DEFAULT NULL,
	report_html_path TEXT DEFAULT NULL,
	summary TEXT DEFAULT NULL,
	error_message TEXT DEFAULT NULL
);
CREATE INDEX IF NOT EXISTS idx_scans_domain ON scans (domain);
CREATE TABLE IF NOT EXISTS findings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	scan_id TEXT NOT NULL REFERENCES scans (id) ON DELETE CASCADE,
	code TEXT NOT NULL,
	title TEXT NOT NULL,
	severity TEXT NOT NULL,
	confidence TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	evidence_type TEXT DEFAULT NULL,
	evidence_value TEXT DEFAULT NULL,
	evidence_context TEXT DEFAULT NULL,
	recommendation TEXT NOT NULL DEFAULT '',
	refs TEXT DEFAULT NULL,
	component TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE (scan_id, fingerprint)
);
CREATE TABLE IF NOT EXISTS consent_tokens (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	domain TEXT NOT NULL,
	token TEXT NOT NULL,
	method TEXT NOT NULL,
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	verified_at TEXT DEFAULT NULL,
	proof_path TEXT DEFAULT NULL
);
CREATE INDEX IF NOT EXISTS idx_consent_domain ON consent_tokens (domain);
`

// Store is safe for concurrent use.
type Store struct {
	db       *sql.DB
	path     string
	readOnly atomic.Bool
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for rollback failures and read-only
// downgrades.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now. Used by tests that need expired tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens (creating when needed) the database at path and ensures the
// schema exists. path may be a plain file path, ":memory:" or a "file:"
// URI such as "file:/var/lib/wpscout.db?mode=ro".
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory failed: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: ":memory:" databases are per-connection and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)
	s.db = db

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys failed: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		if !isReadOnly(err) {
			_ = db.Close()
			return nil, fmt.Errorf("creating schema failed: %w", err)
		}
		s.readOnly.Store(true)
	}

	if !s.readOnly.Load() {
		writable, err := s.checkWritable(ctx)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		s.readOnly.Store(!writable)
	}

	if s.readOnly.Load() {
		s.logger.WarnContext(ctx, "database is read-only, results will not be saved",
			slog.String("path", path))
	}
	return s, nil
}

// checkWritable creates and rolls back a table in the main database.
// CREATE TABLE IF NOT EXISTS succeeds on a read-only file whose schema is
// already in place, so the schema step alone proves nothing.
func (s *Store) checkWritable(ctx context.Context) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting write check failed: %w", err)
	}
	defer s.rollback(ctx, tx)

	_, err = tx.ExecContext(ctx, `CREATE TABLE _wpscout_write_check (id INTEGER)`)
	switch {
	case err == nil:
		return true, nil
	case isReadOnly(err):
		return false, nil
	default:
		return false, fmt.Errorf("executing write check failed: %w", err)
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReadOnly reports whether writes are being skipped.
func (s *Store) ReadOnly() bool {
	return s.readOnly.Load()
}

// Path returns the path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) rollback(ctx context.Context, tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.ErrorContext(ctx, "rolling back transaction failed", slog.String("error", err.Error()))
	}
}

// writeErr maps a failed write. A database that turns read-only mid-run
// (permissions changed, disk remounted) downgrades the store for the rest
// of its life.
func (s *Store) writeErr(ctx context.Context, op string, err error) error {
	if isReadOnly(err) {
		if !s.readOnly.Swap(true) {
			s.logger.WarnContext(ctx, "database became read-only", slog.String("op", op))
		}
		return ErrReadOnly
	}
	return fmt.Errorf("executing sql %s failed: %w", op, err)
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isReadOnly(err error) bool {
	if err == nil {
		return false
	}
	var coded interface{ Code() int }
	if errors.As(err, &coded) && coded.Code()&0xff == sqlite3.SQLITE_READONLY {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "readonly") || strings.Contains(msg, "read-only")
}

// NormalizeDomain strips scheme and path, keeps the port and lowercases.
func NormalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	if strings.Contains(domain, "://") {
		if u, err := url.Parse(domain); err == nil {
			if u.Host != "" {
				domain = u.Host
			} else {
				domain = u.Path
			}
		}
	}
	if i := strings.IndexByte(domain, '/'); i >= 0 {
		domain = domain[:i]
	}
	return strings.ToLower(strings.TrimSpace(domain))
}

func newScanID() string {
	return uuid.NewString()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
