package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/jsonutil"
)

// Status is the persisted state of a scan.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Scan is one row of the scans table.
type Scan struct {
	ID             string
	Tool           string
	Domain         string
	TargetURL      string
	Mode           string
	Status         Status
	StartedAt      time.Time
	FinishedAt     time.Time
	ReportJSONPath string
	ReportHTMLPath string
	Summary        *finding.Summary
	Error          string
}

// Finished reports whether the scan left the running state.
func (s Scan) Finished() bool {
	return s.Status != StatusRunning
}

// Completion carries the values written when a scan finishes.
type Completion struct {
	Status         Status
	ReportJSONPath string
	ReportHTMLPath string
	Summary        *finding.Summary
	Error          string
}

// StartScan records a running scan and returns its id.
func (s *Store) StartScan(ctx context.Context, tool, domain, targetURL, mode string) (string, error) {
	if s.readOnly.Load() {
		return "", ErrReadOnly
	}

	id := newScanID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (id, tool, domain, target_url, mode, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, tool, NormalizeDomain(domain), targetURL, mode, string(StatusRunning), s.timestamp(),
	)
	if err != nil {
		return "", s.writeErr(ctx, "insert", err)
	}
	return id, nil
}

// FinishScan moves a scan out of the running state.
func (s *Store) FinishScan(ctx context.Context, id string, c Completion) error {
	if s.readOnly.Load() {
		return ErrReadOnly
	}
	if c.Status == "" || c.Status == StatusRunning {
		return fmt.Errorf("store: invalid final status %q", c.Status)
	}

	var summary sql.NullString
	if c.Summary != nil {
		data, err := jsonutil.Marshal(c.Summary)
		if err != nil {
			return fmt.Errorf("encoding summary failed: %w", err)
		}
		summary = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE scans
		SET
			finished_at = ?,
			status = ?,
			report_json_path = ?,
			report_html_path = ?,
			summary = ?,
			error_message = ?
		WHERE id = ?`,
		s.timestamp(), string(c.Status), nullString(c.ReportJSONPath), nullString(c.ReportHTMLPath),
		summary, nullString(c.Error), id,
	)
	if err != nil {
		return s.writeErr(ctx, "update", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const scanColumns = `id, tool, domain, target_url, mode, status, started_at, finished_at,
	report_json_path, report_html_path, summary, error_message`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScan(row rowScanner) (Scan, error) {
	var (
		sc                             Scan
		status                         string
		started, finished              sql.NullString
		jsonPath, htmlPath, summ, errm sql.NullString
	)
	err := row.Scan(&sc.ID, &sc.Tool, &sc.Domain, &sc.TargetURL, &sc.Mode, &status,
		&started, &finished, &jsonPath, &htmlPath, &summ, &errm)
	if err != nil {
		return Scan{}, err
	}
	sc.Status = Status(status)
	sc.StartedAt = parseTime(started)
	sc.FinishedAt = parseTime(finished)
	sc.ReportJSONPath = jsonPath.String
	sc.ReportHTMLPath = htmlPath.String
	sc.Error = errm.String
	if summ.Valid {
		var sum finding.Summary
		if err := jsonutil.Unmarshal([]byte(summ.String), &sum); err == nil {
			sc.Summary = &sum
		}
	}
	return sc, nil
}

// GetScan returns the scan with the given id, or ErrNotFound.
func (s *Store) GetScan(ctx context.Context, id string) (Scan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = ?`, id)
	sc, err := scanScan(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Scan{}, ErrNotFound
	case err != nil:
		return Scan{}, fmt.Errorf("executing sql query failed: %w", err)
	}
	return sc, nil
}

// ScanFilter narrows ListScans. Zero fields match everything.
type ScanFilter struct {
	Domain string
	Status Status
	Limit  int
}

// ListScans returns scans newest first.
func (s *Store) ListScans(ctx context.Context, f ScanFilter) ([]Scan, error) {
	var (
		where []string
		args  []any
	)
	if f.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, NormalizeDomain(f.Domain))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT ` + scanColumns + ` FROM scans`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY started_at DESC, rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		sc, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("reading scan row failed: %w", err)
		}
		scans = append(scans, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scan rows failed: %w", err)
	}
	return scans, nil
}
