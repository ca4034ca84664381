package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/waftester/wpscout/pkg/finding"
	"github.com/waftester/wpscout/pkg/jsonutil"
)

// AddFinding stores f under scanID. A finding whose fingerprint is already
// recorded for the scan is ignored; the returned bool reports whether a row
// was inserted.
func (s *Store) AddFinding(ctx context.Context, scanID string, f finding.Finding) (bool, error) {
	n, err := s.AddFindings(ctx, scanID, []finding.Finding{f})
	return n == 1, err
}

// AddFindings stores findings in one transaction and returns how many rows
// were inserted.
func (s *Store) AddFindings(ctx context.Context, scanID string, findings []finding.Finding) (int, error) {
	if s.readOnly.Load() {
		return 0, ErrReadOnly
	}
	if len(findings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.writeErr(ctx, "begin", err)
	}
	defer s.rollback(ctx, tx)

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO findings (
			scan_id, code, title, severity, confidence, description,
			evidence_type, evidence_value, evidence_context,
			recommendation, refs, component, fingerprint, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("preparing sql insert failed: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	now := s.timestamp()
	for _, f := range findings {
		var evType, evValue, evContext sql.NullString
		if f.Evidence != nil {
			evType = nullString(f.Evidence.Type)
			evValue = sql.NullString{String: f.Evidence.Value, Valid: true}
			evContext = nullString(f.Evidence.Context)
		}
		var refs sql.NullString
		if len(f.References) > 0 {
			data, err := jsonutil.Marshal(f.References)
			if err != nil {
				return 0, fmt.Errorf("encoding references failed: %w", err)
			}
			refs = sql.NullString{String: string(data), Valid: true}
		}

		res, err := stmt.ExecContext(ctx,
			scanID, f.Code, f.Title, string(f.Severity), string(f.Confidence), f.Description,
			evType, evValue, evContext, f.Recommendation, refs, f.Component, f.Fingerprint(), now,
		)
		if err != nil {
			return 0, s.writeErr(ctx, "insert", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, s.writeErr(ctx, "commit", err)
	}
	return inserted, nil
}

// GetFindings returns the findings of a scan in insertion order.
func (s *Store) GetFindings(ctx context.Context, scanID string) ([]finding.Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, title, severity, confidence, description,
			evidence_type, evidence_value, evidence_context,
			recommendation, refs, component
		FROM findings WHERE scan_id = ? ORDER BY id`, scanID,
	)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer rows.Close()

	var findings []finding.Finding
	for rows.Next() {
		var (
			f                          finding.Finding
			severity, confidence       string
			evType, evValue, evContext sql.NullString
			refs                       sql.NullString
		)
		if err := rows.Scan(&f.Code, &f.Title, &severity, &confidence, &f.Description,
			&evType, &evValue, &evContext, &f.Recommendation, &refs, &f.Component); err != nil {
			return nil, fmt.Errorf("reading finding row failed: %w", err)
		}
		f.Severity = finding.Severity(severity)
		f.Confidence = finding.Confidence(confidence)
		if evValue.Valid {
			f.Evidence = &finding.Evidence{Type: evType.String, Value: evValue.String, Context: evContext.String}
		}
		if refs.Valid {
			if err := jsonutil.Unmarshal([]byte(refs.String), &f.References); err != nil {
				return nil, fmt.Errorf("decoding references failed: %w", err)
			}
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating finding rows failed: %w", err)
	}
	return findings, nil
}

// ScanSummary counts the stored findings of a scan per severity.
func (s *Store) ScanSummary(ctx context.Context, scanID string) (finding.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT severity, COUNT(*) FROM findings WHERE scan_id = ? GROUP BY severity`, scanID,
	)
	if err != nil {
		return finding.Summary{}, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer rows.Close()

	var sum finding.Summary
	for rows.Next() {
		var (
			severity string
			count    int
		)
		if err := rows.Scan(&severity, &count); err != nil {
			return finding.Summary{}, fmt.Errorf("reading summary row failed: %w", err)
		}
		for range count {
			sum.Add(finding.Severity(severity))
		}
	}
	if err := rows.Err(); err != nil {
		return finding.Summary{}, fmt.Errorf("iterating summary rows failed: %w", err)
	}
	return sum, nil
}
