package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Read-only audit queries plus the per-iteration audit trail. These back
// the `scribe audit` command and never mutate pipeline state.

// ReportVersions lists all report versions with their scores, newest
// last.
func (s *Store) ReportVersions() ([]ReportVersionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, content, created_at, coverage_score, citation_score, issues_high, issues_med, issues_low
		 FROM report_versions ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReportVersionRecord
	for rows.Next() {
		var r ReportVersionRecord
		var created string
		if err := rows.Scan(&r.ID, &r.Content, &created, &r.CoverageScore, &r.CitationScore,
			&r.IssuesHigh, &r.IssuesMed, &r.IssuesLow); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReportVersion returns one report version by id.
func (s *Store) ReportVersion(id int64) (ReportVersionRecord, bool, error) {
	var r ReportVersionRecord
	var created string
	err := s.db.QueryRow(
		`SELECT id, content, created_at, coverage_score, citation_score, issues_high, issues_med, issues_low
		 FROM report_versions WHERE id = ?`, id,
	).Scan(&r.ID, &r.Content, &created, &r.CoverageScore, &r.CitationScore,
		&r.IssuesHigh, &r.IssuesMed, &r.IssuesLow)
	if errors.Is(err, sql.ErrNoRows) {
		return ReportVersionRecord{}, false, nil
	}
	if err != nil {
		return ReportVersionRecord{}, false, err
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return r, true, nil
}

// ClaimsForReport lists the claims recorded for a report version.
func (s *Store) ClaimsForReport(reportVersion int64) ([]ClaimRecord, error) {
	rows, err := s.db.Query(
		"SELECT id, report_version, text, citation_refs, status, severity, rationale FROM claims WHERE report_version = ? ORDER BY id",
		reportVersion,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ClaimRecord
	for rows.Next() {
		var c ClaimRecord
		var refs, status, severity string
		if err := rows.Scan(&c.ID, &c.ReportVersion, &c.Text, &refs, &status, &severity, &c.Rationale); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(refs), &c.CitationRefs); err != nil {
			return nil, err
		}
		c.Status = ClaimStatus(status)
		c.Severity = Severity(severity)
		out = append(out, c)
	}
	return out, rows.Err()
}

// LogRetrievalEvent records which chunks and symbols one retrieval
// returned for an iteration.
func (s *Store) LogRetrievalEvent(reportVersion int64, iteration int, prompt string, chunkIDs, symbolIDs []int64) error {
	cids, err := json.Marshal(chunkIDs)
	if err != nil {
		return err
	}
	sids, err := json.Marshal(symbolIDs)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO retrieval_events (report_version, iteration, prompt, chunk_ids, symbol_ids, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		reportVersion, iteration, prompt, string(cids), string(sids), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// RetrievalEvent is one recorded retrieval, with the chunk and symbol
// ids it returned.
type RetrievalEvent struct {
	ID            int64
	ReportVersion int64
	Iteration     int
	Prompt        string
	ChunkIDs      []int64
	SymbolIDs     []int64
	CreatedAt     time.Time
}

// RetrievalEvents lists recorded retrievals, optionally filtered by
// report version (0 = all).
func (s *Store) RetrievalEvents(reportVersion int64) ([]RetrievalEvent, error) {
	query := "SELECT id, report_version, iteration, prompt, chunk_ids, symbol_ids, created_at FROM retrieval_events"
	args := []any{}
	if reportVersion != 0 {
		query += " WHERE report_version = ?"
		args = append(args, reportVersion)
	}
	query += " ORDER BY report_version, iteration"
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RetrievalEvent
	for rows.Next() {
		var ev RetrievalEvent
		var cids, sids, created string
		if err := rows.Scan(&ev.ID, &ev.ReportVersion, &ev.Iteration, &ev.Prompt, &cids, &sids, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cids), &ev.ChunkIDs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sids), &ev.SymbolIDs); err != nil {
			return nil, err
		}
		ev.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LogIterationStatus appends one row of iteration metrics.
func (s *Store) LogIterationStatus(st IterationStatus) error {
	_, err := s.db.Exec(
		`INSERT INTO iteration_status (report_version, iteration, coverage, support_rate, citation_rate,
		 issues_high, issues_med, issues_low, missing_citations, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ReportVersion, st.Iteration, st.Coverage, st.SupportRate, st.CitationRate,
		st.IssuesHigh, st.IssuesMed, st.IssuesLow, st.MissingCitations,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// IterationIssue is one issue row of the audit trail.
type IterationIssue struct {
	ReportVersion int64
	Iteration     int
	Severity      Severity
	Description   string
	FixHint       string
}

// LogIterationIssues appends the issues found in one iteration.
func (s *Store) LogIterationIssues(issues []IterationIssue) error {
	if len(issues) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(
		`INSERT INTO iteration_issues (report_version, iteration, severity, description, fix_hint, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := time.Now().UTC().Format(time.RFC3339)
	for _, is := range issues {
		if _, err := stmt.Exec(is.ReportVersion, is.Iteration, string(is.Severity), is.Description, is.FixHint, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// IterationStatuses lists recorded iteration metrics, optionally
// filtered by report version (0 = all).
func (s *Store) IterationStatuses(reportVersion int64) ([]IterationStatus, error) {
	query := `SELECT report_version, iteration, coverage, support_rate, citation_rate,
		issues_high, issues_med, issues_low, missing_citations, created_at
		FROM iteration_status`
	args := []any{}
	if reportVersion != 0 {
		query += " WHERE report_version = ?"
		args = append(args, reportVersion)
	}
	query += " ORDER BY report_version, iteration"
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IterationStatus
	for rows.Next() {
		var st IterationStatus
		var created string
		if err := rows.Scan(&st.ReportVersion, &st.Iteration, &st.Coverage, &st.SupportRate, &st.CitationRate,
			&st.IssuesHigh, &st.IssuesMed, &st.IssuesLow, &st.MissingCitations, &created); err != nil {
			return nil, err
		}
		st.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, st)
	}
	return out, rows.Err()
}

// IterationIssues lists recorded issues, optionally filtered by report
// version (0 = all).
func (s *Store) IterationIssues(reportVersion int64) ([]IterationIssue, error) {
	query := "SELECT report_version, iteration, severity, description, fix_hint FROM iteration_issues"
	args := []any{}
	if reportVersion != 0 {
		query += " WHERE report_version = ?"
		args = append(args, reportVersion)
	}
	query += " ORDER BY report_version, iteration, id"
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IterationIssue
	for rows.Next() {
		var is IterationIssue
		var sev string
		if err := rows.Scan(&is.ReportVersion, &is.Iteration, &sev, &is.Description, &is.FixHint); err != nil {
			return nil, err
		}
		is.Severity = Severity(sev)
		out = append(out, is)
	}
	return out, rows.Err()
}
