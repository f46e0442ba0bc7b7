package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// --- Audits ---

func (db *DB) CreateAudit(a *Audit) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(
		`INSERT INTO audits (id, url, normalized_url, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.URL, a.NormalizedURL, a.Status, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

const auditColumns = `id, url, normalized_url, status, performance, accessibility, seo,
	best_practices, security, overall_grade, top_issues, errors, created_at, completed_at`

func (db *DB) scanAudit(row *sql.Row) (*Audit, error) {
	a := &Audit{}
	var perf, a11y, seo, bp, sec, overall sql.NullString
	var topIssues, errsJSON string
	var completedAt sql.NullTime
	err := row.Scan(&a.ID, &a.URL, &a.NormalizedURL, &a.Status,
		&perf, &a11y, &seo, &bp, &sec, &overall,
		&topIssues, &errsJSON, &a.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan audit: %w", err)
	}

	if err := decodeCategory(perf, &a.Performance); err != nil {
		return nil, err
	}
	if err := decodeCategory(a11y, &a.Accessibility); err != nil {
		return nil, err
	}
	if err := decodeCategory(seo, &a.SEO); err != nil {
		return nil, err
	}
	if err := decodeCategory(bp, &a.BestPractices); err != nil {
		return nil, err
	}
	if sec.Valid {
		a.Security = &SecurityResult{}
		if err := json.Unmarshal([]byte(sec.String), a.Security); err != nil {
			return nil, fmt.Errorf("decode security: %w", err)
		}
	}
	if overall.Valid {
		a.OverallGrade = &overall.String
	}
	if err := json.Unmarshal([]byte(topIssues), &a.TopIssues); err != nil {
		return nil, fmt.Errorf("decode top issues: %w", err)
	}
	if err := json.Unmarshal([]byte(errsJSON), &a.Errors); err != nil {
		return nil, fmt.Errorf("decode errors: %w", err)
	}
	if a.TopIssues == nil {
		a.TopIssues = []string{}
	}
	if a.Errors == nil {
		a.Errors = []string{}
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return a, nil
}

func decodeCategory(col sql.NullString, dst **CategoryResult) error {
	if !col.Valid {
		return nil
	}
	c := &CategoryResult{}
	if err := json.Unmarshal([]byte(col.String), c); err != nil {
		return fmt.Errorf("decode category: %w", err)
	}
	*dst = c
	return nil
}

func (db *DB) GetAudit(id string) (*Audit, error) {
	row := db.QueryRow(`SELECT `+auditColumns+` FROM audits WHERE id = ?`, id)
	return db.scanAudit(row)
}

// LatestAuditByNormalizedURL returns the most recent audit sharing the
// normalized key, or nil when none exists. The caller decides whether the
// record is fresh enough (and not failed) to reuse.
func (db *DB) LatestAuditByNormalizedURL(key string) (*Audit, error) {
	row := db.QueryRow(
		`SELECT `+auditColumns+` FROM audits WHERE normalized_url = ? ORDER BY created_at DESC LIMIT 1`,
		key,
	)
	return db.scanAudit(row)
}

// MarkAuditRunning transitions pending -> running. A no-op if the audit has
// already moved on; status never regresses.
func (db *DB) MarkAuditRunning(id string) error {
	_, err := db.Exec(
		`UPDATE audits SET status = ? WHERE id = ? AND status = ?`,
		StatusRunning, id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark audit running: %w", err)
	}
	return nil
}

// FinishAudit writes the single terminal patch: status plus every resolved
// field at once, so pollers never observe a half-written result. The guard on
// non-terminal status keeps terminal audits immutable.
func (db *DB) FinishAudit(a *Audit) error {
	perf, err := encodeJSONColumn(a.Performance)
	if err != nil {
		return err
	}
	a11y, err := encodeJSONColumn(a.Accessibility)
	if err != nil {
		return err
	}
	seo, err := encodeJSONColumn(a.SEO)
	if err != nil {
		return err
	}
	bp, err := encodeJSONColumn(a.BestPractices)
	if err != nil {
		return err
	}
	sec, err := encodeJSONColumn(a.Security)
	if err != nil {
		return err
	}
	topIssues, _ := json.Marshal(emptyIfNil(a.TopIssues))
	errsJSON, _ := json.Marshal(emptyIfNil(a.Errors))

	var overall any
	if a.OverallGrade != nil {
		overall = *a.OverallGrade
	}
	var completedAt any
	if a.CompletedAt != nil {
		completedAt = *a.CompletedAt
	}

	_, err = db.Exec(`
		UPDATE audits SET status = ?, performance = ?, accessibility = ?, seo = ?,
			best_practices = ?, security = ?, overall_grade = ?, top_issues = ?,
			errors = ?, completed_at = ?
		WHERE id = ? AND status NOT IN (?, ?, ?)`,
		a.Status, perf, a11y, seo, bp, sec, overall, string(topIssues),
		string(errsJSON), completedAt,
		a.ID, StatusComplete, StatusPartial, StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("finish audit: %w", err)
	}
	return nil
}

func encodeJSONColumn(v any) (any, error) {
	switch t := v.(type) {
	case *CategoryResult:
		if t == nil {
			return nil, nil
		}
	case *SecurityResult:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode column: %w", err)
	}
	return string(b), nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (db *DB) ListRecentAudits(limit int) ([]Audit, error) {
	rows, err := db.Query(
		`SELECT id, url, normalized_url, status, overall_grade, created_at, completed_at
		 FROM audits ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent audits: %w", err)
	}
	defer rows.Close()

	var audits []Audit
	for rows.Next() {
		var a Audit
		var overall sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.URL, &a.NormalizedURL, &a.Status, &overall, &a.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		if overall.Valid {
			a.OverallGrade = &overall.String
		}
		if completedAt.Valid {
			t := completedAt.Time
			a.CompletedAt = &t
		}
		a.TopIssues = []string{}
		a.Errors = []string{}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

// ListUnfinishedAuditIDs returns audits that never reached a terminal
// status, oldest first. Used to re-enqueue work after a restart.
func (db *DB) ListUnfinishedAuditIDs() ([]string, error) {
	rows, err := db.Query(
		`SELECT id FROM audits WHERE status IN (?, ?) ORDER BY created_at`,
		StatusPending, StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("list unfinished audits: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan audit id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Leads ---

// CreateLead inserts a lead for an audit if none exists yet and returns the
// stored lead. created reports whether this call inserted it; repeat
// submissions for the same audit return the original lead with created=false.
func (db *DB) CreateLead(l *AuditLead) (created bool, err error) {
	res, err := db.Exec(
		`INSERT INTO audit_leads (id, audit_id, name, email, business_name, status)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (audit_id) DO NOTHING`,
		l.ID, l.AuditID, l.Name, l.Email, l.BusinessName, LeadStatusNew,
	)
	if err != nil {
		return false, fmt.Errorf("insert lead: %w", err)
	}
	n, _ := res.RowsAffected()
	existing, err := db.GetLeadByAudit(l.AuditID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, fmt.Errorf("lead for audit %s vanished after insert", l.AuditID)
	}
	*l = *existing
	return n > 0, nil
}

func (db *DB) scanLead(row *sql.Row) (*AuditLead, error) {
	l := &AuditLead{}
	err := row.Scan(&l.ID, &l.AuditID, &l.Name, &l.Email, &l.BusinessName, &l.Status, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan lead: %w", err)
	}
	return l, nil
}

func (db *DB) GetLead(id string) (*AuditLead, error) {
	return db.scanLead(db.QueryRow(
		`SELECT id, audit_id, name, email, business_name, status, created_at FROM audit_leads WHERE id = ?`, id))
}

func (db *DB) GetLeadByAudit(auditID string) (*AuditLead, error) {
	return db.scanLead(db.QueryRow(
		`SELECT id, audit_id, name, email, business_name, status, created_at FROM audit_leads WHERE audit_id = ?`, auditID))
}

func (db *DB) UpdateLeadStatus(id, status string) error {
	res, err := db.Exec(`UPDATE audit_leads SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- Reports ---

func (db *DB) CreateReport(r *Report) error {
	_, err := db.Exec(
		`INSERT INTO reports (id, audit_id, title, format, content, file_path) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.AuditID, r.Title, r.Format, r.Content, r.FilePath,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (db *DB) GetReport(id string) (*Report, error) {
	r := &Report{}
	err := db.QueryRow(
		`SELECT id, audit_id, title, format, content, file_path, created_at FROM reports WHERE id = ?`, id,
	).Scan(&r.ID, &r.AuditID, &r.Title, &r.Format, &r.Content, &r.FilePath, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

// --- Stats ---

type DashboardStats struct {
	AuditCount     int `json:"audit_count"`
	CompletedCount int `json:"completed_count"`
	LeadCount      int `json:"lead_count"`
}

func (db *DB) GetStats() (*DashboardStats, error) {
	stats := &DashboardStats{}
	db.QueryRow(`SELECT COUNT(*) FROM audits`).Scan(&stats.AuditCount)
	db.QueryRow(`SELECT COUNT(*) FROM audits WHERE status IN (?, ?)`, StatusComplete, StatusPartial).Scan(&stats.CompletedCount)
	db.QueryRow(`SELECT COUNT(*) FROM audit_leads`).Scan(&stats.LeadCount)
	return stats, nil
}
