package database

import "time"

// Audit statuses. Terminal statuses never regress.
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
)

// Lead statuses, mutated only through the admin endpoint.
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusConverted = "converted"
	LeadStatusArchived  = "archived"
)

// IsTerminal reports whether an audit status allows no further mutation.
func IsTerminal(status string) bool {
	return status == StatusComplete || status == StatusPartial || status == StatusFailed
}

// CategoryResult is one graded category (performance, accessibility, seo,
// bestPractices). Metrics carries probe-specific raw numbers, currently only
// populated on the performance category.
type CategoryResult struct {
	Score   int                `json:"score"`
	Grade   string             `json:"grade"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// SecurityResult is the graded security-headers category.
type SecurityResult struct {
	Score          int      `json:"score"`
	Grade          string   `json:"grade"`
	HeadersPresent []string `json:"headersPresent"`
	HeadersMissing []string `json:"headersMissing"`
}

// Audit is one assessment run for one URL. It is the single source of truth
// clients poll; it is created once, patched once per state transition, and
// never deleted.
type Audit struct {
	ID            string          `json:"id"`
	URL           string          `json:"url"`
	NormalizedURL string          `json:"normalizedUrl"`
	Status        string          `json:"status"`
	Performance   *CategoryResult `json:"performance,omitempty"`
	Accessibility *CategoryResult `json:"accessibility,omitempty"`
	SEO           *CategoryResult `json:"seo,omitempty"`
	BestPractices *CategoryResult `json:"bestPractices,omitempty"`
	Security      *SecurityResult `json:"security,omitempty"`
	OverallGrade  *string         `json:"overallGrade,omitempty"`
	TopIssues     []string        `json:"topIssues"`
	Errors        []string        `json:"errors"`
	CreatedAt     time.Time       `json:"createdAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}

// AuditLead captures contact details tied to one audit, at most once per
// audit.
type AuditLead struct {
	ID           string    `json:"id"`
	AuditID      string    `json:"audit_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	BusinessName string    `json:"business_name,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Report is an exported rendering of one audit.
type Report struct {
	ID        string    `json:"id"`
	AuditID   string    `json:"audit_id"`
	Title     string    `json:"title"`
	Format    string    `json:"format"`
	Content   string    `json:"content,omitempty"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
}
