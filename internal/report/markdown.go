package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brightforge/siteaudit/internal/database"
)

type Generator struct {
	db         *database.DB
	reportsDir string
	fontPath   string
}

func NewGenerator(db *database.DB, reportsDir, fontPath string) *Generator {
	return &Generator{db: db, reportsDir: reportsDir, fontPath: fontPath}
}

func (g *Generator) GenerateMarkdown(auditID string) (string, error) {
	a, err := g.db.GetAudit(auditID)
	if err != nil {
		return "", fmt.Errorf("loading audit: %w", err)
	}
	if a == nil {
		return "", fmt.Errorf("audit not found")
	}

	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Website Audit: %s\n\n", a.URL))
	b.WriteString(fmt.Sprintf("**Generated:** %s  \n", time.Now().Format("January 2, 2006 15:04:05 MST")))
	b.WriteString(fmt.Sprintf("**Status:** %s  \n", a.Status))
	if a.OverallGrade != nil {
		b.WriteString(fmt.Sprintf("**Overall Grade:** %s  \n", *a.OverallGrade))
	}
	b.WriteString("\n")

	b.WriteString("## Category Scores\n\n")
	b.WriteString("| Category | Score | Grade |\n")
	b.WriteString("|---|---|---|\n")
	writeCategory(&b, "Performance", a.Performance)
	writeCategory(&b, "Accessibility", a.Accessibility)
	writeCategory(&b, "SEO", a.SEO)
	writeCategory(&b, "Best Practices", a.BestPractices)
	if a.Security != nil {
		b.WriteString(fmt.Sprintf("| Security | %d | %s |\n", a.Security.Score, a.Security.Grade))
	}
	b.WriteString("\n")

	if a.Security != nil {
		b.WriteString("## Security Headers\n\n")
		if len(a.Security.HeadersPresent) > 0 {
			b.WriteString("**Present:**\n\n")
			for _, h := range a.Security.HeadersPresent {
				b.WriteString(fmt.Sprintf("- `%s`\n", h))
			}
			b.WriteString("\n")
		}
		if len(a.Security.HeadersMissing) > 0 {
			b.WriteString("**Missing:**\n\n")
			for _, h := range a.Security.HeadersMissing {
				b.WriteString(fmt.Sprintf("- `%s`\n", h))
			}
			b.WriteString("\n")
		}
	}

	if len(a.TopIssues) > 0 {
		b.WriteString("## Top Issues\n\n")
		for i, issue := range a.TopIssues {
			b.WriteString(fmt.Sprintf("%d. %s\n", i+1, issue))
		}
		b.WriteString("\n")
	}

	if len(a.Errors) > 0 {
		b.WriteString("## Checks That Could Not Complete\n\n")
		for _, e := range a.Errors {
			b.WriteString(fmt.Sprintf("- %s\n", e))
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}

func writeCategory(b *strings.Builder, name string, c *database.CategoryResult) {
	if c == nil {
		b.WriteString(fmt.Sprintf("| %s | — | — |\n", name))
		return
	}
	b.WriteString(fmt.Sprintf("| %s | %d | %s |\n", name, c.Score, c.Grade))
}

func (g *Generator) SaveMarkdown(auditID string) (string, *database.Report, error) {
	content, err := g.GenerateMarkdown(auditID)
	if err != nil {
		return "", nil, err
	}

	if err := os.MkdirAll(g.reportsDir, 0755); err != nil {
		return "", nil, fmt.Errorf("creating reports dir: %w", err)
	}
	filename := fmt.Sprintf("audit-%s-%s.md", shortID(auditID), time.Now().Format("20060102-150405"))
	path := filepath.Join(g.reportsDir, filename)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", nil, fmt.Errorf("writing report: %w", err)
	}

	rpt := &database.Report{
		ID:       uuid.NewString(),
		AuditID:  auditID,
		Title:    fmt.Sprintf("Audit Report — %s", shortID(auditID)),
		Format:   "markdown",
		Content:  content,
		FilePath: path,
	}
	if err := g.db.CreateReport(rpt); err != nil {
		return "", nil, fmt.Errorf("saving report record: %w", err)
	}

	return path, rpt, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
