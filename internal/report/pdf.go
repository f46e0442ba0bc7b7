package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/signintech/gopdf"

	"github.com/brightforge/siteaudit/internal/database"
)

const (
	pdfFontName = "report"
	pdfMarginX  = 40.0
	pdfLineGap  = 18.0
)

// GeneratePDF renders a one-page audit summary. The TTF font comes from the
// configured font path since gopdf embeds fonts rather than using built-ins.
func (g *Generator) GeneratePDF(auditID string) ([]byte, error) {
	a, err := g.db.GetAudit(auditID)
	if err != nil {
		return nil, fmt.Errorf("loading audit: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("audit not found")
	}

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFont(pdfFontName, g.fontPath); err != nil {
		return nil, fmt.Errorf("loading report font %s: %w", g.fontPath, err)
	}

	y := 50.0
	line := func(size float64, text string) error {
		if err := pdf.SetFont(pdfFontName, "", size); err != nil {
			return err
		}
		pdf.SetXY(pdfMarginX, y)
		if err := pdf.Cell(nil, text); err != nil {
			return err
		}
		y += pdfLineGap + (size - 12)
		return nil
	}

	if err := line(20, "Website Audit Report"); err != nil {
		return nil, err
	}
	if err := line(12, a.URL); err != nil {
		return nil, err
	}
	if err := line(10, "Generated "+time.Now().Format("January 2, 2006")); err != nil {
		return nil, err
	}
	y += pdfLineGap

	if a.OverallGrade != nil {
		if err := line(16, "Overall Grade: "+*a.OverallGrade); err != nil {
			return nil, err
		}
	}
	if err := line(12, "Status: "+a.Status); err != nil {
		return nil, err
	}
	y += pdfLineGap / 2

	categories := []struct {
		name string
		c    *database.CategoryResult
	}{
		{"Performance", a.Performance},
		{"Accessibility", a.Accessibility},
		{"SEO", a.SEO},
		{"Best Practices", a.BestPractices},
	}
	for _, cat := range categories {
		text := cat.name + ": not assessed"
		if cat.c != nil {
			text = fmt.Sprintf("%s: %d (%s)", cat.name, cat.c.Score, cat.c.Grade)
		}
		if err := line(12, text); err != nil {
			return nil, err
		}
	}
	if a.Security != nil {
		if err := line(12, fmt.Sprintf("Security: %d (%s), %d of %d headers present",
			a.Security.Score, a.Security.Grade,
			len(a.Security.HeadersPresent),
			len(a.Security.HeadersPresent)+len(a.Security.HeadersMissing))); err != nil {
			return nil, err
		}
	}
	y += pdfLineGap / 2

	if len(a.TopIssues) > 0 {
		if err := line(14, "Top Issues"); err != nil {
			return nil, err
		}
		for i, issue := range a.TopIssues {
			if err := line(11, fmt.Sprintf("%d. %s", i+1, issue)); err != nil {
				return nil, err
			}
		}
	}

	return pdf.GetBytesPdf(), nil
}

func (g *Generator) SavePDF(auditID string) (string, *database.Report, error) {
	data, err := g.GeneratePDF(auditID)
	if err != nil {
		return "", nil, err
	}

	if err := os.MkdirAll(g.reportsDir, 0755); err != nil {
		return "", nil, fmt.Errorf("creating reports dir: %w", err)
	}
	filename := fmt.Sprintf("audit-%s-%s.pdf", shortID(auditID), time.Now().Format("20060102-150405"))
	path := filepath.Join(g.reportsDir, filename)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", nil, fmt.Errorf("writing report: %w", err)
	}

	rpt := &database.Report{
		ID:       uuid.NewString(),
		AuditID:  auditID,
		Title:    fmt.Sprintf("Audit Report — %s", shortID(auditID)),
		Format:   "pdf",
		FilePath: path,
	}
	if err := g.db.CreateReport(rpt); err != nil {
		return "", nil, fmt.Errorf("saving report record: %w", err)
	}

	return path, rpt, nil
}
