package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/brightforge/siteaudit/internal/database"
	"github.com/brightforge/siteaudit/internal/notify"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleAPIAudits handles /api/audits (collection).
func (s *Server) handleAPIAudits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if strings.TrimSpace(req.URL) == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		res, err := s.coordinator.StartAudit(req.URL)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		status := http.StatusAccepted
		if res.Cached {
			status = http.StatusOK
		}
		writeJSON(w, status, res)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAPIAudit handles /api/audits/{id} and its sub-resources.
func (s *Server) handleAPIAudit(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/audits/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "missing audit id")
		return
	}

	if rest == "recent" {
		audits, err := s.db.ListRecentAudits(10)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if audits == nil {
			audits = []database.Audit{}
		}
		writeJSON(w, http.StatusOK, audits)
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]

	if len(parts) > 1 {
		switch parts[1] {
		case "lead":
			s.handleAuditLead(w, r, id)
		case "report":
			s.handleAuditReport(w, r, id)
		default:
			http.NotFound(w, r)
		}
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a, err := s.db.GetAudit(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "audit not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleAuditLead captures contact details for an audit. Idempotent: the
// first submission creates the lead and schedules the notification, repeats
// return the original lead.
func (s *Server) handleAuditLead(w http.ResponseWriter, r *http.Request, auditID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name         string `json:"name"`
		Email        string `json:"email"`
		BusinessName string `json:"business_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "name and email are required")
		return
	}

	a, err := s.db.GetAudit(auditID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "audit not found")
		return
	}

	lead := &database.AuditLead{
		ID:           uuid.NewString(),
		AuditID:      auditID,
		Name:         req.Name,
		Email:        req.Email,
		BusinessName: req.BusinessName,
	}
	created, err := s.db.CreateLead(lead)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !created {
		writeJSON(w, http.StatusOK, lead)
		return
	}

	// Notification only fires for leads tied to a settled audit; a lead on a
	// still-running audit is stored but carries no result worth announcing.
	if database.IsTerminal(a.Status) {
		grade := ""
		if a.OverallGrade != nil {
			grade = *a.OverallGrade
		}
		s.notifier.Schedule(notify.LeadNotification{
			LeadID:       lead.ID,
			Name:         lead.Name,
			Email:        lead.Email,
			BusinessName: lead.BusinessName,
			URL:          a.URL,
			OverallGrade: grade,
		})
	}
	writeJSON(w, http.StatusCreated, lead)
}

var validLeadStatuses = map[string]bool{
	database.LeadStatusNew:       true,
	database.LeadStatusContacted: true,
	database.LeadStatusConverted: true,
	database.LeadStatusArchived:  true,
}

// handleAPILead handles /api/leads/{id} (admin only).
func (s *Server) handleAPILead(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/leads/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing lead id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		lead, err := s.db.GetLead(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if lead == nil {
			writeError(w, http.StatusNotFound, "lead not found")
			return
		}
		writeJSON(w, http.StatusOK, lead)

	case http.MethodPatch:
		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if !validLeadStatuses[req.Status] {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		if err := s.db.UpdateLeadStatus(id, req.Status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				writeError(w, http.StatusNotFound, "lead not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		lead, err := s.db.GetLead(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, lead)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAuditReport handles POST /api/audits/{id}/report.
func (s *Server) handleAuditReport(w http.ResponseWriter, r *http.Request, auditID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Format string `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Format == "" {
		req.Format = "markdown"
	}

	var rpt *database.Report
	var err error
	switch req.Format {
	case "markdown":
		_, rpt, err = s.reportGen.SaveMarkdown(auditID)
	case "pdf":
		_, rpt, err = s.reportGen.SavePDF(auditID)
	default:
		writeError(w, http.StatusBadRequest, "format must be 'markdown' or 'pdf'")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rpt)
}

// handleAPIReport handles /api/reports/{id} and /api/reports/{id}/download.
func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/reports/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "missing report id")
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	rpt, err := s.db.GetReport(parts[0])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rpt == nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}

	if len(parts) > 1 && parts[1] == "download" {
		if rpt.FilePath != "" {
			http.ServeFile(w, r, rpt.FilePath)
			return
		}
		if rpt.Format == "markdown" && rpt.Content != "" {
			w.Header().Set("Content-Type", "text/markdown")
			w.Header().Set("Content-Disposition", "attachment; filename=report.md")
			w.Write([]byte(rpt.Content))
			return
		}
		writeError(w, http.StatusNotFound, "report file not found")
		return
	}

	writeJSON(w, http.StatusOK, rpt)
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
