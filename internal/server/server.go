package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/brightforge/siteaudit/internal/audit"
	"github.com/brightforge/siteaudit/internal/config"
	"github.com/brightforge/siteaudit/internal/database"
	"github.com/brightforge/siteaudit/internal/notify"
	"github.com/brightforge/siteaudit/internal/report"
)

type Server struct {
	cfg         *config.Config
	db          *database.DB
	hub         *Hub
	coordinator *audit.Coordinator
	reportGen   *report.Generator
	notifier    *notify.Dispatcher
	mux         *http.ServeMux
}

func New(cfg *config.Config, db *database.DB, coordinator *audit.Coordinator, reportGen *report.Generator, notifier *notify.Dispatcher, hub *Hub) *Server {
	s := &Server{
		cfg:         cfg,
		db:          db,
		hub:         hub,
		coordinator: coordinator,
		reportGen:   reportGen,
		notifier:    notifier,
		mux:         http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return recoveryMiddleware(securityHeaders(loggingMiddleware(s.mux)))
}

func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	slog.Info("starting server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) registerRoutes() {
	// Audit API
	s.mux.HandleFunc("/api/audits", s.handleAPIAudits)
	s.mux.HandleFunc("/api/audits/", s.handleAPIAudit)

	// Lead admin
	s.mux.HandleFunc("/api/leads/", s.handleAPILead)

	// Reports
	s.mux.HandleFunc("/api/reports/", s.handleAPIReport)

	// Dashboard
	s.mux.HandleFunc("/api/stats", s.handleAPIStats)

	// WebSocket status subscription
	s.mux.HandleFunc("/ws", s.handleWebSocket)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
