package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/brightforge/siteaudit/internal/audit"
	"github.com/brightforge/siteaudit/internal/config"
	"github.com/brightforge/siteaudit/internal/database"
	"github.com/brightforge/siteaudit/internal/notify"
	"github.com/brightforge/siteaudit/internal/report"
	"github.com/brightforge/siteaudit/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	// .env is optional; real deployments set env vars directly
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := server.NewHub()

	coordinator := audit.NewCoordinator(db,
		audit.NewPageSpeedProbe(cfg.PageSpeed.BaseURL, cfg.PageSpeed.APIKey,
			time.Duration(cfg.PageSpeed.TimeoutSeconds)*time.Second),
		audit.NewHeaderScanProbe(cfg.HeaderScan.BaseURL,
			time.Duration(cfg.HeaderScan.PollIntervalSeconds)*time.Second,
			cfg.HeaderScan.MaxPolls,
			time.Duration(cfg.HeaderScan.TimeoutSeconds)*time.Second),
		audit.NewHTTPSCheckProbe(time.Duration(cfg.HTTPSCheck.TimeoutSeconds)*time.Second),
		hub,
		time.Duration(cfg.Audit.DedupWindowHours)*time.Hour,
	)
	go coordinator.Run(ctx, cfg.Audit.Workers)
	slog.Info("audit workers started", "count", cfg.Audit.Workers)

	dispatcher := notify.NewDispatcher(notify.LogNotifier{})
	go dispatcher.Run(ctx)

	reportGen := report.NewGenerator(db, cfg.Reports.Directory, cfg.Reports.FontPath)

	srv := server.New(cfg, db, coordinator, reportGen, dispatcher, hub)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
		cancel()
	case err := <-errCh:
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
