package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/config"
	"github.com/jask/despacho/internal/database"
	"github.com/jask/despacho/internal/database/repository"
	"github.com/jask/despacho/internal/journal"
	"github.com/jask/despacho/internal/logging"
	"github.com/jask/despacho/internal/retry"
	"github.com/jask/despacho/internal/secrets"
	"github.com/jask/despacho/internal/service"
	"github.com/jask/despacho/internal/session"
	"github.com/jask/despacho/internal/storage"
	"github.com/jask/despacho/internal/tui"
	"github.com/jask/despacho/internal/workflow"
)

func main() {
	ctx := context.Background()

	// a .env next to the binary is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, closer, err := logging.Open(cfg.Log.Path, cfg.Log.Level)
	if err != nil {
		log.Fatalf("log: %v", err)
	}
	defer closer.Close()

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	journalRepo := repository.NewJournalRepo(db)
	recorder := journal.NewRecorder(journal.Config{
		BatchSize:     cfg.Journal.BatchSize,
		FlushInterval: cfg.Journal.FlushInterval,
	}, logger, &journal.DBProcessor{Repo: journalRepo}, &journal.LogProcessor{Log: logger})
	recorder.Start(1)
	defer recorder.Close()

	store, err := secrets.DefaultStore()
	if err != nil {
		log.Fatalf("secrets: %v", err)
	}

	client := api.New(cfg.API.BaseURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		api.WithPolicy(retryPolicy(cfg.API)),
		api.WithLogger(logger),
	)
	mgr := session.NewManager(store, client, session.WithLogger(logger))
	client.UseSession(mgr)
	recorder.WatchSession(mgr)
	if mgr.Restore() {
		logger.Info("session_restored")
	}

	finalize := workflow.New(client, logger)
	recorder.WatchWorkflow(finalize)
	correction := workflow.NewCorrection(client, logger)

	exportStore, err := storage.FromConfig(ctx, cfg.Exports)
	if err != nil {
		log.Fatalf("exports: %v", err)
	}

	app := tui.New(ctx, cfg, tui.Services{
		API:        client,
		Session:    mgr,
		Finalize:   finalize,
		Correction: correction,
		Exports:    &service.ExportService{API: client, Store: exportStore, Journal: recorder, Log: logger},
		Uploads:    &service.UploadService{API: client, Log: logger},
		Maintenance: &service.MaintenanceService{
			API: client, DB: db, Journal: recorder, Log: logger,
		},
		Journal:  journalRepo,
		Recorder: recorder,
	})

	p := tea.NewProgram(app, tea.WithAltScreen())
	app.Attach(p.Send)
	if _, err := p.Run(); err != nil {
		fmt.Printf("error: %v\n", err)
	}

	// a reservation still held on exit goes back to the pool before the
	// journal and database close
	finalize.Cancel()
	finalize.Wait()
	if n := recorder.Dropped(); n > 0 {
		logger.Warn("journal_entries_dropped", slog.Int64("count", n))
	}
}

// retryPolicy applies the configured attempts and pause over the default
// policy. The client adds its own retry logging.
func retryPolicy(c config.APIConfig) retry.Policy {
	p := retry.Default()
	if c.RetryAttempts > 0 {
		p.MaxAttempts = c.RetryAttempts
	}
	if c.RetryDelay > 0 {
		p.Delay = c.RetryDelay
	}
	return p
}
