package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hisab/internal/amqp"
	"hisab/internal/config"
	applog "hisab/internal/log"
	gsheet "hisab/internal/sheets/google"
	"hisab/internal/storage"
	"hisab/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	logger := applog.New(applog.Config{
		Component: applog.ComponentWorker,
		Handler:   applog.HandlerFor(cfg.LogFormat, slog.LevelInfo),
	})
	applog.SetDefault(logger)

	logger.Info("Starting hisab-worker")

	// The worker reads recorded entries straight from the SQLite file the
	// server writes.
	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite store", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()

	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided, nothing to do")
		os.Exit(1)
	}
	sheetsClient, err := gsheet.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exportWorker := worker.NewExportWorker(store, sheetsClient)

	go func() {
		handler := func(msg *amqp.ExportMessage) error {
			msgCtx, msgCancel := context.WithTimeout(ctx, cfg.ExportTimeout)
			defer msgCancel()
			return exportWorker.HandleExportMessage(msgCtx, msg)
		}
		if err := amqpClient.RunExportsConsumer(ctx, handler); err != nil {
			if err != context.Canceled {
				logger.Error("Export consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	// Give the in-flight message a moment to finish.
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
