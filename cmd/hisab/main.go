package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"hisab/internal/amqp"
	"hisab/internal/auth"
	"hisab/internal/backend"
	"hisab/internal/config"
	apphttp "hisab/internal/http"
	applog "hisab/internal/log"
	"hisab/internal/services"
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
		Component: applog.ComponentApp,
		Handler:   applog.HandlerFor(cfg.LogFormat, levelFrom(cfg.LogLevel)),
	})
	applog.SetDefault(logger)

	store, err := backend.NewFactory(logger).CreateStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// AMQP is optional. Without it the server still works; changes made by
	// other processes just stop propagating.
	var changes *amqp.Client
	if cfg.AMQPURL != "" {
		changes, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without change propagation", "error", err)
			changes = nil
		} else {
			defer changes.Close()
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	var changePub services.ChangePublisher
	var exportPub services.ExportPublisher
	if changes != nil {
		changePub = changes
		exportPub = changes
	}

	creds := services.NewCredentialService(store, changePub)
	defer creds.Close()
	ledger := services.NewLedgerService(store, changePub, exportPub)
	defer ledger.Close()

	authn := auth.NewAuthenticator(creds)
	sessions := auth.NewSessions()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Prime the feeds so the first subscriber sees current state.
	creds.Refresh(ctx)
	ledger.Refresh(ctx)

	g, ctx := errgroup.WithContext(ctx)

	// Revoke sessions whose credentials no longer match the document.
	snapshots, cancelWatch := creds.Observe()
	defer cancelWatch()
	g.Go(func() error {
		sessions.Watch(ctx, snapshots)
		return nil
	})

	if changes != nil {
		g.Go(func() error {
			err := changes.RunChangesConsumer(ctx, func(msg *amqp.ChangeMessage) error {
				switch msg.Collection {
				case amqp.CollectionAdmins:
					creds.Refresh(ctx)
				case amqp.CollectionTransactions:
					ledger.Refresh(ctx)
				default:
					logger.Warn("Unknown change collection", "collection", msg.Collection)
				}
				return nil
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("Change consumption stopped", "error", err)
			}
			return nil
		})
	}

	srv := apphttp.NewServer(":"+cfg.Port, authn, sessions, creds, ledger)
	srv.Handler = applog.Middleware(logger.WithComponent(applog.ComponentHTTP))(srv.Handler)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 0 // the stream endpoint holds connections open
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("Starting hisab server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	stop()
	if err := g.Wait(); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped gracefully")
}

func levelFrom(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
