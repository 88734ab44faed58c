package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tandem/internal/amqp"
	"tandem/internal/config"
	gexport "tandem/internal/export/google"
	applog "tandem/internal/log"
	"tandem/internal/storage"
	"tandem/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.ComponentWorker, slog.LevelInfo)
	applog.SetDefault(logger)

	logger.Info("Starting tandem-worker", applog.FieldOperation, applog.OpStartup)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	// The worker reconciles against the durable store directly; the memory
	// backend has nothing to reconcile.
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err,
			"path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var exporter worker.HistoryExporter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gexport.NewClient(context.Background(), gexport.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			CredentialsFile: cfg.GoogleCredentialsFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Sheets export", applog.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Sheets export initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	reconciler := worker.NewReconcileWorker(repo, exporter, logger,
		cfg.ReconcileInterval, cfg.ReconcileBatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event-driven reconciliation is optional; the periodic sweep alone still
	// corrects drift, just more slowly.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			handler := func(msg *amqp.BalanceEventMessage) error {
				return reconciler.HandleBalanceEvent(ctx, msg)
			}
			if err := amqpClient.ConsumeBalanceEvents(ctx, handler); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Error("Event consumption failed", applog.FieldError, err)
				}
				cancel()
			}
		}()
		logger.Info("Consuming balance events", "queue", cfg.AMQPQueue)
	} else {
		logger.Warn("AMQP disabled - relying on the periodic sweep only")
	}

	go func() {
		if err := reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Reconcile loop failed", applog.FieldError, err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("Worker stopped gracefully", applog.FieldOperation, applog.OpShutdown)
}
