package main

import (
	"context"
	"errors"
	"os"
	"time"

	"kakeibo/internal/advisor"
	"kakeibo/internal/api"
	"kakeibo/internal/cli"
	"kakeibo/internal/events"
	"kakeibo/internal/export/google"
	"kakeibo/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentAdvisor)
	logger.Info("starting advisor worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the advisor worker")
		os.Exit(1)
	}

	backend := api.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout)
	worker := advisor.NewWorker(backend, advisor.DefaultThresholds(), logger.Logger)

	if cfg.ExportSpreadsheetID != "" {
		exporter, err := google.New(context.Background(), cfg.ExportSpreadsheetID, cfg.ExportSheetName)
		if err != nil {
			logger.Error("failed to initialize sheets exporter", log.FieldError, err)
			os.Exit(1)
		}
		worker = worker.WithExporter(exporter)
		logger.Info("sheets export enabled", "spreadsheet_id", cfg.ExportSpreadsheetID)
	} else {
		logger.Info("sheets export disabled, no EXPORT_SPREADSHEET_ID provided")
	}

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, nil)

	// RunConsumer redials until the context is cancelled.
	handler := func(event *events.Event) error {
		hctx, cancel := context.WithTimeout(ctx, cfg.BackendTimeout*3)
		defer cancel()
		return worker.HandleEvent(hctx, event)
	}
	if err := events.RunConsumer(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, handler); err != nil &&
		!errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("advisor worker stopped")
}
