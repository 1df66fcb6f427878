package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"kakeibo/internal/api"
	"kakeibo/internal/cli"
	"kakeibo/internal/events"
	apphttp "kakeibo/internal/http"
	"kakeibo/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentHTTP)
	logger.Info("starting kakeibo dashboard")

	cfg := cli.LoadAndValidateConfig(logger)

	backend := api.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout)

	snapshots := cli.InitSnapshots(logger, cfg)

	var publisher apphttp.Publisher
	var bus *events.Bus
	if cfg.AMQPURL != "" {
		var err error
		bus, err = events.NewBus(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// Events are advisory. The dashboard runs without them.
			logger.Warn("event bus unavailable, continuing without events", log.FieldError, err)
		} else {
			publisher = bus
			logger.Info("event bus connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("event bus disabled, no AMQP_URL provided")
	}

	opts := apphttp.Options{
		Addr:         ":" + cfg.Port,
		UserID:       cfg.DefaultUserID,
		CacheTTL:     cfg.CacheTTL,
		CacheMaxSize: cfg.CacheMaxSize,
		Publisher:    publisher,
	}
	if snapshots != nil {
		opts.Snapshots = snapshots
	}

	srv := apphttp.NewServer(opts, backend, logger)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", log.FieldError, err)
		}
		if bus != nil {
			if err := bus.Close(); err != nil {
				logger.Warn("event bus close error", log.FieldError, err)
			}
		}
		if snapshots != nil {
			if err := snapshots.Close(); err != nil {
				logger.Warn("snapshot store close error", log.FieldError, err)
			}
		}
	})

	logger.Info("listening", "port", cfg.Port, "backend", cfg.BackendBaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("kakeibo dashboard stopped")
}
