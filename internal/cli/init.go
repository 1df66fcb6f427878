// Package cli provides common initialization for the dashboard and
// worker binaries.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kakeibo/internal/config"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

// SetupLogger initializes structured logging for the given component
// and sets it as the process default.
func SetupLogger(component string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Component = component
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development. Errors are
// ignored silently as the file is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it, exiting
// the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitSnapshots opens the SQLite snapshot store, exiting the process
// on failure. Returns nil when snapshots are disabled.
func InitSnapshots(logger *log.Logger, cfg *config.Config) *storage.SnapshotStore {
	if !cfg.SnapshotEnabled {
		logger.Info("snapshot store disabled, degraded reads will fail hard")
		return nil
	}
	store, err := storage.NewSnapshotStore(cfg.SnapshotDBPath)
	if err != nil {
		logger.Error("failed to open snapshot store", log.FieldError, err, "path", cfg.SnapshotDBPath)
		os.Exit(1)
	}
	return store
}

// GracefulShutdown sets up signal handling. The returned context is
// cancelled on SIGINT/SIGTERM after cleanup has run; done closes when
// shutdown finished.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup()
		}
		cancel()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("shutdown timeout reached")
		case <-time.After(2 * time.Second):
			logger.Info("shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and the
// shutdown goroutine has finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
