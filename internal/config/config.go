package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Upstream ledger API
	BackendBaseURL string
	BackendTimeout time.Duration

	// User identity. Placeholder until real authentication exists: the
	// backend takes the user id as a plain path parameter.
	DefaultUserID string

	// Snapshot store (SQLite fallback for degraded reads)
	SnapshotDBPath  string
	SnapshotEnabled bool

	// AMQP event bus (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets report export (optional)
	ExportSpreadsheetID string
	ExportSheetName     string

	// Cache tuning
	CacheTTL     time.Duration
	CacheMaxSize int
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		BackendBaseURL: getEnv("BACKEND_BASE_URL", "http://127.0.0.1:8000/api/v1"),
		BackendTimeout: getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),

		DefaultUserID: getEnv("DEFAULT_USER_ID", "1"),

		SnapshotDBPath:  getEnv("SNAPSHOT_DB_PATH", "./data/kakeibo.db"),
		SnapshotEnabled: getEnvBool("SNAPSHOT_ENABLED", true),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "kakeibo"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transaction_events"),

		ExportSpreadsheetID: getEnv("EXPORT_SPREADSHEET_ID", ""),
		ExportSheetName:     getEnv("EXPORT_SHEET_NAME", "Reports"),

		CacheTTL:     getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheMaxSize: getEnvInt("CACHE_MAX_SIZE", 100),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.BackendBaseURL == "" {
		errs = append(errs, "backend base URL cannot be empty")
	} else if parsed, err := url.Parse(c.BackendBaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("invalid backend base URL '%s': %v", c.BackendBaseURL, err))
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errs = append(errs, fmt.Sprintf("invalid backend base URL scheme '%s': must be 'http' or 'https'", parsed.Scheme))
	}

	if c.BackendTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("invalid backend timeout %v: must be at least 1 second", c.BackendTimeout))
	}

	if strings.TrimSpace(c.DefaultUserID) == "" {
		errs = append(errs, "default user id cannot be empty")
	}

	if c.SnapshotEnabled {
		if c.SnapshotDBPath == "" {
			errs = append(errs, "snapshot database path cannot be empty when snapshots are enabled")
		} else if dir := filepath.Dir(c.SnapshotDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create snapshot directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.ExportSpreadsheetID != "" && c.ExportSheetName == "" {
		errs = append(errs, "export sheet name cannot be empty when a spreadsheet id is provided")
	}

	if c.CacheTTL < time.Second {
		errs = append(errs, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}
	if c.CacheMaxSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid cache max size %d: must be at least 1", c.CacheMaxSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
