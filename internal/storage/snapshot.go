// Package storage keeps local snapshots of backend responses so the
// dashboard can still render recent data when the backend is down.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kakeibo/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNoSnapshot means no snapshot has been saved under the requested key.
var ErrNoSnapshot = errors.New("no snapshot stored")

const (
	kindMonth      = "month"
	kindCategories = "categories"
	kindYearly     = "yearly"
)

// SnapshotStore persists the last successful read per (user, view) in
// SQLite. Writes happen after every successful backend read; loads are
// fallbacks only, so staleness is acceptable and reported to the caller.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(dbPath string) (*SnapshotStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveMonth stores the transactions of one month for a user.
func (s *SnapshotStore) SaveMonth(ctx context.Context, userID string, year, month int, txs []core.Transaction) error {
	return s.save(ctx, userID, kindMonth, monthKey(year, month), txs)
}

// LoadMonth returns the last saved transactions for a month and the time
// they were saved.
func (s *SnapshotStore) LoadMonth(ctx context.Context, userID string, year, month int) ([]core.Transaction, time.Time, error) {
	var txs []core.Transaction
	at, err := s.load(ctx, userID, kindMonth, monthKey(year, month), &txs)
	if err != nil {
		return nil, time.Time{}, err
	}
	return txs, at, nil
}

// SaveCategories stores a user's category taxonomy.
func (s *SnapshotStore) SaveCategories(ctx context.Context, userID string, tax core.Taxonomy) error {
	return s.save(ctx, userID, kindCategories, "all", tax)
}

// LoadCategories returns the last saved taxonomy and its save time.
func (s *SnapshotStore) LoadCategories(ctx context.Context, userID string) (core.Taxonomy, time.Time, error) {
	var tax core.Taxonomy
	at, err := s.load(ctx, userID, kindCategories, "all", &tax)
	if err != nil {
		return nil, time.Time{}, err
	}
	return tax, at, nil
}

// SaveYearly stores a user's backend yearly summary.
func (s *SnapshotStore) SaveYearly(ctx context.Context, userID string, year int, summary core.YearlySummary) error {
	return s.save(ctx, userID, kindYearly, fmt.Sprintf("%04d", year), summary)
}

// LoadYearly returns the last saved yearly summary and its save time.
func (s *SnapshotStore) LoadYearly(ctx context.Context, userID string, year int) (core.YearlySummary, time.Time, error) {
	var summary core.YearlySummary
	at, err := s.load(ctx, userID, kindYearly, fmt.Sprintf("%04d", year), &summary)
	if err != nil {
		return core.YearlySummary{}, time.Time{}, err
	}
	return summary, at, nil
}

func (s *SnapshotStore) save(ctx context.Context, userID, kind, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", kind, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (user_id, kind, key, payload, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, kind, key)
		DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		userID, kind, key, string(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save %s snapshot: %w", kind, err)
	}
	return nil
}

func (s *SnapshotStore) load(ctx context.Context, userID, kind, key string, out any) (time.Time, error) {
	var payload, savedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, saved_at FROM snapshots
		WHERE user_id = ? AND kind = ? AND key = ?`,
		userID, kind, key).Scan(&payload, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load %s snapshot: %w", kind, err)
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return time.Time{}, fmt.Errorf("decode %s snapshot: %w", kind, err)
	}
	at, err := time.Parse(time.RFC3339, savedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse snapshot time: %w", err)
	}
	return at, nil
}

func monthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}
