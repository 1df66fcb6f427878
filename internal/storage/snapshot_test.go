package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"kakeibo/internal/core"
)

func newTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	store, err := NewSnapshotStore(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMonthSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	date, _ := core.ParseDate("2024-02-18")
	txs := []core.Transaction{
		{ID: "1", Type: core.Expense, Amount: core.Money{Cents: 24000},
			Date: date, MajorID: "1", MajorName: "食費", Description: "パン"},
	}

	if err := store.SaveMonth(ctx, "1", 2024, 2, txs); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, savedAt, err := store.LoadMonth(ctx, "1", 2024, 2)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if savedAt.IsZero() {
		t.Fatal("save time should be recorded")
	}
	if len(got) != 1 || got[0].Amount.Cents != 24000 || got[0].MajorName != "食費" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if got[0].Date.Key() != "2024-02-18" {
		t.Fatalf("date not preserved: %s", got[0].Date.Key())
	}
}

func TestSaveMonthOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := []core.Transaction{{ID: "1", Type: core.Expense, Amount: core.Money{Cents: 100}}}
	second := []core.Transaction{{ID: "2", Type: core.Expense, Amount: core.Money{Cents: 200}}}

	if err := store.SaveMonth(ctx, "1", 2024, 2, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.SaveMonth(ctx, "1", 2024, 2, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, _, err := store.LoadMonth(ctx, "1", 2024, 2)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("newer snapshot should replace the old one: %+v", got)
	}
}

func TestLoadMissingSnapshot(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.LoadMonth(context.Background(), "1", 2024, 2); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
	if _, _, err := store.LoadCategories(context.Background(), "1"); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestSnapshotsArePerUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tax := core.Taxonomy{{ID: "1", Name: "食費", Type: core.Expense}}
	if err := store.SaveCategories(ctx, "1", tax); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, _, err := store.LoadCategories(ctx, "2"); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("another user's snapshot should not be visible, got %v", err)
	}
	got, _, err := store.LoadCategories(ctx, "1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Name != "食費" {
		t.Fatalf("unexpected taxonomy: %+v", got)
	}
}

func TestYearlySnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	summary := core.YearlySummary{Year: 2024, Months: []core.MonthSummary{
		{Month: 1, TotalIncome: "450000", TotalExpense: "320000"},
	}}
	if err := store.SaveYearly(ctx, "1", 2024, summary); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, _, err := store.LoadYearly(ctx, "1", 2024)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Year != 2024 || len(got.Months) != 1 || got.Months[0].TotalIncome != "450000" {
		t.Fatalf("unexpected summary: %+v", got)
	}
}
