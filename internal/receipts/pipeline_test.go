package receipts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"kakeibo/internal/api"
	"kakeibo/internal/core"
)

type stubAnalyzer struct {
	items []core.ReceiptItem
	err   error
	delay time.Duration
}

func (a *stubAnalyzer) AnalyzeReceipt(ctx context.Context, userID, filename string, image io.Reader) ([]core.ReceiptItem, error) {
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	return a.items, a.err
}

type stubCreator struct {
	failAt  int // 1-based call number that fails, 0 for never
	calls   int
	created []api.TransactionInput
}

func (c *stubCreator) CreateTransaction(ctx context.Context, input api.TransactionInput) (core.Transaction, error) {
	c.calls++
	if c.failAt != 0 && c.calls == c.failAt {
		return core.Transaction{}, errors.New("backend rejected")
	}
	c.created = append(c.created, input)
	return core.Transaction{ID: "created"}, nil
}

func testTaxonomy() core.Taxonomy {
	return core.Taxonomy{
		{ID: "1", Name: "食費", Type: core.Expense, Minors: []core.MinorCategory{
			{ID: "11", Name: "食料品"},
			{ID: "12", Name: "外食"},
		}},
		{ID: "2", Name: "日用品", Type: core.Expense, Minors: []core.MinorCategory{
			{ID: "21", Name: "消耗品"},
		}},
	}
}

func mustDate(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %s: %v", s, err)
	}
	return d
}

func newTestSession(analyzer Analyzer) *Session {
	s := NewSession(analyzer, testTaxonomy(), "1", slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.tickInterval = time.Millisecond
	return s
}

func analyzedSession(t *testing.T, items []core.ReceiptItem) *Session {
	t.Helper()
	s := newTestSession(&stubAnalyzer{items: items})
	if err := s.Analyze(context.Background(), "receipt.jpg", strings.NewReader("img")); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	return s
}

func TestAnalyzeDefaultsMinorCategory(t *testing.T) {
	s := analyzedSession(t, []core.ReceiptItem{
		{Description: "パン", Amount: core.Money{Cents: 24000}, MajorID: "1"},
	})

	state, progress := s.Snapshot()
	if state != StateReady || progress != 100 {
		t.Fatalf("expected ready/100, got %s/%d", state, progress)
	}
	items := s.Items()
	if items[0].MinorID != "11" {
		t.Fatalf("minor should default to the major's first minor, got %q", items[0].MinorID)
	}
}

func TestAnalyzeFailureResetsToIdle(t *testing.T) {
	s := newTestSession(&stubAnalyzer{err: errors.New("extraction failed")})

	if err := s.Analyze(context.Background(), "receipt.jpg", strings.NewReader("img")); err == nil {
		t.Fatal("expected analyze error")
	}
	state, progress := s.Snapshot()
	if state != StateIdle || progress != 0 {
		t.Fatalf("failed analysis should reset the session, got %s/%d", state, progress)
	}
	if len(s.Items()) != 0 {
		t.Fatal("failed analysis should leave no items")
	}
}

func TestAnalyzeProgressAdvancesWhilePending(t *testing.T) {
	s := newTestSession(&stubAnalyzer{delay: 30 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Analyze(context.Background(), "receipt.jpg", strings.NewReader("img"))
	}()

	time.Sleep(15 * time.Millisecond)
	state, progress := s.Snapshot()
	if state != StateUploading {
		t.Fatalf("expected uploading, got %s", state)
	}
	if progress == 0 || progress > 90 {
		t.Fatalf("pending progress should sit between ticks and 90, got %d", progress)
	}
	<-done

	if _, progress := s.Snapshot(); progress != 100 {
		t.Fatalf("completed analysis should jump to 100, got %d", progress)
	}
}

func TestSetMajorCategoryResetsMinor(t *testing.T) {
	s := analyzedSession(t, []core.ReceiptItem{
		{Description: "パン", Amount: core.Money{Cents: 24000}, MajorID: "1", MinorID: "12"},
	})

	if err := s.SetMajorCategory(0, "2"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	item := s.Items()[0]
	if item.MajorID != "2" || item.MinorID != "21" {
		t.Fatalf("minor should reset to the new major's first minor, got %+v", item)
	}

	if err := s.SetMajorCategory(0, "99"); !errors.Is(err, core.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestSetMinorCategoryRejectsForeignMinor(t *testing.T) {
	s := analyzedSession(t, []core.ReceiptItem{
		{Description: "パン", Amount: core.Money{Cents: 24000}, MajorID: "1"},
	})

	if err := s.SetMinorCategory(0, "12"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := s.SetMinorCategory(0, "21"); !errors.Is(err, core.ErrUnknownCategory) {
		t.Fatalf("minor of another major should be rejected, got %v", err)
	}
}

func TestSubmitAll(t *testing.T) {
	s := analyzedSession(t, []core.ReceiptItem{
		{Description: "パン", Amount: core.Money{Cents: 24000}, Date: mustDate(t, "2024-02-18"), MajorID: "1"},
		{Description: "牛乳", Amount: core.Money{Cents: 19800}, Date: mustDate(t, "2024-02-18"), MajorID: "1"},
	})

	creator := &stubCreator{}
	created, err := s.Submit(context.Background(), creator)
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if created != 2 || len(creator.created) != 2 {
		t.Fatalf("expected 2 created, got %d", created)
	}
	if creator.created[0].Type != core.Expense || creator.created[0].TransactionDate != "2024-02-18" {
		t.Fatalf("unexpected input: %+v", creator.created[0])
	}
	if state, _ := s.Snapshot(); state != StateIdle {
		t.Fatalf("successful submit should end the session, got %s", state)
	}
}

func TestSubmitPartialFailure(t *testing.T) {
	s := analyzedSession(t, []core.ReceiptItem{
		{Description: "パン", Amount: core.Money{Cents: 24000}, Date: mustDate(t, "2024-02-18"), MajorID: "1"},
		{Description: "牛乳", Amount: core.Money{Cents: 19800}, Date: mustDate(t, "2024-02-18"), MajorID: "1"},
		{Description: "卵", Amount: core.Money{Cents: 26000}, Date: mustDate(t, "2024-02-18"), MajorID: "1"},
	})

	creator := &stubCreator{failAt: 2}
	created, err := s.Submit(context.Background(), creator)
	if created != 1 {
		t.Fatalf("the item before the failure should stay persisted, got %d", created)
	}
	var subErr *SubmitError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected *SubmitError, got %v", err)
	}
	if subErr.Index != 1 || subErr.Description != "牛乳" {
		t.Fatalf("error should name the failed item: %+v", subErr)
	}

	// The already-created item is dropped so a retry cannot duplicate it.
	items := s.Items()
	if len(items) != 2 || items[0].Description != "牛乳" {
		t.Fatalf("remaining items should start at the failure, got %+v", items)
	}
	if state, _ := s.Snapshot(); state != StateReady {
		t.Fatalf("failed submit should return to ready for retry, got %s", state)
	}
}

func TestCancelDiscardsPendingItems(t *testing.T) {
	s := analyzedSession(t, []core.ReceiptItem{
		{Description: "パン", Amount: core.Money{Cents: 24000}, Date: mustDate(t, "2024-02-18"), MajorID: "1"},
	})

	if err := s.Cancel(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	state, progress := s.Snapshot()
	if state != StateIdle || progress != 0 {
		t.Fatalf("cancel should reset the session, got %s/%d", state, progress)
	}
	if len(s.Items()) != 0 {
		t.Fatal("cancel should leave no items")
	}

	creator := &stubCreator{}
	if _, err := s.Submit(context.Background(), creator); !errors.Is(err, ErrNotReady) {
		t.Fatalf("submit after cancel should fail, got %v", err)
	}
	if creator.calls != 0 {
		t.Fatal("cancelled items must not be persisted")
	}
}

func TestCancelRejectsRunningAnalysis(t *testing.T) {
	s := newTestSession(&stubAnalyzer{delay: 30 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Analyze(context.Background(), "receipt.jpg", strings.NewReader("img"))
	}()

	time.Sleep(15 * time.Millisecond)
	if err := s.Cancel(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while analyzing, got %v", err)
	}
	<-done
}

func TestSubmitRequiresItems(t *testing.T) {
	s := newTestSession(&stubAnalyzer{})
	if _, err := s.Submit(context.Background(), &stubCreator{}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}
