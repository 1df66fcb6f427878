// Package receipts drives the receipt import flow: analyze an uploaded
// image into candidate items, let the user correct them, then submit
// each item as a transaction.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"kakeibo/internal/api"
	"kakeibo/internal/core"
)

// State is the phase of one import session.
type State string

const (
	StateIdle       State = "idle"
	StateUploading  State = "uploading"
	StateReady      State = "ready"
	StateSubmitting State = "submitting"
)

var (
	ErrBusy         = errors.New("import already in progress")
	ErrNotReady     = errors.New("no analyzed items to operate on")
	ErrItemNotFound = errors.New("item index out of range")
)

// Analyzer extracts candidate transactions from a receipt image.
type Analyzer interface {
	AnalyzeReceipt(ctx context.Context, userID, filename string, image io.Reader) ([]core.ReceiptItem, error)
}

// Creator persists one transaction on the backend.
type Creator interface {
	CreateTransaction(ctx context.Context, input api.TransactionInput) (core.Transaction, error)
}

// Item is one extracted receipt line plus the user's category corrections.
type Item struct {
	Description string
	Amount      core.Money
	Date        core.Date
	MajorID     string
	MinorID     string
}

// SubmitError reports a partially failed submit. Items before Index were
// created on the backend and must not be retried.
type SubmitError struct {
	Index       int
	Description string
	Created     int
	Err         error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit item %d (%s): %v", e.Index+1, e.Description, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Session is one receipt import in progress. All methods are safe for
// concurrent use.
type Session struct {
	ID     string
	UserID string

	mu       sync.Mutex
	state    State
	progress int
	items    []Item
	stopTick chan struct{}

	analyzer     Analyzer
	taxonomy     core.Taxonomy
	logger       *slog.Logger
	tickInterval time.Duration
}

// NewSession creates an idle import session for a user. The taxonomy is
// used to default and reset minor categories on the extracted items.
func NewSession(analyzer Analyzer, taxonomy core.Taxonomy, userID string, logger *slog.Logger) *Session {
	return &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		state:        StateIdle,
		analyzer:     analyzer,
		taxonomy:     taxonomy,
		logger:       logger,
		tickInterval: 200 * time.Millisecond,
	}
}

// State returns the current phase and progress percentage.
func (s *Session) Snapshot() (State, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.progress
}

// Items returns a copy of the current candidate items.
func (s *Session) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Analyze uploads the image and replaces the session's items with the
// extracted candidates. While the analysis runs the progress value
// advances in steps up to 90, then jumps to 100 on completion. A failed
// analysis returns the session to idle with no items.
func (s *Session) Analyze(ctx context.Context, filename string, image io.Reader) error {
	s.mu.Lock()
	if s.state == StateUploading || s.state == StateSubmitting {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = StateUploading
	s.progress = 0
	s.items = nil
	s.startProgressLocked()
	s.mu.Unlock()

	items, err := s.analyzer.AnalyzeReceipt(ctx, s.UserID, filename, image)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopProgressLocked()

	if err != nil {
		s.state = StateIdle
		s.progress = 0
		s.logger.ErrorContext(ctx, "receipt analysis failed",
			"import_id", s.ID, "error", err)
		return fmt.Errorf("analyze receipt: %w", err)
	}

	s.items = make([]Item, 0, len(items))
	for _, it := range items {
		item := Item{
			Description: it.Description,
			Amount:      it.Amount,
			Date:        it.Date,
			MajorID:     it.MajorID,
			MinorID:     it.MinorID,
		}
		if item.MinorID == "" {
			if minor, ok := s.taxonomy.FirstMinor(item.MajorID); ok {
				item.MinorID = minor.ID
			}
		}
		s.items = append(s.items, item)
	}
	s.state = StateReady
	s.progress = 100
	s.logger.InfoContext(ctx, "receipt analyzed",
		"import_id", s.ID, "items", len(s.items))
	return nil
}

// startProgressLocked advances progress by 10 per tick, capped at 90.
// The final jump to 100 happens only when the analysis completes.
func (s *Session) startProgressLocked() {
	stop := make(chan struct{})
	s.stopTick = stop
	go func() {
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.progress < 90 {
					s.progress += 10
				}
				s.mu.Unlock()
			}
		}
	}()
}

func (s *Session) stopProgressLocked() {
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
}

// Cancel discards the analyzed items and returns the session to idle.
// Cancelling an idle session is a no-op; a running analysis or submit
// cannot be cancelled.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUploading || s.state == StateSubmitting {
		return ErrBusy
	}
	s.state = StateIdle
	s.progress = 0
	s.items = nil
	s.logger.Info("receipt import cancelled", "import_id", s.ID)
	return nil
}

// EditItem overwrites the description, amount and date of one item.
func (s *Session) EditItem(index int, description string, amount core.Money, date core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return ErrNotReady
	}
	if index < 0 || index >= len(s.items) {
		return ErrItemNotFound
	}
	s.items[index].Description = description
	s.items[index].Amount = amount
	s.items[index].Date = date
	return nil
}

// SetMajorCategory switches an item's major category and resets its
// minor to the first minor of the new major. Selecting a minor that
// belongs to the previous major would be inconsistent.
func (s *Session) SetMajorCategory(index int, majorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return ErrNotReady
	}
	if index < 0 || index >= len(s.items) {
		return ErrItemNotFound
	}
	if _, ok := s.taxonomy.Major(majorID); !ok {
		return fmt.Errorf("major category %s: %w", majorID, core.ErrUnknownCategory)
	}
	s.items[index].MajorID = majorID
	s.items[index].MinorID = ""
	if minor, ok := s.taxonomy.FirstMinor(majorID); ok {
		s.items[index].MinorID = minor.ID
	}
	return nil
}

// SetMinorCategory selects a minor category within the item's current major.
func (s *Session) SetMinorCategory(index int, minorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return ErrNotReady
	}
	if index < 0 || index >= len(s.items) {
		return ErrItemNotFound
	}
	major, ok := s.taxonomy.Major(s.items[index].MajorID)
	if !ok {
		return fmt.Errorf("major category %s: %w", s.items[index].MajorID, core.ErrUnknownCategory)
	}
	for _, m := range major.Minors {
		if m.ID == minorID {
			s.items[index].MinorID = minorID
			return nil
		}
	}
	return fmt.Errorf("minor category %s: %w", minorID, core.ErrUnknownCategory)
}

// RemoveItem drops one candidate before submission.
func (s *Session) RemoveItem(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return ErrNotReady
	}
	if index < 0 || index >= len(s.items) {
		return ErrItemNotFound
	}
	s.items = append(s.items[:index], s.items[index+1:]...)
	return nil
}

// Submit creates one transaction per item, in order. On failure it stops
// at the failing item and returns a SubmitError; items created before the
// failure stay persisted. On success the session returns to idle.
func (s *Session) Submit(ctx context.Context, creator Creator) (int, error) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return 0, ErrNotReady
	}
	if len(s.items) == 0 {
		s.mu.Unlock()
		return 0, ErrNotReady
	}
	s.state = StateSubmitting
	items := make([]Item, len(s.items))
	copy(items, s.items)
	s.mu.Unlock()

	created := 0
	for i, item := range items {
		input := api.TransactionInput{
			Type:            core.Expense,
			MajorCategoryID: item.MajorID,
			MinorCategoryID: item.MinorID,
			Amount:          core.FlexAmount{Money: item.Amount},
			Description:     item.Description,
			TransactionDate: item.Date.Key(),
		}
		if _, err := creator.CreateTransaction(ctx, input); err != nil {
			s.mu.Lock()
			s.state = StateReady
			s.items = items[i:]
			s.mu.Unlock()
			s.logger.ErrorContext(ctx, "receipt submit failed",
				"import_id", s.ID, "item", i, "created", created, "error", err)
			return created, &SubmitError{
				Index:       i,
				Description: item.Description,
				Created:     created,
				Err:         err,
			}
		}
		created++
	}

	s.mu.Lock()
	s.state = StateIdle
	s.progress = 0
	s.items = nil
	s.mu.Unlock()
	s.logger.InfoContext(ctx, "receipt import submitted",
		"import_id", s.ID, "created", created)
	return created, nil
}
