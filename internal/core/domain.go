package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	// TransactionType is the canonical lower-case transaction kind.
	// Backend revisions disagree on casing; normalize with ParseTransactionType
	// at the decode boundary, never inside the aggregators.
	TransactionType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is a read-mostly copy of a backend ledger entry.
	// IDs are strings because the backend switched between numeric and
	// string identifiers across revisions.
	Transaction struct {
		ID          string
		Type        TransactionType
		Amount      Money
		Date        Date
		MajorID     string
		MajorName   string
		MinorID     string // optional
		MinorName   string
		Description string
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	MinorCategory struct {
		ID   string
		Name string
	}

	// MajorCategory is a top-level income/expense classification with an
	// ordered list of minor categories.
	MajorCategory struct {
		ID      string
		Name    string
		Type    TransactionType
		IsFixed bool
		Minors  []MinorCategory
	}

	// ReceiptItem is an unsaved transaction candidate extracted from a
	// receipt image. It carries no identifier until persisted.
	ReceiptItem struct {
		Description string
		Amount      Money
		Date        Date
		MajorID     string
		MinorID     string
	}
)

var (
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyMajor       = errors.New("empty major category")
	ErrUnknownCategory  = errors.New("category not in taxonomy")
	ErrEmptyDescription = errors.New("empty description")
)

// ParseTransactionType normalizes a backend type value. It tolerates any
// casing ("income", "INCOME", "Income") and surrounding whitespace.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Income):
		return Income, nil
	case string(Expense):
		return Expense, nil
	default:
		return "", ErrInvalidType
	}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a calendar date in yyyy-MM-dd form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// Key returns the yyyy-MM-dd form used as a grouping key.
func (d Date) Key() string {
	return d.Format("2006-01-02")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.MajorID) == "" {
		return ErrEmptyMajor
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (ri ReceiptItem) Validate() error {
	if err := ri.Amount.Validate(); err != nil {
		return err
	}
	if err := ri.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(ri.MajorID) == "" {
		return ErrEmptyMajor
	}
	return nil
}

// Taxonomy is the two-level category tree for one user.
type Taxonomy []MajorCategory

// ByType returns the majors matching the given transaction type,
// preserving backend order.
func (tx Taxonomy) ByType(t TransactionType) []MajorCategory {
	var out []MajorCategory
	for _, m := range tx {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// Major looks up a major category by id.
func (tx Taxonomy) Major(id string) (MajorCategory, bool) {
	for _, m := range tx {
		if m.ID == id {
			return m, true
		}
	}
	return MajorCategory{}, false
}

// FirstMinor returns the first minor category under the given major,
// or false when the major has none.
func (tx Taxonomy) FirstMinor(majorID string) (MinorCategory, bool) {
	m, ok := tx.Major(majorID)
	if !ok || len(m.Minors) == 0 {
		return MinorCategory{}, false
	}
	return m.Minors[0], true
}

// Resolve checks that a transaction's category ids exist in the taxonomy
// and that the major's type matches the transaction's type.
func (tx Taxonomy) Resolve(t Transaction) error {
	m, ok := tx.Major(t.MajorID)
	if !ok || m.Type != t.Type {
		return ErrUnknownCategory
	}
	if t.MinorID == "" {
		return nil
	}
	for _, mc := range m.Minors {
		if mc.ID == t.MinorID {
			return nil
		}
	}
	return ErrUnknownCategory
}
