package api

import (
	"fmt"
	"strings"
	"time"

	"kakeibo/internal/core"
)

// flexID decodes an identifier that older backend revisions send as a
// JSON number and newer ones as a string. A JSON null becomes empty.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	*f = flexID(s)
	return nil
}

func (f flexID) String() string { return string(f) }

type transactionDTO struct {
	ID                flexID          `json:"id"`
	Type              string          `json:"type"`
	Amount            core.FlexAmount `json:"amount"`
	TransactionDate   string          `json:"transaction_date"`
	MajorCategoryID   flexID          `json:"major_category_id"`
	MajorCategoryName string          `json:"major_category_name"`
	MinorCategoryID   flexID          `json:"minor_category_id"`
	MinorCategoryName string          `json:"minor_category_name"`
	Description       string          `json:"description"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
}

func (d transactionDTO) toDomain() (core.Transaction, error) {
	typ, err := core.ParseTransactionType(d.Type)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("type %q: %w", d.Type, err)
	}
	date, err := core.ParseDate(d.TransactionDate)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("date %q: %w", d.TransactionDate, err)
	}
	return core.Transaction{
		ID:          d.ID.String(),
		Type:        typ,
		Amount:      d.Amount.Money,
		Date:        date,
		MajorID:     d.MajorCategoryID.String(),
		MajorName:   d.MajorCategoryName,
		MinorID:     d.MinorCategoryID.String(),
		MinorName:   d.MinorCategoryName,
		Description: d.Description,
		CreatedAt:   parseTimestamp(d.CreatedAt),
		UpdatedAt:   parseTimestamp(d.UpdatedAt),
	}, nil
}

type minorCategoryDTO struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
}

type majorCategoryDTO struct {
	ID              flexID             `json:"id"`
	Name            string             `json:"name"`
	Type            string             `json:"type"`
	IsFixed         bool               `json:"is_fixed"`
	MinorCategories []minorCategoryDTO `json:"minor_categories"`
}

func (d majorCategoryDTO) toDomain() (core.MajorCategory, error) {
	typ, err := core.ParseTransactionType(d.Type)
	if err != nil {
		return core.MajorCategory{}, fmt.Errorf("type %q: %w", d.Type, err)
	}
	minors := make([]core.MinorCategory, 0, len(d.MinorCategories))
	for _, mc := range d.MinorCategories {
		minors = append(minors, core.MinorCategory{ID: mc.ID.String(), Name: mc.Name})
	}
	return core.MajorCategory{
		ID:      d.ID.String(),
		Name:    d.Name,
		Type:    typ,
		IsFixed: d.IsFixed,
		Minors:  minors,
	}, nil
}

type receiptItemDTO struct {
	Description     string          `json:"description"`
	Amount          core.FlexAmount `json:"amount"`
	TransactionDate string          `json:"transaction_date"`
	MajorCategoryID flexID          `json:"major_category_id"`
	MinorCategoryID flexID          `json:"minor_category_id"`
}

func (d receiptItemDTO) toDomain() (core.ReceiptItem, error) {
	date, err := core.ParseDate(d.TransactionDate)
	if err != nil {
		return core.ReceiptItem{}, fmt.Errorf("date %q: %w", d.TransactionDate, err)
	}
	return core.ReceiptItem{
		Description: d.Description,
		Amount:      d.Amount.Money,
		Date:        date,
		MajorID:     d.MajorCategoryID.String(),
		MinorID:     d.MinorCategoryID.String(),
	}, nil
}

// parseTimestamp handles the informational created_at/updated_at fields.
// They are display-only, so a malformed value degrades to zero time.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
