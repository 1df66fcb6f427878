// Package core provides the domain types and aggregation logic for the
// dashboard.
//
// This file contains money parsing and conversion helpers. The backend
// transmits amounts as either JSON numbers or decimal strings depending on
// its revision; everything is coerced to integer cents exactly once at the
// decode boundary.
package core

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// ParseAmountToCents converts a decimal string to cents with half-up
// rounding on the third decimal place.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, an
// optional leading minus, and zero. Positivity is a validation concern
// (Money.Validate), not a parsing one.
//
// Examples:
//
//	ParseAmountToCents("82000")  -> 8200000, nil
//	ParseAmountToCents("12,34")  -> 1234, nil
//	ParseAmountToCents("12.346") -> 1235, nil (rounds up)
func ParseAmountToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	if intPart == "0" && fracPart == "" && len(parts) == 2 {
		return 0, ErrInvalidAmount
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits; then half-up rounding on third
	var fracCents int64
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if neg {
		cents = -cents
	}
	return cents, nil
}

// FlexAmount decodes a JSON amount field that may arrive as a number
// (8000) or a decimal string ("8000" or "8000.50"). It marshals back as a
// plain number, the shape the backend's mutation endpoints accept.
type FlexAmount struct {
	Money
}

func (a *FlexAmount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	cents, err := ParseAmountToCents(s)
	if err != nil {
		return err
	}
	a.Cents = cents
	return nil
}

func (a FlexAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(json.Number(formatUnits(a.Cents)))
}

// Units returns the amount in whole currency units as a float64 for
// display purposes. Use cents for calculations.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}

// RoundedUnits returns the amount rounded half-up to whole currency
// units. The yen-denominated views display whole units only.
func (m Money) RoundedUnits() int64 {
	neg := m.Cents < 0
	c := m.Cents
	if neg {
		c = -c
	}
	u := (c + 50) / 100
	if neg {
		return -u
	}
	return u
}

// formatUnits renders cents as a minimal decimal string ("8000" or "12.34").
func formatUnits(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := strconv.FormatInt(cents/100, 10)
	if rem := cents % 100; rem != 0 {
		s += "." + padTwo(rem)
	}
	if neg {
		return "-" + s
	}
	return s
}

func padTwo(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	s := strconv.FormatInt(n, 10)
	// Trim a trailing zero so 12.50 renders as 12.5
	return strings.TrimSuffix(s, "0")
}
