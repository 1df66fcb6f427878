package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kakeibo/internal/core"
)

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters,
// falling back to the current month for missing or out-of-range values.
func ParseMonthParams(query url.Values) MonthParams {
	now := time.Now()
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil && y >= 1 && y <= 9999 {
			params.Year = y
		}
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 1 && m <= 12 {
			params.Month = m
		}
	}

	return params
}

// parseDateParam parses a YYYY-MM-DD query value, defaulting to today.
func parseDateParam(query url.Values) core.Date {
	if v := strings.TrimSpace(query.Get("date")); v != "" {
		if d, err := core.ParseDate(v); err == nil {
			return d
		}
	}
	now := time.Now()
	return core.NewDate(now.Year(), int(now.Month()), now.Day())
}

// formatYen renders whole-yen amounts with thousands separators.
func formatYen(m core.Money) string {
	units := m.RoundedUnits()
	neg := units < 0
	if neg {
		units = -units
	}
	digits := strconv.FormatInt(units, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-¥" + b.String()
	}
	return "¥" + b.String()
}

// sanitizeInput trims whitespace and strips control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// ParseFormOrFail parses the request form, returning an error response
// on failure and nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("リクエストの形式が正しくありません")
	}
	return nil
}
