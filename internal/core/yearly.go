package core

import (
	"fmt"
	"strconv"
)

// YearlySummary mirrors the backend's precomputed yearly aggregate
// (GET /transactions/summary/{userId}/{year}). Amounts arrive as decimal
// strings and are parsed here, once.
type YearlySummary struct {
	Year   int            `json:"year"`
	Months []MonthSummary `json:"monthly_summaries"`
}

// MonthSummary is one backend-aggregated month inside a YearlySummary.
type MonthSummary struct {
	Month             int              `json:"month"`
	TotalIncome       string           `json:"total_income"`
	TotalExpense      string           `json:"total_expense"`
	IncomeByCategory  []CategorySubSum `json:"income_by_category"`
	ExpenseByCategory []CategorySubSum `json:"expense_by_category"`
}

// CategorySubSum is a per-category subtotal within one month. The payload
// carries the category name only, no id.
type CategorySubSum struct {
	Name   string `json:"category_name"`
	Amount string `json:"amount"`
}

// MonthPoint is one point of the yearly income/expense time series.
type MonthPoint struct {
	Month   int
	Label   string
	Income  Money
	Expense Money
}

// YearlyReport holds the derived yearly metrics.
type YearlyReport struct {
	Year   int
	Months []MonthPoint

	// Per-category subtotals merged across all months, keyed by category
	// name because the summary payload carries no ids. Entries keep
	// first-encountered order.
	IncomeByCategory  []CategoryAmount
	ExpenseByCategory []CategoryAmount

	TotalIncome  Money
	TotalExpense Money

	// SavingsRate is (income-expense)/income*100, 0 when income is 0.
	SavingsRate float64
}

// MonthLabel renders a month number as its series label.
func MonthLabel(month int) string {
	return strconv.Itoa(month) + "月"
}

// SavingsRate computes the yearly savings rate in percent. A yearly
// income of zero yields 0 regardless of expense.
func SavingsRate(income, expense Money) float64 {
	if income.Cents == 0 {
		return 0
	}
	return float64(income.Cents-expense.Cents) / float64(income.Cents) * 100
}

// BuildYearlyReport parses a backend yearly summary into the derived
// yearly metrics. It fails on the first malformed amount instead of
// silently skipping it.
func BuildYearlyReport(summary YearlySummary) (YearlyReport, error) {
	r := YearlyReport{Year: summary.Year}

	incomeIdx := make(map[string]int)
	expenseIdx := make(map[string]int)

	for _, ms := range summary.Months {
		income, err := ParseAmountToCents(ms.TotalIncome)
		if err != nil {
			return YearlyReport{}, fmt.Errorf("month %d total income %q: %w", ms.Month, ms.TotalIncome, err)
		}
		expense, err := ParseAmountToCents(ms.TotalExpense)
		if err != nil {
			return YearlyReport{}, fmt.Errorf("month %d total expense %q: %w", ms.Month, ms.TotalExpense, err)
		}

		r.Months = append(r.Months, MonthPoint{
			Month:   ms.Month,
			Label:   MonthLabel(ms.Month),
			Income:  Money{Cents: income},
			Expense: Money{Cents: expense},
		})
		r.TotalIncome.Cents += income
		r.TotalExpense.Cents += expense

		if err := mergeSubSums(&r.IncomeByCategory, incomeIdx, ms.Month, ms.IncomeByCategory); err != nil {
			return YearlyReport{}, err
		}
		if err := mergeSubSums(&r.ExpenseByCategory, expenseIdx, ms.Month, ms.ExpenseByCategory); err != nil {
			return YearlyReport{}, err
		}
	}

	r.SavingsRate = SavingsRate(r.TotalIncome, r.TotalExpense)
	return r, nil
}

func mergeSubSums(merged *[]CategoryAmount, index map[string]int, month int, subs []CategorySubSum) error {
	for _, sub := range subs {
		cents, err := ParseAmountToCents(sub.Amount)
		if err != nil {
			return fmt.Errorf("month %d category %q amount %q: %w", month, sub.Name, sub.Amount, err)
		}
		idx, seen := index[sub.Name]
		if !seen {
			idx = len(*merged)
			index[sub.Name] = idx
			*merged = append(*merged, CategoryAmount{Name: sub.Name})
		}
		(*merged)[idx].Amount.Cents += cents
	}
	return nil
}
