package core

import "time"

// CategoryAmount is an amount aggregated under one category.
type CategoryAmount struct {
	ID     string
	Name   string
	Amount Money
}

// MonthlyReport holds the derived metrics for one calendar month.
// The zero TopExpenseCategory (empty name, zero amount) is the sentinel
// for a month without expense transactions.
type MonthlyReport struct {
	Year  int
	Month int // 1-12

	TotalIncome  Money
	TotalExpense Money

	// Period-over-period change in percent, 0 when the previous month
	// had no matching total.
	IncomeChangeRate  float64
	ExpenseChangeRate float64

	// Average expense over the calendar length of the month, not over
	// the number of transaction-bearing days.
	DailyAvgExpense Money

	ExpenseByCategory  []CategoryAmount
	TopExpenseCategory CategoryAmount
}

// ChangeRate computes (current-previous)/previous*100. A previous total
// of zero yields 0 by policy: there is no meaningful base for a rate.
func ChangeRate(current, previous Money) float64 {
	if previous.Cents == 0 {
		return 0
	}
	return float64(current.Cents-previous.Cents) / float64(previous.Cents) * 100
}

// DaysInMonth returns the calendar length of the given month.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// BuildMonthlyReport computes the monthly metrics for current, with
// previous used only for the change rates. The caller is responsible for
// both lists actually belonging to their respective months.
func BuildMonthlyReport(year, month int, current, previous []Transaction) MonthlyReport {
	r := MonthlyReport{Year: year, Month: month}

	byCat := make(map[string]int)
	for _, t := range current {
		switch t.Type {
		case Income:
			r.TotalIncome.Cents += t.Amount.Cents
		case Expense:
			r.TotalExpense.Cents += t.Amount.Cents
			idx, seen := byCat[t.MajorID]
			if !seen {
				idx = len(r.ExpenseByCategory)
				byCat[t.MajorID] = idx
				r.ExpenseByCategory = append(r.ExpenseByCategory, CategoryAmount{
					ID:   t.MajorID,
					Name: t.MajorName,
				})
			}
			r.ExpenseByCategory[idx].Amount.Cents += t.Amount.Cents
		}
	}

	var prevIncome, prevExpense Money
	for _, t := range previous {
		switch t.Type {
		case Income:
			prevIncome.Cents += t.Amount.Cents
		case Expense:
			prevExpense.Cents += t.Amount.Cents
		}
	}
	r.IncomeChangeRate = ChangeRate(r.TotalIncome, prevIncome)
	r.ExpenseChangeRate = ChangeRate(r.TotalExpense, prevExpense)

	days := int64(DaysInMonth(year, month))
	if days > 0 {
		// Half-up rounding on the division
		r.DailyAvgExpense = Money{Cents: (r.TotalExpense.Cents + days/2) / days}
	}

	// Ties keep the first-encountered category; the order is stable but
	// not numerically significant.
	for _, ca := range r.ExpenseByCategory {
		if ca.Amount.Cents > r.TopExpenseCategory.Amount.Cents {
			r.TopExpenseCategory = ca
		}
	}

	return r
}
