package core

import "sort"

// DailyTransactions is a date-indexed view over a month's transactions.
// It is derived data: always rebuilt wholesale from the last fetched
// transaction list, never mutated on its own.
type DailyTransactions map[string][]Transaction

// GroupByDate partitions transactions into buckets keyed by their
// calendar date (yyyy-MM-dd), preserving input order within each bucket.
// Empty input yields an empty map.
func GroupByDate(txs []Transaction) DailyTransactions {
	grouped := make(DailyTransactions, len(txs))
	for _, t := range txs {
		key := t.Date.Key()
		grouped[key] = append(grouped[key], t)
	}
	return grouped
}

// Dates returns the bucket keys in ascending calendar order.
func (d DailyTransactions) Dates() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DayTotals returns the income and expense sums for one bucket.
func (d DailyTransactions) DayTotals(date string) (income, expense Money) {
	for _, t := range d[date] {
		switch t.Type {
		case Income:
			income.Cents += t.Amount.Cents
		case Expense:
			expense.Cents += t.Amount.Cents
		}
	}
	return income, expense
}
