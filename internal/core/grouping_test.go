package core

import (
	"reflect"
	"testing"
)

func TestGroupByDateLossless(t *testing.T) {
	txs := []Transaction{
		{ID: "1", Type: Expense, Amount: Money{Cents: 100000}, Date: NewDate(2024, 2, 1)},
		{ID: "2", Type: Income, Amount: Money{Cents: 500000}, Date: NewDate(2024, 2, 1)},
		{ID: "3", Type: Expense, Amount: Money{Cents: 50000}, Date: NewDate(2024, 2, 5)},
	}
	grouped := GroupByDate(txs)

	if len(grouped) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(grouped))
	}

	// Union of buckets equals the input, with order preserved per bucket
	total := 0
	for _, bucket := range grouped {
		total += len(bucket)
	}
	if total != len(txs) {
		t.Fatalf("expected %d transactions across buckets, got %d", len(txs), total)
	}
	day1 := grouped["2024-02-01"]
	if len(day1) != 2 || day1[0].ID != "1" || day1[1].ID != "2" {
		t.Fatalf("bucket order not preserved: %+v", day1)
	}
}

func TestGroupByDateIdempotent(t *testing.T) {
	txs := []Transaction{
		{ID: "1", Date: NewDate(2024, 2, 1)},
		{ID: "2", Date: NewDate(2024, 2, 2)},
	}
	first := GroupByDate(txs)
	second := GroupByDate(txs)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("grouping is not stable under re-invocation")
	}
}

func TestGroupByDateEmpty(t *testing.T) {
	grouped := GroupByDate(nil)
	if len(grouped) != 0 {
		t.Fatalf("expected empty mapping, got %d buckets", len(grouped))
	}
}

func TestDailyTransactionsDates(t *testing.T) {
	grouped := GroupByDate([]Transaction{
		{ID: "1", Date: NewDate(2024, 2, 15)},
		{ID: "2", Date: NewDate(2024, 2, 1)},
		{ID: "3", Date: NewDate(2024, 2, 28)},
	})
	dates := grouped.Dates()
	want := []string{"2024-02-01", "2024-02-15", "2024-02-28"}
	if !reflect.DeepEqual(dates, want) {
		t.Fatalf("expected %v, got %v", want, dates)
	}
}

func TestDayTotals(t *testing.T) {
	grouped := GroupByDate([]Transaction{
		{Type: Income, Amount: Money{Cents: 45000000}, Date: NewDate(2024, 2, 1)},
		{Type: Expense, Amount: Money{Cents: 800000}, Date: NewDate(2024, 2, 1)},
	})
	income, expense := grouped.DayTotals("2024-02-01")
	if income.Cents != 45000000 || expense.Cents != 800000 {
		t.Fatalf("unexpected totals: income=%d expense=%d", income.Cents, expense.Cents)
	}
	income, expense = grouped.DayTotals("2024-02-02")
	if income.Cents != 0 || expense.Cents != 0 {
		t.Fatal("missing date should yield zero totals")
	}
}
