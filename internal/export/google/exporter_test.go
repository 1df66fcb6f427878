package google

import (
	"testing"

	"kakeibo/internal/core"
)

func TestReportRows(t *testing.T) {
	report := core.MonthlyReport{
		Year: 2024, Month: 2,
		TotalIncome:       core.Money{Cents: 50000000},
		TotalExpense:      core.Money{Cents: 15000000},
		ExpenseChangeRate: 25,
		DailyAvgExpense:   core.Money{Cents: 517241},
		ExpenseByCategory: []core.CategoryAmount{
			{ID: "1", Name: "食費", Amount: core.Money{Cents: 8000000}},
			{ID: "2", Name: "日用品", Amount: core.Money{Cents: 7000000}},
		},
	}

	rows := reportRows(report)
	if len(rows) != 7 {
		t.Fatalf("expected 5 metric rows plus 2 category rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row[0] != "2024-02" {
			t.Fatalf("row %d: every row carries the month label, got %v", i, row[0])
		}
	}
	if rows[0][1] != "total_income" || rows[0][2] != int64(500000) {
		t.Fatalf("unexpected income row: %v", rows[0])
	}
	if rows[5][1] != "category" || rows[5][3] != "食費" {
		t.Fatalf("category rows should preserve report order: %v", rows[5])
	}
}
