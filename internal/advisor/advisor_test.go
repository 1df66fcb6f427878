package advisor

import (
	"strings"
	"testing"

	"kakeibo/internal/core"
)

func TestAdviseFiresOnEachThreshold(t *testing.T) {
	report := core.MonthlyReport{
		Year: 2024, Month: 2,
		TotalIncome:       core.Money{Cents: 50000000},
		TotalExpense:      core.Money{Cents: 45000000},
		ExpenseChangeRate: 15,
		TopExpenseCategory: core.CategoryAmount{
			ID: "1", Name: "食費", Amount: core.Money{Cents: 20000000},
		},
	}

	insights := Advise(report, DefaultThresholds())
	if len(insights) != 3 {
		t.Fatalf("expected 3 insights, got %d: %+v", len(insights), insights)
	}

	// Growth over 10%, 食費 at 44% of expenses, savings rate 10% under the 20% target.
	if insights[0].Severity != SeverityWarning || !strings.Contains(insights[0].Message, "15.0%") {
		t.Errorf("unexpected growth insight: %+v", insights[0])
	}
	if !strings.Contains(insights[1].Message, "食費") || !strings.Contains(insights[1].Message, "44%") {
		t.Errorf("unexpected imbalance insight: %+v", insights[1])
	}
	if insights[2].Severity != SeverityInfo || !strings.Contains(insights[2].Message, "10.0%") {
		t.Errorf("unexpected savings insight: %+v", insights[2])
	}
}

func TestAdviseQuietMonth(t *testing.T) {
	report := core.MonthlyReport{
		Year: 2024, Month: 2,
		TotalIncome:       core.Money{Cents: 50000000},
		TotalExpense:      core.Money{Cents: 30000000},
		ExpenseChangeRate: 5,
		TopExpenseCategory: core.CategoryAmount{
			ID: "1", Name: "食費", Amount: core.Money{Cents: 10000000},
		},
	}

	if insights := Advise(report, DefaultThresholds()); len(insights) != 0 {
		t.Fatalf("a healthy month should yield no advice, got %+v", insights)
	}
}

func TestAdviseNoExpenses(t *testing.T) {
	report := core.MonthlyReport{
		Year: 2024, Month: 2,
		TotalIncome: core.Money{Cents: 50000000},
	}
	if insights := Advise(report, DefaultThresholds()); len(insights) != 0 {
		t.Fatalf("no expenses should yield no advice, got %+v", insights)
	}
}

func TestAdviseNoIncomeSkipsSavings(t *testing.T) {
	report := core.MonthlyReport{
		Year: 2024, Month: 2,
		TotalExpense: core.Money{Cents: 10000000},
		TopExpenseCategory: core.CategoryAmount{
			ID: "1", Name: "食費", Amount: core.Money{Cents: 1000000},
		},
	}

	for _, in := range Advise(report, DefaultThresholds()) {
		if strings.Contains(in.Message, "貯蓄率") {
			t.Fatalf("savings advice without income: %+v", in)
		}
	}
}
