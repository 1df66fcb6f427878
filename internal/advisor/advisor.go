// Package advisor turns monthly reports into spending advice. It runs in
// the background worker, triggered by ledger events.
package advisor

import (
	"fmt"

	"kakeibo/internal/core"
)

// Severity orders insights for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Insight is one piece of advice derived from a monthly report.
type Insight struct {
	Severity Severity
	Message  string
}

// Thresholds tune when advice fires. Percentages.
type Thresholds struct {
	MonthlyIncrease   float64 // expense growth vs previous month
	CategoryImbalance float64 // single category's share of total expense
	SavingsTarget     float64 // desired savings rate
}

// DefaultThresholds matches the dashboard's advice defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MonthlyIncrease:   10,
		CategoryImbalance: 40,
		SavingsTarget:     20,
	}
}

// Advise inspects a monthly report and returns the insights that apply.
// A month with no expenses yields no advice.
func Advise(report core.MonthlyReport, th Thresholds) []Insight {
	var insights []Insight

	if report.TotalExpense.Cents == 0 {
		return insights
	}

	if report.ExpenseChangeRate > th.MonthlyIncrease {
		insights = append(insights, Insight{
			Severity: SeverityWarning,
			Message: fmt.Sprintf("支出が先月より%.1f%%増えています",
				report.ExpenseChangeRate),
		})
	}

	if top := report.TopExpenseCategory; top.ID != "" {
		share := float64(top.Amount.Cents) / float64(report.TotalExpense.Cents) * 100
		if share > th.CategoryImbalance {
			insights = append(insights, Insight{
				Severity: SeverityWarning,
				Message: fmt.Sprintf("「%s」が支出の%.0f%%を占めています",
					top.Name, share),
			})
		}
	}

	if report.TotalIncome.Cents > 0 {
		saved := report.TotalIncome.Cents - report.TotalExpense.Cents
		rate := float64(saved) / float64(report.TotalIncome.Cents) * 100
		if rate < th.SavingsTarget {
			insights = append(insights, Insight{
				Severity: SeverityInfo,
				Message: fmt.Sprintf("貯蓄率が%.1f%%です。目標は%.0f%%です",
					rate, th.SavingsTarget),
			})
		}
	}

	return insights
}
