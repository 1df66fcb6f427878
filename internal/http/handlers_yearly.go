package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
)

type monthPointRow struct {
	Label        string
	Income       string
	Expense      string
	IncomeWidth  int
	ExpenseWidth int
}

type yearlyView struct {
	Year  int
	Stale bool

	PrevYear int
	NextYear int

	TotalIncome  string
	TotalExpense string
	Net          string
	SavingsRate  float64

	Months            []monthPointRow
	IncomeByCategory  []categoryRow
	ExpenseByCategory []categoryRow
}

// handleYearlyOverview renders the year analytics partial.
func (s *Server) handleYearlyOverview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	year := time.Now().Year()
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil && y >= 1 && y <= 9999 {
			year = y
		}
	}

	summary, stale, err := s.getYearly(r.Context(), year)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "yearly overview load failed",
			log.FieldYear, year, log.FieldError, err)
		_, _ = w.Write([]byte(`<section id="yearly-overview" class="yearly-overview"><div class="placeholder">データを読み込めませんでした</div></section>`))
		return
	}

	report, err := core.BuildYearlyReport(summary)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "yearly summary malformed",
			log.FieldYear, year, log.FieldError, err)
		_, _ = w.Write([]byte(`<section id="yearly-overview" class="yearly-overview"><div class="placeholder">年間データが不正です</div></section>`))
		return
	}

	data := buildYearlyView(report, stale)

	if s.templates == nil {
		_, _ = w.Write([]byte(`<section id="yearly-overview" class="yearly-overview"><div class="placeholder">年間支出: ` + data.TotalExpense + `</div></section>`))
		return
	}
	if err := s.templates.ExecuteTemplate(w, "yearly_overview.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "yearly template failed", log.FieldError, err)
		_, _ = w.Write([]byte(`<section id="yearly-overview" class="yearly-overview"><div class="placeholder">表示エラー</div></section>`))
	}
}

func buildYearlyView(report core.YearlyReport, stale bool) yearlyView {
	data := yearlyView{
		Year:  report.Year,
		Stale: stale,

		PrevYear: report.Year - 1,
		NextYear: report.Year + 1,

		TotalIncome:  formatYen(report.TotalIncome),
		TotalExpense: formatYen(report.TotalExpense),
		Net:          formatYen(core.Money{Cents: report.TotalIncome.Cents - report.TotalExpense.Cents}),
		SavingsRate:  report.SavingsRate,
	}

	var maxCents int64
	for _, p := range report.Months {
		if p.Income.Cents > maxCents {
			maxCents = p.Income.Cents
		}
		if p.Expense.Cents > maxCents {
			maxCents = p.Expense.Cents
		}
	}
	for _, p := range report.Months {
		data.Months = append(data.Months, monthPointRow{
			Label:        p.Label,
			Income:       formatYen(p.Income),
			Expense:      formatYen(p.Expense),
			IncomeWidth:  barWidth(p.Income.Cents, maxCents),
			ExpenseWidth: barWidth(p.Expense.Cents, maxCents),
		})
	}

	data.IncomeByCategory = categoryRows(report.IncomeByCategory)
	data.ExpenseByCategory = categoryRows(report.ExpenseByCategory)
	return data
}

func categoryRows(cats []core.CategoryAmount) []categoryRow {
	var maxCents int64
	for _, cat := range cats {
		if cat.Amount.Cents > maxCents {
			maxCents = cat.Amount.Cents
		}
	}
	var rows []categoryRow
	for _, cat := range cats {
		rows = append(rows, categoryRow{
			Name:   cat.Name,
			Amount: formatYen(cat.Amount),
			Width:  barWidth(cat.Amount.Cents, maxCents),
		})
	}
	return rows
}

func barWidth(cents, maxCents int64) int {
	if maxCents <= 0 || cents <= 0 {
		return 0
	}
	width := int((cents*100 + maxCents/2) / maxCents)
	if width < 2 {
		width = 2
	}
	if width > 100 {
		width = 100
	}
	return width
}
