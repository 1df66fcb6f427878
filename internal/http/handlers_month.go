package http

import (
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
)

type categoryRow struct {
	Name   string
	Amount string
	Width  int
}

type dayCell struct {
	Day     int
	DateKey string
	InMonth bool
	Income  string
	Expense string
	HasTx   bool
}

type txRow struct {
	ID          string
	DateKey     string
	Day         int
	Type        core.TransactionType
	Description string
	Major       string
	Minor       string
	Amount      string
}

type monthView struct {
	Year  int
	Month int
	View  string
	Stale bool

	PrevYear  int
	PrevMonth int
	NextYear  int
	NextMonth int

	TotalIncome   string
	TotalExpense  string
	Net           string
	IncomeChange  float64
	ExpenseChange float64
	DailyAvg      string
	TopCategory   string
	TopAmount     string

	Categories []categoryRow
	Weeks      [][]dayCell
	Rows       []txRow
}

// handleMonthOverview renders the calendar or table partial for one
// month, with derived metrics against the previous month.
func (s *Server) handleMonthOverview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	params := ParseMonthParams(r.URL.Query())
	view := r.URL.Query().Get("view")
	if view != "table" {
		view = "calendar"
	}

	prevYear, prevMonth := params.Year, params.Month-1
	if prevMonth == 0 {
		prevYear, prevMonth = params.Year-1, 12
	}

	var (
		current, previous []core.Transaction
		stale             bool
	)
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		current, stale, err = s.getMonth(gctx, params.Year, params.Month)
		return err
	})
	g.Go(func() error {
		// Comparison month is best effort; without it change rates are 0.
		prev, _, err := s.getMonth(gctx, prevYear, prevMonth)
		if err != nil {
			s.logger.WarnContext(gctx, "previous month unavailable",
				log.FieldYear, prevYear, log.FieldMonth, prevMonth, log.FieldError, err)
			return nil
		}
		previous = prev
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(r.Context(), "month overview load failed",
			log.FieldYear, params.Year, log.FieldMonth, params.Month, log.FieldError, err)
		_, _ = w.Write([]byte(`<section id="month-overview" class="month-overview"><div class="placeholder">データを読み込めませんでした</div></section>`))
		return
	}

	report := core.BuildMonthlyReport(params.Year, params.Month, current, previous)
	data := buildMonthView(report, current, view, stale)

	if s.templates == nil {
		_, _ = w.Write([]byte(`<section id="month-overview" class="month-overview"><div class="placeholder">支出合計: ` + data.TotalExpense + `</div></section>`))
		return
	}
	if err := s.templates.ExecuteTemplate(w, "month_overview.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "month overview template failed", log.FieldError, err)
		_, _ = w.Write([]byte(`<section id="month-overview" class="month-overview"><div class="placeholder">表示エラー</div></section>`))
	}
}

func buildMonthView(report core.MonthlyReport, txs []core.Transaction, view string, stale bool) monthView {
	nextYear, nextMonth := report.Year, report.Month+1
	if nextMonth == 13 {
		nextYear, nextMonth = report.Year+1, 1
	}
	prevYear, prevMonth := report.Year, report.Month-1
	if prevMonth == 0 {
		prevYear, prevMonth = report.Year-1, 12
	}

	data := monthView{
		Year:  report.Year,
		Month: report.Month,
		View:  view,
		Stale: stale,

		PrevYear:  prevYear,
		PrevMonth: prevMonth,
		NextYear:  nextYear,
		NextMonth: nextMonth,

		TotalIncome:   formatYen(report.TotalIncome),
		TotalExpense:  formatYen(report.TotalExpense),
		Net:           formatYen(core.Money{Cents: report.TotalIncome.Cents - report.TotalExpense.Cents}),
		IncomeChange:  report.IncomeChangeRate,
		ExpenseChange: report.ExpenseChangeRate,
		DailyAvg:      formatYen(report.DailyAvgExpense),
	}
	if report.TopExpenseCategory.ID != "" {
		data.TopCategory = report.TopExpenseCategory.Name
		data.TopAmount = formatYen(report.TopExpenseCategory.Amount)
	}

	var maxCents int64
	for _, cat := range report.ExpenseByCategory {
		if cat.Amount.Cents > maxCents {
			maxCents = cat.Amount.Cents
		}
	}
	for _, cat := range report.ExpenseByCategory {
		width := 0
		if maxCents > 0 && cat.Amount.Cents > 0 {
			width = int((cat.Amount.Cents*100 + maxCents/2) / maxCents)
			if width < 2 {
				width = 2
			}
			if width > 100 {
				width = 100
			}
		}
		data.Categories = append(data.Categories, categoryRow{
			Name:   cat.Name,
			Amount: formatYen(cat.Amount),
			Width:  width,
		})
	}

	byDate := core.GroupByDate(txs)
	if view == "calendar" {
		data.Weeks = buildCalendar(report.Year, report.Month, byDate)
	} else {
		data.Rows = buildTableRows(byDate)
	}
	return data
}

// buildCalendar lays the month out in Sunday-first weeks, padding the
// edges with adjacent-month days.
func buildCalendar(year, month int, byDate core.DailyTransactions) [][]dayCell {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	start := first.AddDate(0, 0, -int(first.Weekday()))

	var weeks [][]dayCell
	day := start
	for {
		week := make([]dayCell, 0, 7)
		for i := 0; i < 7; i++ {
			cell := dayCell{
				Day:     day.Day(),
				DateKey: day.Format("2006-01-02"),
				InMonth: int(day.Month()) == month && day.Year() == year,
			}
			if cell.InMonth {
				if dayTxs, ok := byDate[cell.DateKey]; ok && len(dayTxs) > 0 {
					income, expense := byDate.DayTotals(cell.DateKey)
					cell.HasTx = true
					if income.Cents > 0 {
						cell.Income = formatYen(income)
					}
					if expense.Cents > 0 {
						cell.Expense = formatYen(expense)
					}
				}
			}
			week = append(week, cell)
			day = day.AddDate(0, 0, 1)
		}
		weeks = append(weeks, week)
		if int(day.Month()) != month && day.Day() <= 7 && len(weeks) >= 4 {
			break
		}
	}
	return weeks
}

func buildTableRows(byDate core.DailyTransactions) []txRow {
	dates := byDate.Dates()
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	var rows []txRow
	for _, date := range dates {
		for _, t := range byDate[date] {
			rows = append(rows, txRow{
				ID:          t.ID,
				DateKey:     date,
				Day:         t.Date.Day(),
				Type:        t.Type,
				Description: t.Description,
				Major:       t.MajorName,
				Minor:       t.MinorName,
				Amount:      formatYen(t.Amount),
			})
		}
	}
	return rows
}
