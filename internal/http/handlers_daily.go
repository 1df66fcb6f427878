package http

import (
	"net/http"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
)

type dailyView struct {
	DateKey      string
	Stale        bool
	TotalIncome  string
	TotalExpense string
	Rows         []txRow
}

// handleDaily renders the transaction list for one day.
func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	date := parseDateParam(r.URL.Query())
	year, month := date.Year(), int(date.Month())

	txs, stale, err := s.getMonth(r.Context(), year, month)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "daily view load failed",
			"date", date.Key(), log.FieldError, err)
		_, _ = w.Write([]byte(`<section id="daily" class="daily"><div class="placeholder">データを読み込めませんでした</div></section>`))
		return
	}

	byDate := core.GroupByDate(txs)
	income, expense := byDate.DayTotals(date.Key())

	data := dailyView{
		DateKey:      date.Key(),
		Stale:        stale,
		TotalIncome:  formatYen(income),
		TotalExpense: formatYen(expense),
	}
	for _, t := range byDate[date.Key()] {
		data.Rows = append(data.Rows, txRow{
			ID:          t.ID,
			DateKey:     date.Key(),
			Day:         t.Date.Day(),
			Type:        t.Type,
			Description: t.Description,
			Major:       t.MajorName,
			Minor:       t.MinorName,
			Amount:      formatYen(t.Amount),
		})
	}

	if s.templates == nil {
		_, _ = w.Write([]byte(`<section id="daily" class="daily"><div class="placeholder">` + data.DateKey + `</div></section>`))
		return
	}
	if err := s.templates.ExecuteTemplate(w, "daily.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "daily template failed", log.FieldError, err)
		_, _ = w.Write([]byte(`<section id="daily" class="daily"><div class="placeholder">表示エラー</div></section>`))
	}
}
