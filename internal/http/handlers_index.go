package http

import (
	"net/http"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
)

type indexView struct {
	Year           int
	Month          int
	Today          string
	ExpenseMajors  []core.MajorCategory
	IncomeMajors   []core.MajorCategory
	TaxonomyStale  bool
	TaxonomyFailed bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	data := indexView{
		Year:  now.Year(),
		Month: int(now.Month()),
		Today: now.Format("2006-01-02"),
	}

	// The page shell still renders when the taxonomy is unreachable;
	// the forms are just empty.
	tax, stale, err := s.getTaxonomy(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "taxonomy load failed", log.FieldError, err)
		data.TaxonomyFailed = true
	} else {
		data.ExpenseMajors = tax.ByType(core.Expense)
		data.IncomeMajors = tax.ByType(core.Income)
		data.TaxonomyStale = stale
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "index template execution failed", log.FieldError, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
