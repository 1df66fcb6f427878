package advisor

import (
	"context"
	"fmt"
	"log/slog"

	"kakeibo/internal/core"
	"kakeibo/internal/events"
	"kakeibo/internal/export"
)

// MonthReader fetches one month of transactions from the backend.
type MonthReader interface {
	Transactions(ctx context.Context, userID string, year, month int) ([]core.Transaction, error)
}

// Worker recomputes advice for a user's month whenever its ledger
// changes. Insights are logged; the dashboard reads them from the log
// pipeline, not from this process.
type Worker struct {
	reader     MonthReader
	thresholds Thresholds
	exporter   export.ReportWriter
	logger     *slog.Logger
}

func NewWorker(reader MonthReader, thresholds Thresholds, logger *slog.Logger) *Worker {
	return &Worker{
		reader:     reader,
		thresholds: thresholds,
		logger:     logger,
	}
}

// WithExporter makes the worker write each recomputed monthly report to
// the given sink. Export failures are logged, not retried; the next
// ledger change carries a fresh report anyway.
func (w *Worker) WithExporter(exporter export.ReportWriter) *Worker {
	w.exporter = exporter
	return w
}

// HandleEvent processes one ledger change notification.
func (w *Worker) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Year == 0 || event.Month == 0 {
		w.logger.WarnContext(ctx, "event without month reference, skipping",
			"event_id", event.ID, "kind", event.Kind)
		return nil
	}

	current, err := w.reader.Transactions(ctx, event.UserID, event.Year, event.Month)
	if err != nil {
		return fmt.Errorf("fetch month %04d-%02d: %w", event.Year, event.Month, err)
	}

	prevYear, prevMonth := previousMonth(event.Year, event.Month)
	previous, err := w.reader.Transactions(ctx, event.UserID, prevYear, prevMonth)
	if err != nil {
		// Advice degrades without the comparison month, it does not fail.
		w.logger.WarnContext(ctx, "previous month unavailable, change rates default to 0",
			"error", err, "year", prevYear, "month", prevMonth)
		previous = nil
	}

	report := core.BuildMonthlyReport(event.Year, event.Month, current, previous)

	if w.exporter != nil {
		if err := w.exporter.ExportMonthlyReport(ctx, report); err != nil {
			w.logger.WarnContext(ctx, "report export failed",
				"error", err, "year", event.Year, "month", event.Month)
		}
	}

	insights := Advise(report, w.thresholds)

	for _, in := range insights {
		switch in.Severity {
		case SeverityWarning:
			w.logger.WarnContext(ctx, "spending advice",
				"user_id", event.UserID,
				"year", event.Year, "month", event.Month,
				"message", in.Message)
		default:
			w.logger.InfoContext(ctx, "spending advice",
				"user_id", event.UserID,
				"year", event.Year, "month", event.Month,
				"message", in.Message)
		}
	}
	if len(insights) == 0 {
		w.logger.InfoContext(ctx, "no advice for month",
			"user_id", event.UserID,
			"year", event.Year, "month", event.Month)
	}

	return nil
}

func previousMonth(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}
