// Package memory is an in-process report sink for tests and local runs
// without Google credentials.
package memory

import (
	"context"
	"sync"

	"kakeibo/internal/core"
	ports "kakeibo/internal/export"
)

type Exporter struct {
	mu      sync.Mutex
	reports []core.MonthlyReport
}

var _ ports.ReportWriter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ExportMonthlyReport(ctx context.Context, report core.MonthlyReport) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reports = append(e.reports, report)
	return nil
}

// Reports returns a copy of everything exported so far.
func (e *Exporter) Reports() []core.MonthlyReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.MonthlyReport, len(e.reports))
	copy(out, e.reports)
	return out
}
