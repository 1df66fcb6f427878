// Package export defines the outbound report sinks the dashboard can
// write monthly summaries to.
package export

import (
	"context"

	"kakeibo/internal/core"
)

// ReportWriter persists one computed monthly report to an external sink.
type ReportWriter interface {
	ExportMonthlyReport(ctx context.Context, report core.MonthlyReport) error
}
