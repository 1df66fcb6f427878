// Package google exports monthly reports to a Google Sheets spreadsheet
// using Service Account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"kakeibo/internal/core"
	ports "kakeibo/internal/export"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.ReportWriter = (*Exporter)(nil)

// New creates an exporter writing to the given spreadsheet and sheet.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, sheetName string) (*Exporter, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Reports"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	inlineJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	credFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inlineJSON == "" && credFile == "" {
		credFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case inlineJSON != "":
		credentialsJSON = []byte(inlineJSON)
	case credFile != "":
		credentialsJSON, err = os.ReadFile(credFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportMonthlyReport appends one row per metric plus one row per
// expense category. Each month occupies its own block keyed by the
// "YYYY-MM" label in column A.
func (e *Exporter) ExportMonthlyReport(ctx context.Context, report core.MonthlyReport) error {
	rows := reportRows(report)

	rangeRef := fmt.Sprintf("%s!A:D", e.sheetName)
	_, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rangeRef, &gsheet.ValueRange{
		Values: rows,
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append report rows: %w", err)
	}
	return nil
}

func reportRows(report core.MonthlyReport) [][]any {
	label := fmt.Sprintf("%04d-%02d", report.Year, report.Month)
	rows := [][]any{
		{label, "total_income", report.TotalIncome.RoundedUnits(), ""},
		{label, "total_expense", report.TotalExpense.RoundedUnits(), ""},
		{label, "income_change_rate", report.IncomeChangeRate, "%"},
		{label, "expense_change_rate", report.ExpenseChangeRate, "%"},
		{label, "daily_avg_expense", report.DailyAvgExpense.RoundedUnits(), ""},
	}
	for _, cat := range report.ExpenseByCategory {
		rows = append(rows, []any{label, "category", cat.Amount.RoundedUnits(), cat.Name})
	}
	return rows
}
