package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/po-master/po-master/internal/reports"
)

// Workbook sheet names.
const (
	SheetCurrencies = "Currencies"
	SheetProjects   = "Projects"
	SheetSchedules  = "Schedules"
)

// ExportXLSX renders currency totals, project totals and every tranche as of asOf.
func (s *Service) ExportXLSX(ctx context.Context, asOf time.Time) ([]byte, error) {
	start := time.Now()
	ds, err := s.LoadDataset(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := BuildWorkbook(ds, asOf)
	if err != nil {
		return nil, err
	}
	s.logger.Info("report export written",
		slog.String("as_of", FormatDate(asOf)),
		slog.Int("schedules", len(ds.Schedules)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return raw, nil
}

// BuildWorkbook writes the export workbook for a dataset.
func BuildWorkbook(ds Dataset, asOf time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetCurrencies); err != nil {
		return nil, fmt.Errorf("xlsx rename sheet: %w", err)
	}
	for _, name := range []string{SheetProjects, SheetSchedules} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("xlsx new sheet %s: %w", name, err)
		}
	}

	totals := reports.Aggregate(ds.PurchaseOrders, ds.Schedules, ds.Payments)
	currencyRows := make([][]any, 0, totals.Len())
	for _, c := range totals.Summaries() {
		currencyRows = append(currencyRows, []any{c.Currency, c.TotalOrdered, c.TotalPaid, c.Remaining, c.PercentComplete})
	}
	if err := writeSheet(f, SheetCurrencies,
		[]string{"Currency", "Total Ordered", "Total Paid", "Remaining", "% Complete"}, currencyRows); err != nil {
		return nil, err
	}

	ledger := reports.NewPaymentLedger(ds.Schedules, ds.Payments)
	projectRows := make([][]any, 0, len(ds.Projects))
	for _, p := range reports.EnrichProjects(ds.Projects, ds.PurchaseOrders, ledger) {
		projectRows = append(projectRows, []any{p.Name, p.Owner, p.Currency, string(p.Status), p.TotalPOAmount, p.TotalPaid})
	}
	if err := writeSheet(f, SheetProjects,
		[]string{"Project", "Owner", "Currency", "Status", "Total PO Amount", "Total Paid"}, projectRows); err != nil {
		return nil, err
	}

	poNumbers := make(map[uuid.UUID]string, len(ds.PurchaseOrders))
	for _, po := range ds.PurchaseOrders {
		poNumbers[po.ID] = po.Number
	}
	currencies := reports.ScheduleCurrencies(ds.PurchaseOrders, ds.Schedules)
	scheduleRows := make([][]any, 0, len(ds.Schedules))
	for _, sch := range ds.Schedules {
		number, ok := poNumbers[sch.POID]
		if !ok {
			number = reports.Unassigned
		}
		scheduleRows = append(scheduleRows, []any{
			number, sch.PaymentNo, string(sch.Type), FormatDate(sch.DueDate), currencies[sch.ID], sch.Amount,
			string(sch.Status), string(reports.ProjectStatus(sch, asOf)),
		})
	}
	if err := writeSheet(f, SheetSchedules,
		[]string{"PO Number", "Payment No", "Type", "Due Date", "Currency", "Amount", "Status", "Display Status"}, scheduleRows); err != nil {
		return nil, err
	}

	_ = f.SetColWidth(SheetCurrencies, "A", "E", 16)
	_ = f.SetColWidth(SheetProjects, "A", "A", 32)
	_ = f.SetColWidth(SheetProjects, "B", "F", 16)
	_ = f.SetColWidth(SheetSchedules, "A", "H", 16)
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("xlsx header %s: %w", sheet, err)
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("xlsx cell %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}
