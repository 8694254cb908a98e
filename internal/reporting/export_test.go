package reporting

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/po-master/po-master/internal/procurement"
)

func TestExportWorkbook(t *testing.T) {
	fx, ds := newFixture()
	ds.Payments = []procurement.Payment{{ID: uuid.New(), ScheduleID: ptr(fx.advance.ID), Amount: 300}}
	ds.Schedules[0].Status = procurement.ScheduleStatusPaid
	svc := newTestService(&memorySource{ds: ds}, nil)

	raw, err := svc.ExportXLSX(context.Background(), asOf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{SheetCurrencies, SheetProjects, SheetSchedules}, f.GetSheetList())

	rows, err := f.GetRows(SheetCurrencies)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Currency", rows[0][0])
	require.Equal(t, []string{"EUR", "1000", "300", "700"}, rows[1][:4])

	rows, err = f.GetRows(SheetProjects)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"Harbour", "Lee", "EUR", "Active", "1000", "300"}, rows[1])

	rows, err = f.GetRows(SheetSchedules)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"PO-1", "1", "Advance", "2024-05-20", "EUR", "300", "Paid", "Paid"}, rows[1])
	require.Equal(t, []string{"PO-1", "2", "Final", "2024-04-30", "EUR", "700", "Pending", "Overdue"}, rows[2])
}

func TestExportEmptyDataset(t *testing.T) {
	raw, err := BuildWorkbook(Dataset{}, asOf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetSchedules)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestExportFailsWhenLoadFails(t *testing.T) {
	svc := newTestService(&memorySource{failOn: "projects"}, nil)
	_, err := svc.ExportXLSX(context.Background(), asOf)
	require.Error(t, err)
}
