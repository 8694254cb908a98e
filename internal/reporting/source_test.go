package reporting

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/po-master/po-master/internal/procurement"
)

type memorySource struct {
	ds     Dataset
	failOn string
	loads  atomic.Int32
}

func (m *memorySource) fail(table string) error {
	if m.failOn == table {
		return &procurement.StoreError{Kind: procurement.KindFetch, Table: table, Err: errors.New("connection refused")}
	}
	return nil
}

func (m *memorySource) ListProjects(ctx context.Context, _ procurement.ListFilter) ([]procurement.Project, error) {
	m.loads.Add(1)
	return m.ds.Projects, m.fail("projects")
}

func (m *memorySource) ListPurchaseOrders(ctx context.Context, _ procurement.ListFilter) ([]procurement.PurchaseOrder, error) {
	return m.ds.PurchaseOrders, m.fail("purchase_orders")
}

func (m *memorySource) ListSchedules(ctx context.Context, _ procurement.ListFilter) ([]procurement.PaymentSchedule, error) {
	return m.ds.Schedules, m.fail("payment_schedules")
}

func (m *memorySource) ListPayments(ctx context.Context, _ procurement.ListFilter) ([]procurement.Payment, error) {
	return m.ds.Payments, m.fail("payments")
}

func (m *memorySource) ListSuppliers(ctx context.Context) ([]procurement.Supplier, error) {
	return m.ds.Suppliers, m.fail("suppliers")
}

var asOf = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

type fixture struct {
	project  procurement.Project
	po       procurement.PurchaseOrder
	advance  procurement.PaymentSchedule
	final    procurement.PaymentSchedule
	supplier procurement.Supplier
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

// newFixture is a EUR order of 1000 split 300 due in ten days and 700 due ten days ago.
func newFixture() (fixture, Dataset) {
	var fx fixture
	fx.project = procurement.Project{ID: uuid.New(), Name: "Harbour", Owner: "Lee", Currency: "EUR", Status: procurement.ProjectStatusActive, CreatedAt: asOf.AddDate(0, -1, 0)}
	fx.supplier = procurement.Supplier{ID: uuid.New(), Name: "Acme"}
	fx.po = procurement.PurchaseOrder{ID: uuid.New(), Number: "PO-1", ProjectID: ptr(fx.project.ID), SupplierID: ptr(fx.supplier.ID),
		Currency: "EUR", Amount: 1000, Date: asOf.AddDate(0, 0, -20), Status: procurement.POStatusIssued}
	fx.advance = procurement.PaymentSchedule{ID: uuid.New(), POID: fx.po.ID, PaymentNo: 1, Type: procurement.ScheduleTypeAdvance,
		Percentage: 30, Amount: 300, DueDate: asOf.AddDate(0, 0, 10), Status: procurement.ScheduleStatusPending}
	fx.final = procurement.PaymentSchedule{ID: uuid.New(), POID: fx.po.ID, PaymentNo: 2, Type: procurement.ScheduleTypeFinal,
		Percentage: 70, Amount: 700, DueDate: asOf.AddDate(0, 0, -10), Status: procurement.ScheduleStatusPending}
	return fx, Dataset{
		Projects:       []procurement.Project{fx.project},
		PurchaseOrders: []procurement.PurchaseOrder{fx.po},
		Schedules:      []procurement.PaymentSchedule{fx.advance, fx.final},
		Suppliers:      []procurement.Supplier{fx.supplier},
	}
}
