package procurement

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows list reads. Zero values mean no restriction.
type ListFilter struct {
	ProjectID   *uuid.UUID
	POID        *uuid.UUID
	ScheduleID  *uuid.UUID
	Statuses    []string
	NewestFirst bool
	Limit       int
}

// RepositoryPort is the record store used by the service and the read side.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// WithLockingTx runs fn at read committed so reads after LockSchedule see
	// payments committed by a concurrent writer.
	WithLockingTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	ListProjects(ctx context.Context, filter ListFilter) ([]Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (Project, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)
	ListCurrencies(ctx context.Context) ([]Currency, error)
	ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	ListSchedules(ctx context.Context, filter ListFilter) ([]PaymentSchedule, error)
	ListPayments(ctx context.Context, filter ListFilter) ([]Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (Payment, error)
}

// TxRepository exposes the writes that run inside one transaction.
type TxRepository interface {
	InsertProject(ctx context.Context, p Project) (Project, error)
	UpdateProject(ctx context.Context, p Project) (Project, error)
	InsertSupplier(ctx context.Context, s Supplier) (Supplier, error)
	InsertCurrency(ctx context.Context, c Currency) (Currency, error)
	InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	UpdatePurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	DeletePurchaseOrder(ctx context.Context, id uuid.UUID) error
	InsertSchedule(ctx context.Context, s PaymentSchedule) (PaymentSchedule, error)
	NextPaymentNo(ctx context.Context, poID uuid.UUID) (int, error)
	LockSchedule(ctx context.Context, id uuid.UUID) (PaymentSchedule, error)
	SumPayments(ctx context.Context, scheduleID uuid.UUID) (float64, error)
	UpdateScheduleStatus(ctx context.Context, id uuid.UUID, status ScheduleStatus) error
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	SetInvoiceURL(ctx context.Context, paymentID uuid.UUID, url string) error
}
