package procurement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/po-master/po-master/internal/shared"
)

// DefaultCurrency is used wherever a currency cannot be resolved.
const DefaultCurrency = "USD"

// Project lifecycle statuses.
type ProjectStatus string

const (
	ProjectStatusActive ProjectStatus = "Active"
	ProjectStatusOnHold ProjectStatus = "On Hold"
	ProjectStatusClosed ProjectStatus = "Closed"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusIssued     POStatus = "Issued"
	POStatusApproved   POStatus = "Approved"
	POStatusInProgress POStatus = "In Progress"
	POStatusClosed     POStatus = "Closed"
	POStatusCancelled  POStatus = "Cancelled"
)

// ScheduleType classifies a payment tranche.
type ScheduleType string

const (
	ScheduleTypeAdvance   ScheduleType = "Advance"
	ScheduleTypeMilestone ScheduleType = "Milestone"
	ScheduleTypeFinal     ScheduleType = "Final"
	ScheduleTypeRetention ScheduleType = "Retention"
	ScheduleTypeVariation ScheduleType = "Variation"
)

// ScheduleStatus is the stored status of a payment tranche.
type ScheduleStatus string

const (
	ScheduleStatusPending ScheduleStatus = "Pending"
	ScheduleStatusPartial ScheduleStatus = "Partial"
	ScheduleStatusPaid    ScheduleStatus = "Paid"
)

// PaymentMethod describes how money was transferred.
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "Bank Transfer"
	PaymentMethodSWIFT        PaymentMethod = "SWIFT"
	PaymentMethodCheck        PaymentMethod = "Check"
	PaymentMethodCash         PaymentMethod = "Cash"
)

// Project groups purchase orders under one budget owner.
type Project struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Owner     string        `json:"owner"`
	Currency  string        `json:"currency"`
	Status    ProjectStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Supplier is a vendor that purchase orders are issued to.
type Supplier struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Website string    `json:"website,omitempty"`
	Phone   string    `json:"phone,omitempty"`
	Email   string    `json:"email,omitempty"`
}

// Currency is an ISO currency known to the system.
type Currency struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// PurchaseOrder is a commitment to pay a supplier a fixed amount in one currency.
// SupplierName carries the legacy free-text supplier when SupplierID is nil.
type PurchaseOrder struct {
	ID           uuid.UUID  `json:"id"`
	Number       string     `json:"po_number"`
	ProjectID    *uuid.UUID `json:"project_id,omitempty"`
	SupplierID   *uuid.UUID `json:"supplier_id,omitempty"`
	SupplierName string     `json:"supplier_name,omitempty"`
	Currency     string     `json:"currency"`
	Amount       float64    `json:"amount"`
	Date         time.Time  `json:"date"`
	Status       POStatus   `json:"status"`
	Description  string     `json:"description"`
	ExternalLink string     `json:"external_link,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// PaymentSchedule is one tranche of a purchase order.
type PaymentSchedule struct {
	ID         uuid.UUID      `json:"id"`
	POID       uuid.UUID      `json:"po_id"`
	PaymentNo  int            `json:"payment_no"`
	Type       ScheduleType   `json:"type"`
	Percentage float64        `json:"percentage"`
	Amount     float64        `json:"amount"`
	DueDate    time.Time      `json:"due_date"`
	Status     ScheduleStatus `json:"status"`
}

// Payment is a money transfer, either against a schedule or manual (nil ScheduleID).
type Payment struct {
	ID         uuid.UUID     `json:"id"`
	ScheduleID *uuid.UUID    `json:"schedule_id,omitempty"`
	Amount     float64       `json:"amount"`
	Date       time.Time     `json:"date"`
	Method     PaymentMethod `json:"method"`
	Reference  string        `json:"reference"`
	PaidBy     string        `json:"paid_by"`
	InvoiceURL string        `json:"invoice_url,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ResolveCurrency returns the upper-cased code, or DefaultCurrency when empty.
func ResolveCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

var (
	// ErrNotFound indicates missing records.
	ErrNotFound = fmt.Errorf("procurement: %w", shared.ErrNotFound)
	// ErrPercentageSum indicates tranche percentages not adding up to 100.
	ErrPercentageSum = errors.New("payment schedule percentages must sum to 100%")
	// ErrTrancheAmountSum indicates tranche amounts not adding up to the order amount.
	ErrTrancheAmountSum = errors.New("payment schedule amounts must sum to the order amount")
	// ErrDuplicatePayment indicates an idempotency key that was already used.
	ErrDuplicatePayment = fmt.Errorf("procurement: payment already recorded: %w", shared.ErrConflict)
	// ErrStorageDisabled indicates attachments were requested without object storage.
	ErrStorageDisabled = errors.New("procurement: invoice storage not configured")
)

// StoreErrorKind separates failed reads from failed writes.
type StoreErrorKind string

const (
	KindFetch StoreErrorKind = "fetch"
	KindWrite StoreErrorKind = "write"
)

// StoreError wraps a failure of the record store.
// Fetch failures match shared.ErrUnavailable.
type StoreError struct {
	Kind  StoreErrorKind
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("procurement: %s %s: %v", e.Kind, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is reports fetch failures as unavailable.
func (e *StoreError) Is(target error) bool {
	return e.Kind == KindFetch && target == shared.ErrUnavailable
}

func fetchError(table string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Kind: KindFetch, Table: table, Err: err}
}

// ValidationError blocks a write before it reaches the store.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "procurement: validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, key := range sortedKeys(e.Fields) {
		parts = append(parts, key+": "+e.Fields[key])
	}
	return "procurement: validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return shared.ErrValidation }

// FieldErrors exposes per-field messages for problem responses.
func (e *ValidationError) FieldErrors() map[string]string { return e.Fields }

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
