package procurement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/po-master/po-master/internal/shared"
)

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against duplicate submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// InvoiceStorage uploads invoice attachments and returns their public URL.
type InvoiceStorage interface {
	Upload(ctx context.Context, objectName string, body io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, objectName string) error
}

// ServiceOptions carries optional collaborators. Nil collaborators are skipped.
type ServiceOptions struct {
	Policy      SettlementPolicy
	Audit       AuditPort
	Idempotency IdempotencyPort
	Storage     InvoiceStorage
	Notifier    ChangeNotifier
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service orchestrates project, purchase order and payment workflows.
type Service struct {
	repo        RepositoryPort
	validate    *validator.Validate
	policy      SettlementPolicy
	audit       AuditPort
	idempotency IdempotencyPort
	storage     InvoiceStorage
	notifier    ChangeNotifier
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, opts ServiceOptions) *Service {
	if opts.Policy == "" {
		opts.Policy = SettleAnyPayment
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:        repo,
		validate:    newValidator(),
		policy:      opts.Policy,
		audit:       opts.Audit,
		idempotency: opts.Idempotency,
		storage:     opts.Storage,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// Policy reports the active settlement policy.
func (s *Service) Policy() SettlementPolicy { return s.policy }

// ProjectInput describes project create and update payloads.
type ProjectInput struct {
	Name     string        `json:"name" validate:"required,max=200"`
	Owner    string        `json:"owner" validate:"max=200"`
	Currency string        `json:"currency" validate:"omitempty,len=3,alpha"`
	Status   ProjectStatus `json:"status" validate:"omitempty,project_status"`
}

// SupplierInput describes a new supplier.
type SupplierInput struct {
	Name    string `json:"name" validate:"required,max=200"`
	Website string `json:"website" validate:"omitempty,url"`
	Phone   string `json:"phone" validate:"max=50"`
	Email   string `json:"email" validate:"omitempty,email"`
}

// CurrencyInput describes a new currency.
type CurrencyInput struct {
	Code string `json:"code" validate:"required,len=3,alpha"`
	Name string `json:"name" validate:"required,max=100"`
}

// POHeaderInput carries editable purchase order fields.
type POHeaderInput struct {
	Number       string     `json:"po_number" validate:"required,max=64"`
	ProjectID    *uuid.UUID `json:"project_id"`
	SupplierID   *uuid.UUID `json:"supplier_id"`
	SupplierName string     `json:"supplier_name" validate:"max=200"`
	Currency     string     `json:"currency" validate:"omitempty,len=3,alpha"`
	Amount       float64    `json:"amount" validate:"gte=0"`
	Date         string     `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Status       POStatus   `json:"status" validate:"omitempty,po_status"`
	Description  string     `json:"description" validate:"max=2000"`
	ExternalLink string     `json:"external_link" validate:"omitempty,url"`
}

// TrancheInput describes one payment schedule line by Percentage, Amount or
// both. When both are set they must agree to the cent.
type TrancheInput struct {
	Type       ScheduleType `json:"type" validate:"required,schedule_type"`
	Percentage float64      `json:"percentage" validate:"gte=0,lte=100"`
	Amount     *float64     `json:"amount" validate:"omitempty,gte=0"`
	DueDate    string       `json:"due_date" validate:"required,datetime=2006-01-02"`
}

// CreatePOInput creates a purchase order together with its tranches.
type CreatePOInput struct {
	POHeaderInput
	Tranches []TrancheInput `json:"tranches" validate:"dive"`
}

// PaymentInput records a payment. A nil ScheduleID records a manual payment.
type PaymentInput struct {
	ScheduleID     *uuid.UUID    `json:"schedule_id"`
	Amount         float64       `json:"amount" validate:"gt=0"`
	Date           string        `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Method         PaymentMethod `json:"method" validate:"omitempty,payment_method"`
	Reference      string        `json:"reference" validate:"max=200"`
	PaidBy         string        `json:"paid_by" validate:"max=200"`
	IdempotencyKey string        `json:"-"`
}

// InvoiceFile is an uploaded invoice attachment.
type InvoiceFile struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// PurchaseOrderRecord is a purchase order with its tranches.
type PurchaseOrderRecord struct {
	Order     PurchaseOrder     `json:"purchase_order"`
	Schedules []PaymentSchedule `json:"schedules"`
}

// RecordedPayment is the outcome of RecordPayment. Schedule is nil for manual payments.
type RecordedPayment struct {
	Payment  Payment          `json:"payment"`
	Schedule *PaymentSchedule `json:"schedule,omitempty"`
}

// CreateProject stores a new project.
func (s *Service) CreateProject(ctx context.Context, input ProjectInput) (Project, error) {
	if err := validateStruct(s.validate, input); err != nil {
		return Project{}, err
	}
	project := projectFromInput(input)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		project, err = tx.InsertProject(ctx, project)
		return err
	})
	if err != nil {
		return Project{}, err
	}
	s.afterWrite(ctx, "project", "create", project.ID, map[string]any{"name": project.Name})
	return project, nil
}

// UpdateProject replaces the editable fields of a project.
func (s *Service) UpdateProject(ctx context.Context, id uuid.UUID, input ProjectInput) (Project, error) {
	if err := validateStruct(s.validate, input); err != nil {
		return Project{}, err
	}
	project := projectFromInput(input)
	project.ID = id
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		project, err = tx.UpdateProject(ctx, project)
		return err
	})
	if err != nil {
		return Project{}, err
	}
	s.afterWrite(ctx, "project", "update", project.ID, map[string]any{"status": project.Status})
	return project, nil
}

func projectFromInput(input ProjectInput) Project {
	status := input.Status
	if status == "" {
		status = ProjectStatusActive
	}
	return Project{
		Name:     strings.TrimSpace(input.Name),
		Owner:    strings.TrimSpace(input.Owner),
		Currency: ResolveCurrency(input.Currency),
		Status:   status,
	}
}

// ListProjects returns all projects.
func (s *Service) ListProjects(ctx context.Context) ([]Project, error) {
	return s.repo.ListProjects(ctx, ListFilter{})
}

// GetProject returns one project.
func (s *Service) GetProject(ctx context.Context, id uuid.UUID) (Project, error) {
	return s.repo.GetProject(ctx, id)
}

// CreateSupplier stores a new supplier.
func (s *Service) CreateSupplier(ctx context.Context, input SupplierInput) (Supplier, error) {
	if err := validateStruct(s.validate, input); err != nil {
		return Supplier{}, err
	}
	supplier := Supplier{
		Name:    strings.TrimSpace(input.Name),
		Website: strings.TrimSpace(input.Website),
		Phone:   strings.TrimSpace(input.Phone),
		Email:   strings.TrimSpace(input.Email),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		supplier, err = tx.InsertSupplier(ctx, supplier)
		return err
	})
	if err != nil {
		return Supplier{}, err
	}
	s.afterWrite(ctx, "supplier", "create", supplier.ID, map[string]any{"name": supplier.Name})
	return supplier, nil
}

// ListSuppliers returns all suppliers.
func (s *Service) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// CreateCurrency stores a currency. The code is upper-cased first.
func (s *Service) CreateCurrency(ctx context.Context, input CurrencyInput) (Currency, error) {
	input.Code = strings.ToUpper(strings.TrimSpace(input.Code))
	input.Name = strings.TrimSpace(input.Name)
	if err := validateStruct(s.validate, input); err != nil {
		return Currency{}, err
	}
	currency := Currency{Code: input.Code, Name: input.Name}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		currency, err = tx.InsertCurrency(ctx, currency)
		return err
	})
	if err != nil {
		return Currency{}, err
	}
	s.recordAudit(ctx, "currency", "create", currency.Code, nil)
	return currency, nil
}

// ListCurrencies returns all currencies.
func (s *Service) ListCurrencies(ctx context.Context) ([]Currency, error) {
	return s.repo.ListCurrencies(ctx)
}

// CreatePurchaseOrder inserts the order and all of its tranches in one transaction.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrderRecord, error) {
	if err := validateStruct(s.validate, input); err != nil {
		return PurchaseOrderRecord{}, err
	}
	if err := validateTranches(input.Tranches, input.Amount); err != nil {
		return PurchaseOrderRecord{}, err
	}
	po, err := s.orderFromInput(ctx, input.POHeaderInput, PurchaseOrder{})
	if err != nil {
		return PurchaseOrderRecord{}, err
	}
	schedules := make([]PaymentSchedule, 0, len(input.Tranches))
	for i, t := range input.Tranches {
		schedule, err := scheduleFromTranche(t, po.Amount)
		if err != nil {
			return PurchaseOrderRecord{}, err
		}
		schedule.PaymentNo = i + 1
		schedules = append(schedules, schedule)
	}

	var record PurchaseOrderRecord
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertPurchaseOrder(ctx, po)
		if err != nil {
			return err
		}
		record = PurchaseOrderRecord{Order: created, Schedules: make([]PaymentSchedule, 0, len(schedules))}
		for _, schedule := range schedules {
			schedule.POID = created.ID
			inserted, err := tx.InsertSchedule(ctx, schedule)
			if err != nil {
				return err
			}
			record.Schedules = append(record.Schedules, inserted)
		}
		return nil
	})
	if err != nil {
		return PurchaseOrderRecord{}, err
	}
	s.afterWrite(ctx, "purchase_order", "create", record.Order.ID, map[string]any{
		"po_number": record.Order.Number,
		"amount":    record.Order.Amount,
		"tranches":  len(record.Schedules),
	})
	return record, nil
}

// UpdatePurchaseOrder edits header fields. Existing tranches are left untouched.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, id uuid.UUID, input POHeaderInput) (PurchaseOrder, error) {
	if err := validateStruct(s.validate, input); err != nil {
		return PurchaseOrder{}, err
	}
	current, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po, err := s.orderFromInput(ctx, input, current)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.ID = id
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.UpdatePurchaseOrder(ctx, po)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.afterWrite(ctx, "purchase_order", "update", po.ID, map[string]any{"po_number": po.Number, "status": po.Status})
	return po, nil
}

// DeletePurchaseOrder removes an order. Its tranches go with it and payments become manual.
func (s *Service) DeletePurchaseOrder(ctx context.Context, id uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeletePurchaseOrder(ctx, id)
	})
	if err != nil {
		return err
	}
	s.afterWrite(ctx, "purchase_order", "delete", id, nil)
	return nil
}

// orderFromInput builds an order from header input. Currency falls back to the
// current value, then the project's currency, then DefaultCurrency.
func (s *Service) orderFromInput(ctx context.Context, input POHeaderInput, current PurchaseOrder) (PurchaseOrder, error) {
	fallbackDate := current.Date
	if fallbackDate.IsZero() {
		fallbackDate = dateOnly(s.now())
	}
	date, err := parseDate(input.Date, fallbackDate)
	if err != nil {
		return PurchaseOrder{}, invalid("date", err.Error())
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = current.Currency
	}
	if input.ProjectID != nil {
		project, err := s.repo.GetProject(ctx, *input.ProjectID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return PurchaseOrder{}, invalid("project_id", "unknown project")
			}
			return PurchaseOrder{}, err
		}
		if currency == "" {
			currency = project.Currency
		}
	}
	status := input.Status
	if status == "" {
		status = current.Status
	}
	if status == "" {
		status = POStatusIssued
	}
	return PurchaseOrder{
		Number:       strings.TrimSpace(input.Number),
		ProjectID:    input.ProjectID,
		SupplierID:   input.SupplierID,
		SupplierName: strings.TrimSpace(input.SupplierName),
		Currency:     ResolveCurrency(currency),
		Amount:       input.Amount,
		Date:         date,
		Status:       status,
		Description:  input.Description,
		ExternalLink: strings.TrimSpace(input.ExternalLink),
	}, nil
}

func scheduleFromTranche(t TrancheInput, total float64) (PaymentSchedule, error) {
	due, err := parseDate(t.DueDate, time.Time{})
	if err != nil {
		return PaymentSchedule{}, invalid("due_date", err.Error())
	}
	if msg, ok := trancheMismatch(t, total); ok {
		return PaymentSchedule{}, invalid("amount", msg)
	}
	schedule := PaymentSchedule{
		Type:       t.Type,
		Percentage: t.Percentage,
		DueDate:    due,
		Status:     ScheduleStatusPending,
	}
	if t.Amount != nil {
		schedule.Amount = *t.Amount
		schedule.Percentage = percentageOf(*t.Amount, total)
	} else {
		schedule.Amount = trancheAmount(t.Percentage, total)
	}
	return schedule, nil
}

// AddSchedule appends a tranche to an existing order with the next payment number.
func (s *Service) AddSchedule(ctx context.Context, poID uuid.UUID, input TrancheInput) (PaymentSchedule, error) {
	if err := validateStruct(s.validate, input); err != nil {
		return PaymentSchedule{}, err
	}
	if input.Amount == nil && input.Percentage <= 0 {
		return PaymentSchedule{}, invalid("amount", "amount or percentage is required")
	}
	po, err := s.repo.GetPurchaseOrder(ctx, poID)
	if err != nil {
		return PaymentSchedule{}, err
	}
	schedule, err := scheduleFromTranche(input, po.Amount)
	if err != nil {
		return PaymentSchedule{}, err
	}
	schedule.POID = po.ID
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		next, err := tx.NextPaymentNo(ctx, po.ID)
		if err != nil {
			return err
		}
		schedule.PaymentNo = next
		schedule, err = tx.InsertSchedule(ctx, schedule)
		return err
	})
	if err != nil {
		return PaymentSchedule{}, err
	}
	s.afterWrite(ctx, "payment_schedule", "create", schedule.ID, map[string]any{
		"po_id":      po.ID.String(),
		"payment_no": schedule.PaymentNo,
		"amount":     schedule.Amount,
	})
	return schedule, nil
}

// RecordPayment inserts a payment and settles its schedule in one transaction.
func (s *Service) RecordPayment(ctx context.Context, input PaymentInput) (RecordedPayment, error) {
	if err := validateStruct(s.validate, input); err != nil {
		return RecordedPayment{}, err
	}
	date, err := parseDate(input.Date, dateOnly(s.now()))
	if err != nil {
		return RecordedPayment{}, invalid("date", err.Error())
	}
	method := input.Method
	if method == "" {
		method = PaymentMethodBankTransfer
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "payments"); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				return RecordedPayment{}, ErrDuplicatePayment
			}
			return RecordedPayment{}, err
		}
	}

	var result RecordedPayment
	err = s.repo.WithLockingTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var schedule PaymentSchedule
		if input.ScheduleID != nil {
			var err error
			schedule, err = tx.LockSchedule(ctx, *input.ScheduleID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return invalid("schedule_id", "unknown payment schedule")
				}
				return err
			}
		}
		payment, err := tx.InsertPayment(ctx, Payment{
			ScheduleID: input.ScheduleID,
			Amount:     input.Amount,
			Date:       date,
			Method:     method,
			Reference:  strings.TrimSpace(input.Reference),
			PaidBy:     strings.TrimSpace(input.PaidBy),
		})
		if err != nil {
			return err
		}
		result = RecordedPayment{Payment: payment}
		if input.ScheduleID == nil {
			return nil
		}
		paid, err := tx.SumPayments(ctx, schedule.ID)
		if err != nil {
			return err
		}
		next := s.policy.Settle(schedule.Status, schedule.Amount, paid)
		if next != schedule.Status {
			if err := tx.UpdateScheduleStatus(ctx, schedule.ID, next); err != nil {
				return err
			}
			schedule.Status = next
		}
		result.Schedule = &schedule
		return nil
	})
	if err != nil {
		if key != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, key); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return RecordedPayment{}, err
	}
	meta := map[string]any{"amount": result.Payment.Amount, "method": result.Payment.Method}
	if result.Schedule != nil {
		meta["schedule_id"] = result.Schedule.ID.String()
		meta["schedule_status"] = result.Schedule.Status
	}
	s.afterWrite(ctx, "payment", "create", result.Payment.ID, meta)
	return result, nil
}

// AttachInvoice uploads an invoice file and stores its URL on the payment.
func (s *Service) AttachInvoice(ctx context.Context, paymentID uuid.UUID, file InvoiceFile) (Payment, error) {
	if s.storage == nil {
		return Payment{}, ErrStorageDisabled
	}
	name := sanitizeFileName(file.Name)
	if name == "" || file.Body == nil {
		return Payment{}, invalid("file", "is required")
	}
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	objectName := InvoiceObjectName(paymentID, uuid.New(), name)
	url, err := s.storage.Upload(ctx, objectName, file.Body, file.Size, file.ContentType)
	if err != nil {
		return Payment{}, &StoreError{Kind: KindWrite, Table: "invoices", Err: err}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetInvoiceURL(ctx, paymentID, url)
	})
	if err != nil {
		if rmErr := s.storage.Remove(ctx, objectName); rmErr != nil {
			s.logger.Warn("remove orphaned invoice", slog.String("object", objectName), slog.Any("error", rmErr))
		}
		return Payment{}, err
	}
	payment.InvoiceURL = url
	s.recordAudit(ctx, "payment", "attach_invoice", paymentID.String(), map[string]any{"url": url})
	return payment, nil
}

// InvoiceObjectName returns the storage path of an invoice attachment.
func InvoiceObjectName(paymentID, fileID uuid.UUID, name string) string {
	return fmt.Sprintf("invoices/%s/%s-%s", paymentID, fileID, name)
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// ListPurchaseOrders returns orders, newest first.
func (s *Service) ListPurchaseOrders(ctx context.Context, projectID *uuid.UUID) ([]PurchaseOrder, error) {
	return s.repo.ListPurchaseOrders(ctx, ListFilter{ProjectID: projectID, NewestFirst: true})
}

// GetPurchaseOrder returns an order with its tranches.
func (s *Service) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrderRecord, error) {
	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return PurchaseOrderRecord{}, err
	}
	schedules, err := s.repo.ListSchedules(ctx, ListFilter{POID: &id})
	if err != nil {
		return PurchaseOrderRecord{}, err
	}
	return PurchaseOrderRecord{Order: po, Schedules: schedules}, nil
}

// ListSchedules returns the tranches of one order.
func (s *Service) ListSchedules(ctx context.Context, poID uuid.UUID) ([]PaymentSchedule, error) {
	if _, err := s.repo.GetPurchaseOrder(ctx, poID); err != nil {
		return nil, err
	}
	return s.repo.ListSchedules(ctx, ListFilter{POID: &poID})
}

// ListPayments returns payments, newest first, optionally for one order.
func (s *Service) ListPayments(ctx context.Context, poID *uuid.UUID) ([]Payment, error) {
	return s.repo.ListPayments(ctx, ListFilter{POID: poID, NewestFirst: true})
}

func (s *Service) afterWrite(ctx context.Context, entity, action string, id uuid.UUID, meta map[string]any) {
	s.recordAudit(ctx, entity, action, id.String(), meta)
	if s.notifier == nil {
		return
	}
	evt := ChangeEvent{Entity: entity, Action: action, ID: id, OccurredAt: s.now()}
	if err := s.notifier.NotifyChange(ctx, evt); err != nil {
		s.logger.Warn("notify change", slog.String("entity", entity), slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, entity, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   strings.ToUpper(entity + "_" + action),
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("record audit", slog.String("entity", entity), slog.Any("error", err))
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
