package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/po-master/po-master/internal/platform/db"
	"github.com/po-master/po-master/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// WithLockingTx wraps callback in a read-committed transaction for writes that
// lock a row and then read what the previous holder committed.
func (r *Repository) WithLockingTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithReadCommittedTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const (
	projectColumns  = `id, name, owner, COALESCE(currency, ''), status, created_at, updated_at`
	poColumns       = `id, po_number, project_id, supplier_id, supplier_name, COALESCE(currency, ''), COALESCE(amount, 0)::float8, date, status, description, external_link, created_at`
	scheduleColumns = `id, po_id, payment_no, type, COALESCE(percentage, 0)::float8, COALESCE(amount, 0)::float8, due_date, status`
	paymentColumns  = `id, schedule_id, COALESCE(amount, 0)::float8, date, method, reference, paid_by, COALESCE(invoice_url, ''), created_at`
)

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Owner, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanPurchaseOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.ProjectID, &po.SupplierID, &po.SupplierName, &po.Currency,
		&po.Amount, &po.Date, &po.Status, &po.Description, &po.ExternalLink, &po.CreatedAt)
	return po, err
}

func scanSchedule(row pgx.Row) (PaymentSchedule, error) {
	var s PaymentSchedule
	err := row.Scan(&s.ID, &s.POID, &s.PaymentNo, &s.Type, &s.Percentage, &s.Amount, &s.DueDate, &s.Status)
	return s, err
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.ScheduleID, &p.Amount, &p.Date, &p.Method, &p.Reference, &p.PaidBy, &p.InvoiceURL, &p.CreatedAt)
	return p, err
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// listQuery appends filter clauses to a base SELECT.
type listQuery struct {
	where []string
	args  []any
}

func (q *listQuery) add(clause string, arg any) {
	q.args = append(q.args, arg)
	q.where = append(q.where, fmt.Sprintf(clause, len(q.args)))
}

func (q *listQuery) build(base, orderBy string, filter ListFilter) string {
	var sb strings.Builder
	sb.WriteString(base)
	if len(q.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(q.where, " AND "))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(orderBy)
	if filter.Limit > 0 {
		q.args = append(q.args, filter.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(q.args))
	}
	return sb.String()
}

// ListProjects returns projects, oldest first unless NewestFirst is set.
func (r *Repository) ListProjects(ctx context.Context, filter ListFilter) ([]Project, error) {
	var q listQuery
	if len(filter.Statuses) > 0 {
		q.add("status = ANY($%d)", filter.Statuses)
	}
	order := "created_at, id"
	if filter.NewestFirst {
		order = "created_at DESC, id"
	}
	sql := q.build(`SELECT `+projectColumns+` FROM projects`, order, filter)
	rows, err := r.pool.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, fetchError("projects", err)
	}
	projects, err := collect(rows, scanProject)
	return projects, fetchError("projects", err)
}

// GetProject loads a single project.
func (r *Repository) GetProject(ctx context.Context, id uuid.UUID) (Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, fetchError("projects", err)
	}
	return p, nil
}

// ListSuppliers returns suppliers ordered by name.
func (r *Repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(website, ''), COALESCE(phone, ''), COALESCE(email, '') FROM suppliers ORDER BY name, id`)
	if err != nil {
		return nil, fetchError("suppliers", err)
	}
	suppliers, err := collect(rows, func(row pgx.Row) (Supplier, error) {
		var s Supplier
		err := row.Scan(&s.ID, &s.Name, &s.Website, &s.Phone, &s.Email)
		return s, err
	})
	return suppliers, fetchError("suppliers", err)
}

// ListCurrencies returns known currencies ordered by code.
func (r *Repository) ListCurrencies(ctx context.Context) ([]Currency, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, name FROM currencies ORDER BY code`)
	if err != nil {
		return nil, fetchError("currencies", err)
	}
	currencies, err := collect(rows, func(row pgx.Row) (Currency, error) {
		var c Currency
		err := row.Scan(&c.Code, &c.Name)
		return c, err
	})
	return currencies, fetchError("currencies", err)
}

// ListPurchaseOrders returns purchase orders ordered by date.
func (r *Repository) ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	var q listQuery
	if filter.ProjectID != nil {
		q.add("project_id = $%d", *filter.ProjectID)
	}
	if len(filter.Statuses) > 0 {
		q.add("status = ANY($%d)", filter.Statuses)
	}
	order := "date, created_at, id"
	if filter.NewestFirst {
		order = "date DESC, created_at DESC, id"
	}
	sql := q.build(`SELECT `+poColumns+` FROM purchase_orders`, order, filter)
	rows, err := r.pool.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, fetchError("purchase_orders", err)
	}
	pos, err := collect(rows, scanPurchaseOrder)
	return pos, fetchError("purchase_orders", err)
}

// GetPurchaseOrder loads a single purchase order.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	po, err := scanPurchaseOrder(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, fetchError("purchase_orders", err)
	}
	return po, nil
}

// ListSchedules returns schedules ordered by PO and payment number.
func (r *Repository) ListSchedules(ctx context.Context, filter ListFilter) ([]PaymentSchedule, error) {
	var q listQuery
	if filter.POID != nil {
		q.add("po_id = $%d", *filter.POID)
	}
	if len(filter.Statuses) > 0 {
		q.add("status = ANY($%d)", filter.Statuses)
	}
	sql := q.build(`SELECT `+scheduleColumns+` FROM payment_schedules`, "po_id, payment_no", filter)
	rows, err := r.pool.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, fetchError("payment_schedules", err)
	}
	schedules, err := collect(rows, scanSchedule)
	return schedules, fetchError("payment_schedules", err)
}

// ListPayments returns payments ordered by date.
func (r *Repository) ListPayments(ctx context.Context, filter ListFilter) ([]Payment, error) {
	var q listQuery
	if filter.ScheduleID != nil {
		q.add("schedule_id = $%d", *filter.ScheduleID)
	}
	if filter.POID != nil {
		q.add("schedule_id IN (SELECT id FROM payment_schedules WHERE po_id = $%d)", *filter.POID)
	}
	order := "date, created_at, id"
	if filter.NewestFirst {
		order = "date DESC, created_at DESC, id"
	}
	sql := q.build(`SELECT `+paymentColumns+` FROM payments`, order, filter)
	rows, err := r.pool.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, fetchError("payments", err)
	}
	payments, err := collect(rows, scanPayment)
	return payments, fetchError("payments", err)
}

// GetPayment loads a single payment.
func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, fetchError("payments", err)
	}
	return p, nil
}

// writeError classifies constraint violations before wrapping.
func writeError(table string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			err = fmt.Errorf("%w: %s", shared.ErrConflict, pgErr.Detail)
		case "23503":
			err = &ValidationError{Fields: map[string]string{pgErr.ConstraintName: "references an unknown record"}}
		}
	}
	return &StoreError{Kind: KindWrite, Table: table, Err: err}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (t *txRepo) InsertProject(ctx context.Context, p Project) (Project, error) {
	out, err := scanProject(t.tx.QueryRow(ctx, `INSERT INTO projects (name, owner, currency, status) VALUES ($1, $2, $3, $4) RETURNING `+projectColumns,
		p.Name, p.Owner, p.Currency, p.Status))
	return out, writeError("projects", err)
}

func (t *txRepo) UpdateProject(ctx context.Context, p Project) (Project, error) {
	out, err := scanProject(t.tx.QueryRow(ctx, `UPDATE projects SET name=$2, owner=$3, currency=$4, status=$5, updated_at=NOW() WHERE id=$1 RETURNING `+projectColumns,
		p.ID, p.Name, p.Owner, p.Currency, p.Status))
	return out, writeError("projects", err)
}

func (t *txRepo) InsertSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO suppliers (name, website, phone, email) VALUES ($1, $2, $3, $4) RETURNING id`,
		s.Name, nullable(s.Website), nullable(s.Phone), nullable(s.Email)).Scan(&s.ID)
	return s, writeError("suppliers", err)
}

func (t *txRepo) InsertCurrency(ctx context.Context, c Currency) (Currency, error) {
	_, err := t.tx.Exec(ctx, `INSERT INTO currencies (code, name) VALUES ($1, $2)`, c.Code, c.Name)
	return c, writeError("currencies", err)
}

func (t *txRepo) InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	out, err := scanPurchaseOrder(t.tx.QueryRow(ctx, `INSERT INTO purchase_orders
		(po_number, project_id, supplier_id, supplier_name, currency, amount, date, status, description, external_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING `+poColumns,
		po.Number, po.ProjectID, po.SupplierID, po.SupplierName, nullable(po.Currency), po.Amount, po.Date, po.Status, po.Description, po.ExternalLink))
	return out, writeError("purchase_orders", err)
}

func (t *txRepo) UpdatePurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	out, err := scanPurchaseOrder(t.tx.QueryRow(ctx, `UPDATE purchase_orders SET
		po_number=$2, project_id=$3, supplier_id=$4, supplier_name=$5, currency=$6, amount=$7, date=$8, status=$9, description=$10, external_link=$11
		WHERE id=$1 RETURNING `+poColumns,
		po.ID, po.Number, po.ProjectID, po.SupplierID, po.SupplierName, nullable(po.Currency), po.Amount, po.Date, po.Status, po.Description, po.ExternalLink))
	return out, writeError("purchase_orders", err)
}

func (t *txRepo) DeletePurchaseOrder(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id=$1`, id)
	if err != nil {
		return writeError("purchase_orders", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertSchedule(ctx context.Context, s PaymentSchedule) (PaymentSchedule, error) {
	out, err := scanSchedule(t.tx.QueryRow(ctx, `INSERT INTO payment_schedules
		(po_id, payment_no, type, percentage, amount, due_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+scheduleColumns,
		s.POID, s.PaymentNo, s.Type, s.Percentage, s.Amount, s.DueDate, s.Status))
	return out, writeError("payment_schedules", err)
}

func (t *txRepo) NextPaymentNo(ctx context.Context, poID uuid.UUID) (int, error) {
	var next int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(payment_no), 0) + 1 FROM payment_schedules WHERE po_id=$1`, poID).Scan(&next)
	return next, fetchError("payment_schedules", err)
}

func (t *txRepo) LockSchedule(ctx context.Context, id uuid.UUID) (PaymentSchedule, error) {
	s, err := scanSchedule(t.tx.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM payment_schedules WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentSchedule{}, ErrNotFound
		}
		return PaymentSchedule{}, fetchError("payment_schedules", err)
	}
	return s, nil
}

func (t *txRepo) SumPayments(ctx context.Context, scheduleID uuid.UUID) (float64, error) {
	var total float64
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::float8 FROM payments WHERE schedule_id=$1`, scheduleID).Scan(&total)
	return total, fetchError("payments", err)
}

func (t *txRepo) UpdateScheduleStatus(ctx context.Context, id uuid.UUID, status ScheduleStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE payment_schedules SET status=$2 WHERE id=$1`, id, status)
	return writeError("payment_schedules", err)
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	out, err := scanPayment(t.tx.QueryRow(ctx, `INSERT INTO payments
		(schedule_id, amount, date, method, reference, paid_by, invoice_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+paymentColumns,
		p.ScheduleID, p.Amount, p.Date, p.Method, p.Reference, p.PaidBy, nullable(p.InvoiceURL)))
	return out, writeError("payments", err)
}

func (t *txRepo) SetInvoiceURL(ctx context.Context, paymentID uuid.UUID, url string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE payments SET invoice_url=$2 WHERE id=$1`, paymentID, url)
	if err != nil {
		return writeError("payments", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
