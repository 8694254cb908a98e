package procurement

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/po-master/po-master/internal/shared"
)

type memoryProcRepo struct {
	projects   map[uuid.UUID]Project
	suppliers  map[uuid.UUID]Supplier
	currencies map[string]Currency
	pos        map[uuid.UUID]PurchaseOrder
	schedules  map[uuid.UUID]PaymentSchedule
	payments   map[uuid.UUID]Payment
	order      []uuid.UUID

	failScheduleInsert bool
	failReads          error
	lockingTxs         int
	failInvoiceURL     error
}

type memoryProcTx struct {
	repo *memoryProcRepo
}

func newMemoryProcRepo() *memoryProcRepo {
	return &memoryProcRepo{
		projects:   make(map[uuid.UUID]Project),
		suppliers:  make(map[uuid.UUID]Supplier),
		currencies: make(map[string]Currency),
		pos:        make(map[uuid.UUID]PurchaseOrder),
		schedules:  make(map[uuid.UUID]PaymentSchedule),
		payments:   make(map[uuid.UUID]Payment),
	}
}

// WithTx restores every map when fn fails.
func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := *r
	snapshot.projects = maps.Clone(r.projects)
	snapshot.suppliers = maps.Clone(r.suppliers)
	snapshot.currencies = maps.Clone(r.currencies)
	snapshot.pos = maps.Clone(r.pos)
	snapshot.schedules = maps.Clone(r.schedules)
	snapshot.payments = maps.Clone(r.payments)
	snapshot.order = slices.Clone(r.order)
	if err := fn(ctx, &memoryProcTx{repo: r}); err != nil {
		*r = snapshot
		return err
	}
	return nil
}

func (r *memoryProcRepo) WithLockingTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.lockingTxs++
	return r.WithTx(ctx, fn)
}

func (r *memoryProcRepo) ordered(ids func(uuid.UUID) bool) []uuid.UUID {
	var out []uuid.UUID
	for _, id := range r.order {
		if ids(id) {
			out = append(out, id)
		}
	}
	return out
}

func (r *memoryProcRepo) ListProjects(ctx context.Context, filter ListFilter) ([]Project, error) {
	if r.failReads != nil {
		return nil, fetchError("projects", r.failReads)
	}
	var out []Project
	for _, id := range r.ordered(func(id uuid.UUID) bool { _, ok := r.projects[id]; return ok }) {
		out = append(out, r.projects[id])
	}
	return out, nil
}

func (r *memoryProcRepo) GetProject(ctx context.Context, id uuid.UUID) (Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryProcRepo) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	var out []Supplier
	for _, id := range r.ordered(func(id uuid.UUID) bool { _, ok := r.suppliers[id]; return ok }) {
		out = append(out, r.suppliers[id])
	}
	return out, nil
}

func (r *memoryProcRepo) ListCurrencies(ctx context.Context) ([]Currency, error) {
	codes := slices.Sorted(maps.Keys(r.currencies))
	out := make([]Currency, 0, len(codes))
	for _, code := range codes {
		out = append(out, r.currencies[code])
	}
	return out, nil
}

func (r *memoryProcRepo) ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	if r.failReads != nil {
		return nil, fetchError("purchase_orders", r.failReads)
	}
	var out []PurchaseOrder
	for _, id := range r.ordered(func(id uuid.UUID) bool { _, ok := r.pos[id]; return ok }) {
		po := r.pos[id]
		if filter.ProjectID != nil && (po.ProjectID == nil || *po.ProjectID != *filter.ProjectID) {
			continue
		}
		out = append(out, po)
	}
	if filter.NewestFirst {
		slices.Reverse(out)
	}
	return out, nil
}

func (r *memoryProcRepo) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return po, nil
}

func (r *memoryProcRepo) ListSchedules(ctx context.Context, filter ListFilter) ([]PaymentSchedule, error) {
	var out []PaymentSchedule
	for _, id := range r.ordered(func(id uuid.UUID) bool { _, ok := r.schedules[id]; return ok }) {
		s := r.schedules[id]
		if filter.POID != nil && s.POID != *filter.POID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *memoryProcRepo) ListPayments(ctx context.Context, filter ListFilter) ([]Payment, error) {
	var out []Payment
	for _, id := range r.ordered(func(id uuid.UUID) bool { _, ok := r.payments[id]; return ok }) {
		p := r.payments[id]
		if filter.POID != nil {
			if p.ScheduleID == nil || r.schedules[*p.ScheduleID].POID != *filter.POID {
				continue
			}
		}
		out = append(out, p)
	}
	if filter.NewestFirst {
		slices.Reverse(out)
	}
	return out, nil
}

func (r *memoryProcRepo) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (tx *memoryProcTx) track() uuid.UUID {
	id := uuid.New()
	tx.repo.order = append(tx.repo.order, id)
	return id
}

func (tx *memoryProcTx) InsertProject(ctx context.Context, p Project) (Project, error) {
	p.ID = tx.track()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	tx.repo.projects[p.ID] = p
	return p, nil
}

func (tx *memoryProcTx) UpdateProject(ctx context.Context, p Project) (Project, error) {
	current, ok := tx.repo.projects[p.ID]
	if !ok {
		return Project{}, ErrNotFound
	}
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = time.Now()
	tx.repo.projects[p.ID] = p
	return p, nil
}

func (tx *memoryProcTx) InsertSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	s.ID = tx.track()
	tx.repo.suppliers[s.ID] = s
	return s, nil
}

func (tx *memoryProcTx) InsertCurrency(ctx context.Context, c Currency) (Currency, error) {
	if _, ok := tx.repo.currencies[c.Code]; ok {
		return Currency{}, &StoreError{Kind: KindWrite, Table: "currencies", Err: shared.ErrConflict}
	}
	tx.repo.currencies[c.Code] = c
	return c, nil
}

func (tx *memoryProcTx) InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	for _, existing := range tx.repo.pos {
		if existing.Number == po.Number {
			return PurchaseOrder{}, &StoreError{Kind: KindWrite, Table: "purchase_orders", Err: shared.ErrConflict}
		}
	}
	po.ID = tx.track()
	po.CreatedAt = time.Now()
	tx.repo.pos[po.ID] = po
	return po, nil
}

func (tx *memoryProcTx) UpdatePurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	current, ok := tx.repo.pos[po.ID]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	po.CreatedAt = current.CreatedAt
	tx.repo.pos[po.ID] = po
	return po, nil
}

func (tx *memoryProcTx) DeletePurchaseOrder(ctx context.Context, id uuid.UUID) error {
	if _, ok := tx.repo.pos[id]; !ok {
		return ErrNotFound
	}
	delete(tx.repo.pos, id)
	for sid, s := range tx.repo.schedules {
		if s.POID != id {
			continue
		}
		delete(tx.repo.schedules, sid)
		for pid, p := range tx.repo.payments {
			if p.ScheduleID != nil && *p.ScheduleID == sid {
				p.ScheduleID = nil
				tx.repo.payments[pid] = p
			}
		}
	}
	return nil
}

func (tx *memoryProcTx) InsertSchedule(ctx context.Context, s PaymentSchedule) (PaymentSchedule, error) {
	if tx.repo.failScheduleInsert {
		return PaymentSchedule{}, &StoreError{Kind: KindWrite, Table: "payment_schedules", Err: errors.New("connection reset")}
	}
	if _, ok := tx.repo.pos[s.POID]; !ok {
		return PaymentSchedule{}, &StoreError{Kind: KindWrite, Table: "payment_schedules", Err: invalid("po_id", "references an unknown record")}
	}
	s.ID = tx.track()
	tx.repo.schedules[s.ID] = s
	return s, nil
}

func (tx *memoryProcTx) NextPaymentNo(ctx context.Context, poID uuid.UUID) (int, error) {
	next := 1
	for _, s := range tx.repo.schedules {
		if s.POID == poID && s.PaymentNo >= next {
			next = s.PaymentNo + 1
		}
	}
	return next, nil
}

func (tx *memoryProcTx) LockSchedule(ctx context.Context, id uuid.UUID) (PaymentSchedule, error) {
	s, ok := tx.repo.schedules[id]
	if !ok {
		return PaymentSchedule{}, ErrNotFound
	}
	return s, nil
}

func (tx *memoryProcTx) SumPayments(ctx context.Context, scheduleID uuid.UUID) (float64, error) {
	var total float64
	for _, p := range tx.repo.payments {
		if p.ScheduleID != nil && *p.ScheduleID == scheduleID {
			total += p.Amount
		}
	}
	return total, nil
}

func (tx *memoryProcTx) UpdateScheduleStatus(ctx context.Context, id uuid.UUID, status ScheduleStatus) error {
	s, ok := tx.repo.schedules[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	tx.repo.schedules[id] = s
	return nil
}

func (tx *memoryProcTx) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	p.ID = tx.track()
	p.CreatedAt = time.Now()
	tx.repo.payments[p.ID] = p
	return p, nil
}

func (tx *memoryProcTx) SetInvoiceURL(ctx context.Context, paymentID uuid.UUID, url string) error {
	if tx.repo.failInvoiceURL != nil {
		return writeError("payments", tx.repo.failInvoiceURL)
	}
	p, ok := tx.repo.payments[paymentID]
	if !ok {
		return ErrNotFound
	}
	p.InvoiceURL = url
	tx.repo.payments[paymentID] = p
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[module+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+"/"+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	for k := range m.keys {
		if len(k) >= len(key) && k[len(k)-len(key):] == key {
			delete(m.keys, k)
		}
	}
	return nil
}
