package reports

import (
	"github.com/google/uuid"

	"github.com/po-master/po-master/internal/procurement"
)

// Unassigned is displayed when a referenced record is absent.
const Unassigned = "—"

// PaymentLedger resolves paid totals per purchase order through schedules.
type PaymentLedger struct {
	paidByPO map[uuid.UUID]float64
}

// NewPaymentLedger indexes payments by the order of their schedule.
// Manual payments and payments of unknown schedules belong to no order.
func NewPaymentLedger(schedules []procurement.PaymentSchedule, payments []procurement.Payment) *PaymentLedger {
	scheduleOrder := make(map[uuid.UUID]uuid.UUID, len(schedules))
	for _, s := range schedules {
		scheduleOrder[s.ID] = s.POID
	}
	ledger := &PaymentLedger{paidByPO: make(map[uuid.UUID]float64)}
	for _, p := range payments {
		if p.ScheduleID == nil {
			continue
		}
		poID, ok := scheduleOrder[*p.ScheduleID]
		if !ok {
			continue
		}
		ledger.paidByPO[poID] += p.Amount
	}
	return ledger
}

// PaidForPO returns the amount paid against an order's schedules.
func (l *PaymentLedger) PaidForPO(poID uuid.UUID) float64 {
	if l == nil {
		return 0
	}
	return l.paidByPO[poID]
}

// EnrichedProject is a project with its order and payment totals.
// PaidResolved is false when TotalPaid was not computed and reads 0.
type EnrichedProject struct {
	procurement.Project
	TotalPOAmount float64 `json:"total_po_amount"`
	TotalPaid     float64 `json:"total_paid"`
	PaidResolved  bool    `json:"paid_resolved"`
}

// EnrichProjects returns one row per project in input order.
// A nil ledger leaves TotalPaid at 0 with PaidResolved false.
func EnrichProjects(projects []procurement.Project, pos []procurement.PurchaseOrder, ledger *PaymentLedger) []EnrichedProject {
	ordered := make(map[uuid.UUID]float64, len(projects))
	paid := make(map[uuid.UUID]float64, len(projects))
	for _, po := range pos {
		if po.ProjectID == nil {
			continue
		}
		ordered[*po.ProjectID] += po.Amount
		paid[*po.ProjectID] += ledger.PaidForPO(po.ID)
	}
	out := make([]EnrichedProject, 0, len(projects))
	for _, p := range projects {
		out = append(out, EnrichedProject{
			Project:       p,
			TotalPOAmount: ordered[p.ID],
			TotalPaid:     paid[p.ID],
			PaidResolved:  ledger != nil,
		})
	}
	return out
}

// POBalance is the paid and remaining amount of one order.
type POBalance struct {
	TotalPaid float64 `json:"total_paid"`
	Remaining float64 `json:"remaining"`
}

// BalanceForPO sums payments made against the order's schedules.
func BalanceForPO(po procurement.PurchaseOrder, schedules []procurement.PaymentSchedule, payments []procurement.Payment) POBalance {
	ids := make(map[uuid.UUID]struct{})
	for _, s := range schedules {
		if s.POID == po.ID {
			ids[s.ID] = struct{}{}
		}
	}
	var paid float64
	for _, p := range payments {
		if p.ScheduleID == nil {
			continue
		}
		if _, ok := ids[*p.ScheduleID]; ok {
			paid += p.Amount
		}
	}
	return POBalance{TotalPaid: paid, Remaining: po.Amount - paid}
}

// POView is a purchase order row for list displays.
type POView struct {
	procurement.PurchaseOrder
	ProjectName       string `json:"project_name"`
	Supplier          string `json:"supplier"`
	EffectiveCurrency string `json:"effective_currency"`
}

// EnrichPurchaseOrders resolves project and supplier names for each order.
// The supplier falls back to the legacy supplier name, then Unassigned.
func EnrichPurchaseOrders(pos []procurement.PurchaseOrder, projects []procurement.Project, suppliers []procurement.Supplier) []POView {
	projectNames := make(map[uuid.UUID]string, len(projects))
	for _, p := range projects {
		projectNames[p.ID] = p.Name
	}
	supplierNames := make(map[uuid.UUID]string, len(suppliers))
	for _, s := range suppliers {
		supplierNames[s.ID] = s.Name
	}
	out := make([]POView, 0, len(pos))
	for _, po := range pos {
		view := POView{
			PurchaseOrder:     po,
			ProjectName:       Unassigned,
			Supplier:          Unassigned,
			EffectiveCurrency: procurement.ResolveCurrency(po.Currency),
		}
		if po.ProjectID != nil {
			if name, ok := projectNames[*po.ProjectID]; ok {
				view.ProjectName = name
			}
		}
		if po.SupplierID != nil {
			if name, ok := supplierNames[*po.SupplierID]; ok {
				view.Supplier = name
			}
		}
		if view.Supplier == Unassigned && po.SupplierName != "" {
			view.Supplier = po.SupplierName
		}
		out = append(out, view)
	}
	return out
}

// PaymentView is a payment row with its schedule and order resolved.
type PaymentView struct {
	procurement.Payment
	PONumber     string     `json:"po_number"`
	POID         *uuid.UUID `json:"po_id,omitempty"`
	ScheduleType string     `json:"schedule_type"`
	PaymentNo    int        `json:"payment_no,omitempty"`
	Currency     string     `json:"currency"`
}

// EnrichPayments joins each payment to its schedule and order.
func EnrichPayments(payments []procurement.Payment, schedules []procurement.PaymentSchedule, pos []procurement.PurchaseOrder) []PaymentView {
	scheduleByID := make(map[uuid.UUID]procurement.PaymentSchedule, len(schedules))
	for _, s := range schedules {
		scheduleByID[s.ID] = s
	}
	poByID := make(map[uuid.UUID]procurement.PurchaseOrder, len(pos))
	for _, po := range pos {
		poByID[po.ID] = po
	}
	currencies := ScheduleCurrencies(pos, schedules)
	out := make([]PaymentView, 0, len(payments))
	for _, p := range payments {
		view := PaymentView{
			Payment:      p,
			PONumber:     Unassigned,
			ScheduleType: Unassigned,
			Currency:     PaymentCurrency(p, currencies),
		}
		if p.ScheduleID != nil {
			if s, ok := scheduleByID[*p.ScheduleID]; ok {
				view.ScheduleType = string(s.Type)
				view.PaymentNo = s.PaymentNo
				if po, ok := poByID[s.POID]; ok {
					view.PONumber = po.Number
					poID := po.ID
					view.POID = &poID
				}
			}
		}
		out = append(out, view)
	}
	return out
}
