package reporting

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/po-master/po-master/internal/procurement"
	"github.com/po-master/po-master/internal/reports"
)

// recentProjectLimit is the number of projects shown on the dashboard.
const recentProjectLimit = 5

// Dataset is every record a report view is computed from.
type Dataset struct {
	Projects       []procurement.Project
	PurchaseOrders []procurement.PurchaseOrder
	Schedules      []procurement.PaymentSchedule
	Payments       []procurement.Payment
	Suppliers      []procurement.Supplier
}

// CurrencyCard is a currency summary formatted for display.
type CurrencyCard struct {
	Currency        string `json:"currency"`
	TotalOrdered    string `json:"total_ordered"`
	TotalPaid       string `json:"total_paid"`
	Remaining       string `json:"remaining"`
	PercentComplete string `json:"percent_complete"`
}

func currencyCards(totals reports.CurrencyTotals) []CurrencyCard {
	cards := make([]CurrencyCard, 0, totals.Len())
	for _, s := range totals.Summaries() {
		cards = append(cards, CurrencyCard{
			Currency:        s.Currency,
			TotalOrdered:    FormatMoney(s.Currency, s.TotalOrdered),
			TotalPaid:       FormatMoney(s.Currency, s.TotalPaid),
			Remaining:       FormatMoney(s.Currency, s.Remaining),
			PercentComplete: FormatPercent(s.PercentComplete),
		})
	}
	return cards
}

// Dashboard is the landing page view.
type Dashboard struct {
	AsOf               string                    `json:"as_of"`
	Currencies         reports.CurrencyTotals    `json:"currencies"`
	Cards              []CurrencyCard            `json:"cards"`
	Global             reports.GlobalTotals      `json:"global_totals"`
	ProjectCount       int                       `json:"project_count"`
	PurchaseOrderCount int                       `json:"purchase_order_count"`
	RecentProjects     []reports.EnrichedProject `json:"recent_projects"`
}

// BuildDashboard computes the dashboard view.
func BuildDashboard(ds Dataset, asOf time.Time) Dashboard {
	totals := reports.Aggregate(ds.PurchaseOrders, ds.Schedules, ds.Payments)
	recent := slices.Clone(ds.Projects)
	slices.SortStableFunc(recent, func(a, b procurement.Project) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(recent) > recentProjectLimit {
		recent = recent[:recentProjectLimit]
	}
	ledger := reports.NewPaymentLedger(ds.Schedules, ds.Payments)
	return Dashboard{
		AsOf:               FormatDate(asOf),
		Currencies:         totals,
		Cards:              currencyCards(totals),
		Global:             reports.SumGlobal(ds.PurchaseOrders, ds.Payments),
		ProjectCount:       len(ds.Projects),
		PurchaseOrderCount: len(ds.PurchaseOrders),
		RecentProjects:     reports.EnrichProjects(recent, ds.PurchaseOrders, ledger),
	}
}

// Summary is the reports page view.
type Summary struct {
	AsOf          string                 `json:"as_of"`
	Currencies    reports.CurrencyTotals `json:"currencies"`
	Cards         []CurrencyCard         `json:"cards"`
	Pending       reports.PendingSummary `json:"pending"`
	BudgetPercent int                    `json:"budget_percent"`
}

// BuildSummary computes the reports page view. BudgetPercent is the rounded
// share paid across all currencies.
func BuildSummary(ds Dataset, asOf time.Time) Summary {
	totals := reports.Aggregate(ds.PurchaseOrders, ds.Schedules, ds.Payments)
	global := reports.SumGlobal(ds.PurchaseOrders, ds.Payments)
	return Summary{
		AsOf:          FormatDate(asOf),
		Currencies:    totals,
		Cards:         currencyCards(totals),
		Pending:       reports.SummarizePending(ds.PurchaseOrders, ds.Schedules, asOf),
		BudgetPercent: int(math.Round(global.PercentComplete)),
	}
}

// ProjectsView lists every project with its totals.
type ProjectsView struct {
	Projects []reports.EnrichedProject `json:"projects"`
}

// BuildProjects computes the projects page view.
func BuildProjects(ds Dataset) ProjectsView {
	ledger := reports.NewPaymentLedger(ds.Schedules, ds.Payments)
	return ProjectsView{Projects: reports.EnrichProjects(ds.Projects, ds.PurchaseOrders, ledger)}
}

// PurchaseOrdersView lists purchase orders newest first.
type PurchaseOrdersView struct {
	PurchaseOrders []POLine `json:"purchase_orders"`
}

// POLine is an enriched order with its paid balance.
type POLine struct {
	reports.POView
	Balance       reports.POBalance `json:"balance"`
	AmountDisplay string            `json:"amount_display"`
}

func newestOrdersFirst(pos []procurement.PurchaseOrder) []procurement.PurchaseOrder {
	out := slices.Clone(pos)
	slices.SortStableFunc(out, func(a, b procurement.PurchaseOrder) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// BuildPurchaseOrders computes the purchase order list view.
func BuildPurchaseOrders(ds Dataset) PurchaseOrdersView {
	ordered := newestOrdersFirst(ds.PurchaseOrders)
	views := reports.EnrichPurchaseOrders(ordered, ds.Projects, ds.Suppliers)
	lines := make([]POLine, 0, len(views))
	for i, view := range views {
		lines = append(lines, POLine{
			POView:        view,
			Balance:       reports.BalanceForPO(ordered[i], ds.Schedules, ds.Payments),
			AmountDisplay: FormatMoney(view.EffectiveCurrency, view.Amount),
		})
	}
	return PurchaseOrdersView{PurchaseOrders: lines}
}

// ScheduleLine is a tranche with its display status.
type ScheduleLine struct {
	procurement.PaymentSchedule
	DisplayStatus reports.DisplayStatus `json:"display_status"`
	Currency      string                `json:"currency"`
	AmountDisplay string                `json:"amount_display"`
}

// PurchaseOrderDetail is the single order page view.
type PurchaseOrderDetail struct {
	AsOf      string                `json:"as_of"`
	Order     reports.POView        `json:"purchase_order"`
	Balance   reports.POBalance     `json:"balance"`
	Schedules []ScheduleLine        `json:"schedules"`
	Payments  []reports.PaymentView `json:"payments"`
	Display   map[string]string     `json:"display"`
}

// BuildPurchaseOrderDetail computes the view of one order.
func BuildPurchaseOrderDetail(ds Dataset, id uuid.UUID, asOf time.Time) (PurchaseOrderDetail, error) {
	idx := slices.IndexFunc(ds.PurchaseOrders, func(po procurement.PurchaseOrder) bool { return po.ID == id })
	if idx < 0 {
		return PurchaseOrderDetail{}, procurement.ErrNotFound
	}
	po := ds.PurchaseOrders[idx]
	view := reports.EnrichPurchaseOrders([]procurement.PurchaseOrder{po}, ds.Projects, ds.Suppliers)[0]
	currency := view.EffectiveCurrency

	var schedules []procurement.PaymentSchedule
	lines := make([]ScheduleLine, 0)
	scheduleIDs := make(map[uuid.UUID]struct{})
	for _, s := range ds.Schedules {
		if s.POID != po.ID {
			continue
		}
		schedules = append(schedules, s)
		scheduleIDs[s.ID] = struct{}{}
		lines = append(lines, ScheduleLine{
			PaymentSchedule: s,
			DisplayStatus:   reports.ProjectStatus(s, asOf),
			Currency:        currency,
			AmountDisplay:   FormatMoney(currency, s.Amount),
		})
	}
	slices.SortStableFunc(lines, func(a, b ScheduleLine) int { return cmp.Compare(a.PaymentNo, b.PaymentNo) })

	var payments []procurement.Payment
	for _, p := range ds.Payments {
		if p.ScheduleID == nil {
			continue
		}
		if _, ok := scheduleIDs[*p.ScheduleID]; ok {
			payments = append(payments, p)
		}
	}
	balance := reports.BalanceForPO(po, schedules, payments)
	return PurchaseOrderDetail{
		AsOf:      FormatDate(asOf),
		Order:     view,
		Balance:   balance,
		Schedules: lines,
		Payments:  reports.EnrichPayments(newestPaymentsFirst(payments), schedules, []procurement.PurchaseOrder{po}),
		Display: map[string]string{
			"amount":    FormatMoney(currency, po.Amount),
			"paid":      FormatMoney(currency, balance.TotalPaid),
			"remaining": FormatMoney(currency, balance.Remaining),
		},
	}, nil
}

// PaymentsView lists payments newest first with per-currency totals.
type PaymentsView struct {
	Payments []PaymentLine          `json:"payments"`
	Totals   reports.CurrencyAmounts `json:"totals"`
}

// PaymentLine is an enriched payment with a formatted amount.
type PaymentLine struct {
	reports.PaymentView
	AmountDisplay string `json:"amount_display"`
}

func newestPaymentsFirst(payments []procurement.Payment) []procurement.Payment {
	out := slices.Clone(payments)
	slices.SortStableFunc(out, func(a, b procurement.Payment) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// BuildPayments computes the payments page view.
func BuildPayments(ds Dataset) PaymentsView {
	views := reports.EnrichPayments(newestPaymentsFirst(ds.Payments), ds.Schedules, ds.PurchaseOrders)
	out := PaymentsView{Payments: make([]PaymentLine, 0, len(views))}
	for _, v := range views {
		out.Payments = append(out.Payments, PaymentLine{PaymentView: v, AmountDisplay: FormatMoney(v.Currency, v.Amount)})
		out.Totals.Add(v.Currency, v.Amount)
	}
	return out
}

// OverdueBucket counts overdue tranches of one currency.
type OverdueBucket struct {
	Currency string  `json:"currency"`
	Count    int     `json:"count"`
	Amount   float64 `json:"amount"`
}

// BuildOverdue groups unsettled tranches due before asOf by currency.
func BuildOverdue(ds Dataset, asOf time.Time) []OverdueBucket {
	currencies := reports.ScheduleCurrencies(ds.PurchaseOrders, ds.Schedules)
	var buckets []OverdueBucket
	index := make(map[string]int)
	for _, s := range ds.Schedules {
		if !reports.IsUnsettled(s) || !reports.DateOnly(s.DueDate).Before(reports.DateOnly(asOf)) {
			continue
		}
		currency := currencies[s.ID]
		i, ok := index[currency]
		if !ok {
			i = len(buckets)
			index[currency] = i
			buckets = append(buckets, OverdueBucket{Currency: currency})
		}
		buckets[i].Count++
		buckets[i].Amount += s.Amount
	}
	return buckets
}
