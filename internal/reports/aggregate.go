// Package reports turns purchase orders, payment schedules and payments into
// currency grouped figures. Every function is pure and safe for concurrent use.
package reports

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/po-master/po-master/internal/procurement"
)

// CurrencySummary holds the totals of one currency.
type CurrencySummary struct {
	Currency        string  `json:"currency"`
	TotalOrdered    float64 `json:"total_ordered"`
	TotalPaid       float64 `json:"total_paid"`
	Remaining       float64 `json:"remaining"`
	PercentComplete float64 `json:"percent_complete"`
}

// CurrencyTotals keeps summaries in order of first appearance.
type CurrencyTotals struct {
	rows  []CurrencySummary
	index map[string]int
}

func (c *CurrencyTotals) entry(code string) *CurrencySummary {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	i, ok := c.index[code]
	if !ok {
		i = len(c.rows)
		c.index[code] = i
		c.rows = append(c.rows, CurrencySummary{Currency: code})
	}
	return &c.rows[i]
}

// Get returns the summary of code.
func (c CurrencyTotals) Get(code string) (CurrencySummary, bool) {
	i, ok := c.index[code]
	if !ok {
		return CurrencySummary{}, false
	}
	return c.rows[i], true
}

// Len reports the number of currencies.
func (c CurrencyTotals) Len() int { return len(c.rows) }

// Summaries returns a copy of the rows in first-appearance order.
func (c CurrencyTotals) Summaries() []CurrencySummary {
	out := make([]CurrencySummary, len(c.rows))
	copy(out, c.rows)
	return out
}

// MarshalJSON renders the totals as an ordered array.
func (c CurrencyTotals) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Summaries())
}

// UnmarshalJSON restores totals rendered by MarshalJSON.
func (c *CurrencyTotals) UnmarshalJSON(data []byte) error {
	var rows []CurrencySummary
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	*c = CurrencyTotals{}
	for _, row := range rows {
		*c.entry(row.Currency) = row
	}
	return nil
}

// Aggregate groups orders and payments by currency.
//
// Orders count under their own currency, defaulting to USD. Payments count
// under the currency of their schedule's order; payments whose schedule is
// unknown, including manual payments, count under USD. Remaining may go
// negative on overpayment. PercentComplete is 0 when nothing was ordered.
func Aggregate(pos []procurement.PurchaseOrder, schedules []procurement.PaymentSchedule, payments []procurement.Payment) CurrencyTotals {
	var totals CurrencyTotals
	for _, po := range pos {
		totals.entry(procurement.ResolveCurrency(po.Currency)).TotalOrdered += po.Amount
	}
	scheduleCurrencies := ScheduleCurrencies(pos, schedules)
	for _, p := range payments {
		totals.entry(PaymentCurrency(p, scheduleCurrencies)).TotalPaid += p.Amount
	}
	for i := range totals.rows {
		row := &totals.rows[i]
		row.Remaining = row.TotalOrdered - row.TotalPaid
		row.PercentComplete = percent(row.TotalPaid, row.TotalOrdered)
	}
	return totals
}

// ScheduleCurrencies maps each schedule id to its order's currency.
// Schedules whose order is missing map to USD.
func ScheduleCurrencies(pos []procurement.PurchaseOrder, schedules []procurement.PaymentSchedule) map[uuid.UUID]string {
	poCurrency := make(map[uuid.UUID]string, len(pos))
	for _, po := range pos {
		poCurrency[po.ID] = procurement.ResolveCurrency(po.Currency)
	}
	out := make(map[uuid.UUID]string, len(schedules))
	for _, s := range schedules {
		currency, ok := poCurrency[s.POID]
		if !ok {
			currency = procurement.DefaultCurrency
		}
		out[s.ID] = currency
	}
	return out
}

// PaymentCurrency resolves the effective currency of a payment.
func PaymentCurrency(p procurement.Payment, scheduleCurrencies map[uuid.UUID]string) string {
	if p.ScheduleID == nil {
		return procurement.DefaultCurrency
	}
	if currency, ok := scheduleCurrencies[*p.ScheduleID]; ok {
		return currency
	}
	return procurement.DefaultCurrency
}

// GlobalTotals sums every order and payment without regard to currency.
// The figures mix currencies and are only meaningful for single-currency data.
type GlobalTotals struct {
	TotalOrdered    float64 `json:"total_ordered"`
	TotalPaid       float64 `json:"total_paid"`
	Remaining       float64 `json:"remaining"`
	PercentComplete float64 `json:"percent_complete"`
}

// SumGlobal computes GlobalTotals.
func SumGlobal(pos []procurement.PurchaseOrder, payments []procurement.Payment) GlobalTotals {
	var g GlobalTotals
	for _, po := range pos {
		g.TotalOrdered += po.Amount
	}
	for _, p := range payments {
		g.TotalPaid += p.Amount
	}
	g.Remaining = g.TotalOrdered - g.TotalPaid
	g.PercentComplete = percent(g.TotalPaid, g.TotalOrdered)
	return g
}

func percent(part, whole float64) float64 {
	if whole > 0 {
		return part / whole * 100
	}
	return 0
}

// CurrencyAmount is one currency's share of a grouped sum.
type CurrencyAmount struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

// CurrencyAmounts is a currency grouped sum in order of first appearance.
type CurrencyAmounts struct {
	rows  []CurrencyAmount
	index map[string]int
}

// Add accumulates amount under code.
func (c *CurrencyAmounts) Add(code string, amount float64) {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	i, ok := c.index[code]
	if !ok {
		i = len(c.rows)
		c.index[code] = i
		c.rows = append(c.rows, CurrencyAmount{Currency: code})
	}
	c.rows[i].Amount += amount
}

// Get returns the amount for code.
func (c CurrencyAmounts) Get(code string) (float64, bool) {
	i, ok := c.index[code]
	if !ok {
		return 0, false
	}
	return c.rows[i].Amount, true
}

// Len reports the number of currencies.
func (c CurrencyAmounts) Len() int { return len(c.rows) }

// Items returns a copy of the rows.
func (c CurrencyAmounts) Items() []CurrencyAmount {
	out := make([]CurrencyAmount, len(c.rows))
	copy(out, c.rows)
	return out
}

// MarshalJSON renders the amounts as an ordered array.
func (c CurrencyAmounts) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Items())
}

// UnmarshalJSON restores amounts rendered by MarshalJSON.
func (c *CurrencyAmounts) UnmarshalJSON(data []byte) error {
	var rows []CurrencyAmount
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	*c = CurrencyAmounts{}
	for _, row := range rows {
		c.Add(row.Currency, row.Amount)
	}
	return nil
}
