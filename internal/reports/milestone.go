package reports

import (
	"time"

	"github.com/po-master/po-master/internal/procurement"
)

// DisplayStatus is the status shown for a schedule line.
type DisplayStatus string

const (
	DisplayPaid    DisplayStatus = "Paid"
	DisplayPartial DisplayStatus = "Partial"
	DisplayPending DisplayStatus = "Pending"
	DisplayOverdue DisplayStatus = "Overdue"
)

// DateOnly drops the time of day, keeping the calendar date t has in its own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isOverdue(due, today time.Time) bool {
	return DateOnly(due).Before(DateOnly(today))
}

// ProjectStatus derives the display status of a schedule on the given day.
// Paid and Partial are shown as stored; anything else is Overdue when the due
// date is strictly before today, else Pending.
func ProjectStatus(s procurement.PaymentSchedule, today time.Time) DisplayStatus {
	switch s.Status {
	case procurement.ScheduleStatusPaid:
		return DisplayPaid
	case procurement.ScheduleStatusPartial:
		return DisplayPartial
	}
	if isOverdue(s.DueDate, today) {
		return DisplayOverdue
	}
	return DisplayPending
}

// PendingSummary partitions unsettled schedules by due date.
type PendingSummary struct {
	OverdueCount  int             `json:"overdue_count"`
	UpcomingCount int             `json:"upcoming_count"`
	TotalPending  CurrencyAmounts `json:"total_pending"`
}

// IsUnsettled reports whether a schedule still awaits payment.
func IsUnsettled(s procurement.PaymentSchedule) bool {
	return s.Status == procurement.ScheduleStatusPending || s.Status == procurement.ScheduleStatusPartial
}

// SummarizePending counts Pending and Partial schedules as overdue or upcoming
// and sums their amounts per order currency.
func SummarizePending(pos []procurement.PurchaseOrder, schedules []procurement.PaymentSchedule, today time.Time) PendingSummary {
	currencies := ScheduleCurrencies(pos, schedules)
	var summary PendingSummary
	for _, s := range schedules {
		if !IsUnsettled(s) {
			continue
		}
		if isOverdue(s.DueDate, today) {
			summary.OverdueCount++
		} else {
			summary.UpcomingCount++
		}
		summary.TotalPending.Add(currencies[s.ID], s.Amount)
	}
	return summary
}
