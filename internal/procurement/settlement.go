package procurement

import (
	"fmt"
	"strings"
)

// SettlementPolicy decides the schedule status after a payment is recorded.
type SettlementPolicy string

const (
	// SettleAnyPayment marks a schedule Paid on any payment against it.
	SettleAnyPayment SettlementPolicy = "any_payment"
	// SettleCumulative marks a schedule Paid once payments cover its amount, else Partial.
	SettleCumulative SettlementPolicy = "cumulative"
)

// ParseSettlementPolicy validates a configured policy name. Empty selects SettleAnyPayment.
func ParseSettlementPolicy(raw string) (SettlementPolicy, error) {
	switch SettlementPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SettleAnyPayment:
		return SettleAnyPayment, nil
	case SettleCumulative:
		return SettleCumulative, nil
	default:
		return "", fmt.Errorf("procurement: unknown settlement policy %q", raw)
	}
}

// Settle returns the status a schedule moves to once paidTotal has been paid against it.
// A Paid schedule stays Paid.
func (p SettlementPolicy) Settle(current ScheduleStatus, scheduleAmount, paidTotal float64) ScheduleStatus {
	if current == ScheduleStatusPaid {
		return ScheduleStatusPaid
	}
	switch p {
	case SettleCumulative:
		switch {
		case paidTotal >= scheduleAmount:
			return ScheduleStatusPaid
		case paidTotal > 0:
			return ScheduleStatusPartial
		default:
			return current
		}
	default:
		return ScheduleStatusPaid
	}
}
