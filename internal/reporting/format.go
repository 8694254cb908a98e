package reporting

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const dateLayout = "2006-01-02"

var printer = message.NewPrinter(language.English)

// FormatMoney renders an amount with thousands separators behind its currency code.
func FormatMoney(currency string, amount float64) string {
	return currency + " " + printer.Sprintf("%.2f", amount)
}

// FormatPercent renders a percentage with one decimal.
func FormatPercent(pct float64) string {
	return printer.Sprintf("%.1f%%", pct)
}

// FormatDate renders an ISO calendar date, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
