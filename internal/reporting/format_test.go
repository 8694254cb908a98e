package reporting

import (
	"testing"
	"time"
)

func TestFormatMoney(t *testing.T) {
	cases := []struct {
		currency string
		amount   float64
		want     string
	}{
		{"USD", 1234.5, "USD 1,234.50"},
		{"EUR", 0, "EUR 0.00"},
		{"GBP", 1234567.891, "GBP 1,234,567.89"},
		{"USD", -250, "USD -250.00"},
	}
	for _, tc := range cases {
		if got := FormatMoney(tc.currency, tc.amount); got != tc.want {
			t.Fatalf("FormatMoney(%s, %v) = %q, want %q", tc.currency, tc.amount, got, tc.want)
		}
	}
}

func TestFormatPercentAndDate(t *testing.T) {
	if got := FormatPercent(33.333); got != "33.3%" {
		t.Fatalf("unexpected percent %q", got)
	}
	if got := FormatDate(time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)); got != "2024-02-29" {
		t.Fatalf("unexpected date %q", got)
	}
	if got := FormatDate(time.Time{}); got != "" {
		t.Fatalf("zero date should render empty, got %q", got)
	}
}
