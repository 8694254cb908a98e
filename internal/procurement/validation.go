package procurement

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

var (
	hundred = decimal.NewFromInt(100)
	cent    = decimal.New(1, -2)
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("project_status", oneOf(ProjectStatusActive, ProjectStatusOnHold, ProjectStatusClosed))
	_ = v.RegisterValidation("po_status", oneOf(POStatusIssued, POStatusApproved, POStatusInProgress, POStatusClosed, POStatusCancelled))
	_ = v.RegisterValidation("schedule_type", oneOf(ScheduleTypeAdvance, ScheduleTypeMilestone, ScheduleTypeFinal, ScheduleTypeRetention, ScheduleTypeVariation))
	_ = v.RegisterValidation("payment_method", oneOf(PaymentMethodBankTransfer, PaymentMethodSWIFT, PaymentMethodCheck, PaymentMethodCash))
	return v
}

func oneOf[T ~string](allowed ...T) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return slices.Contains(allowed, T(fl.Field().String()))
	}
}

// validateStruct runs struct tags and converts failures into a ValidationError.
func validateStruct(v *validator.Validate, input any) error {
	err := v.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe.Namespace())] = fieldMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

// fieldPath drops the struct name and embedded struct segments from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	return strings.TrimPrefix(ns, "POHeaderInput.")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "len":
		return fmt.Sprintf("must be %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "datetime":
		return "must be a date formatted YYYY-MM-DD"
	case "email":
		return "must be a valid email"
	case "url":
		return "must be a valid URL"
	case "alpha":
		return "must contain letters only"
	case "required_without":
		return fmt.Sprintf("is required when %s is empty", fe.Param())
	case "project_status", "po_status", "schedule_type", "payment_method":
		return fmt.Sprintf("unsupported value %q", fe.Value())
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}

// validateTranches checks the tranches of a new order against its amount.
// When every tranche carries a percentage the percentages must add up to 100.
// Otherwise the effective amounts must add up to the order amount, allowing a
// cent of rounding per percentage-derived tranche.
func validateTranches(tranches []TrancheInput, total float64) error {
	if len(tranches) == 0 {
		return nil
	}
	fields := make(map[string]string)
	byPercentage := true
	sum := decimal.Zero
	slack := decimal.Zero
	for i, t := range tranches {
		if msg, ok := trancheMismatch(t, total); ok {
			fields[fmt.Sprintf("tranches[%d].amount", i)] = msg
		}
		if t.Amount != nil {
			sum = sum.Add(decimal.NewFromFloat(*t.Amount).Round(2))
			if t.Percentage <= 0 {
				byPercentage = false
			}
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(trancheAmount(t.Percentage, total)))
		slack = slack.Add(cent)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	if byPercentage {
		return validatePercentages(tranches)
	}
	want := decimal.NewFromFloat(total).Round(2)
	if sum.Sub(want).Abs().GreaterThan(slack) {
		return &ValidationError{Fields: map[string]string{
			"tranches": fmt.Sprintf("%s (got %s of %s)", ErrTrancheAmountSum.Error(), sum.StringFixed(2), want.StringFixed(2)),
		}}
	}
	return nil
}

// trancheMismatch reports a tranche whose explicit amount disagrees with its percentage.
func trancheMismatch(t TrancheInput, total float64) (string, bool) {
	if t.Amount == nil || t.Percentage <= 0 {
		return "", false
	}
	expected := decimal.NewFromFloat(trancheAmount(t.Percentage, total))
	if decimal.NewFromFloat(*t.Amount).Round(2).Equal(expected) {
		return "", false
	}
	return fmt.Sprintf("does not match percentage %s%% (expected %s)", decimal.NewFromFloat(t.Percentage).String(), expected.StringFixed(2)), true
}

// validatePercentages requires tranche percentages to add up to exactly 100.
func validatePercentages(tranches []TrancheInput) error {
	if len(tranches) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, t := range tranches {
		sum = sum.Add(decimal.NewFromFloat(t.Percentage))
	}
	if !sum.Equal(hundred) {
		return &ValidationError{Fields: map[string]string{
			"tranches": fmt.Sprintf("%s (got %s%%)", ErrPercentageSum.Error(), sum.String()),
		}}
	}
	return nil
}

// trancheAmount returns percentage/100 * total rounded to cents.
func trancheAmount(percentage, total float64) float64 {
	amount, _ := decimal.NewFromFloat(percentage).Div(hundred).Mul(decimal.NewFromFloat(total)).Round(2).Float64()
	return amount
}

// percentageOf returns amount as a share of total, rounded to four decimals.
func percentageOf(amount, total float64) float64 {
	if total == 0 {
		return 0
	}
	pct, _ := decimal.NewFromFloat(amount).Mul(hundred).Div(decimal.NewFromFloat(total)).Round(4).Float64()
	return pct
}

func parseDate(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	return d, nil
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
