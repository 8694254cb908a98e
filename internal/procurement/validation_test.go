package procurement

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatePercentagesUsesExactDecimalSum(t *testing.T) {
	thirds := []TrancheInput{{Percentage: 33.33}, {Percentage: 33.33}, {Percentage: 33.34}}
	require.NoError(t, validatePercentages(thirds))
	require.NoError(t, validatePercentages(nil))

	err := validatePercentages([]TrancheInput{{Percentage: 50}, {Percentage: 50.01}})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields["tranches"], "100.01")
}

func TestValidateTranchesMixedAmountAndPercentage(t *testing.T) {
	amount := 400.0
	require.NoError(t, validateTranches([]TrancheInput{{Amount: &amount}, {Percentage: 60}}, 1000))

	half := 50.0
	require.NoError(t, validateTranches([]TrancheInput{{Amount: &half}, {Percentage: 50}}, 100.03))

	err := validateTranches([]TrancheInput{{Amount: &amount}, {Percentage: 50}}, 1000)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields["tranches"], "got 900.00 of 1000.00")

	matching := 500.0
	require.NoError(t, validateTranches([]TrancheInput{{Percentage: 50, Amount: &matching}, {Percentage: 50}}, 1000))
}

func TestTrancheAmountRoundsToCents(t *testing.T) {
	require.Equal(t, 333.3, trancheAmount(33.33, 1000))
	require.Equal(t, 0.0, trancheAmount(10, 0))
	require.Equal(t, 41.15, trancheAmount(12.5, 329.2))
}

func TestPercentageOf(t *testing.T) {
	require.Equal(t, 15.0, percentageOf(150, 1000))
	require.Equal(t, 0.0, percentageOf(150, 0))
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "is required", "a": "must be 3 characters"}}
	require.Equal(t, "procurement: validation failed: a: must be 3 characters; b: is required", err.Error())
}

func TestResolveCurrency(t *testing.T) {
	require.Equal(t, "USD", ResolveCurrency(""))
	require.Equal(t, "EUR", ResolveCurrency(" eur"))
}
