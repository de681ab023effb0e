package utils

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

var currencyPattern = regexp.MustCompile(`^-?\$\d{1,3}(,\d{3})*\.\d{2}$`)

// Property: FormatCurrency produces a dollar amount with comma-grouped
// thousands and two decimals that parses back to the rounded input.
func TestProperty_CurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("currency format is well formed and value preserving", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatCurrency(amount)
			if !currencyPattern.MatchString(formatted) {
				t.Logf("bad format for %f: %s", amount, formatted)
				return false
			}

			plain := strings.NewReplacer("$", "", ",", "").Replace(formatted)
			parsed, err := strconv.ParseFloat(plain, 64)
			if err != nil {
				return false
			}
			return math.Abs(parsed-amount) <= 0.005+1e-9*math.Abs(amount)
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("P&L carries an explicit sign", prop.ForAll(
		func(amount float64) bool {
			if math.Abs(amount) < 0.005 {
				return true // rounds to zero
			}
			formatted := FormatPnL(amount)
			if amount > 0 {
				return strings.HasPrefix(formatted, "+$")
			}
			return strings.HasPrefix(formatted, "-$")
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.TestingRun(t)
}

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0, "$0.00"},
		{1234.5, "$1,234.50"},
		{999.999, "$1,000.00"},
		{-1_000_000, "-$1,000,000.00"},
		{0.004, "$0.00"},
		{123456789.01, "$123,456,789.01"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCurrency(tt.amount), "amount %v", tt.amount)
	}
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "+2.50%", FormatPercent(2.5))
	assert.Equal(t, "-1.00%", FormatPercent(-1))
	assert.Equal(t, "0.00%", FormatPercent(0))

	assert.Equal(t, "+$0.00", FormatPnL(0))
	assert.Equal(t, "-$12.30", FormatPnL(-12.3))

	assert.Equal(t, "1,234,567", FormatQuantity(1234567))
	assert.Equal(t, "-1,000", FormatQuantity(-1000))
	assert.Equal(t, "12", FormatQuantity(12))

	p := 182.456
	assert.Equal(t, "182.46", FormatPrice(&p))
	assert.Equal(t, "-", FormatPrice(nil))
}
