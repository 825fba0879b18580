package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnits maps ISO 4217 currency codes to their minor-unit exponent.
// Currencies not listed use defaultMinorUnits.
var minorUnits = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0,
	"KMF": 0, "KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0,
	"VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

const defaultMinorUnits int32 = 2

// Exponent returns the minor-unit exponent for a currency code.
func Exponent(currency string) int32 {
	if units, ok := minorUnits[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return units
	}
	return defaultMinorUnits
}

// Normalize rounds an amount half-up to the canonical scale of the currency.
// Every summation and comparison in the engine routes through this so partial
// amounts never drift from the currency's scale.
func Normalize(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(Exponent(currency))
}

// Equal reports whether two amounts are equal once normalized to the currency.
func Equal(a, b decimal.Decimal, currency string) bool {
	return Normalize(a, currency).Equal(Normalize(b, currency))
}

// Sum normalizes each amount and returns the normalized total. An empty input
// yields zero.
func Sum(currency string, amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(Normalize(amount, currency))
	}
	return Normalize(total, currency)
}
