package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeScalesByCurrency(t *testing.T) {
	cases := []struct {
		name     string
		amount   string
		currency string
		want     string
	}{
		{"usd rounds to cents", "10.005", "USD", "10.01"},
		{"usd keeps scale", "10.10", "USD", "10.1"},
		{"jpy has no minor units", "100.4", "JPY", "100"},
		{"jpy rounds half up", "100.5", "JPY", "101"},
		{"kwd keeps three places", "1.2345", "KWD", "1.235"},
		{"unknown currency defaults to two", "3.14159", "XTS", "3.14"},
		{"lowercase currency", "2.499", "usd", "2.5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tc.amount)
			want := decimal.RequireFromString(tc.want)
			assert.True(t, Normalize(amount, tc.currency).Equal(want))
		})
	}
}

func TestEqual(t *testing.T) {
	a := decimal.RequireFromString("10.001")
	b := decimal.RequireFromString("10.004")
	assert.True(t, Equal(a, b, "USD"))
	assert.False(t, Equal(a, b, "KWD"))
}

func TestSum(t *testing.T) {
	total := Sum("USD",
		decimal.RequireFromString("0.005"),
		decimal.RequireFromString("0.005"),
		decimal.RequireFromString("0.99"),
	)
	assert.True(t, total.Equal(decimal.RequireFromString("1.01")))

	assert.True(t, Sum("USD").IsZero())
}
