package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCreditsBoundaries(t *testing.T) {
	cases := []struct {
		amount  int64
		credits int
	}{
		{0, 0},
		{999, 0},
		{1000, 10},
		{1999, 10},
		{2000, 21},
		{4999, 21},
		{5000, 55},
		{9999, 55},
		{10000, 120},
		{24999, 120},
		{25000, 500},
		{1000000, 500},
	}

	for _, tc := range cases {
		got := Credits(decimal.NewFromInt(tc.amount))
		assert.Equal(t, tc.credits, got, "amount %d", tc.amount)
	}
}

func TestCreditsFractionalAmounts(t *testing.T) {
	// Just under a tier boundary stays in the lower tier
	amount, _ := decimal.NewFromString("4999.999999999")
	assert.Equal(t, 21, Credits(amount))

	amount, _ = decimal.NewFromString("999.999999999")
	assert.Equal(t, 0, Credits(amount))
}

func TestCreditsMonotonic(t *testing.T) {
	prev := 0
	for amount := int64(0); amount <= 30000; amount += 250 {
		got := Credits(decimal.NewFromInt(amount))
		assert.GreaterOrEqual(t, got, prev, "amount %d", amount)
		prev = got
	}
}
