// Package pricing maps purchased token amounts to credit grants.
package pricing

import "github.com/shopspring/decimal"

type tier struct {
	threshold decimal.Decimal
	credits   int
}

// Tiers are evaluated highest-first; amounts below the lowest paid tier
// grant zero credits and are treated as non-qualifying by the monitor.
var tiers = []tier{
	{decimal.NewFromInt(25000), 500},
	{decimal.NewFromInt(10000), 120},
	{decimal.NewFromInt(5000), 55},
	{decimal.NewFromInt(2000), 21},
	{decimal.NewFromInt(1000), 10},
}

// Credits returns the credit grant for a human-unit token amount
func Credits(amount decimal.Decimal) int {
	for _, t := range tiers {
		if amount.GreaterThanOrEqual(t.threshold) {
			return t.credits
		}
	}
	return 0
}
