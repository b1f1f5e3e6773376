package model

import "github.com/shopspring/decimal"

// DisplayAmount formats the given amount for display with 2 decimal places.
// Ledger values are never rounded before accumulation, only here.
func DisplayAmount(v decimal.Decimal) string {
	return v.StringFixed(2)
}
