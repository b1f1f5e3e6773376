package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Broker is a registered exchanger together with the directions it may service.
type Broker struct {
	ID           string          `json:"id"`
	Holding      decimal.Decimal `json:"security_holding"`
	Capabilities []Direction     `json:"capabilities"`
	RegisteredAt time.Time       `json:"registered_at"`
}

// Capable checks that the broker may service the given direction.
func (b Broker) Capable(d Direction) bool {
	for _, c := range b.Capabilities {
		if c == d {
			return true
		}
	}
	return false
}

// Limit is the maximum reference amount the broker may claim,
// derived from the security holding.
func (b Broker) Limit() decimal.Decimal {
	return b.Holding.Div(decimal.NewFromInt(2))
}
