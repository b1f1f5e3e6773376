package model

import "github.com/shopspring/decimal"

// Direction defines a custom exchange direction type.
type Direction string

const (
	// NoDirection is an undefined direction.
	NoDirection Direction = ""
	// I2C converts INR to crypto.
	I2C Direction = "I2C"
	// C2I converts crypto to INR.
	C2I Direction = "C2I"
	// N2C converts NPR to crypto.
	N2C Direction = "N2C"
	// C2N converts crypto to NPR.
	C2N Direction = "C2N"
)

// Directions contains the known exchange directions.
var Directions = map[string]Direction{
	"I2C": I2C,
	"C2I": C2I,
	"N2C": N2C,
	"C2N": C2N,
}

// KnownDirections returns all known directions.
func KnownDirections() []Direction {
	dd := make([]Direction, len(Directions))
	i := 0
	for _, d := range Directions {
		dd[i] = d
		i++
	}
	return dd
}

// Valid checks that the direction is one of the known directions.
func (d Direction) Valid() bool {
	_, ok := Directions[string(d)]
	return ok
}

// ToCrypto returns true for directions consuming fiat and paying out crypto.
func (d Direction) ToCrypto() bool {
	return d == I2C || d == N2C
}

// Convert converts the given amount with the direction rate.
// to-crypto directions divide the fiat amount by the rate to produce the
// reference currency amount, from-crypto directions multiply the reference
// amount to produce the fiat leg.
func (d Direction) Convert(amount, rate decimal.Decimal) decimal.Decimal {
	if d.ToCrypto() {
		return amount.Div(rate)
	}
	return amount.Mul(rate)
}

// Reference returns the reference currency amount for a ticket of this
// direction: to-crypto inputs are fiat and get divided by the rate,
// from-crypto inputs are already in reference currency.
func (d Direction) Reference(amount, rate decimal.Decimal) decimal.Decimal {
	if d.ToCrypto() {
		return amount.Div(rate)
	}
	return amount
}

// Local returns the fiat leg of a ticket of this direction for display.
func (d Direction) Local(amount, rate decimal.Decimal) decimal.Decimal {
	if d.ToCrypto() {
		return amount
	}
	return amount.Mul(rate)
}
