package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDirection_Convert(t *testing.T) {

	type test struct {
		direction Direction
		amount    string
		rate      string
		converted string
	}

	tests := map[string]test{
		// 1000 INR at rate 90 is ~11.11 reference units
		"i2c-divides":    {I2C, "1000", "90", "11.11"},
		"n2c-divides":    {N2C, "500", "160", "3.13"},
		"c2i-multiplies": {C2I, "11.5", "90", "1035.00"},
		"c2n-multiplies": {C2N, "10", "160", "1600.00"},
		"unit-rate":      {I2C, "42", "1", "42.00"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			rate := decimal.RequireFromString(tt.rate)
			converted := tt.direction.Convert(amount, rate)
			assert.Equal(t, tt.converted, DisplayAmount(converted))
		})
	}
}

func TestDirection_Reference(t *testing.T) {
	rate := decimal.RequireFromString("90")

	// to-crypto tickets store the fiat input divided by the rate
	ref := I2C.Reference(decimal.NewFromInt(1000), rate)
	assert.Equal(t, "11.11", DisplayAmount(ref))
	assert.Equal(t, "1000.00", DisplayAmount(I2C.Local(decimal.NewFromInt(1000), rate)))

	// from-crypto tickets are already in reference currency
	ref = C2I.Reference(decimal.NewFromInt(20), rate)
	assert.Equal(t, "20.00", DisplayAmount(ref))
	assert.Equal(t, "1800.00", DisplayAmount(C2I.Local(decimal.NewFromInt(20), rate)))
}

func TestKnownDirections(t *testing.T) {
	assert.Len(t, KnownDirections(), 4)
	assert.True(t, I2C.Valid())
	assert.False(t, Direction("X2Y").Valid())
	assert.False(t, NoDirection.Valid())
}
