package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTierFor(t *testing.T) {

	type test struct {
		kind   TierKind
		volume string
		tier   Tier
	}

	tests := map[string]test{
		"client-none":       {ClientKind, "99.99", NoTier},
		"client-silver":     {ClientKind, "100", ClientSilver},
		"client-gold":       {ClientKind, "500", ClientGold},
		"client-below-gold": {ClientKind, "499.99", ClientSilver},
		"client-platinum":   {ClientKind, "1000", ClientPlatinum},
		"client-top-only":   {ClientKind, "5000", ClientPlatinum},
		"broker-none":       {BrokerKind, "399.99", NoTier},
		"broker-senior":     {BrokerKind, "400", BrokerSenior},
		"broker-elite":      {BrokerKind, "1200", BrokerElite},
		"broker-top-only":   {BrokerKind, "10000", BrokerElite},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			v := decimal.RequireFromString(tt.volume)
			assert.Equal(t, tt.tier, TierFor(tt.kind, v))
		})
	}
}
