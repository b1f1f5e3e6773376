package model

import "github.com/shopspring/decimal"

// Tier is a volume-threshold-derived classification used to grant external privileges.
type Tier string

const (
	// NoTier means no threshold has been crossed yet.
	NoTier Tier = ""

	// ClientSilver is the first client tier.
	ClientSilver Tier = "silver"
	// ClientGold is the middle client tier.
	ClientGold Tier = "gold"
	// ClientPlatinum is the top client tier.
	ClientPlatinum Tier = "platinum"

	// BrokerSenior is the first broker tier.
	BrokerSenior Tier = "senior"
	// BrokerElite is the top broker tier.
	BrokerElite Tier = "elite"
)

// TierKind separates the client and broker threshold ladders.
type TierKind string

const (
	ClientKind TierKind = "client"
	BrokerKind TierKind = "broker"
)

type threshold struct {
	volume decimal.Decimal
	tier   Tier
}

// highest threshold first, so the lookup returns the single highest tier crossed
var (
	clientThresholds = []threshold{
		{decimal.NewFromInt(1000), ClientPlatinum},
		{decimal.NewFromInt(500), ClientGold},
		{decimal.NewFromInt(100), ClientSilver},
	}
	brokerThresholds = []threshold{
		{decimal.NewFromInt(1200), BrokerElite},
		{decimal.NewFromInt(400), BrokerSenior},
	}
)

// TierFor returns the single highest tier crossed by the cumulative volume,
// or NoTier when the lowest threshold has not been met.
func TierFor(kind TierKind, volume decimal.Decimal) Tier {
	tt := clientThresholds
	if kind == BrokerKind {
		tt = brokerThresholds
	}
	for _, t := range tt {
		if volume.GreaterThanOrEqual(t.volume) {
			return t.tier
		}
	}
	return NoTier
}
