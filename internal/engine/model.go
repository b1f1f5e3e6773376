package engine

import (
	"github.com/shopspring/decimal"

	"github.com/skyex/desk/internal/model"
)

// recentDeals is how many of the latest trades a broker profile carries.
const recentDeals = 5

// Completion is the result of a completed ticket: the recorded trade together
// with the derived volumes and tiers. Granting the corresponding external
// privileges is left to the caller.
type Completion struct {
	Trade        model.Trade     `json:"trade"`
	ClientVolume decimal.Decimal `json:"client_volume"`
	ClientTier   model.Tier      `json:"client_tier"`
	BrokerVolume decimal.Decimal `json:"broker_volume"`
	BrokerTier   model.Tier      `json:"broker_tier"`
}

// Conversion is the result of a rate conversion query.
type Conversion struct {
	Direction model.Direction `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	Converted decimal.Decimal `json:"converted"`
	Rate      decimal.Decimal `json:"rate"`
}

// BrokerProfile combines the directory record with the derived ledger figures.
type BrokerProfile struct {
	Broker   model.Broker    `json:"broker"`
	Trades   int             `json:"trades"`
	Volume   decimal.Decimal `json:"volume"`
	Tier     model.Tier      `json:"tier"`
	Fee      decimal.Decimal `json:"fee"`
	Warnings int             `json:"warnings"`
	Recent   []model.Trade   `json:"recent"`
}

// ClientProfile carries the derived volume and tier of a client.
type ClientProfile struct {
	ClientID string          `json:"client_id"`
	Trades   int             `json:"trades"`
	Volume   decimal.Decimal `json:"volume"`
	Tier     model.Tier      `json:"tier"`
}
