package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a finalized exchange recorded against the ledger.
// Immutable once written.
type Trade struct {
	ID        int64           `json:"id"`
	BrokerID  string          `json:"broker_id"`
	ClientID  string          `json:"client_id"`
	Direction Direction       `json:"direction"`
	// Amount is the trade value in reference currency, never rounded.
	Amount decimal.Decimal `json:"amount"`
	Asset  string          `json:"asset"`
	Time   time.Time       `json:"time"`
}

// Warning is an infraction recorded against a broker.
type Warning struct {
	ID       int64     `json:"id"`
	BrokerID string    `json:"broker_id"`
	Reason   string    `json:"reason"`
	IssuedBy string    `json:"issued_by"`
	Time     time.Time `json:"time"`
}
