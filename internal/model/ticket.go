package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticket is one pending or in-progress exchange request.
// The ticket carries its own authoritative fields from creation,
// the UI layer is a pure renderer of this state.
type Ticket struct {
	Handle    string          `json:"handle"`
	ClientID  string          `json:"client_id"`
	Direction Direction       `json:"direction"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	Local     decimal.Decimal `json:"local_amount"`
	CreatedAt time.Time       `json:"created_at"`
	Claimant  string          `json:"claimant,omitempty"`
	ClaimedAt time.Time       `json:"claimed_at,omitempty"`
	// Version counts state transitions on the ticket and guards the
	// conditional claim update.
	Version int64 `json:"version"`
}

// Claimed checks whether the ticket is currently claimed by a broker.
func (t Ticket) Claimed() bool {
	return t.Claimant != ""
}

// WaitRemaining returns the remaining cooldown before the ticket can be released.
// A non-positive result means the cooldown has elapsed.
func (t Ticket) WaitRemaining(now time.Time, cooldown time.Duration) time.Duration {
	return t.ClaimedAt.Add(cooldown).Sub(now)
}
