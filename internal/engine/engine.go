package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/skyex/desk/internal/api"
	"github.com/skyex/desk/internal/broker"
	"github.com/skyex/desk/internal/emoji"
	"github.com/skyex/desk/internal/ledger"
	"github.com/skyex/desk/internal/metrics"
	"github.com/skyex/desk/internal/model"
	"github.com/skyex/desk/internal/rate"
	"github.com/skyex/desk/internal/registry"
)

// Engine is the ticket lifecycle orchestrator. It consumes the rate table,
// broker directory, ticket registry and ledger as passive stores and is the
// single writer of record for registry and ledger transitions.
type Engine struct {
	rates    *rate.Table
	brokers  *broker.Directory
	registry *registry.Registry
	ledger   *ledger.Ledger
	user     api.UserInterface
	roles    api.RoleChecker
	handles  map[string]*sync.Mutex
	lock     *sync.Mutex
}

// New creates an engine on top of the given stores.
func New(rates *rate.Table, brokers *broker.Directory, reg *registry.Registry, led *ledger.Ledger) *Engine {
	return &Engine{
		rates:    rates,
		brokers:  brokers,
		registry: reg,
		ledger:   led,
		handles:  make(map[string]*sync.Mutex),
		lock:     new(sync.Mutex),
	}
}

// WithUser attaches a user interface for lifecycle announcements.
func (e *Engine) WithUser(user api.UserInterface) *Engine {
	e.user = user
	return e
}

// CreateTicket opens a new unclaimed ticket for the client. The amount is
// given in the direction's "from" unit and is converted to reference currency
// at the current rate; the ticket carries both figures from creation.
func (e *Engine) CreateTicket(handle, clientID string, direction model.Direction, amount decimal.Decimal, asset string) (model.Ticket, error) {
	if !direction.Valid() {
		return model.Ticket{}, e.observe("create", fmt.Errorf("unknown direction '%s': %w", direction, api.ErrInvalidArgument))
	}
	if !amount.IsPositive() {
		return model.Ticket{}, e.observe("create", fmt.Errorf("amount must be positive, got %s: %w", amount, api.ErrInvalidArgument))
	}
	r, err := e.rates.Get(direction)
	if err != nil {
		return model.Ticket{}, e.observe("create", err)
	}

	reference := direction.Reference(amount, r)
	local := direction.Local(amount, r)
	ticket, err := e.registry.Create(handle, clientID, direction, asset, reference, local)
	if err != nil {
		return model.Ticket{}, e.observe("create", err)
	}
	e.announce(fmt.Sprintf("%s new %s ticket %s for %s (%s reference units)",
		emoji.Open, direction, handle, clientID, model.DisplayAmount(reference)))
	return ticket, e.observe("create", nil)
}

// ClaimTicket assigns the ticket to the broker. The broker must be capable of
// the direction, must hold no other claim, and the ticket amount must not
// exceed half the broker's security holding. The conditional update is
// retried exactly once on a lost race before surfacing a conflict.
func (e *Engine) ClaimTicket(handle, brokerID string) (model.Ticket, error) {
	unlock := e.lockHandle(handle)
	defer unlock()

	for attempt := 0; ; attempt++ {
		ticket, err := e.registry.Get(handle)
		if err != nil {
			return model.Ticket{}, e.observe("claim", err)
		}
		b, err := e.brokers.Get(brokerID)
		if err != nil {
			return model.Ticket{}, e.observe("claim", err)
		}
		if !b.Capable(ticket.Direction) {
			return model.Ticket{}, e.observe("claim",
				fmt.Errorf("broker '%s' cannot service %s tickets: %w", brokerID, ticket.Direction, api.ErrNotEligible))
		}
		if ticket.Amount.GreaterThan(b.Limit()) {
			return model.Ticket{}, e.observe("claim",
				fmt.Errorf("ticket amount %s exceeds broker limit %s: %w",
					model.DisplayAmount(ticket.Amount), model.DisplayAmount(b.Limit()), api.ErrNotEligible))
		}

		claimed, err := e.registry.Claim(handle, brokerID, ticket.Version)
		if err == nil {
			e.announce(fmt.Sprintf("%s ticket %s claimed by %s for %s",
				emoji.Lock, handle, brokerID, model.DisplayAmount(ticket.Amount)))
			return claimed, e.observe("claim", nil)
		}
		if errors.Is(err, registry.ErrStaleTicket) && attempt == 0 {
			log.Debug().Str("handle", handle).Str("broker", brokerID).Msg("lost claim race, retrying once")
			continue
		}
		if errors.Is(err, registry.ErrStaleTicket) {
			err = fmt.Errorf("claim on '%s' lost the race twice: %w", handle, api.ErrConflict)
		}
		return model.Ticket{}, e.observe("claim", err)
	}
}

// ReleaseTicket returns a claimed ticket to the open pool, subject to the
// claimant check and the release cooldown.
func (e *Engine) ReleaseTicket(handle, brokerID string) (model.Ticket, error) {
	unlock := e.lockHandle(handle)
	defer unlock()

	ticket, err := e.registry.Release(handle, brokerID)
	if err != nil {
		return model.Ticket{}, e.observe("release", err)
	}
	e.announce(fmt.Sprintf("%s ticket %s released by %s", emoji.Unlock, handle, brokerID))
	return ticket, e.observe("release", nil)
}

// CompleteTicket finalizes the exchange: the trade is appended to the ledger
// with the fixed fee accrual and the ticket leaves the registry. The append
// runs under the registry lock before the removal commits, so a failed append
// leaves the ticket in place and concurrent creates for the client keep
// seeing it. Only the claimant may complete.
func (e *Engine) CompleteTicket(handle, brokerID string) (Completion, error) {
	unlock := e.lockHandle(handle)
	defer unlock()

	ticket, err := e.registry.Get(handle)
	if err != nil {
		return Completion{}, e.observe("complete", err)
	}
	if !ticket.Claimed() {
		return Completion{}, e.observe("complete",
			fmt.Errorf("ticket '%s' has not been claimed: %w", handle, api.ErrForbidden))
	}
	if ticket.Claimant != brokerID {
		return Completion{}, e.observe("complete",
			fmt.Errorf("only the claimant can complete ticket '%s': %w", handle, api.ErrForbidden))
	}

	var trade model.Trade
	taken, err := e.registry.Complete(handle, func(t model.Ticket) error {
		var lErr error
		trade, lErr = e.ledger.RecordTrade(t.Claimant, t.ClientID, t.Direction, t.Amount, t.Asset)
		return lErr
	})
	if err != nil {
		return Completion{}, e.observe("complete", err)
	}
	e.dropHandle(handle)

	completion := Completion{
		Trade:        trade,
		ClientVolume: e.ledger.VolumeByClient(taken.ClientID),
		BrokerVolume: e.ledger.VolumeByBroker(taken.Claimant),
	}
	completion.ClientTier = model.TierFor(model.ClientKind, completion.ClientVolume)
	completion.BrokerTier = model.TierFor(model.BrokerKind, completion.BrokerVolume)

	e.announce(fmt.Sprintf("%s deal completed by %s for %s: %s reference units of %s",
		emoji.Confirm, brokerID, taken.ClientID, model.DisplayAmount(trade.Amount), trade.Asset))
	return completion, e.observe("complete", nil)
}

// ForceCloseTicket removes the ticket unconditionally, without a ledger trade.
// Administrative gating happens outside the core.
func (e *Engine) ForceCloseTicket(handle string) (model.Ticket, error) {
	unlock := e.lockHandle(handle)
	defer unlock()

	ticket, err := e.registry.ForceClose(handle)
	if err != nil {
		return model.Ticket{}, e.observe("force-close", err)
	}
	e.dropHandle(handle)
	e.announce(fmt.Sprintf("%s ticket %s force-closed", emoji.Trash, handle))
	return ticket, e.observe("force-close", nil)
}

// GetTicket returns the open ticket for the handle.
func (e *Engine) GetTicket(handle string) (model.Ticket, error) {
	return e.registry.Get(handle)
}

// SetRate updates the conversion rate for a direction.
func (e *Engine) SetRate(direction model.Direction, r decimal.Decimal) error {
	return e.observe("set-rate", e.rates.Set(direction, r))
}

// Rates returns all current rates.
func (e *Engine) Rates() map[model.Direction]decimal.Decimal {
	return e.rates.All()
}

// Convert converts the amount at the current rate of the direction:
// to-crypto directions divide, from-crypto directions multiply.
func (e *Engine) Convert(direction model.Direction, amount decimal.Decimal) (Conversion, error) {
	if !amount.IsPositive() {
		return Conversion{}, e.observe("convert",
			fmt.Errorf("amount must be positive, got %s: %w", amount, api.ErrInvalidArgument))
	}
	r, err := e.rates.Get(direction)
	if err != nil {
		return Conversion{}, e.observe("convert", err)
	}
	return Conversion{
		Direction: direction,
		Amount:    amount,
		Converted: direction.Convert(amount, r),
		Rate:      r,
	}, e.observe("convert", nil)
}

// RegisterBroker inserts or fully replaces a broker record.
func (e *Engine) RegisterBroker(id string, holding decimal.Decimal, capabilities []model.Direction) (model.Broker, error) {
	b, err := e.brokers.RegisterOrUpdate(id, holding, capabilities)
	return b, e.observe("register-broker", err)
}

// RecordWarning appends a warning for the broker and returns it together
// with the new cumulative count. Every 10th warning adds the fixed penalty to
// the broker's fee balance as part of the same operation.
func (e *Engine) RecordWarning(brokerID, reason, issuedBy string) (model.Warning, int, error) {
	warning, count, err := e.ledger.AddWarning(brokerID, reason, issuedBy)
	if err != nil {
		return model.Warning{}, 0, e.observe("warn", err)
	}
	e.announce(fmt.Sprintf("%s warning %d issued to %s: %s (total %d)",
		emoji.Warning, warning.ID, brokerID, reason, count))
	return warning, count, e.observe("warn", nil)
}

// RemoveWarning deletes a single warning by id.
func (e *Engine) RemoveWarning(id int64) error {
	return e.observe("remove-warning", e.ledger.RemoveWarning(id))
}

// ClearWarnings deletes all warnings of the broker.
func (e *Engine) ClearWarnings(brokerID string) (int, error) {
	removed, err := e.ledger.ClearWarnings(brokerID)
	return removed, e.observe("clear-warnings", err)
}

// Warnings lists the warnings of the broker, most recent first.
func (e *Engine) Warnings(brokerID string) []model.Warning {
	return e.ledger.Warnings(brokerID)
}

// AdjustFee adds the delta to the broker's fee balance and returns the new balance.
func (e *Engine) AdjustFee(brokerID string, delta decimal.Decimal) (decimal.Decimal, error) {
	balance, err := e.ledger.AdjustFee(brokerID, delta)
	return balance, e.observe("adjust-fee", err)
}

// ClearFee resets the broker's fee balance to zero.
func (e *Engine) ClearFee(brokerID string) error {
	return e.observe("clear-fee", e.ledger.ClearFee(brokerID))
}

// Fee returns the broker's current fee balance.
func (e *Engine) Fee(brokerID string) decimal.Decimal {
	return e.ledger.Fee(brokerID)
}

// BrokerProfile combines the directory record with the derived ledger figures.
func (e *Engine) BrokerProfile(id string) (BrokerProfile, error) {
	b, err := e.brokers.Get(id)
	if err != nil {
		return BrokerProfile{}, e.observe("broker-profile", err)
	}
	volume := e.ledger.VolumeByBroker(id)
	return BrokerProfile{
		Broker:   b,
		Trades:   e.ledger.CountByBroker(id),
		Volume:   volume,
		Tier:     model.TierFor(model.BrokerKind, volume),
		Fee:      e.ledger.Fee(id),
		Warnings: len(e.ledger.Warnings(id)),
		Recent:   e.ledger.RecentTradesByBroker(id, recentDeals),
	}, e.observe("broker-profile", nil)
}

// ClientProfile returns the derived volume and tier of a client.
// A client with no trading history is not found.
func (e *Engine) ClientProfile(id string) (ClientProfile, error) {
	trades := e.ledger.CountByClient(id)
	if trades == 0 {
		return ClientProfile{}, e.observe("client-profile",
			fmt.Errorf("client '%s' has no trading history: %w", id, api.ErrNotFound))
	}
	volume := e.ledger.VolumeByClient(id)
	return ClientProfile{
		ClientID: id,
		Trades:   trades,
		Volume:   volume,
		Tier:     model.TierFor(model.ClientKind, volume),
	}, e.observe("client-profile", nil)
}

// lockHandle serializes lifecycle transitions per ticket handle.
func (e *Engine) lockHandle(handle string) func() {
	e.lock.Lock()
	l, ok := e.handles[handle]
	if !ok {
		l = new(sync.Mutex)
		e.handles[handle] = l
	}
	e.lock.Unlock()
	l.Lock()
	return l.Unlock
}

// dropHandle evicts the mutex of a terminally closed ticket. A late waiter
// still holding the old mutex just finds the ticket gone.
func (e *Engine) dropHandle(handle string) {
	e.lock.Lock()
	delete(e.handles, handle)
	e.lock.Unlock()
}

func (e *Engine) announce(text string) {
	if e.user == nil {
		return
	}
	e.user.Send(api.NewMessage(text))
}

// observe counts the operation outcome and passes the error through.
func (e *Engine) observe(operation string, err error) error {
	metrics.Observer.Increment(operation, outcome(err))
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, api.ErrNotFound):
		return "not-found"
	case errors.Is(err, api.ErrConflict):
		return "conflict"
	case errors.Is(err, api.ErrNotEligible):
		return "not-eligible"
	case errors.Is(err, api.ErrForbidden):
		return "forbidden"
	case errors.Is(err, api.ErrTooSoon):
		return "too-soon"
	case errors.Is(err, api.ErrResourceBusy):
		return "busy"
	case errors.Is(err, api.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, api.ErrUnavailable):
		return "unavailable"
	}
	return "error"
}
