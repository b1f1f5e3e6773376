package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/skyex/desk/internal/api"
	"github.com/skyex/desk/internal/model"
	"github.com/skyex/desk/internal/storage"
)

const stateLabel = "state"

var (
	// TradeFee is the fixed management fee accrued per completed trade.
	TradeFee = decimal.RequireFromString("0.025")
	// WarningPenalty is added to the fee balance on every 10th warning.
	WarningPenalty = decimal.RequireFromString("1.0")
)

// warningPenaltyEvery fires the penalty whenever the cumulative count crosses a multiple of it
const warningPenaltyEvery = 10

// Ledger is the append-only trade log together with the per-broker fee
// balances and warning records. Every mutation is one critical section and
// one snapshot store: either the whole transition is visible, or none of it.
type Ledger struct {
	trades      []model.Trade
	fees        map[string]decimal.Decimal
	warnings    []model.Warning
	nextTrade   int64
	nextWarning int64
	storage     storage.Persistence
	lock        *sync.RWMutex
	now         func() time.Time
}

// New creates a ledger backed by the given shard.
func New(shard storage.Shard) (*Ledger, error) {
	st, err := shard(storage.LedgerTable)
	if err != nil {
		return nil, fmt.Errorf("could not init storage: %w", err)
	}
	l := &Ledger{
		fees:    make(map[string]decimal.Decimal),
		storage: st,
		lock:    new(sync.RWMutex),
		now:     time.Now,
	}
	err = l.load()
	if err != nil {
		return nil, err
	}
	return l, nil
}

// RecordTrade appends the trade and increments the broker fee balance by the
// fixed per-trade fee, as one atomic unit.
func (l *Ledger) RecordTrade(brokerID, clientID string, direction model.Direction, amount decimal.Decimal, asset string) (model.Trade, error) {
	if !amount.IsPositive() {
		return model.Trade{}, fmt.Errorf("trade amount must be positive, got %s: %w", amount, api.ErrInvalidArgument)
	}
	if !direction.Valid() {
		return model.Trade{}, fmt.Errorf("unknown direction '%s': %w", direction, api.ErrInvalidArgument)
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	trade := model.Trade{
		ID:        l.nextTrade + 1,
		BrokerID:  brokerID,
		ClientID:  clientID,
		Direction: direction,
		Amount:    amount,
		Asset:     asset,
		Time:      l.now(),
	}
	next := l.snapshot()
	next.Trades = append(next.Trades, trade)
	next.NextTrade = trade.ID
	next.Fees[brokerID] = feeOf(next.Fees, brokerID).Add(TradeFee)

	err := l.commit(next)
	if err != nil {
		return model.Trade{}, err
	}
	log.Info().
		Int64("trade", trade.ID).
		Str("broker", brokerID).
		Str("client", clientID).
		Str("direction", string(direction)).
		Str("amount", amount.String()).
		Msg("trade recorded")
	return trade, nil
}

// VolumeByBroker sums the reference currency volume traded by the broker.
func (l *Ledger) VolumeByBroker(id string) decimal.Decimal {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.sumVolume(func(t model.Trade) bool { return t.BrokerID == id })
}

// VolumeByClient sums the reference currency volume traded by the client.
func (l *Ledger) VolumeByClient(id string) decimal.Decimal {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.sumVolume(func(t model.Trade) bool { return t.ClientID == id })
}

// CountByBroker counts the trades completed by the broker.
func (l *Ledger) CountByBroker(id string) int {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.count(func(t model.Trade) bool { return t.BrokerID == id })
}

// CountByClient counts the trades completed for the client.
func (l *Ledger) CountByClient(id string) int {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.count(func(t model.Trade) bool { return t.ClientID == id })
}

// RecentTradesByBroker returns up to n trades of the broker, most recent first.
func (l *Ledger) RecentTradesByBroker(id string, n int) []model.Trade {
	l.lock.RLock()
	defer l.lock.RUnlock()
	recent := make([]model.Trade, 0, n)
	for i := len(l.trades) - 1; i >= 0 && len(recent) < n; i-- {
		if l.trades[i].BrokerID == id {
			recent = append(recent, l.trades[i])
		}
	}
	return recent
}

// Fee returns the current fee balance of the broker.
func (l *Ledger) Fee(id string) decimal.Decimal {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return feeOf(l.fees, id)
}

// AdjustFee adds the given delta to the broker fee balance and returns the
// new balance. The balance may go negative through administrative deduction.
func (l *Ledger) AdjustFee(id string, delta decimal.Decimal) (decimal.Decimal, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	next := l.snapshot()
	balance := feeOf(next.Fees, id).Add(delta)
	next.Fees[id] = balance
	err := l.commit(next)
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// ClearFee resets the broker fee balance to zero.
func (l *Ledger) ClearFee(id string) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	next := l.snapshot()
	next.Fees[id] = decimal.Zero
	return l.commit(next)
}

// AddWarning appends a warning and returns it together with the new
// cumulative count. Whenever the count crosses a multiple of ten the fixed
// penalty is added to the fee balance as part of the same operation.
func (l *Ledger) AddWarning(brokerID, reason, issuedBy string) (model.Warning, int, error) {
	if reason == "" {
		return model.Warning{}, 0, fmt.Errorf("warning reason cannot be empty: %w", api.ErrInvalidArgument)
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	warning := model.Warning{
		ID:       l.nextWarning + 1,
		BrokerID: brokerID,
		Reason:   reason,
		IssuedBy: issuedBy,
		Time:     l.now(),
	}
	next := l.snapshot()
	next.Warnings = append(next.Warnings, warning)
	next.NextWarning = warning.ID

	count := 0
	for _, w := range next.Warnings {
		if w.BrokerID == brokerID {
			count++
		}
	}
	penalty := count >= warningPenaltyEvery && count%warningPenaltyEvery == 0
	if penalty {
		next.Fees[brokerID] = feeOf(next.Fees, brokerID).Add(WarningPenalty)
	}

	err := l.commit(next)
	if err != nil {
		return model.Warning{}, 0, err
	}
	log.Info().
		Int64("warning", warning.ID).
		Str("broker", brokerID).
		Int("count", count).
		Bool("penalty", penalty).
		Msg("warning recorded")
	return warning, count, nil
}

// RemoveWarning deletes a single warning by id.
// A previously applied penalty is not reversed.
func (l *Ledger) RemoveWarning(id int64) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	next := l.snapshot()
	kept := make([]model.Warning, 0, len(next.Warnings))
	found := false
	for _, w := range next.Warnings {
		if w.ID == id {
			found = true
			continue
		}
		kept = append(kept, w)
	}
	if !found {
		return fmt.Errorf("warning '%d' not found: %w", id, api.ErrNotFound)
	}
	next.Warnings = kept
	return l.commit(next)
}

// ClearWarnings deletes all warnings of the broker and returns how many were removed.
func (l *Ledger) ClearWarnings(brokerID string) (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	next := l.snapshot()
	kept := make([]model.Warning, 0, len(next.Warnings))
	removed := 0
	for _, w := range next.Warnings {
		if w.BrokerID == brokerID {
			removed++
			continue
		}
		kept = append(kept, w)
	}
	next.Warnings = kept
	err := l.commit(next)
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Warnings returns the warnings of the broker, most recent first.
func (l *Ledger) Warnings(brokerID string) []model.Warning {
	l.lock.RLock()
	defer l.lock.RUnlock()
	ww := make([]model.Warning, 0)
	for _, w := range l.warnings {
		if w.BrokerID == brokerID {
			ww = append(ww, w)
		}
	}
	sort.Slice(ww, func(i, j int) bool { return ww[i].ID > ww[j].ID })
	return ww
}

func (l *Ledger) sumVolume(match func(model.Trade) bool) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range l.trades {
		if match(t) {
			sum = sum.Add(t.Amount)
		}
	}
	return sum
}

func (l *Ledger) count(match func(model.Trade) bool) int {
	n := 0
	for _, t := range l.trades {
		if match(t) {
			n++
		}
	}
	return n
}

type state struct {
	Trades      []model.Trade              `json:"trades"`
	Fees        map[string]decimal.Decimal `json:"fees"`
	Warnings    []model.Warning            `json:"warnings"`
	NextTrade   int64                      `json:"next_trade"`
	NextWarning int64                      `json:"next_warning"`
}

// snapshot builds a mutable copy of the current state.
// mutations are staged on the copy and only become visible after commit,
// so a failed store leaves nothing half-applied.
func (l *Ledger) snapshot() state {
	trades := make([]model.Trade, len(l.trades))
	copy(trades, l.trades)
	warnings := make([]model.Warning, len(l.warnings))
	copy(warnings, l.warnings)
	fees := make(map[string]decimal.Decimal, len(l.fees))
	for k, v := range l.fees {
		fees[k] = v
	}
	return state{
		Trades:      trades,
		Fees:        fees,
		Warnings:    warnings,
		NextTrade:   l.nextTrade,
		NextWarning: l.nextWarning,
	}
}

func (l *Ledger) commit(next state) error {
	err := l.storage.Store(stKey(), next)
	if err != nil {
		return fmt.Errorf("could not persist ledger: %w", err)
	}
	l.trades = next.Trades
	l.fees = next.Fees
	l.warnings = next.Warnings
	l.nextTrade = next.NextTrade
	l.nextWarning = next.NextWarning
	return nil
}

func (l *Ledger) load() error {
	st := state{Fees: make(map[string]decimal.Decimal)}
	err := l.storage.Load(stKey(), &st)
	if err != nil && !errors.Is(err, storage.NotFoundErr) {
		// starting empty over an unreadable snapshot would overwrite it
		// on the next commit
		return fmt.Errorf("could not load ledger: %w", err)
	}
	if st.Fees == nil {
		st.Fees = make(map[string]decimal.Decimal)
	}
	l.trades = st.Trades
	l.fees = st.Fees
	l.warnings = st.Warnings
	l.nextTrade = st.NextTrade
	l.nextWarning = st.NextWarning
	log.Info().
		Int("trades", len(l.trades)).
		Int("warnings", len(l.warnings)).
		Msg("loaded ledger")
	return nil
}

func stKey() storage.Key {
	return storage.Key{Table: storage.LedgerTable, Label: stateLabel}
}

func feeOf(fees map[string]decimal.Decimal, id string) decimal.Decimal {
	if f, ok := fees[id]; ok {
		return f
	}
	return decimal.Zero
}
