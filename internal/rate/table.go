package rate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/skyex/desk/internal/api"
	"github.com/skyex/desk/internal/model"
	"github.com/skyex/desk/internal/storage"
)

const stateLabel = "state"

// Table holds the current conversion rate per exchange direction.
type Table struct {
	rates   map[model.Direction]decimal.Decimal
	storage storage.Persistence
	lock    *sync.RWMutex
}

// NewTable creates a rate table backed by the given shard.
// Missing directions are seeded at 1.0 on first initialization.
func NewTable(shard storage.Shard) (*Table, error) {
	st, err := shard(storage.RatesTable)
	if err != nil {
		return nil, fmt.Errorf("could not init storage: %w", err)
	}
	t := &Table{
		rates:   make(map[model.Direction]decimal.Decimal),
		storage: st,
		lock:    new(sync.RWMutex),
	}
	err = t.load()
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns the current rate for the direction.
func (t *Table) Get(d model.Direction) (decimal.Decimal, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	r, ok := t.rates[d]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for direction '%s': %w", d, api.ErrNotFound)
	}
	return r, nil
}

// Set updates the rate for the direction. The rate must be a positive decimal.
func (t *Table) Set(d model.Direction, r decimal.Decimal) error {
	if !d.Valid() {
		return fmt.Errorf("unknown direction '%s': %w", d, api.ErrInvalidArgument)
	}
	if !r.IsPositive() {
		return fmt.Errorf("rate must be positive, got %s: %w", r, api.ErrInvalidArgument)
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	rates := copyRates(t.rates)
	rates[d] = r
	err := t.store(rates)
	if err != nil {
		return err
	}
	t.rates = rates
	log.Info().Str("direction", string(d)).Str("rate", r.String()).Msg("rate updated")
	return nil
}

// All returns a copy of all current rates.
func (t *Table) All() map[model.Direction]decimal.Decimal {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return copyRates(t.rates)
}

type state struct {
	Rates map[model.Direction]decimal.Decimal `json:"rates"`
}

func (t *Table) store(rates map[model.Direction]decimal.Decimal) error {
	return t.storage.Store(stKey(), state{Rates: rates})
}

func (t *Table) load() error {
	st := state{Rates: make(map[model.Direction]decimal.Decimal)}
	err := t.storage.Load(stKey(), &st)
	if err != nil {
		if !errors.Is(err, storage.NotFoundErr) {
			return fmt.Errorf("could not load rates: %w", err)
		}
		log.Info().Msg("no rate state, seeding defaults")
		st.Rates = make(map[model.Direction]decimal.Decimal)
	}
	seeded := 0
	for _, d := range model.KnownDirections() {
		if _, ok := st.Rates[d]; !ok {
			st.Rates[d] = decimal.NewFromInt(1)
			seeded++
		}
	}
	if seeded > 0 {
		err = t.store(st.Rates)
		if err != nil {
			return fmt.Errorf("could not seed rates: %w", err)
		}
	}
	t.rates = st.Rates
	log.Info().Int("num", len(t.rates)).Int("seeded", seeded).Msg("loaded rates")
	return nil
}

func stKey() storage.Key {
	return storage.Key{Table: storage.RatesTable, Label: stateLabel}
}

func copyRates(in map[model.Direction]decimal.Decimal) map[model.Direction]decimal.Decimal {
	out := make(map[model.Direction]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
