package broker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/skyex/desk/internal/api"
	"github.com/skyex/desk/internal/model"
	"github.com/skyex/desk/internal/storage"
)

const stateLabel = "state"

// Directory is the registry of eligible exchangers.
// Registration fully replaces the record; there is no deletion path.
type Directory struct {
	brokers map[string]model.Broker
	storage storage.Persistence
	lock    *sync.RWMutex
	now     func() time.Time
}

// NewDirectory creates a broker directory backed by the given shard.
func NewDirectory(shard storage.Shard) (*Directory, error) {
	st, err := shard(storage.BrokersTable)
	if err != nil {
		return nil, fmt.Errorf("could not init storage: %w", err)
	}
	d := &Directory{
		brokers: make(map[string]model.Broker),
		storage: st,
		lock:    new(sync.RWMutex),
		now:     time.Now,
	}
	err = d.load()
	if err != nil {
		return nil, err
	}
	return d, nil
}

// RegisterOrUpdate inserts or fully replaces the broker record.
// Capabilities must be a non-empty subset of the known directions.
func (d *Directory) RegisterOrUpdate(id string, holding decimal.Decimal, capabilities []model.Direction) (model.Broker, error) {
	if id == "" {
		return model.Broker{}, fmt.Errorf("broker id cannot be empty: %w", api.ErrInvalidArgument)
	}
	if len(capabilities) == 0 {
		return model.Broker{}, fmt.Errorf("broker '%s' needs at least one direction: %w", id, api.ErrInvalidArgument)
	}
	for _, c := range capabilities {
		if !c.Valid() {
			return model.Broker{}, fmt.Errorf("unknown direction '%s' for broker '%s': %w", c, id, api.ErrInvalidArgument)
		}
	}
	if holding.IsNegative() {
		return model.Broker{}, fmt.Errorf("security holding cannot be negative: %w", api.ErrInvalidArgument)
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	registeredAt := d.now()
	if existing, ok := d.brokers[id]; ok {
		registeredAt = existing.RegisteredAt
	}
	b := model.Broker{
		ID:           id,
		Holding:      holding,
		Capabilities: capabilities,
		RegisteredAt: registeredAt,
	}

	brokers := copyBrokers(d.brokers)
	brokers[id] = b
	err := d.store(brokers)
	if err != nil {
		return model.Broker{}, err
	}
	d.brokers = brokers
	log.Info().
		Str("broker", id).
		Str("holding", holding.String()).
		Int("capabilities", len(capabilities)).
		Msg("broker registered")
	return b, nil
}

// Get returns the broker for the given id.
func (d *Directory) Get(id string) (model.Broker, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	b, ok := d.brokers[id]
	if !ok {
		return model.Broker{}, fmt.Errorf("broker '%s' is not registered: %w", id, api.ErrNotFound)
	}
	return b, nil
}

// IsCapable checks that a registered broker may service the direction.
func (d *Directory) IsCapable(id string, direction model.Direction) bool {
	b, err := d.Get(id)
	if err != nil {
		return false
	}
	return b.Capable(direction)
}

type state struct {
	Brokers map[string]model.Broker `json:"brokers"`
}

func (d *Directory) store(brokers map[string]model.Broker) error {
	return d.storage.Store(stKey(), state{Brokers: brokers})
}

func (d *Directory) load() error {
	st := state{Brokers: make(map[string]model.Broker)}
	err := d.storage.Load(stKey(), &st)
	if err != nil && !errors.Is(err, storage.NotFoundErr) {
		return fmt.Errorf("could not load brokers: %w", err)
	}
	if st.Brokers == nil {
		st.Brokers = make(map[string]model.Broker)
	}
	d.brokers = st.Brokers
	log.Info().Int("num", len(d.brokers)).Msg("loaded brokers")
	return nil
}

func stKey() storage.Key {
	return storage.Key{Table: storage.BrokersTable, Label: stateLabel}
}

func copyBrokers(in map[string]model.Broker) map[string]model.Broker {
	out := make(map[string]model.Broker, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
