package registry

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

// ReleaseCooldown is the minimum holding duration before a claimant may
// release a ticket, measured from the claim timestamp.
const ReleaseCooldown = 5 * time.Minute

// ErrStaleTicket signals that the ticket changed between the caller's read
// and the conditional update. The engine retries the claim exactly once on
// it before surfacing a conflict.
var ErrStaleTicket = errors.New("stale ticket version")

// Registry holds the currently open tickets, keyed by handle.
// Terminal transitions remove the ticket; only non-terminal state lives here.
type Registry struct {
	tickets map[string]model.Ticket
	storage storage.Persistence
	lock    *sync.RWMutex
	now     func() time.Time
}

// New creates a ticket registry backed by the given shard.
func New(shard storage.Shard) (*Registry, error) {
	st, err := shard(storage.TicketsTable)
	if err != nil {
		return nil, fmt.Errorf("could not init storage: %w", err)
	}
	r := &Registry{
		tickets: make(map[string]model.Ticket),
		storage: st,
		lock:    new(sync.RWMutex),
		now:     time.Now,
	}
	err = r.load()
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Create opens a new unclaimed ticket. The handle must be unique and the
// client must not have another open ticket.
func (r *Registry) Create(handle, clientID string, direction model.Direction, asset string, amount, local decimal.Decimal) (model.Ticket, error) {
	if handle == "" || clientID == "" {
		return model.Ticket{}, fmt.Errorf("handle and client cannot be empty: %w", api.ErrInvalidArgument)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.tickets[handle]; ok {
		return model.Ticket{}, fmt.Errorf("ticket '%s' already exists: %w", handle, api.ErrConflict)
	}
	for _, t := range r.tickets {
		if t.ClientID == clientID {
			return model.Ticket{}, fmt.Errorf("client '%s' already has an open ticket '%s': %w", clientID, t.Handle, api.ErrConflict)
		}
	}

	ticket := model.Ticket{
		Handle:    handle,
		ClientID:  clientID,
		Direction: direction,
		Asset:     asset,
		Amount:    amount,
		Local:     local,
		CreatedAt: r.now(),
		Version:   1,
	}
	err := r.put(ticket)
	if err != nil {
		return model.Ticket{}, err
	}
	log.Info().
		Str("handle", handle).
		Str("client", clientID).
		Str("direction", string(direction)).
		Str("amount", amount.String()).
		Msg("ticket created")
	return ticket, nil
}

// Claim assigns the ticket to the broker, conditional on the version the
// caller read. Exactly one of concurrent claimants wins; losers observe
// either a conflict (someone holds the claim) or ErrStaleTicket (the ticket
// changed underneath, re-read and retry).
func (r *Registry) Claim(handle, brokerID string, version int64) (model.Ticket, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	t, ok := r.tickets[handle]
	if !ok {
		return model.Ticket{}, fmt.Errorf("ticket '%s' not found: %w", handle, api.ErrNotFound)
	}
	if t.Claimed() {
		if t.Claimant == brokerID {
			return model.Ticket{}, fmt.Errorf("ticket '%s' already claimed by you: %w", handle, api.ErrConflict)
		}
		return model.Ticket{}, fmt.Errorf("ticket '%s' already claimed by another broker: %w", handle, api.ErrConflict)
	}
	if t.Version != version {
		return model.Ticket{}, fmt.Errorf("ticket '%s' moved from version %d to %d: %w", handle, version, t.Version, ErrStaleTicket)
	}
	for _, other := range r.tickets {
		if other.Claimant == brokerID {
			return model.Ticket{}, fmt.Errorf("broker '%s' already claims ticket '%s': %w", brokerID, other.Handle, api.ErrResourceBusy)
		}
	}

	t.Claimant = brokerID
	t.ClaimedAt = r.now()
	t.Version++
	err := r.put(t)
	if err != nil {
		return model.Ticket{}, err
	}
	log.Info().Str("handle", handle).Str("broker", brokerID).Msg("ticket claimed")
	return t, nil
}

// Release returns a claimed ticket to the open pool. Only the current
// claimant may release, and only after the cooldown has elapsed.
func (r *Registry) Release(handle, brokerID string) (model.Ticket, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	t, ok := r.tickets[handle]
	if !ok {
		return model.Ticket{}, fmt.Errorf("ticket '%s' not found: %w", handle, api.ErrNotFound)
	}
	if !t.Claimed() || t.Claimant != brokerID {
		return model.Ticket{}, fmt.Errorf("only the claimant can release ticket '%s': %w", handle, api.ErrForbidden)
	}
	if remaining := t.WaitRemaining(r.now(), ReleaseCooldown); remaining > 0 {
		return model.Ticket{}, fmt.Errorf("cannot release ticket '%s': %w", handle, api.TooSoonError{Remaining: remaining})
	}

	t.Claimant = ""
	t.ClaimedAt = time.Time{}
	t.Version++
	err := r.put(t)
	if err != nil {
		return model.Ticket{}, err
	}
	log.Info().Str("handle", handle).Str("broker", brokerID).Msg("ticket released")
	return t, nil
}

// Complete removes a claimed ticket from the registry and returns it.
// The finalize step runs under the registry lock before the removal commits:
// when it fails nothing changes, so the ticket never leaves the registry
// half-completed and concurrent creates for the same client or handle keep
// seeing it. A failed removal store leaves the ticket open next to whatever
// finalize recorded; the caller surfaces that as unavailable.
func (r *Registry) Complete(handle string, finalize func(model.Ticket) error) (model.Ticket, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	t, ok := r.tickets[handle]
	if !ok {
		return model.Ticket{}, fmt.Errorf("ticket '%s' not found: %w", handle, api.ErrNotFound)
	}
	if !t.Claimed() {
		return model.Ticket{}, fmt.Errorf("ticket '%s' has not been claimed: %w", handle, api.ErrForbidden)
	}
	if finalize != nil {
		err := finalize(t)
		if err != nil {
			return model.Ticket{}, err
		}
	}
	err := r.remove(handle)
	if err != nil {
		return model.Ticket{}, err
	}
	return t, nil
}

// ForceClose removes the ticket unconditionally, claimed or not.
func (r *Registry) ForceClose(handle string) (model.Ticket, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	t, ok := r.tickets[handle]
	if !ok {
		return model.Ticket{}, fmt.Errorf("ticket '%s' not found: %w", handle, api.ErrNotFound)
	}
	err := r.remove(handle)
	if err != nil {
		return model.Ticket{}, err
	}
	log.Info().Str("handle", handle).Msg("ticket force-closed")
	return t, nil
}

// Get returns the ticket for the handle.
func (r *Registry) Get(handle string) (model.Ticket, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.tickets[handle]
	if !ok {
		return model.Ticket{}, fmt.Errorf("ticket '%s' not found: %w", handle, api.ErrNotFound)
	}
	return t, nil
}

// FindByClient returns the open ticket of the client, if any.
func (r *Registry) FindByClient(clientID string) (model.Ticket, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, t := range r.tickets {
		if t.ClientID == clientID {
			return t, true
		}
	}
	return model.Ticket{}, false
}

// FindByBroker returns the ticket currently claimed by the broker, if any.
func (r *Registry) FindByBroker(brokerID string) (model.Ticket, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, t := range r.tickets {
		if t.Claimant == brokerID {
			return t, true
		}
	}
	return model.Ticket{}, false
}

// Open returns the number of open tickets.
func (r *Registry) Open() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.tickets)
}

type state struct {
	Tickets map[string]model.Ticket `json:"tickets"`
}

// put stages the ticket on a copy, persists and then commits in memory.
func (r *Registry) put(t model.Ticket) error {
	tickets := r.copyTickets()
	tickets[t.Handle] = t
	err := r.store(tickets)
	if err != nil {
		return err
	}
	r.tickets = tickets
	return nil
}

func (r *Registry) remove(handle string) error {
	tickets := r.copyTickets()
	delete(tickets, handle)
	err := r.store(tickets)
	if err != nil {
		return err
	}
	r.tickets = tickets
	return nil
}

func (r *Registry) store(tickets map[string]model.Ticket) error {
	err := r.storage.Store(stKey(), state{Tickets: tickets})
	if err != nil {
		return fmt.Errorf("could not persist tickets: %w", err)
	}
	return nil
}

func (r *Registry) load() error {
	st := state{Tickets: make(map[string]model.Ticket)}
	err := r.storage.Load(stKey(), &st)
	if err != nil && !errors.Is(err, storage.NotFoundErr) {
		return fmt.Errorf("could not load tickets: %w", err)
	}
	if st.Tickets == nil {
		st.Tickets = make(map[string]model.Ticket)
	}
	r.tickets = st.Tickets
	log.Info().Int("num", len(r.tickets)).Msg("loaded tickets")
	return nil
}

func (r *Registry) copyTickets() map[string]model.Ticket {
	out := make(map[string]model.Ticket, len(r.tickets))
	for k, v := range r.tickets {
		out[k] = v
	}
	return out
}

func stKey() storage.Key {
	return storage.Key{Table: storage.TicketsTable, Label: stateLabel}
}
