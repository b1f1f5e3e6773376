package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyex/desk/internal/api"
	"github.com/skyex/desk/internal/model"
	"github.com/skyex/desk/internal/storage"
)

// brokenStorage fails every call; models an unreachable backend.
type brokenStorage struct{}

func (brokenStorage) Store(storage.Key, interface{}) error { return storage.UnavailableErr }
func (brokenStorage) Load(storage.Key, interface{}) error  { return storage.UnavailableErr }

func newRegistry(t *testing.T) (*Registry, *storage.MockStorage) {
	st := storage.NewMockStorage()
	r, err := New(func(string) (storage.Persistence, error) { return st, nil })
	require.NoError(t, err)
	return r, st
}

func create(t *testing.T, r *Registry, handle, client string) model.Ticket {
	ticket, err := r.Create(handle, client, model.I2C, "USDT", decimal.NewFromInt(100), decimal.NewFromInt(9000))
	require.NoError(t, err)
	return ticket
}

func TestRegistry_Create(t *testing.T) {
	r, _ := newRegistry(t)

	ticket := create(t, r, "uc-i2c-alice", "alice")
	assert.False(t, ticket.Claimed())
	assert.Equal(t, int64(1), ticket.Version)

	// duplicate handle
	_, err := r.Create("uc-i2c-alice", "bob", model.I2C, "USDT", decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, api.ErrConflict))

	// one open ticket per client
	_, err = r.Create("uc-c2i-alice", "alice", model.C2I, "BTC", decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, api.ErrConflict))

	_, err = r.Create("", "carol", model.I2C, "USDT", decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, api.ErrInvalidArgument))
}

func TestRegistry_Claim(t *testing.T) {
	r, _ := newRegistry(t)
	ticket := create(t, r, "uc-i2c-alice", "alice")

	claimed, err := r.Claim(ticket.Handle, "b1", ticket.Version)
	require.NoError(t, err)
	assert.Equal(t, "b1", claimed.Claimant)
	assert.Equal(t, ticket.Version+1, claimed.Version)

	// second claim observes a definite conflict
	_, err = r.Claim(ticket.Handle, "b2", ticket.Version)
	assert.True(t, errors.Is(err, api.ErrConflict))

	// re-claim by the claimant is also a conflict
	_, err = r.Claim(ticket.Handle, "b1", claimed.Version)
	assert.True(t, errors.Is(err, api.ErrConflict))

	// one claim per broker
	other := create(t, r, "uc-i2c-bob", "bob")
	_, err = r.Claim(other.Handle, "b1", other.Version)
	assert.True(t, errors.Is(err, api.ErrResourceBusy))

	_, err = r.Claim("missing", "b3", 1)
	assert.True(t, errors.Is(err, api.ErrNotFound))
}

func TestRegistry_Claim_StaleVersion(t *testing.T) {
	r, _ := newRegistry(t)
	r.now = func() time.Time { return time.Now().Add(-10 * time.Minute) }
	ticket := create(t, r, "uc-i2c-alice", "alice")

	// the ticket moves underneath the reader: claim and release bump the version
	claimed, err := r.Claim(ticket.Handle, "b1", ticket.Version)
	require.NoError(t, err)
	r.now = time.Now
	released, err := r.Release(ticket.Handle, "b1")
	require.NoError(t, err)
	assert.Equal(t, claimed.Version+1, released.Version)

	_, err = r.Claim(ticket.Handle, "b2", ticket.Version)
	assert.True(t, errors.Is(err, ErrStaleTicket))

	// a fresh read claims fine
	fresh, err := r.Get(ticket.Handle)
	require.NoError(t, err)
	_, err = r.Claim(ticket.Handle, "b2", fresh.Version)
	assert.NoError(t, err)
}

func TestRegistry_ConcurrentClaims(t *testing.T) {
	r, _ := newRegistry(t)
	ticket := create(t, r, "uc-i2c-alice", "alice")

	workers := 16
	var wg sync.WaitGroup
	var wins, conflicts int64
	var mu sync.Mutex
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Claim(ticket.Handle, fmt.Sprintf("b%d", i), ticket.Version)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, api.ErrConflict) || errors.Is(err, ErrStaleTicket) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
	assert.Equal(t, int64(workers-1), conflicts)
}

func TestRegistry_Release_Cooldown(t *testing.T) {
	r, _ := newRegistry(t)

	claimTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return claimTime }

	ticket := create(t, r, "uc-i2c-alice", "alice")
	claimed, err := r.Claim(ticket.Handle, "b1", ticket.Version)
	require.NoError(t, err)

	// a minute in: too soon, the error carries the remaining wait
	r.now = func() time.Time { return claimTime.Add(time.Minute) }
	_, err = r.Release(ticket.Handle, "b1")
	assert.True(t, errors.Is(err, api.ErrTooSoon))
	var tooSoon api.TooSoonError
	require.True(t, errors.As(err, &tooSoon))
	assert.Equal(t, 4*time.Minute, tooSoon.Remaining)

	// one second short of the cooldown
	r.now = func() time.Time { return claimTime.Add(ReleaseCooldown - time.Second) }
	_, err = r.Release(ticket.Handle, "b1")
	assert.True(t, errors.Is(err, api.ErrTooSoon))

	// exactly at the cooldown the release goes through and clears the claimant
	r.now = func() time.Time { return claimTime.Add(ReleaseCooldown) }
	released, err := r.Release(ticket.Handle, "b1")
	require.NoError(t, err)
	assert.False(t, released.Claimed())
	assert.True(t, released.ClaimedAt.IsZero())
	assert.Equal(t, claimed.Version+1, released.Version)
}

func TestRegistry_Release_Forbidden(t *testing.T) {
	r, _ := newRegistry(t)
	ticket := create(t, r, "uc-i2c-alice", "alice")

	// unclaimed ticket cannot be released
	_, err := r.Release(ticket.Handle, "b1")
	assert.True(t, errors.Is(err, api.ErrForbidden))

	_, err = r.Claim(ticket.Handle, "b1", ticket.Version)
	require.NoError(t, err)

	// only the claimant may release
	_, err = r.Release(ticket.Handle, "b2")
	assert.True(t, errors.Is(err, api.ErrForbidden))
}

func TestRegistry_CompleteAndForceClose(t *testing.T) {
	r, _ := newRegistry(t)
	ticket := create(t, r, "uc-i2c-alice", "alice")

	// completion requires a prior claim
	_, err := r.Complete(ticket.Handle, nil)
	assert.True(t, errors.Is(err, api.ErrForbidden))

	_, err = r.Claim(ticket.Handle, "b1", ticket.Version)
	require.NoError(t, err)

	done, err := r.Complete(ticket.Handle, nil)
	require.NoError(t, err)
	assert.Equal(t, "b1", done.Claimant)
	_, err = r.Get(ticket.Handle)
	assert.True(t, errors.Is(err, api.ErrNotFound))

	// force-close does not require a claim
	other := create(t, r, "uc-c2i-bob", "bob")
	closed, err := r.ForceClose(other.Handle)
	require.NoError(t, err)
	assert.Equal(t, "bob", closed.ClientID)
	assert.Equal(t, 0, r.Open())

	_, err = r.ForceClose("missing")
	assert.True(t, errors.Is(err, api.ErrNotFound))
}

func TestRegistry_New_LoadFails(t *testing.T) {
	// an unreadable snapshot must fail construction, not start empty
	_, err := New(func(string) (storage.Persistence, error) { return brokenStorage{}, nil })
	assert.True(t, errors.Is(err, storage.UnavailableErr))
}

func TestRegistry_Complete_FinalizeFails(t *testing.T) {
	r, _ := newRegistry(t)
	ticket := create(t, r, "uc-i2c-alice", "alice")
	_, err := r.Claim(ticket.Handle, "b1", ticket.Version)
	require.NoError(t, err)

	// a failed finalize step must leave the ticket untouched
	_, err = r.Complete(ticket.Handle, func(t model.Ticket) error {
		return fmt.Errorf("ledger is down")
	})
	assert.Error(t, err)

	kept, err := r.Get(ticket.Handle)
	require.NoError(t, err)
	assert.Equal(t, "b1", kept.Claimant)

	// the ticket still blocks a second open ticket for the client
	_, err = r.Create("uc-i2c-alice-2", "alice", model.I2C, "BTC", decimal.NewFromInt(10), decimal.NewFromInt(10))
	assert.True(t, errors.Is(err, api.ErrConflict))
}

func TestRegistry_Find(t *testing.T) {
	r, _ := newRegistry(t)
	ticket := create(t, r, "uc-i2c-alice", "alice")
	_, err := r.Claim(ticket.Handle, "b1", ticket.Version)
	require.NoError(t, err)

	byClient, ok := r.FindByClient("alice")
	assert.True(t, ok)
	assert.Equal(t, ticket.Handle, byClient.Handle)

	byBroker, ok := r.FindByBroker("b1")
	assert.True(t, ok)
	assert.Equal(t, ticket.Handle, byBroker.Handle)

	_, ok = r.FindByClient("nobody")
	assert.False(t, ok)
	_, ok = r.FindByBroker("b9")
	assert.False(t, ok)
}

// a failed store leaves the registry untouched
func TestRegistry_CreateAtomic(t *testing.T) {
	r, st := newRegistry(t)

	st.FailStores = 1
	_, err := r.Create("uc-i2c-alice", "alice", model.I2C, "USDT", decimal.NewFromInt(1), decimal.NewFromInt(1))
	require.Error(t, err)
	assert.Equal(t, 0, r.Open())

	// and the client is free to retry
	create(t, r, "uc-i2c-alice", "alice")
	assert.Equal(t, 1, r.Open())
}

func TestRegistry_ReloadKeepsTickets(t *testing.T) {
	st := storage.NewMockStorage()
	shard := func(string) (storage.Persistence, error) { return st, nil }

	r, err := New(shard)
	require.NoError(t, err)
	ticket, err := r.Create("uc-i2c-alice", "alice", model.I2C, "USDT", decimal.RequireFromString("11.11"), decimal.NewFromInt(1000))
	require.NoError(t, err)

	reloaded, err := New(shard)
	require.NoError(t, err)
	got, err := reloaded.Get(ticket.Handle)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ClientID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("11.11")))
}
