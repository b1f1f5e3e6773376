package storage

import (
	"errors"
	"fmt"
)

const (
	// RatesTable holds the rate per exchange direction.
	RatesTable = "rates"
	// BrokersTable holds the broker directory.
	BrokersTable = "brokers"
	// TicketsTable holds the open tickets.
	TicketsTable = "tickets"
	// LedgerTable holds trades, fees and warnings.
	LedgerTable = "ledger"
)

var (
	// TODO : leaving this for now to be able to adjust for the tests
	DefaultDir = "file-storage"
)

// Shard creates a new storage implementation for the given shard.
type Shard func(shard string) (Persistence, error)

var (
	NotFoundErr      = errors.New("not found")
	CouldNotLoadErr  = errors.New("could not load")
	UnavailableErr   = errors.New("unavailable")
	UnrecoverableErr = errors.New("unrecoverable error")
)

// Key is the storage key for a general implementation
type Key struct {
	Table string `json:"table"`
	Label string `json:"label"`
}

func (k Key) Path() string {
	return fmt.Sprintf("%s_%s", k.Table, k.Label)
}

// Persistence stores and loads state snapshots for the registries.
// Every mutation of a store is persisted as one snapshot, so that either
// the whole transition is visible after a reload, or none of it.
type Persistence interface {
	Store(k Key, value interface{}) error
	Load(k Key, value interface{}) error
}

// VoidStorage is a noop storage
type VoidStorage struct {
}

func (d VoidStorage) Store(k Key, value interface{}) error {
	return nil
}

func (d VoidStorage) Load(k Key, value interface{}) error {
	return fmt.Errorf("not found '%v': %w", k, NotFoundErr)
}

// NewVoidStorage creates a new noop storage
func NewVoidStorage() *VoidStorage {
	return &VoidStorage{}
}

// VoidShard creates a new noop shard
func VoidShard() Shard {
	return func(shard string) (Persistence, error) {
		return NewVoidStorage(), nil
	}
}
