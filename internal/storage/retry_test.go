package storage

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flaky struct {
	delegate Persistence
	failures int
	calls    int
	mutex    sync.Mutex
}

func (f *flaky) Store(k Key, value interface{}) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("disk glitch")
	}
	return f.delegate.Store(k, value)
}

func (f *flaky) Load(k Key, value interface{}) error {
	return f.delegate.Load(k, value)
}

func TestRetry_RecoversTransientFailure(t *testing.T) {
	f := &flaky{delegate: NewMockStorage(), failures: 2}
	r := WithRetry(f, 3, time.Millisecond)

	k := Key{Table: RatesTable, Label: "state"}
	require.NoError(t, r.Store(k, map[string]string{"I2C": "90"}))
	assert.Equal(t, 3, f.calls)

	var out map[string]string
	require.NoError(t, r.Load(k, &out))
	assert.Equal(t, "90", out["I2C"])
}

func TestRetry_EscalatesToUnavailable(t *testing.T) {
	f := &flaky{delegate: NewMockStorage(), failures: 10}
	r := WithRetry(f, 3, time.Millisecond)

	err := r.Store(Key{Table: LedgerTable, Label: "state"}, "v")
	assert.True(t, errors.Is(err, UnavailableErr))
	assert.Equal(t, 3, f.calls)
}

func TestRetry_NotFoundIsTerminal(t *testing.T) {
	f := &flaky{delegate: NewMockStorage()}
	r := WithRetry(f, 3, time.Millisecond)

	var out string
	err := r.Load(Key{Table: TicketsTable, Label: "missing"}, &out)
	assert.True(t, errors.Is(err, NotFoundErr))
	assert.False(t, errors.Is(err, UnavailableErr))
}
