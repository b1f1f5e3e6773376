package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_Path(t *testing.T) {
	k := Key{Table: TicketsTable, Label: "state"}
	assert.Equal(t, "tickets_state", k.Path())
}

func TestVoidStorage(t *testing.T) {
	shard := VoidShard()
	st, err := shard("main")
	require.NoError(t, err)

	k := Key{Table: LedgerTable, Label: "state"}
	assert.NoError(t, st.Store(k, map[string]string{"a": "b"}))

	// nothing is retained, loads behave like a fresh store
	var out map[string]string
	err = st.Load(k, &out)
	assert.True(t, errors.Is(err, NotFoundErr))
}
