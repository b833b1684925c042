package routes

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_AddLookupRemove(t *testing.T) {
	table := New[string, string]()

	require.NoError(t, table.Add("arbitrum", "0xBEEF"))
	got, ok := table.Lookup("arbitrum")
	assert.True(t, ok)
	assert.Equal(t, "0xBEEF", got)

	table.Remove("arbitrum")
	got, ok = table.Lookup("arbitrum")
	assert.False(t, ok)
	assert.Equal(t, "", got, "lookup after removal returns the empty sentinel")

	// removing twice is not an error
	table.Remove("arbitrum")
	assert.Equal(t, 0, table.Len())
}

func TestTable_Overwrite(t *testing.T) {
	table := New[string, string]()
	require.NoError(t, table.Add("Polygon", "0x01"))
	require.NoError(t, table.Add("Polygon", "0x02"))

	got, _ := table.Lookup("Polygon")
	assert.Equal(t, "0x02", got)
	assert.Equal(t, 1, table.Len())
}

func TestTable_CaseSensitive(t *testing.T) {
	table := New[string, string]()
	require.NoError(t, table.Add("Polygon", "0xAAA"))

	_, ok := table.Lookup("polygon")
	assert.False(t, ok)
	assert.True(t, table.Matches("Polygon", "0xAAA"))
	assert.False(t, table.Matches("Polygon", "0xaaa"))
	assert.False(t, table.Matches("binance", ""))
}

func TestTable_RejectsEmpty(t *testing.T) {
	table := New[uint16, common.Address]()
	err := table.Add(0, common.HexToAddress("0x01"))
	assert.True(t, errors.Is(err, ErrEmptyChain))

	err = table.Add(10102, common.Address{})
	assert.True(t, errors.Is(err, ErrEmptyCounterpart))
}

func TestTable_EntriesSortedAndRestore(t *testing.T) {
	table := New[string, string]()
	require.NoError(t, table.Add("binance", "0x02"))
	require.NoError(t, table.Add("Polygon", "0x03"))
	require.NoError(t, table.Add("arbitrum", "0x01"))

	entries := table.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"Polygon", "arbitrum", "binance"},
		[]string{entries[0].Chain, entries[1].Chain, entries[2].Chain})

	restored := New[string, string]()
	require.NoError(t, restored.Restore(entries))
	assert.Equal(t, entries, restored.Entries())

	err := restored.Restore([]Entry[string, string]{{Chain: "x", Counterpart: ""}})
	assert.ErrorIs(t, err, ErrEmptyCounterpart)
	assert.Equal(t, 3, restored.Len(), "failed restore leaves the table untouched")
}
