package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craprotocol/tracer/internal/models"
)

var storeT0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testDB(t *testing.T) *PebbleDB {
	t.Helper()
	db, err := NewPebbleDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTxStore(t *testing.T) {
	store := NewTxStore(testDB(t))

	tx := &models.Transaction{
		TxID:      "tx1",
		Timestamp: storeT0,
		Fee:       10,
		Inputs:    []models.TxInput{{Address: "a", Value: 1010}},
		Outputs:   []models.TxOutput{{Address: "b", Value: 1000}},
	}

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, store.Save(tx))
		got, err := store.Get("tx1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, tx.TxID, got.TxID)
		assert.True(t, tx.Timestamp.Equal(got.Timestamp))
		assert.Equal(t, tx.Inputs, got.Inputs)
		assert.Equal(t, tx.Outputs, got.Outputs)
	})

	t.Run("missing txid is nil without error", func(t *testing.T) {
		got, err := store.Get("nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("spender index is time ordered", func(t *testing.T) {
		// Saved out of order on purpose.
		later := &models.Transaction{
			TxID:      "tx3",
			Timestamp: storeT0.Add(2 * time.Hour),
			Inputs:    []models.TxInput{{Address: "s", Value: 5}},
			Outputs:   []models.TxOutput{{Address: "x", Value: 5}},
		}
		earlier := &models.Transaction{
			TxID:      "tx2",
			Timestamp: storeT0.Add(time.Hour),
			Inputs:    []models.TxInput{{Address: "s", Value: 7}},
			Outputs:   []models.TxOutput{{Address: "y", Value: 7}},
		}
		require.NoError(t, store.Save(later))
		require.NoError(t, store.Save(earlier))

		got, err := store.GetBySpender("s")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "tx2", got[0].TxID)
		assert.Equal(t, "tx3", got[1].TxID)
	})

	t.Run("spender index is per address", func(t *testing.T) {
		got, err := store.GetBySpender("b")
		require.NoError(t, err)
		assert.Empty(t, got, "receiving only addresses have no spends")
	})
}

func TestAddressStore(t *testing.T) {
	store := NewAddressStore(testDB(t))

	t.Run("get or create starts fresh", func(t *testing.T) {
		addr, err := store.GetOrCreate("new")
		require.NoError(t, err)
		require.NotNil(t, addr)
		assert.Equal(t, "new", addr.Address)
		assert.True(t, addr.FirstSeen.IsZero())
	})

	t.Run("round trip keeps bookkeeping", func(t *testing.T) {
		addr := &models.Address{Address: "a", TotalReceived: 500, TxCount: 2}
		addr.Observe(storeT0)
		require.NoError(t, store.Save(addr))

		got, err := store.Get("a")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(500), got.TotalReceived)
		assert.Equal(t, 2, got.TxCount)
		assert.True(t, got.FirstSeen.Equal(storeT0))
	})
}

func TestSeedStore(t *testing.T) {
	store := NewSeedStore(testDB(t))

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, store.Save("0xbad", 0.95))
		risk, ok, err := store.Get("0xbad")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0.95, risk)
	})

	t.Run("missing subject reports absent", func(t *testing.T) {
		_, ok, err := store.Get("0xclean")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
