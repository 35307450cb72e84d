package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craprotocol/tracer/internal/models"
	"github.com/craprotocol/tracer/internal/storage"
)

var ingestT0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testIngestor(t *testing.T, strict bool) (*Ingestor, *storage.TxStore, *storage.AddressStore, *storage.SeedStore) {
	t.Helper()
	db, err := storage.NewPebbleDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	txs := storage.NewTxStore(db)
	addrs := storage.NewAddressStore(db)
	return NewIngestor(db, txs, addrs, strict), txs, addrs, storage.NewSeedStore(db)
}

func validTx(txid string) *models.Transaction {
	return &models.Transaction{
		TxID:      txid,
		Timestamp: ingestT0,
		Fee:       10,
		Inputs:    []models.TxInput{{Address: "a", Value: 1010}},
		Outputs:   []models.TxOutput{{Address: "b", Value: 1000}},
	}
}

func TestRecord(t *testing.T) {
	t.Run("stores transaction and bookkeeping", func(t *testing.T) {
		ing, txs, addrs, _ := testIngestor(t, false)
		require.NoError(t, ing.Record(validTx("t1")))

		got, err := txs.Get("t1")
		require.NoError(t, err)
		require.NotNil(t, got)

		sender, err := addrs.Get("a")
		require.NoError(t, err)
		require.NotNil(t, sender)
		assert.Equal(t, int64(1010), sender.TotalSent)
		assert.Equal(t, 1, sender.TxCount)
		assert.True(t, sender.FirstSeen.Equal(ingestT0))

		receiver, err := addrs.Get("b")
		require.NoError(t, err)
		require.NotNil(t, receiver)
		assert.Equal(t, int64(1000), receiver.TotalReceived)
	})

	t.Run("recording the same txid twice is a no-op", func(t *testing.T) {
		ing, _, addrs, _ := testIngestor(t, false)
		require.NoError(t, ing.Record(validTx("t1")))
		require.NoError(t, ing.Record(validTx("t1")))

		sender, err := addrs.Get("a")
		require.NoError(t, err)
		assert.Equal(t, 1, sender.TxCount, "replay must not double count")
	})

	t.Run("structural validation", func(t *testing.T) {
		ing, _, _, _ := testIngestor(t, false)

		missing := validTx("")
		require.ErrorIs(t, ing.Record(missing), ErrInvalidTransaction)

		noOutputs := validTx("t2")
		noOutputs.Outputs = nil
		require.ErrorIs(t, ing.Record(noOutputs), ErrInvalidTransaction)

		negative := validTx("t3")
		negative.Inputs[0].Value = -1
		require.ErrorIs(t, ing.Record(negative), ErrInvalidTransaction)
	})

	t.Run("strict mode rejects unbalanced transactions", func(t *testing.T) {
		strict, _, _, _ := testIngestor(t, true)
		bad := validTx("t4")
		bad.Fee = 999
		require.ErrorIs(t, strict.Record(bad), ErrInvalidTransaction)

		lax, txs, _, _ := testIngestor(t, false)
		require.NoError(t, lax.Record(bad), "lax mode records for read-time exclusion")
		got, err := txs.Get("t4")
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}

func TestLoadJSONL(t *testing.T) {
	ing, txs, _, _ := testIngestor(t, false)

	feed := filepath.Join(t.TempDir(), "feed.jsonl")
	content := `{"txid":"j1","timestamp":"2024-03-01T12:00:00Z","fee":0,"inputs":[{"address":"a","value":100}],"outputs":[{"address":"b","value":100}]}
not json at all
{"txid":"","timestamp":"2024-03-01T12:00:00Z","inputs":[{"address":"a","value":1}],"outputs":[{"address":"b","value":1}]}
{"txid":"j2","timestamp":"2024-03-01T13:00:00Z","fee":5,"inputs":[{"address":"b","value":100}],"outputs":[{"address":"c","value":95}]}
`
	require.NoError(t, os.WriteFile(feed, []byte(content), 0o644))

	n, err := ing.LoadJSONL(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "bad lines are skipped, not fatal")

	for _, txid := range []string{"j1", "j2"} {
		got, err := txs.Get(txid)
		require.NoError(t, err)
		assert.NotNil(t, got, txid)
	}
}

func TestSeedDemoData(t *testing.T) {
	ing, txs, _, seeds := testIngestor(t, false)
	require.NoError(t, SeedDemoData(ing, seeds))

	dep, err := txs.Get("demo-deposit-illicit")
	require.NoError(t, err)
	require.NotNil(t, dep)
	assert.True(t, dep.Balanced())

	risk, ok, err := seeds.Get("0xIllicitSource_A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.95, risk)

	// Seeding twice must be safe.
	require.NoError(t, SeedDemoData(ing, seeds))
}
