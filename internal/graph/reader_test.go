package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craprotocol/tracer/internal/labels"
	"github.com/craprotocol/tracer/internal/models"
	"github.com/craprotocol/tracer/internal/storage"
	"github.com/craprotocol/tracer/pkg/interval"
)

func storeReader(t *testing.T, ls *labels.Set, txs ...*models.Transaction) *StoreReader {
	t.Helper()
	db, err := storage.NewPebbleDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	txStore := storage.NewTxStore(db)
	addrStore := storage.NewAddressStore(db)
	for _, tx := range txs {
		require.NoError(t, txStore.Save(tx))
		for _, in := range tx.Inputs {
			a, err := addrStore.GetOrCreate(in.Address)
			require.NoError(t, err)
			a.Observe(tx.Timestamp)
			require.NoError(t, addrStore.Save(a))
		}
		for _, out := range tx.Outputs {
			a, err := addrStore.GetOrCreate(out.Address)
			require.NoError(t, err)
			a.Observe(tx.Timestamp)
			require.NoError(t, addrStore.Save(a))
		}
	}
	if ls == nil {
		ls = labels.NewSet(nil)
	}
	return NewStoreReader(txStore, addrStore, storage.NewSeedStore(db), ls)
}

func TestStoreReader(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown address is ErrNotFound", func(t *testing.T) {
		r := storeReader(t, nil)
		_, err := r.OutEdges(ctx, "ghost", interval.Span{})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("recipient has a record but no out-edges", func(t *testing.T) {
		r := storeReader(t, nil, tx("t1", allocT0, 0,
			[]models.TxInput{{Address: "a", Value: 100}},
			[]models.TxOutput{{Address: "b", Value: 100}},
		))
		set, err := r.OutEdges(ctx, "b", interval.Span{})
		require.NoError(t, err)
		assert.Empty(t, set.Edges)
	})

	t.Run("edges come back in timestamp order with source txs", func(t *testing.T) {
		r := storeReader(t, nil,
			tx("t2", allocT0.Add(time.Hour), 0,
				[]models.TxInput{{Address: "a", Value: 50}},
				[]models.TxOutput{{Address: "c", Value: 50}}),
			tx("t1", allocT0, 0,
				[]models.TxInput{{Address: "a", Value: 100}},
				[]models.TxOutput{{Address: "b", Value: 100}}),
		)
		set, err := r.OutEdges(ctx, "a", interval.Span{})
		require.NoError(t, err)
		require.Len(t, set.Edges, 2)
		assert.Equal(t, "t1", set.Edges[0].TxID)
		assert.Equal(t, "t2", set.Edges[1].TxID)
		assert.Len(t, set.Txs, 2, "attribution needs the source transactions")
	})

	t.Run("window restricts the edge set", func(t *testing.T) {
		r := storeReader(t, nil,
			tx("t1", allocT0, 0,
				[]models.TxInput{{Address: "a", Value: 100}},
				[]models.TxOutput{{Address: "b", Value: 100}}),
			tx("t2", allocT0.Add(time.Hour), 0,
				[]models.TxInput{{Address: "a", Value: 50}},
				[]models.TxOutput{{Address: "c", Value: 50}}),
		)
		set, err := r.OutEdges(ctx, "a", interval.After(allocT0, 30*time.Minute))
		require.NoError(t, err)
		require.Len(t, set.Edges, 1)
		assert.Equal(t, "t1", set.Edges[0].TxID)
	})

	t.Run("inconsistent transactions are skipped", func(t *testing.T) {
		r := storeReader(t, nil, tx("bad", allocT0, 0,
			[]models.TxInput{{Address: "a", Value: 100}},
			[]models.TxOutput{{Address: "b", Value: 40}},
		))
		set, err := r.OutEdges(ctx, "a", interval.Span{})
		require.NoError(t, err)
		assert.Empty(t, set.Edges)
		require.Len(t, set.Skipped, 1)
		assert.Equal(t, "bad", set.Skipped[0].TxID)
	})

	t.Run("entities and seeds resolve", func(t *testing.T) {
		ls := labels.NewSet([]*models.Entity{{
			ID: "svc:mix", Name: "Mix", Label: models.LabelMixer, Members: []string{"m"},
		}})
		r := storeReader(t, ls)
		ent, err := r.Entity(ctx, "m")
		require.NoError(t, err)
		require.NotNil(t, ent)
		assert.Equal(t, "svc:mix", ent.ID)

		require.NoError(t, r.seeds.Save("m", 0.7))
		risk, ok, err := r.SeedRisk(ctx, "m")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0.7, risk)
	})
}
