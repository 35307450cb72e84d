package graph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craprotocol/tracer/internal/labels"
	"github.com/craprotocol/tracer/internal/models"
)

// chainGraph builds a linear a0 -> a1 -> ... -> aN graph
func chainGraph(t *testing.T, length int) *MemoryGraph {
	t.Helper()
	g := NewMemoryGraph(nil)
	ts := allocT0
	for i := 0; i < length; i++ {
		ts = ts.Add(time.Minute)
		err := g.AddTransaction(tx(fmt.Sprintf("c%03d", i), ts, 0,
			[]models.TxInput{{Address: fmt.Sprintf("a%03d", i), Value: 1000}},
			[]models.TxOutput{{Address: fmt.Sprintf("a%03d", i+1), Value: 1000}},
		))
		require.NoError(t, err)
	}
	return g
}

func TestBuildSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown start is a single node snapshot", func(t *testing.T) {
		g := NewMemoryGraph(nil)
		snap, err := BuildSnapshot(ctx, g, "nowhere", 10, 100)
		require.NoError(t, err)
		assert.Equal(t, []string{"nowhere"}, snap.Nodes)
		assert.False(t, snap.Truncated)
	})

	t.Run("hop budget truncates a long chain", func(t *testing.T) {
		g := chainGraph(t, 20)
		snap, err := BuildSnapshot(ctx, g, "a000", 5, 1000)
		require.NoError(t, err)
		assert.True(t, snap.Truncated, "unexpanded frontier must mark truncation")
		assert.Len(t, snap.Nodes, 6, "start plus five hops")
	})

	t.Run("node budget truncates a wide fanout", func(t *testing.T) {
		g := NewMemoryGraph(nil)
		outs := make([]models.TxOutput, 100)
		for i := range outs {
			outs[i] = models.TxOutput{Address: fmt.Sprintf("leaf%03d", i), Value: 10}
		}
		require.NoError(t, g.AddTransaction(tx("fan", allocT0, 0,
			[]models.TxInput{{Address: "root", Value: 1000}}, outs)))

		snap, err := BuildSnapshot(ctx, g, "root", 10, 50)
		require.NoError(t, err)
		assert.True(t, snap.Truncated)
		assert.Len(t, snap.Nodes, 50)
		for _, edges := range snap.In {
			for _, e := range edges {
				assert.True(t, snap.Contains(e.To), "no edge may point outside the snapshot")
			}
		}
	})

	t.Run("co-spending inputs are admitted", func(t *testing.T) {
		g := NewMemoryGraph(nil)
		require.NoError(t, g.AddTransaction(tx("co", allocT0, 0,
			[]models.TxInput{{Address: "a", Value: 600}, {Address: "helper", Value: 400}},
			[]models.TxOutput{{Address: "b", Value: 1000}},
		)))
		snap, err := BuildSnapshot(ctx, g, "a", 5, 100)
		require.NoError(t, err)
		assert.True(t, snap.Contains("helper"), "co-spender must enter the snapshot")
	})

	t.Run("unbalanced transaction is skipped with a reason", func(t *testing.T) {
		g := NewMemoryGraph(nil)
		require.NoError(t, g.AddTransaction(tx("bad", allocT0, 0,
			[]models.TxInput{{Address: "a", Value: 1000}},
			[]models.TxOutput{{Address: "b", Value: 1}},
		)))
		snap, err := BuildSnapshot(ctx, g, "a", 5, 100)
		require.NoError(t, err)
		assert.Empty(t, snap.OutEdges("a"))
		require.Len(t, snap.Skipped, 1)
		assert.Equal(t, "bad", snap.Skipped[0].TxID)
	})

	t.Run("expired context returns the partial snapshot", func(t *testing.T) {
		g := chainGraph(t, 20)
		expired, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
		defer cancel()

		snap, err := BuildSnapshot(expired, g, "a000", 20, 1000)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.NotNil(t, snap, "partial snapshot must come back with the error")
		assert.True(t, snap.Truncated)
		assert.True(t, snap.Contains("a000"))
	})

	t.Run("labeled entities and seeds are annotated", func(t *testing.T) {
		ls := labels.NewSet([]*models.Entity{{
			ID: "svc:mix", Name: "Mix", Label: models.LabelMixer, Members: []string{"m1"},
		}})
		g := NewMemoryGraph(ls)
		require.NoError(t, g.AddTransaction(tx("dep", allocT0, 0,
			[]models.TxInput{{Address: "a", Value: 100}},
			[]models.TxOutput{{Address: "m1", Value: 100}},
		)))
		g.SetSeed("a", 0.9)

		snap, err := BuildSnapshot(ctx, g, "a", 5, 100)
		require.NoError(t, err)
		require.NotNil(t, snap.EntityOf("m1"))
		assert.Equal(t, "svc:mix", snap.EntityOf("m1").ID)
		assert.Equal(t, 0.9, snap.Seeds["a"])
	})
}
