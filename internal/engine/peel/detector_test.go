package peel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craprotocol/tracer/internal/graph"
	"github.com/craprotocol/tracer/internal/labels"
	"github.com/craprotocol/tracer/internal/models"
)

var peelT0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func noEntity(string) *models.Entity { return nil }

// buildChain seeds hops transactions that each forward the given ratio
// (in percent) of the remaining value and peel the rest to a change
// address.
func buildChain(t *testing.T, g *graph.MemoryGraph, start string, value int64, hops int, pct int64) {
	t.Helper()
	from := start
	for hop := 1; hop <= hops; hop++ {
		next := fmt.Sprintf("%s_h%d", start, hop)
		forward := value * pct / 100
		require.NoError(t, g.AddTransaction(&models.Transaction{
			TxID:      fmt.Sprintf("%s-p%d", start, hop),
			Timestamp: peelT0.Add(time.Duration(hop) * time.Minute),
			Inputs:    []models.TxInput{{Address: from, Value: value}},
			Outputs: []models.TxOutput{
				{Address: next, Value: forward},
				{Address: fmt.Sprintf("%s_c%d", start, hop), Value: value - forward},
			},
		}))
		from = next
		value = forward
	}
}

func snapshotFrom(t *testing.T, g *graph.MemoryGraph, start string) *graph.Snapshot {
	t.Helper()
	snap, err := graph.BuildSnapshot(context.Background(), g, start, 50, 10000)
	require.NoError(t, err)
	return snap
}

func TestDetect(t *testing.T) {
	t.Run("constant ratio chain scores high", func(t *testing.T) {
		g := graph.NewMemoryGraph(nil)
		buildChain(t, g, "src", 1_000_000_000, 5, 90)
		snap := snapshotFrom(t, g, "src")

		pm := New(DefaultConfig()).Detect(snap, "src", noEntity)
		require.NotNil(t, pm)
		assert.Equal(t, models.PatternPeelChain, pm.Type)
		assert.Len(t, pm.Edges, 5)
		assert.Greater(t, pm.Confidence, 0.7, "steady retention should be confident")
		assert.Equal(t, "no continuation edge", pm.Details["stop_reason"])
	})

	t.Run("erratic ratios score lower than steady ones", func(t *testing.T) {
		g := graph.NewMemoryGraph(nil)
		buildChain(t, g, "steady", 1_000_000_000, 4, 90)
		// Erratic chain alternates retention sharply.
		from, value := "wild", int64(1_000_000_000)
		for hop, pct := range []int64{95, 55, 92, 60} {
			next := fmt.Sprintf("wild_h%d", hop+1)
			forward := value * pct / 100
			require.NoError(t, g.AddTransaction(&models.Transaction{
				TxID:      fmt.Sprintf("wild-p%d", hop+1),
				Timestamp: peelT0.Add(time.Duration(hop+1) * time.Minute),
				Inputs:    []models.TxInput{{Address: from, Value: value}},
				Outputs: []models.TxOutput{
					{Address: next, Value: forward},
					{Address: fmt.Sprintf("wild_c%d", hop+1), Value: value - forward},
				},
			}))
			from, value = next, forward
		}

		d := New(DefaultConfig())
		steady := d.Detect(snapshotFrom(t, g, "steady"), "steady", noEntity)
		wild := d.Detect(snapshotFrom(t, g, "wild"), "wild", noEntity)
		require.NotNil(t, steady)
		require.NotNil(t, wild)
		assert.Greater(t, steady.Confidence, wild.Confidence)
	})

	t.Run("short chains are not reported", func(t *testing.T) {
		g := graph.NewMemoryGraph(nil)
		buildChain(t, g, "src", 1_000_000, 2, 90)
		pm := New(DefaultConfig()).Detect(snapshotFrom(t, g, "src"), "src", noEntity)
		assert.Nil(t, pm, "two hops is below the minimum length")
	})

	t.Run("chain stops at the value floor", func(t *testing.T) {
		g := graph.NewMemoryGraph(nil)
		// Ninety percent of 2000 decays below the floor of 1000 by the
		// seventh hop.
		buildChain(t, g, "src", 2000, 8, 90)
		pm := New(DefaultConfig()).Detect(snapshotFrom(t, g, "src"), "src", noEntity)
		require.NotNil(t, pm)
		assert.Equal(t, "continuation below value floor", pm.Details["stop_reason"])
		assert.Len(t, pm.Edges, 6)
	})

	t.Run("deposit into a service ends the chain", func(t *testing.T) {
		ls := labels.NewSet([]*models.Entity{{
			ID: "svc:ex", Name: "Ex", Label: models.LabelExchange, Confidence: 0.95,
			Members: []string{"exchange_hot"},
		}})
		g := graph.NewMemoryGraph(ls)
		buildChain(t, g, "src", 1_000_000_000, 3, 90)
		require.NoError(t, g.AddTransaction(&models.Transaction{
			TxID:      "cashout",
			Timestamp: peelT0.Add(10 * time.Minute),
			Inputs:    []models.TxInput{{Address: "src_h3", Value: 729_000_000}},
			Outputs: []models.TxOutput{
				{Address: "exchange_hot", Value: 700_000_000},
				{Address: "src_c4", Value: 29_000_000},
			},
		}))

		snap := snapshotFrom(t, g, "src")
		pm := New(DefaultConfig()).Detect(snap, "src", snap.EntityOf)
		require.NotNil(t, pm)
		assert.Equal(t, "ownership change: deposit into svc:ex", pm.Details["stop_reason"])
		assert.Equal(t, "src_h3", pm.EndAddress(), "the deposit edge itself stays outside the chain")
	})

	t.Run("cycles terminate", func(t *testing.T) {
		g := graph.NewMemoryGraph(nil)
		addrs := []string{"a", "b", "c"}
		for i := range addrs {
			require.NoError(t, g.AddTransaction(&models.Transaction{
				TxID:      fmt.Sprintf("cyc%d", i),
				Timestamp: peelT0.Add(time.Duration(i) * time.Minute),
				Inputs:    []models.TxInput{{Address: addrs[i], Value: 1_000_000}},
				Outputs:   []models.TxOutput{{Address: addrs[(i+1)%3], Value: 1_000_000}},
			}))
		}
		done := make(chan *models.PatternMatch, 1)
		go func() {
			done <- New(DefaultConfig()).Detect(snapshotFrom(t, g, "a"), "a", noEntity)
		}()
		select {
		case pm := <-done:
			require.NotNil(t, pm)
			assert.LessOrEqual(t, len(pm.Edges), 3, "every edge may be walked at most once")
		case <-time.After(5 * time.Second):
			t.Fatal("detector did not terminate on a cycle")
		}
	})
}
