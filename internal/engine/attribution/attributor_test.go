package attribution

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craprotocol/tracer/internal/labels"
	"github.com/craprotocol/tracer/internal/models"
)

var attrT0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func spend(txid string, ins []models.TxInput, outs []models.TxOutput, fee int64) *models.Transaction {
	return &models.Transaction{TxID: txid, Timestamp: attrT0, Fee: fee, Inputs: ins, Outputs: outs}
}

func TestAttribute(t *testing.T) {
	a := New(DefaultConfig(), labels.NewSet(nil))

	t.Run("common input clusters co-spenders", func(t *testing.T) {
		res := a.Attribute([]*models.Transaction{
			spend("t1",
				[]models.TxInput{{Address: "a", Value: 600}, {Address: "b", Value: 400}},
				[]models.TxOutput{{Address: "x", Value: 1000}}, 0),
		})
		require.Len(t, res.Entities, 1)
		assert.Equal(t, "ent:a", res.Entities[0].ID)
		assert.Equal(t, []string{"a", "b"}, res.Entities[0].Members)
		assert.Same(t, res.EntityOf("a"), res.EntityOf("b"))
	})

	t.Run("clusters merge transitively across transactions", func(t *testing.T) {
		res := a.Attribute([]*models.Transaction{
			spend("t1",
				[]models.TxInput{{Address: "a", Value: 1}, {Address: "b", Value: 1}},
				[]models.TxOutput{{Address: "x", Value: 2}}, 0),
			spend("t2",
				[]models.TxInput{{Address: "b", Value: 1}, {Address: "c", Value: 1}},
				[]models.TxOutput{{Address: "y", Value: 2}}, 0),
		})
		require.Len(t, res.Entities, 1)
		assert.Equal(t, []string{"a", "b", "c"}, res.Entities[0].Members)
	})

	t.Run("single change vote stays below the merge threshold", func(t *testing.T) {
		// A round payment output and a non-round change output. One
		// change vote (0.4) alone must not merge.
		res := a.Attribute([]*models.Transaction{
			spend("t1",
				[]models.TxInput{{Address: "a", Value: 5_000_123}},
				[]models.TxOutput{
					{Address: "shop", Value: 3_000_000},
					{Address: "chg", Value: 2_000_100},
				}, 23),
		})
		assert.Empty(t, res.Entities, "0.4 vote is below the 0.6 threshold")
	})

	t.Run("repeated change votes accumulate past the threshold", func(t *testing.T) {
		res := a.Attribute([]*models.Transaction{
			spend("t1",
				[]models.TxInput{{Address: "a", Value: 5_000_123}},
				[]models.TxOutput{
					{Address: "shop", Value: 3_000_000},
					{Address: "chg", Value: 2_000_100},
				}, 23),
			spend("t2",
				[]models.TxInput{{Address: "a", Value: 2_000_100}},
				[]models.TxOutput{
					{Address: "cafe", Value: 1_000_000},
					{Address: "chg", Value: 1_000_090},
				}, 10),
		})
		require.Len(t, res.Entities, 1)
		assert.Equal(t, []string{"a", "chg"}, res.Entities[0].Members)
	})

	t.Run("service inputs suppress both heuristics", func(t *testing.T) {
		ls := labels.NewSet([]*models.Entity{{
			ID: "svc:ex", Name: "Ex", Label: models.LabelExchange, Members: []string{"hot"},
		}})
		withLabels := New(DefaultConfig(), ls)
		res := withLabels.Attribute([]*models.Transaction{
			spend("t1",
				[]models.TxInput{{Address: "hot", Value: 600}, {Address: "b", Value: 400}},
				[]models.TxOutput{{Address: "x", Value: 1000}}, 0),
		})
		assert.Empty(t, res.Entities, "exchange batching must not cluster customers")
	})

	t.Run("attribution is idempotent and order independent", func(t *testing.T) {
		txs := []*models.Transaction{
			spend("t1",
				[]models.TxInput{{Address: "a", Value: 1}, {Address: "b", Value: 1}},
				[]models.TxOutput{{Address: "x", Value: 2}}, 0),
			spend("t2",
				[]models.TxInput{{Address: "c", Value: 1}, {Address: "d", Value: 1}},
				[]models.TxOutput{{Address: "y", Value: 2}}, 0),
			spend("t3",
				[]models.TxInput{{Address: "b", Value: 1}, {Address: "c", Value: 1}},
				[]models.TxOutput{{Address: "z", Value: 2}}, 0),
		}
		base := a.Attribute(txs)

		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 10; i++ {
			shuffled := append([]*models.Transaction(nil), txs...)
			rng.Shuffle(len(shuffled), func(x, y int) {
				shuffled[x], shuffled[y] = shuffled[y], shuffled[x]
			})
			got := a.Attribute(shuffled)
			require.Len(t, got.Entities, len(base.Entities))
			for j, ent := range got.Entities {
				assert.Equal(t, base.Entities[j].ID, ent.ID)
				assert.Equal(t, base.Entities[j].Members, ent.Members)
				assert.Equal(t, base.Entities[j].Confidence, ent.Confidence)
			}
		}
	})
}
