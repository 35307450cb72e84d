package ingest

import (
	"fmt"
	"log"
	"time"

	"github.com/craprotocol/tracer/internal/models"
	"github.com/craprotocol/tracer/internal/storage"
)

// demoUnit is the base-unit value of one coin in the demo fixtures
const demoUnit int64 = 100_000_000

// SeedDemoData loads a small deterministic scenario for exploratory use:
// an illicit source and a clean source both depositing into a labeled
// mixer with closely matched withdrawals, and a five hop peel chain with
// a constant ninety percent retention ratio. Idempotent, so restarting
// against the same store is safe.
func SeedDemoData(ing *Ingestor, seeds *storage.SeedStore) error {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mixerAddr := "0xCryptoBlender_Mixer"

	txs := []*models.Transaction{
		{
			TxID:      "demo-deposit-illicit",
			Timestamp: t0,
			Inputs:    []models.TxInput{{Address: "0xIllicitSource_A", Value: 1000 * demoUnit}},
			Outputs:   []models.TxOutput{{Address: mixerAddr, Value: 1000 * demoUnit}},
		},
		{
			TxID:      "demo-deposit-clean",
			Timestamp: t0.Add(1 * time.Minute),
			Inputs:    []models.TxInput{{Address: "0xLegitSource_B", Value: 500 * demoUnit}},
			Outputs:   []models.TxOutput{{Address: mixerAddr, Value: 500 * demoUnit}},
		},
		{
			TxID:      "demo-withdraw-x",
			Timestamp: t0.Add(5 * time.Minute),
			Fee:       10 * demoUnit,
			Inputs:    []models.TxInput{{Address: mixerAddr, Value: 1000 * demoUnit}},
			Outputs:   []models.TxOutput{{Address: "0xDestination_X", Value: 990 * demoUnit}},
		},
		{
			TxID:      "demo-withdraw-y",
			Timestamp: t0.Add(6 * time.Minute),
			Fee:       5 * demoUnit,
			Inputs:    []models.TxInput{{Address: mixerAddr, Value: 500 * demoUnit}},
			Outputs:   []models.TxOutput{{Address: "0xDestination_Y", Value: 495 * demoUnit}},
		},
	}
	txs = append(txs, demoPeelChain(t0.Add(30*time.Minute))...)

	for _, tx := range txs {
		if err := ing.Record(tx); err != nil {
			return fmt.Errorf("seeding demo transaction %s: %w", tx.TxID, err)
		}
	}

	demoSeeds := map[string]float64{
		"0xIllicitSource_A": 0.95,
		"0xPeelSource":      0.90,
	}
	for subject, risk := range demoSeeds {
		if err := seeds.Save(subject, risk); err != nil {
			return fmt.Errorf("seeding risk for %s: %w", subject, err)
		}
	}

	log.Printf("[ingest] demo scenario seeded: %d transactions, %d risk seeds", len(txs), len(demoSeeds))
	return nil
}

// demoPeelChain builds five hops from 0xPeelSource, each passing ninety
// percent of the remaining value forward and peeling the rest to a fresh
// change address.
func demoPeelChain(start time.Time) []*models.Transaction {
	const fee = 1000
	value := 1000 * demoUnit
	from := "0xPeelSource"

	var txs []*models.Transaction
	for hop := 1; hop <= 5; hop++ {
		next := fmt.Sprintf("0xPeelHop_%d", hop)
		forward := value * 9 / 10
		change := value - forward - fee
		txs = append(txs, &models.Transaction{
			TxID:      fmt.Sprintf("demo-peel-%d", hop),
			Timestamp: start.Add(time.Duration(hop) * time.Minute),
			Fee:       fee,
			Inputs:    []models.TxInput{{Address: from, Value: value}},
			Outputs: []models.TxOutput{
				{Address: next, Value: forward},
				{Address: fmt.Sprintf("0xPeelChange_%d", hop), Value: change},
			},
		})
		from = next
		value = forward
	}
	return txs
}
