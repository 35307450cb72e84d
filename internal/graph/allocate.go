package graph

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/craprotocol/tracer/internal/models"
)

// Allocate derives the FlowEdges of a transaction: for every distinct input
// address, its contributed value is split across the outputs proportionally
// to output values, with the residue attributed to the fee. The returned
// fee shares map input address to its fee portion, so for each input
// address the edge values plus the fee share sum exactly to the
// contributed value (conservation law).
//
// Returns ErrInconsistentData when inputs do not fund outputs plus fee.
func Allocate(tx *models.Transaction) ([]models.FlowEdge, map[string]int64, error) {
	if len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
		return nil, nil, fmt.Errorf("%w: tx %s has no inputs or outputs", ErrInconsistentData, tx.TxID)
	}
	for _, in := range tx.Inputs {
		if in.Value < 0 {
			return nil, nil, fmt.Errorf("%w: tx %s has negative input value", ErrInconsistentData, tx.TxID)
		}
	}
	for _, out := range tx.Outputs {
		if out.Value < 0 {
			return nil, nil, fmt.Errorf("%w: tx %s has negative output value", ErrInconsistentData, tx.TxID)
		}
	}
	if tx.Fee < 0 {
		return nil, nil, fmt.Errorf("%w: tx %s has negative fee", ErrInconsistentData, tx.TxID)
	}
	if !tx.Balanced() {
		return nil, nil, fmt.Errorf("%w: tx %s inputs %d != outputs %d + fee %d",
			ErrInconsistentData, tx.TxID, tx.TotalInput(), tx.TotalOutput(), tx.Fee)
	}

	totalIn := tx.TotalInput()
	if totalIn == 0 {
		return nil, nil, fmt.Errorf("%w: tx %s moves no value", ErrInconsistentData, tx.TxID)
	}

	// Aggregate inputs by address, preserving first-appearance order
	contributed := make(map[string]int64)
	var inputOrder []string
	for _, in := range tx.Inputs {
		if _, seen := contributed[in.Address]; !seen {
			inputOrder = append(inputOrder, in.Address)
		}
		contributed[in.Address] += in.Value
	}

	var edges []models.FlowEdge
	feeShares := make(map[string]int64, len(inputOrder))
	for _, from := range inputOrder {
		va := contributed[from]
		var allocated int64
		for idx, out := range tx.Outputs {
			v := mulDiv(va, out.Value, totalIn)
			if v < 0 {
				return nil, nil, fmt.Errorf("%w: tx %s negative residual for input %s", ErrInconsistentData, tx.TxID, from)
			}
			allocated += v
			edges = append(edges, models.FlowEdge{
				TxID:        tx.TxID,
				From:        from,
				To:          out.Address,
				OutputIndex: idx,
				Value:       v,
				Fraction:    float64(v) / float64(totalIn),
				Timestamp:   tx.Timestamp,
			})
		}
		feeShares[from] = va - allocated
	}

	sortEdges(edges)
	return edges, feeShares, nil
}

// mulDiv computes a*b/c without intermediate int64 overflow
func mulDiv(a, b, c int64) int64 {
	r := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	r.Quo(r, big.NewInt(c))
	return r.Int64()
}

// sortEdges orders edges by (timestamp, txid, output index, from) — the
// deterministic traversal order the access layer guarantees
func sortEdges(edges []models.FlowEdge) {
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.TxID != b.TxID {
			return a.TxID < b.TxID
		}
		if a.OutputIndex != b.OutputIndex {
			return a.OutputIndex < b.OutputIndex
		}
		return a.From < b.From
	})
}
