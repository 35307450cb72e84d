package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/craprotocol/tracer/internal/labels"
	"github.com/craprotocol/tracer/internal/models"
	"github.com/craprotocol/tracer/internal/storage"
	"github.com/craprotocol/tracer/pkg/interval"
)

// StoreReader implements Reader on top of the pebble-backed stores
type StoreReader struct {
	txs    *storage.TxStore
	addrs  *storage.AddressStore
	seeds  *storage.SeedStore
	labels *labels.Set
}

// NewStoreReader creates a StoreReader over the given stores and label set
func NewStoreReader(txs *storage.TxStore, addrs *storage.AddressStore, seeds *storage.SeedStore, ls *labels.Set) *StoreReader {
	return &StoreReader{txs: txs, addrs: addrs, seeds: seeds, labels: ls}
}

// OutEdges implements Reader
func (r *StoreReader) OutEdges(ctx context.Context, address string, window interval.Span) (EdgeSet, error) {
	if err := ctx.Err(); err != nil {
		return EdgeSet{}, err
	}

	addr, err := r.addrs.Get(address)
	if err != nil {
		return EdgeSet{}, fmt.Errorf("%w: reading address %s: %v", ErrStorageUnavailable, address, err)
	}
	if addr == nil {
		return EdgeSet{}, fmt.Errorf("%w: %s", ErrNotFound, address)
	}

	txs, err := r.txs.GetBySpender(address)
	if err != nil {
		return EdgeSet{}, fmt.Errorf("%w: reading out-references of %s: %v", ErrStorageUnavailable, address, err)
	}

	return deriveEdges(address, txs, window), nil
}

// Entity implements Reader. Only labeled service entities are persisted;
// heuristic clusters are computed per trace.
func (r *StoreReader) Entity(_ context.Context, address string) (*models.Entity, error) {
	return r.labels.ByAddress(address), nil
}

// SeedRisk implements Reader
func (r *StoreReader) SeedRisk(_ context.Context, subject string) (float64, bool, error) {
	risk, ok, err := r.seeds.Get(subject)
	if err != nil {
		return 0, false, fmt.Errorf("%w: reading seed risk for %s: %v", ErrStorageUnavailable, subject, err)
	}
	return risk, ok, nil
}

// deriveEdges allocates each transaction and keeps the address's own edges
// within the window. Transactions violating conservation are reported as
// skipped, never surfaced as edges. Input transactions must already be in
// ascending (timestamp, txid) order.
func deriveEdges(address string, txs []*models.Transaction, window interval.Span) EdgeSet {
	var set EdgeSet
	for _, tx := range txs {
		if !window.IsZero() && !window.Contains(tx.Timestamp) {
			continue
		}
		edges, _, err := Allocate(tx)
		if err != nil {
			if errors.Is(err, ErrInconsistentData) {
				set.Skipped = append(set.Skipped, SkippedTx{TxID: tx.TxID, Reason: err.Error()})
				continue
			}
			// Allocate only fails with ErrInconsistentData; keep the
			// skip discipline for anything unexpected as well.
			set.Skipped = append(set.Skipped, SkippedTx{TxID: tx.TxID, Reason: err.Error()})
			continue
		}
		set.Txs = append(set.Txs, tx)
		for _, e := range edges {
			if e.From == address {
				set.Edges = append(set.Edges, e)
			}
		}
	}
	sortEdges(set.Edges)
	return set
}
