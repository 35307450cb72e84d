package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/craprotocol/tracer/internal/labels"
	"github.com/craprotocol/tracer/internal/models"
	"github.com/craprotocol/tracer/pkg/interval"
)

// MemoryGraph is an in-memory Reader for tests, fixtures, and demo
// seeding. Writes and reads are safe for concurrent use.
type MemoryGraph struct {
	mu      sync.RWMutex
	byTxID  map[string]*models.Transaction
	spends  map[string][]*models.Transaction // input address -> txs
	active  map[string]bool                  // any address seen in a tx
	seeds   map[string]float64
	labels  *labels.Set
}

// NewMemoryGraph creates an empty MemoryGraph with the given label set
func NewMemoryGraph(ls *labels.Set) *MemoryGraph {
	if ls == nil {
		ls = labels.NewSet(nil)
	}
	return &MemoryGraph{
		byTxID: make(map[string]*models.Transaction),
		spends: make(map[string][]*models.Transaction),
		active: make(map[string]bool),
		seeds:  make(map[string]float64),
		labels: ls,
	}
}

// AddTransaction records a transaction. Duplicate txids are rejected.
// Unbalanced transactions are accepted here and excluded at read time,
// mirroring how the store reader treats malformed persisted data.
func (m *MemoryGraph) AddTransaction(tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.byTxID[tx.TxID]; dup {
		return fmt.Errorf("duplicate transaction %s", tx.TxID)
	}
	m.byTxID[tx.TxID] = tx

	seen := make(map[string]bool, len(tx.Inputs))
	for _, in := range tx.Inputs {
		m.active[in.Address] = true
		if !seen[in.Address] {
			seen[in.Address] = true
			m.spends[in.Address] = append(m.spends[in.Address], tx)
		}
	}
	for _, out := range tx.Outputs {
		m.active[out.Address] = true
	}
	return nil
}

// SetSeed sets the seed risk for an address or entity ID
func (m *MemoryGraph) SetSeed(subject string, risk float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeds[subject] = risk
}

// OutEdges implements Reader
func (m *MemoryGraph) OutEdges(ctx context.Context, address string, window interval.Span) (EdgeSet, error) {
	if err := ctx.Err(); err != nil {
		return EdgeSet{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.active[address] {
		return EdgeSet{}, fmt.Errorf("%w: %s", ErrNotFound, address)
	}

	txs := append([]*models.Transaction(nil), m.spends[address]...)
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.Before(txs[j].Timestamp)
		}
		return txs[i].TxID < txs[j].TxID
	})

	return deriveEdges(address, txs, window), nil
}

// Entity implements Reader
func (m *MemoryGraph) Entity(_ context.Context, address string) (*models.Entity, error) {
	return m.labels.ByAddress(address), nil
}

// SeedRisk implements Reader
func (m *MemoryGraph) SeedRisk(_ context.Context, subject string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	risk, ok := m.seeds[subject]
	return risk, ok, nil
}
