package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/craprotocol/tracer/internal/models"
	"github.com/craprotocol/tracer/pkg/interval"
)

// Snapshot is the materialized traversal subgraph for one trace request:
// a bounded, internally consistent read of the graph taken in a single
// pass. All analysis within the trace runs against the snapshot only, so
// concurrent ingestion cannot skew a trace's view, and detectors can walk
// it concurrently without touching the store.
type Snapshot struct {
	Start     string
	Nodes     []string // discovery order
	Hops      map[string]int
	Out       map[string][]models.FlowEdge
	In        map[string][]models.FlowEdge
	Txs       map[string]*models.Transaction
	Entities  map[string]*models.Entity // labeled service entities by member address
	Seeds     map[string]float64
	Truncated bool
	Skipped   []SkippedTx

	maxNodes int
	nodeSet  map[string]bool
}

// BuildSnapshot walks the graph breadth-first from start, collecting at
// most maxNodes addresses within maxHops hops. Expansion stops at the
// budget with Truncated=true rather than failing. Cancellation is checked
// at every hop boundary; when the context expires mid-walk the snapshot
// built so far is returned alongside the context error, marked truncated,
// so the caller can choose between aborting and analyzing the partial
// view. An unknown start address yields a single-node snapshot (NotFound
// is terminal, not fatal).
func BuildSnapshot(ctx context.Context, r Reader, start string, maxHops, maxNodes int) (*Snapshot, error) {
	s := &Snapshot{
		Start:    start,
		Hops:     make(map[string]int),
		Out:      make(map[string][]models.FlowEdge),
		In:       make(map[string][]models.FlowEdge),
		Txs:      make(map[string]*models.Transaction),
		Entities: make(map[string]*models.Entity),
		Seeds:    make(map[string]float64),
		maxNodes: maxNodes,
		nodeSet:  make(map[string]bool),
	}
	s.admit(start, 0)

	expanded := make(map[string]bool)
	frontier := []string{start}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			s.Truncated = true
			if aerr := s.annotate(context.WithoutCancel(ctx), r); aerr != nil {
				return nil, aerr
			}
			return s, err
		}

		var next []string
		for _, addr := range frontier {
			if expanded[addr] {
				continue
			}
			expanded[addr] = true

			set, err := r.OutEdges(ctx, addr, interval.Span{})
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue // terminal leaf
				}
				return nil, err
			}
			s.Skipped = append(s.Skipped, set.Skipped...)

			for _, tx := range set.Txs {
				if _, seen := s.Txs[tx.TxID]; seen {
					continue
				}
				s.Txs[tx.TxID] = tx
				// Co-spending inputs belong in the subgraph: attribution
				// clusters them with the expanded address.
				for _, in := range tx.Inputs {
					s.admit(in.Address, hop)
				}
			}

			for _, e := range set.Edges {
				if !s.nodeSet[e.To] {
					if !s.admit(e.To, hop+1) {
						continue // node budget: edge dropped with its target
					}
					next = append(next, e.To)
				}
				s.Out[e.From] = append(s.Out[e.From], e)
				s.In[e.To] = append(s.In[e.To], e)
			}
		}

		if len(next) > 0 && hop == maxHops-1 {
			s.Truncated = true
		}
		frontier = next
	}

	if err := s.annotate(ctx, r); err != nil {
		return nil, err
	}
	return s, nil
}

// admit adds a node within the budget; reports false and flips Truncated
// when the budget is exhausted
func (s *Snapshot) admit(addr string, hop int) bool {
	if s.nodeSet[addr] {
		return true
	}
	if len(s.Nodes) >= s.maxNodes {
		s.Truncated = true
		return false
	}
	s.nodeSet[addr] = true
	s.Nodes = append(s.Nodes, addr)
	s.Hops[addr] = hop
	return true
}

// annotate resolves entities and seed risks for every admitted node
func (s *Snapshot) annotate(ctx context.Context, r Reader) error {
	for _, addr := range s.Nodes {
		ent, err := r.Entity(ctx, addr)
		if err != nil {
			return fmt.Errorf("resolving entity of %s: %w", addr, err)
		}
		if ent != nil {
			s.Entities[addr] = ent
			if risk, ok, err := r.SeedRisk(ctx, ent.ID); err != nil {
				return err
			} else if ok {
				s.Seeds[ent.ID] = risk
			}
		}
		if risk, ok, err := r.SeedRisk(ctx, addr); err != nil {
			return err
		} else if ok {
			s.Seeds[addr] = risk
		}
	}
	return nil
}

// Contains reports whether the address was admitted to the snapshot
func (s *Snapshot) Contains(addr string) bool {
	return s.nodeSet[addr]
}

// OutEdges returns the outgoing edges of an address inside the snapshot,
// in deterministic order
func (s *Snapshot) OutEdges(addr string) []models.FlowEdge {
	return s.Out[addr]
}

// Edges returns every edge in the snapshot in deterministic order
func (s *Snapshot) Edges() []models.FlowEdge {
	var all []models.FlowEdge
	for _, addr := range s.Nodes {
		all = append(all, s.Out[addr]...)
	}
	sortEdges(all)
	return all
}

// EntityOf returns the labeled entity owning the address, or nil
func (s *Snapshot) EntityOf(addr string) *models.Entity {
	return s.Entities[addr]
}
