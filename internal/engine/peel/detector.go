// Package peel detects peel chains: transaction sequences where a large
// balance is repeatedly split into a small payout and a dominant "change"
// continuation that funds the next hop. The walk is depth-first along the
// highest-value outgoing edge, cycle-safe via a per-traversal visited edge
// set, and bounded by a hop budget so it terminates even on adversarial
// cyclic graphs.
package peel

import (
	"fmt"
	"math"

	"github.com/craprotocol/tracer/internal/graph"
	"github.com/craprotocol/tracer/internal/models"
)

// Config holds the detector thresholds
type Config struct {
	// MinLength is the minimum hop count for a chain to be reported
	MinLength int
	// ValueFloor stops the chain once the continuation value drops below
	// it (base units)
	ValueFloor int64
	// MaxHops bounds the walk
	MaxHops int
	// ServiceConfidence is the entity confidence above which a labeled
	// service target is treated as a clear ownership change
	ServiceConfidence float64
}

// DefaultConfig returns the provisional default thresholds
func DefaultConfig() Config {
	return Config{
		MinLength:         3,
		ValueFloor:        1000,
		MaxHops:           50,
		ServiceConfidence: 0.9,
	}
}

// EntityResolver resolves the entity owning an address, or nil. The
// orchestrator supplies a combined view of service labels and per-trace
// attribution.
type EntityResolver func(address string) *models.Entity

// Detector walks the traversal subgraph for peel chains
type Detector struct {
	cfg Config
}

// New creates a Detector
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect walks from the start address following the dominant continuation
// edge at every hop and returns the detected chain as a PatternMatch, or
// nil when no chain of the configured minimum length exists.
func (d *Detector) Detect(snap *graph.Snapshot, start string, entityOf EntityResolver) *models.PatternMatch {
	visited := make(map[string]bool) // edge IDs, scoped to this traversal
	var chain []models.FlowEdge

	current := start
	var prevValue int64 = math.MaxInt64
	stop := ""

	for hop := 0; hop < d.cfg.MaxHops; hop++ {
		cont, ok := d.continuation(snap.OutEdges(current), visited, chain, prevValue)
		if !ok {
			stop = "no continuation edge"
			break
		}
		if cont.Value < d.cfg.ValueFloor {
			stop = "continuation below value floor"
			break
		}
		if ent := entityOf(cont.To); ent != nil && ent.IsService() && ent.Confidence >= d.cfg.ServiceConfidence {
			stop = fmt.Sprintf("ownership change: deposit into %s", ent.ID)
			break
		}

		visited[cont.ID()] = true
		chain = append(chain, cont)
		current = cont.To
		prevValue = cont.Value
	}
	if stop == "" {
		stop = "hop budget reached"
	}

	if len(chain) < d.cfg.MinLength {
		return nil
	}
	return d.emit(chain, stop)
}

// continuation selects the highest-value unvisited outgoing edge that
// keeps the chain well-formed: strictly later than the previous hop and
// with non-increasing value. Ties break on earliest timestamp, then lowest
// output index — the edges arrive pre-sorted that way, so the first
// maximum wins.
func (d *Detector) continuation(edges []models.FlowEdge, visited map[string]bool, chain []models.FlowEdge, prevValue int64) (models.FlowEdge, bool) {
	var best models.FlowEdge
	found := false
	for _, e := range edges {
		if visited[e.ID()] {
			continue
		}
		if len(chain) > 0 {
			last := chain[len(chain)-1]
			if !e.Timestamp.After(last.Timestamp) {
				continue
			}
		}
		if e.Value > prevValue {
			continue
		}
		if !found || e.Value > best.Value {
			best = e
			found = true
		}
	}
	return best, found
}

// emit builds the PatternMatch for a completed chain. Confidence decreases
// with the variance of the per-hop retention ratios: a clean geometric
// peel scores higher than an erratic one.
func (d *Detector) emit(chain []models.FlowEdge, stop string) *models.PatternMatch {
	var ratios []float64
	for i := 1; i < len(chain); i++ {
		ratios = append(ratios, float64(chain[i].Value)/float64(chain[i-1].Value))
	}

	confidence := 0.95 - 2*stddev(ratios)
	if confidence < 0 {
		confidence = 0
	}

	return &models.PatternMatch{
		ID:         fmt.Sprintf("peel:%s:%d", chain[0].ID(), len(chain)),
		Type:       models.PatternPeelChain,
		Confidence: confidence,
		Edges:      chain,
		Details: map[string]string{
			"hops":        fmt.Sprintf("%d", len(chain)),
			"stop_reason": stop,
		},
	}
}

// stddev returns the population standard deviation
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance)
}
