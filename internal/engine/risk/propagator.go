// Package risk propagates taint scores downstream through a traversal
// snapshot. A node's score is the larger of its own seed and the decayed
// maximum of its upstream scores, plus a bonus for each laundering
// pattern it participates in, capped at 1. Every score carries the
// contributions that produced it so a reviewer can audit the number.
package risk

import (
	"sort"

	"github.com/craprotocol/tracer/internal/graph"
	"github.com/craprotocol/tracer/internal/models"
)

// Config holds the propagation tunables.
type Config struct {
	// Decay multiplies the upstream maximum once per hop.
	Decay float64
	// PatternBonus is added to the score of every address a detected
	// pattern touches, keyed by pattern type.
	PatternBonus map[models.PatternType]float64
}

// DefaultConfig returns the propagation defaults.
func DefaultConfig() Config {
	return Config{
		Decay: 0.85,
		PatternBonus: map[models.PatternType]float64{
			models.PatternPeelChain:        0.20,
			models.PatternMixerCorrelation: 0.25,
		},
	}
}

// Propagator computes risk scores over a snapshot.
type Propagator struct {
	cfg Config
}

// NewPropagator returns a propagator with the given config. A zero Decay
// falls back to the default.
func NewPropagator(cfg Config) *Propagator {
	if cfg.Decay <= 0 {
		cfg.Decay = DefaultConfig().Decay
	}
	if cfg.PatternBonus == nil {
		cfg.PatternBonus = DefaultConfig().PatternBonus
	}
	return &Propagator{cfg: cfg}
}

// Result maps addresses and entity IDs to their computed scores.
type Result struct {
	Scores map[string]*models.RiskScore
}

// Score returns the computed score for an address or entity ID, or nil.
func (r *Result) Score(subject string) *models.RiskScore {
	return r.Scores[subject]
}

// Propagate walks the snapshot in topological order of its flow edges and
// assigns every node a score. Addresses on a cycle still receive a score
// from the contributions reachable before the cycle closes, flagged with
// CycleDetected. entityOf resolves cluster membership for addresses the
// label set does not cover; it may be nil.
func (p *Propagator) Propagate(snap *graph.Snapshot, patterns []*models.PatternMatch, entityOf func(string) *models.Entity) *Result {
	res := &Result{Scores: make(map[string]*models.RiskScore, len(snap.Nodes))}

	touched := p.patternTouches(patterns)
	order, cyclic := p.topoOrder(snap)

	for _, addr := range order {
		res.Scores[addr] = p.score(snap, addr, touched[addr], res, cyclic[addr])
	}

	p.rollUpEntities(snap, res, entityOf)
	return res
}

// score computes one node's risk from its seed, its upstream neighbors
// scored so far, and the patterns that touch it.
func (p *Propagator) score(snap *graph.Snapshot, addr string, patterns []*models.PatternMatch, res *Result, cyclic bool) *models.RiskScore {
	rs := &models.RiskScore{Subject: addr, CycleDetected: cyclic}

	base := 0.0
	if seed, ok := p.seedFor(snap, addr); ok {
		base = seed
		rs.Contributions = append(rs.Contributions, models.RiskContribution{
			Kind:  models.ContributionSeed,
			Value: seed,
		})
	}

	var upMax float64
	var upFrom string
	for _, e := range snap.In[addr] {
		up, ok := res.Scores[e.From]
		if !ok {
			continue // cycle edge, upstream not yet scored
		}
		if d := p.cfg.Decay * up.Score; d > upMax {
			upMax = d
			upFrom = e.From
		}
	}
	if upMax > base {
		base = upMax
	}
	if upFrom != "" {
		rs.Contributions = append(rs.Contributions, models.RiskContribution{
			Kind:   models.ContributionUpstream,
			Source: upFrom,
			Value:  upMax,
		})
	}

	total := base
	for _, pm := range patterns {
		bonus := p.cfg.PatternBonus[pm.Type]
		if bonus == 0 {
			continue
		}
		total += bonus
		rs.Contributions = append(rs.Contributions, models.RiskContribution{
			Kind:   models.ContributionPattern,
			Source: pm.ID,
			Value:  bonus,
		})
	}
	if total > 1 {
		total = 1
	}
	rs.Score = total
	return rs
}

// seedFor looks up a seed for the address itself or for the labeled
// entity that owns it.
func (p *Propagator) seedFor(snap *graph.Snapshot, addr string) (float64, bool) {
	if s, ok := snap.Seeds[addr]; ok {
		return s, true
	}
	if ent := snap.EntityOf(addr); ent != nil {
		if s, ok := snap.Seeds[ent.ID]; ok {
			return s, true
		}
	}
	return 0, false
}

// patternTouches indexes pattern matches by every address they touch.
func (p *Propagator) patternTouches(patterns []*models.PatternMatch) map[string][]*models.PatternMatch {
	touched := make(map[string][]*models.PatternMatch)
	for _, pm := range patterns {
		seen := make(map[string]bool)
		for _, e := range pm.Edges {
			for _, addr := range []string{e.From, e.To} {
				if !seen[addr] {
					seen[addr] = true
					touched[addr] = append(touched[addr], pm)
				}
			}
		}
	}
	return touched
}

// topoOrder returns the snapshot's nodes in an order where every node
// follows all of its acyclic upstream neighbors (Kahn's algorithm).
// Nodes trapped on cycles cannot be fully ordered; they are appended in
// discovery order and reported in cyclic so their scores can be flagged
// as partial.
func (p *Propagator) topoOrder(snap *graph.Snapshot) (order []string, cyclic map[string]bool) {
	indeg := make(map[string]int, len(snap.Nodes))
	for _, addr := range snap.Nodes {
		indeg[addr] = len(snap.In[addr])
	}

	var ready []string
	for _, addr := range snap.Nodes {
		if indeg[addr] == 0 {
			ready = append(ready, addr)
		}
	}
	sort.Strings(ready)

	done := make(map[string]bool, len(snap.Nodes))
	for len(ready) > 0 {
		addr := ready[0]
		ready = ready[1:]
		if done[addr] {
			continue
		}
		done[addr] = true
		order = append(order, addr)

		for _, e := range snap.Out[addr] {
			indeg[e.To]--
			if indeg[e.To] == 0 {
				ready = append(ready, e.To)
			}
		}
	}

	cyclic = make(map[string]bool)
	for _, addr := range snap.Nodes {
		if !done[addr] {
			cyclic[addr] = true
			order = append(order, addr)
		}
	}
	return order, cyclic
}

// rollUpEntities assigns every entity seen in the snapshot the maximum
// score of its scored members.
func (p *Propagator) rollUpEntities(snap *graph.Snapshot, res *Result, entityOf func(string) *models.Entity) {
	for _, addr := range snap.Nodes {
		ent := snap.EntityOf(addr)
		if ent == nil && entityOf != nil {
			ent = entityOf(addr)
		}
		if ent == nil {
			continue
		}
		member := res.Scores[addr]
		if member == nil {
			continue
		}
		cur := res.Scores[ent.ID]
		if cur == nil {
			cur = &models.RiskScore{Subject: ent.ID}
			res.Scores[ent.ID] = cur
		}
		if member.Score > cur.Score {
			cur.Score = member.Score
			cur.Contributions = []models.RiskContribution{{
				Kind:   models.ContributionUpstream,
				Source: addr,
				Value:  member.Score,
			}}
		}
		if member.CycleDetected {
			cur.CycleDetected = true
		}
	}
}
