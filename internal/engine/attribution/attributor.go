// Package attribution clusters addresses into entities from co-spend and
// change-address signals. Heuristics contribute weighted votes per address
// pair; pairs whose accumulated vote clears the merge threshold are merged
// through union-find, so the final clustering is independent of transaction
// processing order and running twice on unchanged data yields identical
// clusters.
package attribution

import (
	"sort"

	"github.com/craprotocol/tracer/internal/labels"
	"github.com/craprotocol/tracer/internal/models"
)

// Config holds the attribution heuristic thresholds
type Config struct {
	// MergeThreshold is the accumulated vote above which two addresses
	// are merged into one entity
	MergeThreshold float64
	// CommonInputVote is the weight of one co-spend observation
	CommonInputVote float64
	// ChangeVote is the weight of one change-address observation
	ChangeVote float64
	// RoundUnit defines the recognized round denominations: an output is
	// "round" when its value is a positive multiple of RoundUnit
	RoundUnit int64
	// MaxPaymentInputs bounds how many inputs a transaction may have and
	// still resemble a simple payment for the change heuristic
	MaxPaymentInputs int
}

// DefaultConfig returns the provisional default thresholds
func DefaultConfig() Config {
	return Config{
		MergeThreshold:   0.6,
		CommonInputVote:  0.7,
		ChangeVote:       0.4,
		RoundUnit:        1_000_000,
		MaxPaymentInputs: 3,
	}
}

// Attributor runs the clustering heuristics against a transaction set
type Attributor struct {
	cfg    Config
	labels *labels.Set
}

// New creates an Attributor with the given thresholds and service labels
func New(cfg Config, ls *labels.Set) *Attributor {
	if ls == nil {
		ls = labels.NewSet(nil)
	}
	return &Attributor{cfg: cfg, labels: ls}
}

// Result is the attributed clustering: entities plus an address lookup
type Result struct {
	Entities  []*models.Entity
	byAddress map[string]*models.Entity
}

// EntityOf returns the attributed entity of an address, or nil
func (r *Result) EntityOf(address string) *models.Entity {
	return r.byAddress[address]
}

// pairKey is the canonical (sorted) key for an address pair
type pairKey struct {
	a, b string
}

func newPairKey(x, y string) pairKey {
	if x < y {
		return pairKey{x, y}
	}
	return pairKey{y, x}
}

// Attribute clusters the given transactions. Labeled service addresses
// (exchanges, mixers) are suppressed: custodial pools co-spend on behalf
// of many customers and must not pull them into one entity.
func (a *Attributor) Attribute(txs []*models.Transaction) *Result {
	votes := make(map[pairKey]float64)

	for _, tx := range txs {
		a.voteCommonInput(tx, votes)
		a.voteChangeAddress(tx, votes)
	}

	uf := NewUnionFind()
	merged := make(map[pairKey]float64)
	for pair, vote := range votes {
		if vote >= a.cfg.MergeThreshold {
			uf.Union(pair.a, pair.b)
			merged[pair] = vote
		}
	}

	return buildResult(uf, merged)
}

// voteCommonInput applies the common-input heuristic: all inputs of one
// transaction are assumed co-owned unless any input belongs to a labeled
// service entity
func (a *Attributor) voteCommonInput(tx *models.Transaction, votes map[pairKey]float64) {
	inputs := distinctInputs(tx)
	if len(inputs) < 2 {
		return
	}
	for _, addr := range inputs {
		if a.labels.IsService(addr) {
			return
		}
	}
	// Linking every input to the first is enough for connectivity; the
	// union step is transitive.
	for _, addr := range inputs[1:] {
		votes[newPairKey(inputs[0], addr)] += a.cfg.CommonInputVote
	}
}

// voteChangeAddress applies the change-address heuristic: in a transaction
// resembling a simple payment, a lone output whose value matches no round
// denomination is likely change returning to the sender
func (a *Attributor) voteChangeAddress(tx *models.Transaction, votes map[pairKey]float64) {
	inputs := distinctInputs(tx)
	if len(inputs) == 0 || len(inputs) > a.cfg.MaxPaymentInputs {
		return
	}
	if len(tx.Outputs) != 2 {
		return
	}
	for _, addr := range inputs {
		if a.labels.IsService(addr) {
			return
		}
	}

	change := -1
	for idx, out := range tx.Outputs {
		if !a.isRound(out.Value) {
			if change >= 0 {
				return // more than one non-round output: ambiguous
			}
			change = idx
		}
	}
	if change < 0 {
		return
	}

	changeAddr := tx.Outputs[change].Address
	if a.labels.IsService(changeAddr) || changeAddr == inputs[0] {
		return
	}
	votes[newPairKey(inputs[0], changeAddr)] += a.cfg.ChangeVote
}

func (a *Attributor) isRound(v int64) bool {
	return a.cfg.RoundUnit > 0 && v > 0 && v%a.cfg.RoundUnit == 0
}

// distinctInputs returns the distinct input addresses in first-appearance
// order
func distinctInputs(tx *models.Transaction) []string {
	var out []string
	seen := make(map[string]bool, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if !seen[in.Address] {
			seen[in.Address] = true
			out = append(out, in.Address)
		}
	}
	return out
}

// buildResult materializes entities from the union-find partition. The
// canonical entity ID derives from the smallest member address, and the
// entity confidence is the strongest merged vote inside the cluster,
// capped below certainty.
func buildResult(uf *UnionFind, merged map[pairKey]float64) *Result {
	res := &Result{byAddress: make(map[string]*models.Entity)}

	for root, members := range uf.Clusters() {
		confidence := 0.0
		for pair, vote := range merged {
			if uf.Find(pair.a) == uf.Find(members[0]) && vote > confidence {
				confidence = vote
			}
		}
		if confidence > 0.99 {
			confidence = 0.99
		}
		ent := &models.Entity{
			ID:         "ent:" + root,
			Confidence: confidence,
			Members:    members,
		}
		res.Entities = append(res.Entities, ent)
		for _, m := range members {
			res.byAddress[m] = ent
		}
	}

	sort.Slice(res.Entities, func(i, j int) bool {
		return res.Entities[i].ID < res.Entities[j].ID
	})
	return res
}
