// Package mixer correlates funds entering a known mixing service with
// funds exiting it. Correlation is inherently probabilistic: the analyzer
// always returns the full ranked candidate set with explicit confidences,
// never a single answer, so callers apply their own cutoff.
package mixer

import (
	"fmt"
	"sort"
	"time"

	"github.com/craprotocol/tracer/internal/models"
)

// Config holds the correlation window parameters
type Config struct {
	// TimeWindow is how long after a deposit a withdrawal may occur
	TimeWindow time.Duration
	// FeeTolerance is the maximum fraction of the deposit the mixer may
	// keep as its fee (the value band is [V*(1-tol), V])
	FeeTolerance float64
}

// DefaultConfig returns the provisional default parameters
func DefaultConfig() Config {
	return Config{
		TimeWindow:   72 * time.Hour,
		FeeTolerance: 0.03,
	}
}

// EdgeSource yields the outgoing edges of an address in deterministic
// order. Both the traversal snapshot and thin reader adapters satisfy it.
type EdgeSource interface {
	OutEdges(address string) []models.FlowEdge
}

// Analyzer matches deposits against withdrawal-side edges of a mixer
type Analyzer struct {
	cfg Config
}

// New creates an Analyzer
func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Correlate searches the mixer's withdrawal-side edges for candidates
// matching the given deposit: value within the fee tolerance band below
// the deposited value, timestamp within the window after the deposit.
// Candidates come back sorted by descending combined score
// (value-closeness × time-closeness), ties broken by earliest withdrawal.
func (a *Analyzer) Correlate(src EdgeSource, mixer *models.Entity, deposit models.FlowEdge) []*models.PatternMatch {
	v := deposit.Value
	if v <= 0 || mixer == nil {
		return nil
	}
	floor := int64(float64(v) * (1 - a.cfg.FeeTolerance))

	type scored struct {
		edge  models.FlowEdge
		score float64
	}
	var candidates []scored

	for _, member := range mixer.Members {
		for _, e := range src.OutEdges(member) {
			if mixer.Contains(e.To) {
				continue // internal shuffling, not a withdrawal
			}
			if !e.Timestamp.After(deposit.Timestamp) {
				continue
			}
			dt := e.Timestamp.Sub(deposit.Timestamp)
			if dt > a.cfg.TimeWindow {
				continue
			}
			if e.Value > v || e.Value < floor {
				continue
			}
			candidates = append(candidates, scored{
				edge:  e,
				score: a.valueCloseness(v, e.Value) * a.timeCloseness(dt),
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if !candidates[i].edge.Timestamp.Equal(candidates[j].edge.Timestamp) {
			return candidates[i].edge.Timestamp.Before(candidates[j].edge.Timestamp)
		}
		return candidates[i].edge.ID() < candidates[j].edge.ID()
	})

	matches := make([]*models.PatternMatch, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, &models.PatternMatch{
			ID:         fmt.Sprintf("mix:%s>%s", deposit.ID(), c.edge.ID()),
			Type:       models.PatternMixerCorrelation,
			Confidence: c.score,
			Edges:      []models.FlowEdge{deposit, c.edge},
			Details: map[string]string{
				"mixer":          mixer.ID,
				"deposit_value":  fmt.Sprintf("%d", v),
				"withdraw_value": fmt.Sprintf("%d", c.edge.Value),
				"delay":          c.edge.Timestamp.Sub(deposit.Timestamp).String(),
			},
		})
	}
	return matches
}

// valueCloseness maps a withdrawal value inside the tolerance band to
// (0,1]: 1 at the exact deposit value, tapering toward the bottom of the
// band. A candidate at the maximum plausible fee still keeps a small
// positive score rather than vanishing at the band edge.
func (a *Analyzer) valueCloseness(deposit, withdrawal int64) float64 {
	if a.cfg.FeeTolerance == 0 {
		return 1
	}
	diff := float64(deposit-withdrawal) / (float64(deposit) * a.cfg.FeeTolerance)
	return clamp01(1 - 0.9*diff)
}

// timeCloseness maps a delay inside the window to [0,1]: 1 immediately
// after the deposit, 0 at the window edge
func (a *Analyzer) timeCloseness(dt time.Duration) float64 {
	if a.cfg.TimeWindow <= 0 {
		return 1
	}
	return clamp01(1 - float64(dt)/float64(a.cfg.TimeWindow))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
