// Package trace coordinates one analysis request end to end: snapshot
// construction, entity attribution, pattern detection, and risk scoring.
// The orchestrator is the only component that sequences the engine
// stages; everything downstream of the snapshot build works on the
// snapshot alone.
package trace

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/craprotocol/tracer/internal/engine/attribution"
	"github.com/craprotocol/tracer/internal/engine/mixer"
	"github.com/craprotocol/tracer/internal/engine/peel"
	"github.com/craprotocol/tracer/internal/engine/risk"
	"github.com/craprotocol/tracer/internal/graph"
	"github.com/craprotocol/tracer/internal/labels"
	"github.com/craprotocol/tracer/internal/models"
)

// Config carries the orchestrator budgets plus the per-stage configs.
type Config struct {
	MaxHops  int
	MaxNodes int
	Deadline time.Duration

	Attribution attribution.Config
	Peel        peel.Config
	Mixer       mixer.Config
	Risk        risk.Config
}

// DefaultConfig returns the stock budgets and stage defaults.
func DefaultConfig() Config {
	return Config{
		MaxHops:     50,
		MaxNodes:    10000,
		Deadline:    30 * time.Second,
		Attribution: attribution.DefaultConfig(),
		Peel:        peel.DefaultConfig(),
		Mixer:       mixer.DefaultConfig(),
		Risk:        risk.DefaultConfig(),
	}
}

// Orchestrator runs traces against a graph reader.
type Orchestrator struct {
	cfg    Config
	reader graph.Reader
	labels *labels.Set
}

// NewOrchestrator creates an orchestrator. A nil label set is treated as
// empty.
func NewOrchestrator(cfg Config, r graph.Reader, ls *labels.Set) *Orchestrator {
	if ls == nil {
		ls = labels.NewSet(nil)
	}
	return &Orchestrator{cfg: cfg, reader: r, labels: ls}
}

// NewTraceID mints an externally visible trace identifier.
func NewTraceID() string {
	return "TRACE-" + uuid.NewString()
}

// Trace runs the full pipeline for one start address. Budget exhaustion
// and deadline expiry yield a COMPLETE result with Truncated set; only
// cancellation and storage failures produce an ERROR result, returned
// together with the causing error.
func (o *Orchestrator) Trace(ctx context.Context, start string, opts models.TraceOptions) (*models.TraceResult, error) {
	cfg := o.effective(opts)

	res := &models.TraceResult{
		TraceID:      NewTraceID(),
		StartAddress: start,
		State:        models.TraceInitiated,
		Risks:        make(map[string]*models.RiskScore),
		StartedAt:    time.Now().UTC(),
	}

	if cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()
	}

	snap, err := graph.BuildSnapshot(ctx, o.reader, start, cfg.MaxHops, cfg.MaxNodes)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return o.fail(res, fmt.Errorf("building snapshot: %w", err))
	}
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Stage:   models.TraceInitiated,
			Message: "trace deadline reached during traversal, analyzing partial subgraph",
		})
	}
	for _, sk := range snap.Skipped {
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Stage:   models.TraceInitiated,
			Message: fmt.Sprintf("transaction %s skipped: %s", sk.TxID, sk.Reason),
		})
	}

	res.State = models.TraceAttributing
	attributed := attribution.New(cfg.Attribution, o.labels).Attribute(snapshotTxs(snap))

	// Labeled services win over heuristic clusters for the same address.
	entityOf := func(addr string) *models.Entity {
		if ent := snap.EntityOf(addr); ent != nil {
			return ent
		}
		return attributed.EntityOf(addr)
	}

	res.State = models.TraceDetectingPatterns
	patterns, partial, err := o.detect(ctx, cfg, snap, start, entityOf)
	if err != nil {
		return o.fail(res, fmt.Errorf("detecting patterns: %w", err))
	}
	if partial {
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Stage:   models.TraceDetectingPatterns,
			Message: "trace deadline reached during pattern detection, pattern set may be partial",
		})
	}

	res.State = models.TraceScoring
	scores := risk.NewPropagator(cfg.Risk).Propagate(snap, patterns, entityOf)

	res.State = models.TraceComplete
	res.Addresses = append([]string(nil), snap.Nodes...)
	res.Entities = collectEntities(snap, attributed)
	res.Edges = snap.Edges()
	res.Patterns = patterns
	res.Risks = scores.Scores
	res.Truncated = snap.Truncated || partial
	res.FinishedAt = time.Now().UTC()

	log.Printf("[trace] %s start=%s nodes=%d edges=%d patterns=%d truncated=%v in %v",
		res.TraceID, start, len(res.Addresses), len(res.Edges), len(res.Patterns),
		res.Truncated, res.FinishedAt.Sub(res.StartedAt))
	return res, nil
}

// detect runs the peel chain walk and the mixer correlation scans
// concurrently against the immutable snapshot. Every ranked mixer
// candidate enters the pattern set; confidence cutoffs are the caller's
// call. When the deadline expires mid-detection, the detectors that
// finished contribute their patterns and partial is set.
func (o *Orchestrator) detect(ctx context.Context, cfg Config, snap *graph.Snapshot, start string, entityOf peel.EntityResolver) (patterns []*models.PatternMatch, partial bool, err error) {
	var mu sync.Mutex
	add := func(pm *models.PatternMatch) {
		if pm == nil {
			return
		}
		mu.Lock()
		patterns = append(patterns, pm)
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		add(peel.New(cfg.Peel).Detect(snap, start, entityOf))
		return nil
	})

	analyzer := mixer.New(cfg.Mixer)
	for _, dep := range o.mixerDeposits(snap) {
		dep := dep
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ent := snap.EntityOf(dep.To)
			for _, cand := range analyzer.Correlate(snap, ent, dep) {
				add(cand)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// A deadline mid-detection leaves the trace with whatever
		// patterns finished; cancellation aborts it.
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, false, err
		}
		partial = true
	}

	sort.Slice(patterns, func(i, j int) bool { return patterns[i].ID < patterns[j].ID })
	return patterns, partial, nil
}

// mixerDeposits returns the snapshot edges that move value from outside a
// labeled mixer into it, in deterministic order.
func (o *Orchestrator) mixerDeposits(snap *graph.Snapshot) []models.FlowEdge {
	var deposits []models.FlowEdge
	for _, e := range snap.Edges() {
		to := snap.EntityOf(e.To)
		if to == nil || to.Label != models.LabelMixer {
			continue
		}
		if from := snap.EntityOf(e.From); from != nil && from.ID == to.ID {
			continue // internal shuffle, not a deposit
		}
		deposits = append(deposits, e)
	}
	return deposits
}

// effective overlays per-request options on the configured defaults.
func (o *Orchestrator) effective(opts models.TraceOptions) Config {
	cfg := o.cfg
	if opts.MaxHops > 0 {
		cfg.MaxHops = opts.MaxHops
	}
	if opts.MaxNodes > 0 {
		cfg.MaxNodes = opts.MaxNodes
	}
	if opts.Deadline > 0 {
		cfg.Deadline = opts.Deadline
	}
	if opts.RiskDecay > 0 {
		cfg.Risk.Decay = opts.RiskDecay
	}
	if opts.MixerTimeWindow > 0 {
		cfg.Mixer.TimeWindow = opts.MixerTimeWindow
	}
	if opts.MixerFeeTolerance > 0 {
		cfg.Mixer.FeeTolerance = opts.MixerFeeTolerance
	}
	return cfg
}

// fail finalizes a trace in the ERROR state.
func (o *Orchestrator) fail(res *models.TraceResult, err error) (*models.TraceResult, error) {
	res.State = models.TraceError
	res.FinishedAt = time.Now().UTC()
	res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
		Stage:   res.State,
		Message: err.Error(),
	})
	log.Printf("[trace] %s failed: %v", res.TraceID, err)
	return res, err
}

// snapshotTxs returns the snapshot's source transactions sorted by txid
// so attribution sees a deterministic input regardless of map order.
func snapshotTxs(snap *graph.Snapshot) []*models.Transaction {
	txs := make([]*models.Transaction, 0, len(snap.Txs))
	for _, tx := range snap.Txs {
		txs = append(txs, tx)
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].TxID < txs[j].TxID })
	return txs
}

// collectEntities merges the labeled entities present in the snapshot
// with the heuristic clusters, labeled first, sorted by ID within each
// group.
func collectEntities(snap *graph.Snapshot, attributed *attribution.Result) []*models.Entity {
	seen := make(map[string]bool)
	var labeled []*models.Entity
	for _, addr := range snap.Nodes {
		if ent := snap.EntityOf(addr); ent != nil && !seen[ent.ID] {
			seen[ent.ID] = true
			labeled = append(labeled, ent)
		}
	}
	sort.Slice(labeled, func(i, j int) bool { return labeled[i].ID < labeled[j].ID })

	out := labeled
	for _, ent := range attributed.Entities {
		if !seen[ent.ID] {
			out = append(out, ent)
		}
	}
	return out
}
