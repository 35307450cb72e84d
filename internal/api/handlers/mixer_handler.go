package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/craprotocol/tracer/internal/engine/mixer"
	"github.com/craprotocol/tracer/internal/graph"
	"github.com/craprotocol/tracer/internal/labels"
	"github.com/craprotocol/tracer/internal/models"
	"github.com/craprotocol/tracer/internal/storage"
	"github.com/craprotocol/tracer/pkg/interval"
)

// MixerHandler serves standalone mixer correlation analysis
type MixerHandler struct {
	reader  graph.Reader
	txStore *storage.TxStore
	labels  *labels.Set
	cfg     mixer.Config
}

// NewMixerHandler creates a new MixerHandler
func NewMixerHandler(r graph.Reader, txStore *storage.TxStore, ls *labels.Set, cfg mixer.Config) *MixerHandler {
	return &MixerHandler{reader: r, txStore: txStore, labels: ls, cfg: cfg}
}

// readerEdges adapts the live graph reader to the analyzer's edge source,
// restricted to the candidate window
type readerEdges struct {
	ctx context.Context
	r   graph.Reader
	win interval.Span
}

func (s readerEdges) OutEdges(address string) []models.FlowEdge {
	set, err := s.r.OutEdges(s.ctx, address, s.win)
	if err != nil {
		return nil
	}
	return set.Edges
}

// Analyze correlates an address's deposits into a labeled mixer against
// the mixer's subsequent outflows and returns the full ranked candidate
// set per deposit. A deposit_tx narrows the analysis to one deposit and
// may stand alone when the source address is unknown.
// GET /api/v1/mixer_analysis?mixer=<address or name>&source_address=<addr>
//
//	[&deposit_tx=<txid>][&window_hours=<n>][&from=<RFC3339>][&to=<RFC3339>]
func (h *MixerHandler) Analyze(c *gin.Context) {
	mixerQ := c.Query("mixer")
	source := c.Query("source_address")
	depositTx := c.Query("deposit_tx")
	if mixerQ == "" || (source == "" && depositTx == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing mixer or source_address parameter"})
		return
	}

	ent := h.labels.ByAddress(mixerQ)
	if ent == nil {
		ent = h.labels.ByName(mixerQ)
	}
	if ent == nil || ent.Label != models.LabelMixer {
		c.JSON(http.StatusNotFound, gin.H{"error": "No labeled mixer matches " + mixerQ})
		return
	}

	bounds := parseBounds(c)
	deposits, err := h.findDeposits(c.Request.Context(), ent, source, depositTx, bounds)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(deposits) == 0 {
		msg := "Address " + source + " has no deposits into " + ent.ID
		if source == "" {
			msg = "Transaction " + depositTx + " does not deposit into " + ent.ID
		}
		c.JSON(http.StatusNotFound, gin.H{"error": msg})
		return
	}

	cfg := h.cfg
	if hours := c.Query("window_hours"); hours != "" {
		if d, perr := time.ParseDuration(hours + "h"); perr == nil && d > 0 {
			cfg.TimeWindow = d
		}
	}

	analyzer := mixer.New(cfg)
	analyses := make([]gin.H, 0, len(deposits))
	for _, dep := range deposits {
		win := interval.After(dep.Timestamp, cfg.TimeWindow)
		if !bounds.IsZero() {
			win = win.Intersect(bounds)
		}
		candidates := analyzer.Correlate(
			readerEdges{ctx: c.Request.Context(), r: h.reader, win: win}, ent, dep)
		analyses = append(analyses, gin.H{
			"deposit_tx":    dep.TxID,
			"deposit_value": dep.Value,
			"deposited_at":  dep.Timestamp,
			"candidates":    candidates,
			"count":         len(candidates),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"mixer":          ent.ID,
		"source_address": source,
		"window":         cfg.TimeWindow.String(),
		"fee_tolerance":  cfg.FeeTolerance,
		"analyses":       analyses,
	})
}

// findDeposits resolves the deposit edges to analyze: all of an address's
// flows into the mixer, optionally narrowed to one transaction, or a
// single edge looked up by txid alone
func (h *MixerHandler) findDeposits(ctx context.Context, ent *models.Entity, source, txid string, bounds interval.Span) ([]models.FlowEdge, error) {
	if source == "" {
		dep, ok, err := h.findDeposit(ent, txid)
		if err != nil || !ok {
			return nil, err
		}
		return []models.FlowEdge{dep}, nil
	}

	set, err := h.reader.OutEdges(ctx, source, bounds)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var deposits []models.FlowEdge
	for _, e := range set.Edges {
		if txid != "" && e.TxID != txid {
			continue
		}
		if ent.Contains(e.To) && !ent.Contains(e.From) {
			deposits = append(deposits, e)
		}
	}
	return deposits, nil
}

// findDeposit locates the flow edge of the transaction that moves value
// into the mixer from outside it
func (h *MixerHandler) findDeposit(ent *models.Entity, txid string) (models.FlowEdge, bool, error) {
	tx, err := h.txStore.Get(txid)
	if err != nil {
		return models.FlowEdge{}, false, err
	}
	if tx == nil {
		return models.FlowEdge{}, false, nil
	}

	edges, _, err := graph.Allocate(tx)
	if err != nil {
		return models.FlowEdge{}, false, fmt.Errorf("deriving deposit edges: %w", err)
	}
	for _, e := range edges {
		if ent.Contains(e.To) && !ent.Contains(e.From) {
			return e, true, nil
		}
	}
	return models.FlowEdge{}, false, nil
}

// parseBounds reads the optional from/to query bounds. Unparseable values
// leave the bound open.
func parseBounds(c *gin.Context) interval.Span {
	var span interval.Span
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			span.Start = t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			span.End = t
		}
	}
	return span
}
