package handlers

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/craprotocol/tracer/internal/engine/trace"
	"github.com/craprotocol/tracer/internal/models"
)

// maxCachedTraces bounds the in-memory result cache; the oldest trace is
// evicted first
const maxCachedTraces = 256

// TraceHandler runs traces and serves their results
type TraceHandler struct {
	orchestrator *trace.Orchestrator

	mu      sync.RWMutex
	results map[string]*models.TraceResult // by trace ID
	order   []string                       // trace IDs, oldest first
}

// NewTraceHandler creates a new TraceHandler
func NewTraceHandler(o *trace.Orchestrator) *TraceHandler {
	return &TraceHandler{
		orchestrator: o,
		results:      make(map[string]*models.TraceResult),
	}
}

// traceRequest is the POST body for starting a trace
type traceRequest struct {
	Address string `json:"address" binding:"required"`
	Options struct {
		MaxHops           int     `json:"max_hops"`
		MaxNodes          int     `json:"max_nodes"`
		DeadlineSeconds   int     `json:"deadline_seconds"`
		RiskDecay         float64 `json:"risk_decay"`
		MixerWindowHours  int     `json:"mixer_window_hours"`
		MixerFeeTolerance float64 `json:"mixer_fee_tolerance"`
	} `json:"options"`
}

func (r *traceRequest) toOptions() models.TraceOptions {
	return models.TraceOptions{
		MaxHops:           r.Options.MaxHops,
		MaxNodes:          r.Options.MaxNodes,
		Deadline:          time.Duration(r.Options.DeadlineSeconds) * time.Second,
		RiskDecay:         r.Options.RiskDecay,
		MixerTimeWindow:   time.Duration(r.Options.MixerWindowHours) * time.Hour,
		MixerFeeTolerance: r.Options.MixerFeeTolerance,
	}
}

// Create runs a full trace from the requested address and returns the
// result. The result stays retrievable by trace ID.
// POST /api/v1/traces
func (h *TraceHandler) Create(c *gin.Context) {
	var req traceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trace request: " + err.Error()})
		return
	}

	res, err := h.orchestrator.Trace(c.Request.Context(), req.Address, req.toOptions())
	h.remember(res)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "trace": res})
		return
	}

	c.JSON(http.StatusOK, res)
}

// Get returns a previously computed trace by ID
// GET /api/v1/traces/:id
func (h *TraceHandler) Get(c *gin.Context) {
	h.mu.RLock()
	res, ok := h.results[c.Param("id")]
	h.mu.RUnlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Trace not found"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Visualize runs a trace and projects it into a node/edge form for graph
// rendering, with a short summary block.
// GET /api/v1/trace?address=...&max_hops=...
func (h *TraceHandler) Visualize(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing address parameter"})
		return
	}

	var opts models.TraceOptions
	if hops := c.Query("max_hops"); hops != "" {
		if n, err := strconv.Atoi(hops); err == nil {
			opts.MaxHops = n
		}
	}
	if nodes := c.Query("max_nodes"); nodes != "" {
		if n, err := strconv.Atoi(nodes); err == nil {
			opts.MaxNodes = n
		}
	}

	res, err := h.orchestrator.Trace(c.Request.Context(), address, opts)
	h.remember(res)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.project(res))
}

// remember caches a finished trace for later retrieval by ID, evicting
// the oldest entries past the cache bound
func (h *TraceHandler) remember(res *models.TraceResult) {
	if res == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.results[res.TraceID]; !ok {
		h.order = append(h.order, res.TraceID)
	}
	h.results[res.TraceID] = res
	for len(h.order) > maxCachedTraces {
		delete(h.results, h.order[0])
		h.order = h.order[1:]
	}
}

// project flattens a TraceResult into the visualization contract
func (h *TraceHandler) project(res *models.TraceResult) gin.H {
	entityOf := make(map[string]*models.Entity)
	for _, ent := range res.Entities {
		for _, m := range ent.Members {
			if _, ok := entityOf[m]; !ok {
				entityOf[m] = ent
			}
		}
	}

	var maxRisk float64
	nodes := make([]gin.H, 0, len(res.Addresses))
	for _, addr := range res.Addresses {
		node := gin.H{"id": addr}
		if ent := entityOf[addr]; ent != nil {
			node["entity"] = ent.ID
			if ent.Name != "" {
				node["name"] = ent.Name
			}
			if ent.Label != "" {
				node["label"] = ent.Label
			}
		}
		if rs := res.Risks[addr]; rs != nil {
			node["risk"] = rs.Score
			if rs.Score > maxRisk {
				maxRisk = rs.Score
			}
			if rs.CycleDetected {
				node["cycle_detected"] = true
			}
		}
		nodes = append(nodes, node)
	}

	edges := make([]gin.H, 0, len(res.Edges))
	for _, e := range res.Edges {
		edges = append(edges, gin.H{
			"from":      e.From,
			"to":        e.To,
			"value":     e.Value,
			"txid":      e.TxID,
			"timestamp": e.Timestamp,
		})
	}

	patterns := make([]gin.H, 0, len(res.Patterns))
	for _, pm := range res.Patterns {
		patterns = append(patterns, gin.H{
			"id":         pm.ID,
			"type":       pm.Type,
			"confidence": pm.Confidence,
			"start":      pm.StartAddress(),
			"end":        pm.EndAddress(),
		})
	}

	return gin.H{
		"nodes": nodes,
		"edges": edges,
		"summary": gin.H{
			"trace_id":      res.TraceID,
			"start_address": res.StartAddress,
			"state":         res.State,
			"node_count":    len(nodes),
			"edge_count":    len(edges),
			"entity_count":  len(res.Entities),
			"max_risk":      maxRisk,
			"patterns":      patterns,
			"truncated":     res.Truncated,
			"duration":      res.FinishedAt.Sub(res.StartedAt).String(),
		},
	}
}
