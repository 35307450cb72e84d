package models

import (
	"time"
)

// TraceState is the orchestrator state machine position for a trace request
type TraceState string

const (
	TraceInitiated         TraceState = "INITIATED"
	TraceAttributing       TraceState = "ATTRIBUTING"
	TraceDetectingPatterns TraceState = "DETECTING_PATTERNS"
	TraceScoring           TraceState = "SCORING"
	TraceComplete          TraceState = "COMPLETE"
	TraceError             TraceState = "ERROR"
)

// TraceOptions are the recognized per-request knobs. Zero values fall back
// to configured defaults.
type TraceOptions struct {
	MaxHops           int           `json:"max_hops,omitempty"`
	MaxNodes          int           `json:"max_nodes,omitempty"`
	Deadline          time.Duration `json:"deadline,omitempty"`
	RiskDecay         float64       `json:"risk_decay,omitempty"`
	MixerTimeWindow   time.Duration `json:"mixer_time_window,omitempty"`
	MixerFeeTolerance float64       `json:"mixer_fee_tolerance,omitempty"`
}

// Diagnostic records a non-fatal condition encountered during a trace,
// with enough context (stage, address, hop) to reproduce it
type Diagnostic struct {
	Stage   TraceState `json:"stage"`
	Address string     `json:"address,omitempty"`
	Hop     int        `json:"hop,omitempty"`
	Message string     `json:"message"`
}

// TraceResult is the sole contract exposed to the presentation layer:
// the assembled traversal subgraph, detected patterns, propagated risk
// scores, and truncation/diagnostics metadata.
type TraceResult struct {
	TraceID      string                `json:"trace_id"`
	StartAddress string                `json:"start_address"`
	State        TraceState            `json:"state"`
	Addresses    []string              `json:"addresses"`
	Entities     []*Entity             `json:"entities"`
	Edges        []FlowEdge            `json:"edges"`
	Patterns     []*PatternMatch       `json:"patterns"`
	Risks        map[string]*RiskScore `json:"risks"`
	Truncated    bool                  `json:"truncated"`
	Diagnostics  []Diagnostic          `json:"diagnostics,omitempty"`
	StartedAt    time.Time             `json:"started_at"`
	FinishedAt   time.Time             `json:"finished_at"`
}
