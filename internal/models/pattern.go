package models

// PatternType identifies a detection heuristic
type PatternType string

const (
	PatternPeelChain        PatternType = "peel_chain"
	PatternMixerCorrelation PatternType = "mixer_correlation"
)

// PatternMatch is a detected occurrence of a heuristic: an ordered edge
// sequence with a confidence score. Immutable once emitted; a re-run may
// produce a different set but never mutates a prior match.
type PatternMatch struct {
	ID         string            `json:"id"`
	Type       PatternType       `json:"type"`
	Confidence float64           `json:"confidence"` // 0..1
	Edges      []FlowEdge        `json:"edges"`
	Details    map[string]string `json:"details,omitempty"`
}

// StartAddress returns the source of the first edge in the sequence
func (p *PatternMatch) StartAddress() string {
	if len(p.Edges) == 0 {
		return ""
	}
	return p.Edges[0].From
}

// EndAddress returns the target of the last edge in the sequence
func (p *PatternMatch) EndAddress() string {
	if len(p.Edges) == 0 {
		return ""
	}
	return p.Edges[len(p.Edges)-1].To
}

// Touches reports whether the address appears as a source or target of any
// edge in the match
func (p *PatternMatch) Touches(address string) bool {
	for _, e := range p.Edges {
		if e.From == address || e.To == address {
			return true
		}
	}
	return false
}
