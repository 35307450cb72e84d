package models

// Entity labels for known service categories
const (
	LabelMixer    = "mixer"
	LabelExchange = "exchange"
)

// Entity is a cluster of addresses believed to be controlled by one actor.
// Entities are never deleted, only merged into a canonical entity; the
// canonical identifier is derived from the lexicographically smallest
// member address so re-runs produce identical identifiers.
type Entity struct {
	ID         string   `json:"id"`
	Label      string   `json:"label,omitempty"` // e.g. "mixer", "exchange"
	Name       string   `json:"name,omitempty"`  // human-readable, for labeled entities
	Confidence float64  `json:"confidence"`      // 0..1
	Members    []string `json:"members"`
}

// Contains reports whether the address is a member of the entity
func (e *Entity) Contains(address string) bool {
	for _, m := range e.Members {
		if m == address {
			return true
		}
	}
	return false
}

// IsService reports whether the entity is a labeled custodial service
// (exchange or mixer) rather than a heuristically attributed cluster.
func (e *Entity) IsService() bool {
	return e.Label == LabelMixer || e.Label == LabelExchange
}
