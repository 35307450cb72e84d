package models

import (
	"time"
)

// Address represents a chain account with activity bookkeeping
type Address struct {
	Address       string    `json:"address"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	TotalReceived int64     `json:"total_received"` // in base units
	TotalSent     int64     `json:"total_sent"`
	TxCount       int       `json:"tx_count"`
}

// Observe updates the first/last seen window for a new activity timestamp
func (a *Address) Observe(ts time.Time) {
	if a.FirstSeen.IsZero() || ts.Before(a.FirstSeen) {
		a.FirstSeen = ts
	}
	if ts.After(a.LastSeen) {
		a.LastSeen = ts
	}
}
