// Package graph is the access layer over the transaction graph store. It
// derives value-allocated FlowEdges from stored transactions and returns
// them in deterministic order (ascending timestamp, then transaction ID,
// then output index) so traversals are reproducible. The analysis engine
// treats this package as an opaque capability; nothing above it knows the
// storage-specific key layout.
package graph

import (
	"context"
	"errors"

	"github.com/craprotocol/tracer/internal/models"
	"github.com/craprotocol/tracer/pkg/interval"
)

// Sentinel errors for the access layer contract
var (
	// ErrNotFound means the address has no recorded activity. For
	// traversal purposes this is a terminal state, not a failure.
	ErrNotFound = errors.New("address not found")

	// ErrStorageUnavailable means the underlying store could not serve a
	// read. Fatal for the current trace.
	ErrStorageUnavailable = errors.New("graph storage unavailable")

	// ErrInconsistentData means a transaction violates the value
	// conservation invariant. The transaction is excluded from traversal.
	ErrInconsistentData = errors.New("inconsistent transaction data")
)

// SkippedTx records a malformed transaction excluded from traversal
type SkippedTx struct {
	TxID   string
	Reason string
}

// EdgeSet is the result of an out-edge query: the address's own derived
// edges in deterministic order, the well-formed source transactions they
// came from (attribution heuristics need the full input/output sets), and
// any transactions skipped as inconsistent.
type EdgeSet struct {
	Edges   []models.FlowEdge
	Txs     []*models.Transaction
	Skipped []SkippedTx
}

// Reader is the read capability every analysis component consumes
type Reader interface {
	// OutEdges returns the outgoing FlowEdges of an address, optionally
	// restricted to a time span, in ascending (timestamp, txid, output
	// index) order. Returns ErrNotFound when the address has no recorded
	// activity at all.
	OutEdges(ctx context.Context, address string, window interval.Span) (EdgeSet, error)

	// Entity returns the entity owning the address, or nil when the
	// address is unattributed.
	Entity(ctx context.Context, address string) (*models.Entity, error)

	// SeedRisk returns the externally supplied base risk for an address
	// or entity ID. The second return value is false when no seed exists.
	SeedRisk(ctx context.Context, subject string) (float64, bool, error)
}
