// Package ingest records transactions into storage and maintains the
// per-address activity bookkeeping. Recording is idempotent by txid, so
// replaying a feed never double-counts.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/craprotocol/tracer/internal/models"
	"github.com/craprotocol/tracer/internal/storage"
)

// LoadCheckpointInterval is the number of transactions between durability
// checkpoints during bulk loads
const LoadCheckpointInterval = 300

// ErrInvalidTransaction rejects a submission that cannot enter the graph
var ErrInvalidTransaction = errors.New("invalid transaction")

// Ingestor writes validated transactions and their address bookkeeping
type Ingestor struct {
	db     *storage.PebbleDB // direct db reference for bulk load control
	txs    *storage.TxStore
	addrs  *storage.AddressStore
	strict bool
}

// NewIngestor creates a new Ingestor. When strict is set, transactions
// that violate the conservation law are rejected instead of stored for
// later exclusion.
func NewIngestor(db *storage.PebbleDB, txs *storage.TxStore, addrs *storage.AddressStore, strict bool) *Ingestor {
	return &Ingestor{db: db, txs: txs, addrs: addrs, strict: strict}
}

// Validate checks the structural rules every recorded transaction must
// satisfy. Conservation violations are reported separately so callers can
// choose whether to reject or record-and-exclude.
func Validate(tx *models.Transaction) error {
	if tx == nil || tx.TxID == "" {
		return fmt.Errorf("%w: missing txid", ErrInvalidTransaction)
	}
	if tx.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidTransaction)
	}
	if len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
		return fmt.Errorf("%w: transaction needs at least one input and one output", ErrInvalidTransaction)
	}
	if tx.Fee < 0 {
		return fmt.Errorf("%w: negative fee", ErrInvalidTransaction)
	}
	for _, in := range tx.Inputs {
		if in.Address == "" || in.Value < 0 {
			return fmt.Errorf("%w: malformed input", ErrInvalidTransaction)
		}
	}
	for _, out := range tx.Outputs {
		if out.Address == "" || out.Value < 0 {
			return fmt.Errorf("%w: malformed output", ErrInvalidTransaction)
		}
	}
	return nil
}

// Record validates and stores one transaction, updating the bookkeeping
// of every address it touches. Recording an already known txid is a no-op.
func (i *Ingestor) Record(tx *models.Transaction) error {
	if err := Validate(tx); err != nil {
		return err
	}
	if i.strict && !tx.Balanced() {
		return fmt.Errorf("%w: inputs do not fund outputs plus fee", ErrInvalidTransaction)
	}

	existing, err := i.txs.Get(tx.TxID)
	if err != nil {
		return fmt.Errorf("checking for existing transaction: %w", err)
	}
	if existing != nil {
		return nil
	}

	if err := i.txs.Save(tx); err != nil {
		return fmt.Errorf("saving transaction %s: %w", tx.TxID, err)
	}
	return i.observeAddresses(tx)
}

// observeAddresses updates first/last seen and running totals for every
// address the transaction touches
func (i *Ingestor) observeAddresses(tx *models.Transaction) error {
	touched := make(map[string]*models.Address)
	lookup := func(address string) (*models.Address, error) {
		if a, ok := touched[address]; ok {
			return a, nil
		}
		a, err := i.addrs.GetOrCreate(address)
		if err != nil {
			return nil, err
		}
		touched[address] = a
		return a, nil
	}

	for _, in := range tx.Inputs {
		a, err := lookup(in.Address)
		if err != nil {
			return err
		}
		a.Observe(tx.Timestamp)
		a.TotalSent += in.Value
	}
	for _, out := range tx.Outputs {
		a, err := lookup(out.Address)
		if err != nil {
			return err
		}
		a.Observe(tx.Timestamp)
		a.TotalReceived += out.Value
	}
	for _, a := range touched {
		a.TxCount++
		if err := i.addrs.Save(a); err != nil {
			return fmt.Errorf("saving address %s: %w", a.Address, err)
		}
	}
	return nil
}

// LoadJSONL bulk-loads a newline-delimited JSON transaction feed. Writes
// run unsynced for throughput with a durability checkpoint every
// LoadCheckpointInterval transactions. Malformed lines are logged and
// skipped rather than aborting the load.
func (i *Ingestor) LoadJSONL(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening transaction feed: %w", err)
	}
	defer f.Close()

	i.db.SetBulkLoadMode(true)
	defer func() {
		i.db.SetBulkLoadMode(false)
		if err := i.db.Sync(); err != nil {
			log.Printf("[ingest] final sync failed: %v", err)
		}
	}()
	log.Printf("[ingest] bulk load from %s (checkpoint every %d txs)", path, LoadCheckpointInterval)

	start := time.Now()
	loaded := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}

		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var tx models.Transaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			log.Printf("[ingest] line %d: bad JSON, skipped: %v", line, err)
			continue
		}
		if err := i.Record(&tx); err != nil {
			log.Printf("[ingest] line %d: %v, skipped", line, err)
			continue
		}
		loaded++

		if loaded%LoadCheckpointInterval == 0 {
			if err := i.db.Sync(); err != nil {
				return loaded, fmt.Errorf("checkpoint sync: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("reading transaction feed: %w", err)
	}

	log.Printf("[ingest] loaded %d transactions in %v", loaded, time.Since(start))
	return loaded, nil
}
