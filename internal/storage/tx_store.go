package storage

import (
	"encoding/json"
	"fmt"

	"github.com/craprotocol/tracer/internal/models"
)

// TxStore handles transaction storage operations. Alongside the transaction
// records it maintains a time-ordered out-reference index per input address
// so edge retrieval comes back in deterministic order.
type TxStore struct {
	db *PebbleDB
}

// NewTxStore creates a new TxStore
func NewTxStore(db *PebbleDB) *TxStore {
	return &TxStore{db: db}
}

// txKey creates a key for the transactions column family
func txKey(txid string) []byte {
	return []byte(txid)
}

// addressTxKey creates a key for the address_txs column family.
// Fixed-width nanosecond timestamp followed by txid, so byte order equals
// (timestamp, txid) order.
func addressTxKey(address string, unixNano int64, txid string) []byte {
	return []byte(fmt.Sprintf("%s:%020d:%s", address, unixNano, txid))
}

// addressTxPrefix creates a prefix covering all out-references of an address
func addressTxPrefix(address string) []byte {
	return []byte(address + ":")
}

// Save stores a transaction and indexes it under every input address.
// Saving the same transaction twice is idempotent.
func (s *TxStore) Save(tx *models.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Destroy()

	if err := s.db.PutBatch(batch, CFTransactions, txKey(tx.TxID), data); err != nil {
		return err
	}

	seen := make(map[string]bool, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if seen[in.Address] {
			continue
		}
		seen[in.Address] = true
		key := addressTxKey(in.Address, tx.Timestamp.UnixNano(), tx.TxID)
		if err := s.db.PutBatch(batch, CFAddressTxs, key, []byte(tx.TxID)); err != nil {
			return err
		}
	}

	return s.db.WriteBatch(batch)
}

// Get retrieves a transaction by its ID. Returns nil if not found.
func (s *TxStore) Get(txid string) (*models.Transaction, error) {
	data, err := s.db.Get(CFTransactions, txKey(txid))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var tx models.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return &tx, nil
}

// GetBySpender retrieves all transactions spending from the given address,
// in ascending (timestamp, txid) order.
func (s *TxStore) GetBySpender(address string) ([]*models.Transaction, error) {
	iter, err := s.db.NewPrefixIterator(CFAddressTxs, addressTxPrefix(address))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var txs []*models.Transaction
	for ; iter.Valid(); iter.Next() {
		txid := string(iter.Value())
		tx, err := s.Get(txid)
		if err != nil {
			return nil, err
		}
		if tx == nil {
			return nil, fmt.Errorf("dangling out-reference %s for address %s", txid, address)
		}
		txs = append(txs, tx)
	}

	return txs, nil
}
