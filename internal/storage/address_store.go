package storage

import (
	"encoding/json"
	"fmt"

	"github.com/craprotocol/tracer/internal/models"
)

// AddressStore handles address record storage operations
type AddressStore struct {
	db *PebbleDB
}

// NewAddressStore creates a new AddressStore
func NewAddressStore(db *PebbleDB) *AddressStore {
	return &AddressStore{db: db}
}

// addressKey creates a key for the addresses column family
func addressKey(address string) []byte {
	return []byte(address)
}

// Save stores an address record in the database
func (s *AddressStore) Save(addr *models.Address) error {
	data, err := json.Marshal(addr)
	if err != nil {
		return fmt.Errorf("failed to marshal address: %w", err)
	}

	return s.db.Put(CFAddresses, addressKey(addr.Address), data)
}

// Get retrieves an address record. Returns nil if not found.
func (s *AddressStore) Get(address string) (*models.Address, error) {
	data, err := s.db.Get(CFAddresses, addressKey(address))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var addr models.Address
	if err := json.Unmarshal(data, &addr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal address: %w", err)
	}
	return &addr, nil
}

// GetOrCreate retrieves an address record or returns a fresh one
func (s *AddressStore) GetOrCreate(address string) (*models.Address, error) {
	addr, err := s.Get(address)
	if err != nil {
		return nil, err
	}
	if addr != nil {
		return addr, nil
	}

	return &models.Address{Address: address}, nil
}
