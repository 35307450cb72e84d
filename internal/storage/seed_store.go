package storage

import (
	"strconv"
)

// SeedStore holds the externally supplied seed risk set: a read-only input
// mapping addresses or entity IDs to a base risk value (e.g. a sanctions
// list). Values are stored as decimal strings.
type SeedStore struct {
	db *PebbleDB
}

// NewSeedStore creates a new SeedStore
func NewSeedStore(db *PebbleDB) *SeedStore {
	return &SeedStore{db: db}
}

// Save stores a seed risk value for an address or entity
func (s *SeedStore) Save(subject string, risk float64) error {
	return s.db.Put(CFSeeds, []byte(subject), []byte(strconv.FormatFloat(risk, 'f', -1, 64)))
}

// Get retrieves the seed risk for a subject. The second return value is
// false when the subject has no seed entry.
func (s *SeedStore) Get(subject string) (float64, bool, error) {
	data, err := s.db.Get(CFSeeds, []byte(subject))
	if err != nil {
		return 0, false, err
	}
	if data == nil {
		return 0, false, nil
	}

	risk, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return 0, false, err
	}
	return risk, true, nil
}
