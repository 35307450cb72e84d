// Package labels holds process-wide reference data about known service
// entities (mixers, exchanges). The set is loaded once and injected into
// the analysis components, never consulted as implicit global state, so
// tests can substitute fixtures.
package labels

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/craprotocol/tracer/internal/models"
)

// labelFile is the on-disk YAML shape
type labelFile struct {
	Entities []labelEntry `yaml:"entities"`
}

type labelEntry struct {
	Name       string   `yaml:"name"`
	Label      string   `yaml:"label"` // "mixer" or "exchange"
	Confidence float64  `yaml:"confidence"`
	Addresses  []string `yaml:"addresses"`
}

// Set is an immutable lookup of labeled service entities
type Set struct {
	byAddress map[string]*models.Entity
	byName    map[string]*models.Entity
	entities  []*models.Entity
}

// NewSet builds a label set from pre-built entities. Entity IDs are derived
// from the entity name so they are stable across runs.
func NewSet(entities []*models.Entity) *Set {
	s := &Set{
		byAddress: make(map[string]*models.Entity),
		byName:    make(map[string]*models.Entity),
	}
	for _, e := range entities {
		s.entities = append(s.entities, e)
		s.byName[e.Name] = e
		for _, addr := range e.Members {
			s.byAddress[addr] = e
		}
	}
	return s
}

// Load reads a label set from a YAML file. A missing file yields an empty
// set rather than an error.
func Load(path string) (*Set, error) {
	if path == "" {
		return NewSet(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSet(nil), nil
		}
		return nil, fmt.Errorf("failed to read labels file: %w", err)
	}

	var file labelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse labels file: %w", err)
	}

	entities := make([]*models.Entity, 0, len(file.Entities))
	for _, entry := range file.Entities {
		if entry.Label != models.LabelMixer && entry.Label != models.LabelExchange {
			return nil, fmt.Errorf("unknown label %q for entity %q", entry.Label, entry.Name)
		}
		members := append([]string(nil), entry.Addresses...)
		sort.Strings(members)
		entities = append(entities, &models.Entity{
			ID:         EntityID(entry.Name),
			Name:       entry.Name,
			Label:      entry.Label,
			Confidence: entry.Confidence,
			Members:    members,
		})
	}
	return NewSet(entities), nil
}

// EntityID derives the stable identifier for a labeled entity
func EntityID(name string) string {
	return "svc:" + strings.ToLower(strings.ReplaceAll(name, " ", "-"))
}

// ByAddress returns the labeled entity owning the address, or nil
func (s *Set) ByAddress(address string) *models.Entity {
	return s.byAddress[address]
}

// ByName returns the labeled entity with the given name, or nil
func (s *Set) ByName(name string) *models.Entity {
	return s.byName[name]
}

// Entities returns all labeled entities
func (s *Set) Entities() []*models.Entity {
	return s.entities
}

// IsService reports whether the address belongs to any labeled entity
func (s *Set) IsService(address string) bool {
	return s.byAddress[address] != nil
}

// IsMixer reports whether the address belongs to a labeled mixer
func (s *Set) IsMixer(address string) bool {
	e := s.byAddress[address]
	return e != nil && e.Label == models.LabelMixer
}
