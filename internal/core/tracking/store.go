package tracking

import (
	"sync"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
)

// Store holds per-property tracking decisions. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	values map[domain.PropertyConfigurationKey]domain.TrackingConfigurationValue
}

func NewStore() *Store {
	return &Store{values: make(map[domain.PropertyConfigurationKey]domain.TrackingConfigurationValue)}
}

// Upsert merges proposed into the entry for key and returns the value that
// is stored afterwards. The existing value survives only when its priority is
// strictly higher; equal priority means last write wins.
func (s *Store) Upsert(key domain.PropertyConfigurationKey, proposed domain.TrackingConfigurationValue) domain.TrackingConfigurationValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.values[key]; ok && existing.Priority > proposed.Priority {
		return existing
	}
	s.values[key] = proposed
	return proposed
}

// Seed stores value for key only when key has no entry yet. It reports
// whether value was stored.
func (s *Store) Seed(key domain.PropertyConfigurationKey, value domain.TrackingConfigurationValue) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; ok {
		return false
	}
	s.values[key] = value
	return true
}

func (s *Store) Lookup(key domain.PropertyConfigurationKey) (domain.TrackingConfigurationValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a copy of every registration.
func (s *Store) Snapshot() map[domain.PropertyConfigurationKey]domain.TrackingConfigurationValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.PropertyConfigurationKey]domain.TrackingConfigurationValue, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
