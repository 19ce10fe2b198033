package processor

import (
	"sort"
	"sync"
)

type entry struct {
	mu      sync.Mutex
	vehicle Vehicle
	removed bool
}

// Store holds one live record per vehicle id. The map is guarded by an
// RWMutex and each record by its own mutex, so work on different vehicles
// proceeds in parallel while work on one vehicle is serialized.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (s *Store) get(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *Store) getOrCreate(id string) *entry {
	if e, ok := s.get(id); ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e
	}
	e := &entry{vehicle: Vehicle{ID: id}}
	s.entries[id] = e
	return e
}

// lockOrCreate returns the locked entry for id, creating it if needed. An
// entry evicted between lookup and lock is replaced by a fresh one.
func (s *Store) lockOrCreate(id string) *entry {
	for {
		e := s.getOrCreate(id)
		e.mu.Lock()
		if !e.removed {
			return e
		}
		e.mu.Unlock()
	}
}

// lockExisting returns the locked entry for id, or false if it is unknown.
func (s *Store) lockExisting(id string) (*entry, bool) {
	e, ok := s.get(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil, false
	}
	return e, true
}

// Get returns a copy of the vehicle record.
func (s *Store) Get(id string) (Vehicle, bool) {
	e, ok := s.lockExisting(id)
	if !ok {
		return Vehicle{}, false
	}
	defer e.mu.Unlock()
	return e.vehicle.clone(), true
}

// Contains reports whether id currently has a live record.
func (s *Store) Contains(id string) bool {
	_, ok := s.get(id)
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// EvictOlderThan removes vehicles whose last update is before cutoff (epoch
// seconds) and returns their ids. Candidates are collected under the read
// lock and removed one at a time, so a vehicle held by a slow update only
// delays its own eviction.
func (s *Store) EvictOlderThan(cutoff int64) []string {
	s.mu.RLock()
	candidates := make(map[string]*entry, len(s.entries))
	for id, e := range s.entries {
		candidates[id] = e
	}
	s.mu.RUnlock()

	var evicted []string
	for id, e := range candidates {
		e.mu.Lock()
		if !e.removed && e.vehicle.Timestamp < cutoff {
			e.removed = true
			s.mu.Lock()
			if s.entries[id] == e {
				delete(s.entries, id)
			}
			s.mu.Unlock()
			evicted = append(evicted, id)
		}
		e.mu.Unlock()
	}
	sort.Strings(evicted)
	return evicted
}
