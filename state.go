package cdefine

import (
	"maps"
	"slices"
	"sync"
)

// State is a mutable key/value bag safe for concurrent use. Each instance
// owns one for its private state; each definition name owns one shared by
// all of its instances.
type State struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewState returns an empty State.
func NewState() *State {
	return &State{m: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// Set stores v under key.
func (s *State) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = v
}

// Delete removes key.
func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

// Len returns the number of keys.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Keys returns the keys in sorted order.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.m))
}

// Snapshot returns a shallow copy of the contents.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.m)
}

// Replace swaps the contents for a copy of m.
func (s *State) Replace(m map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[string]any, len(m))
	maps.Copy(s.m, m)
}
