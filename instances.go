package cdefine

import (
	"sync"

	"github.com/google/uuid"
)

// Instances maps instance ids to live instances. An id is present exactly
// while its instance is attached or adopted; each instance only touches its
// own entry.
type Instances struct {
	mu      sync.RWMutex
	m       map[string]*Instance
	metrics *Metrics
}

// NewInstances creates an empty instance registry.
func NewInstances() *Instances {
	return &Instances{m: make(map[string]*Instance)}
}

// newID returns a process-unique opaque id.
func newID() string {
	return uuid.NewString()
}

// Register stores inst under its id.
func (s *Instances) Register(inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[inst.id] = inst
	s.metrics.setLive(len(s.m))
}

// Unregister removes id.
func (s *Instances) Unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	s.metrics.setLive(len(s.m))
}

// Lookup returns the instance registered under id.
func (s *Instances) Lookup(id string) (*Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.m[id]
	return inst, ok
}

// Len returns the number of registered instances.
func (s *Instances) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
