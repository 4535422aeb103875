package agent

import (
	"context"
	"fmt"
	"sync"
)

// Capability is a named callable an agent runtime may invoke on its own
type Capability interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, args map[string]interface{}) (string, error)
}

// CapabilitySet is the registry handed to an orchestrator or MCP server.
// Registration order is kept.
type CapabilitySet struct {
	mu    sync.RWMutex
	order []string
	byKey map[string]Capability
}

// NewCapabilitySet creates a set with the given capabilities
func NewCapabilitySet(caps ...Capability) (*CapabilitySet, error) {
	s := &CapabilitySet{byKey: make(map[string]Capability)}
	for _, c := range caps {
		if err := s.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register adds a capability. Names must be unique.
func (s *CapabilitySet) Register(c Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := c.Name()
	if name == "" {
		return fmt.Errorf("capability name is required")
	}
	if _, exists := s.byKey[name]; exists {
		return fmt.Errorf("capability already registered: %s", name)
	}
	s.byKey[name] = c
	s.order = append(s.order, name)
	return nil
}

// Get returns the capability with the given name
func (s *CapabilitySet) Get(name string) (Capability, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byKey[name]
	return c, ok
}

// List returns the capabilities in registration order
func (s *CapabilitySet) List() []Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Capability, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byKey[name])
	}
	return out
}

// Invoke calls the named capability
func (s *CapabilitySet) Invoke(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	c, ok := s.Get(name)
	if !ok {
		return "", fmt.Errorf("capability not found: %s", name)
	}
	return c.Invoke(ctx, args)
}
