package provider

import "fmt"

// Registry holds the closed set of configured adapters. Selection is by
// configuration and rotation offset, never by runtime type inspection.
type Registry struct {
	adapters []*Adapter
}

// NewRegistry builds a registry from the given adapters, keeping only those
// whose backend is available. Order is preserved: it defines both the
// default preference and the rotation sequence.
func NewRegistry(adapters ...*Adapter) *Registry {
	r := &Registry{}
	for _, a := range adapters {
		if a.Available() {
			r.adapters = append(r.adapters, a)
		}
	}
	return r
}

// Len returns the number of usable adapters.
func (r *Registry) Len() int { return len(r.adapters) }

// Default returns the first usable adapter.
func (r *Registry) Default() (*Adapter, error) {
	if len(r.adapters) == 0 {
		return nil, fmt.Errorf("no providers available: configure at least one API key or the claude CLI")
	}
	return r.adapters[0], nil
}

// ByName returns the adapter for a provider name.
func (r *Registry) ByName(name string) (*Adapter, error) {
	for _, a := range r.adapters {
		if a.Name() == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("provider %q not available", name)
}

// ForRole returns the adapter assigned to the role at position roleIndex
// under the given rotation offset. Successive rotations shift every role to
// a different provider so no single provider always plays the same role.
func (r *Registry) ForRole(roleIndex, rotation int) (*Adapter, error) {
	if len(r.adapters) == 0 {
		return nil, fmt.Errorf("no providers available")
	}
	i := (roleIndex + rotation) % len(r.adapters)
	return r.adapters[i], nil
}

// All returns the usable adapters in registry order.
func (r *Registry) All() []*Adapter {
	out := make([]*Adapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}
