package main

import (
	"errors"
	"fmt"
)

// ErrUnsupportedProvider is returned when no simulator is registered under a
// provider id
var ErrUnsupportedProvider = errors.New("unsupported gateway")

// GatewayRegistry maps provider ids to simulators. It is built once at startup
// and never mutated, so lookups need no locking.
type GatewayRegistry struct {
	order      []*GatewaySimulator
	simulators map[string]*GatewaySimulator
}

// NewGatewayRegistry registers sims in the given order
func NewGatewayRegistry(sims ...*GatewaySimulator) (*GatewayRegistry, error) {
	gr := &GatewayRegistry{
		order:      make([]*GatewaySimulator, 0, len(sims)),
		simulators: make(map[string]*GatewaySimulator, len(sims)),
	}

	for _, sim := range sims {
		if sim == nil {
			return nil, errors.New("gateway simulator cannot be nil")
		}

		key := sim.ID().key()
		if key == "" {
			return nil, errors.New("gateway id cannot be empty")
		}
		if _, exists := gr.simulators[key]; exists {
			return nil, fmt.Errorf("gateway '%s' registered twice", sim.ID())
		}

		gr.simulators[key] = sim
		gr.order = append(gr.order, sim)
	}

	return gr, nil
}

// Resolve finds the simulator for id, ignoring case
func (gr *GatewayRegistry) Resolve(id ProviderID) (*GatewaySimulator, error) {
	sim, exists := gr.simulators[id.key()]
	if !exists {
		return nil, fmt.Errorf("gateway '%s': %w", id, ErrUnsupportedProvider)
	}
	return sim, nil
}

// ListAll returns every descriptor in registration order
func (gr *GatewayRegistry) ListAll() []GatewayDescriptor {
	out := make([]GatewayDescriptor, 0, len(gr.order))
	for _, sim := range gr.order {
		out = append(out, sim.Describe())
	}
	return out
}

// IDs returns the registered provider ids in registration order
func (gr *GatewayRegistry) IDs() []ProviderID {
	out := make([]ProviderID, 0, len(gr.order))
	for _, sim := range gr.order {
		out = append(out, sim.ID())
	}
	return out
}
