// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package agent defines the capability interface a Runner drives, and a
// registry that lets a Constructor build one of several agent kinds
// without reflecting over closures.
package agent

import (
	"fmt"
	"sync"

	"open-swarm/pkg/simtypes"
)

// Agent is a single simulated entity. Agents are not actors: a Runner
// owns them and calls Step, IsAlive, and MemoryUsage directly from its
// own event loop.
type Agent interface {
	// Step runs one timestep of agent logic and returns the state
	// updates it produced.
	Step(timestep simtypes.Timestep) ([]simtypes.StateUpdate, error)

	// IsAlive reports whether the agent should keep being stepped. Once
	// false, the owning Runner removes it after the current step.
	IsAlive() bool

	// MemoryUsage reports a relative memory cost used as the second load
	// balancer dimension.
	MemoryUsage() float64
}

// Factory builds an Agent from a gob-decoded argument payload.
type Factory func(args []byte) (Agent, error)

// Registry maps constructor type tags to factories, letting a
// simtypes.Constructor cross a rank boundary as plain bytes and still be
// turned back into a live Agent on the receiving rank.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for typeTag. Registering the same tag twice
// replaces the previous factory.
func (r *Registry) Register(typeTag string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeTag] = factory
}

// Build constructs an Agent from a Constructor using the factory
// registered for its TypeTag.
func (r *Registry) Build(ctor simtypes.Constructor) (Agent, error) {
	r.mu.RLock()
	factory, ok := r.factories[ctor.TypeTag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("agent: no factory registered for type tag %q", ctor.TypeTag)
	}
	a, err := factory(ctor.Args)
	if err != nil {
		return nil, fmt.Errorf("agent: constructing %q: %w", ctor.TypeTag, err)
	}
	return a, nil
}
