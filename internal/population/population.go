// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package population models agent births. At the start of every
// timestep the Simulator asks the Population for the new agents to
// create; the Population replies with a buffered batch of creations
// followed by a terminator, mirroring population.py's create_agents /
// create_agent_done protocol.
package population

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"open-swarm/pkg/simtypes"
)

// Spawn describes one new agent: its id, its deferred constructor, and
// the seed load estimates the balancer will start from before EMA
// corrects them.
type Spawn struct {
	ID          simtypes.AgentID
	Constructor simtypes.Constructor
	StepTime    float64
	MemoryUsage float64
}

// Source produces the agents to create for a given timestep. An
// implementation of Source is the only thing a concrete Population
// needs to supply; sequence numbering and the create_agent_done
// terminator are handled by Population itself.
type Source interface {
	// Spawns returns the new agents to create for timestep. Seed load
	// estimates may be constants; the balancer corrects them via EMA.
	Spawns(ctx context.Context, timestep simtypes.Timestep) ([]Spawn, error)
}

// CreateAgent is emitted once per new agent, destined for the
// Coordinator.
type CreateAgent struct {
	ID          simtypes.AgentID
	Constructor simtypes.Constructor
	StepTime    float64
	MemoryUsage float64
}

// Sink receives the batch of CreateAgent messages a Population emits
// for a timestep, followed by exactly one terminating call to Done.
type Sink interface {
	CreateAgent(ctx context.Context, msg CreateAgent) error
	Done(ctx context.Context) error
}

// Population drives a Source to produce Spawns for each timestep,
// assigns each a globally unique AgentID, and reports the batch to a
// Sink (ordinarily the Coordinator).
type Population struct {
	source   Source
	sequence atomic.Uint64
}

// New returns a Population that draws new agents from source.
func New(source Source) *Population {
	return &Population{source: source}
}

// CreateAgents implements the create_agents operation: for every Spawn
// the Source returns, it emits a CreateAgent to sink, then emits Done
// once the batch is exhausted.
func (p *Population) CreateAgents(ctx context.Context, timestep simtypes.Timestep, sink Sink) error {
	spawns, err := p.source.Spawns(ctx, timestep)
	if err != nil {
		return fmt.Errorf("population: generating spawns for step %v: %w", timestep.Step, err)
	}

	for _, spawn := range spawns {
		id := spawn.ID
		if id == "" {
			id = simtypes.NewAgentID(p.sequence.Add(1), uuid.NewString())
		}
		msg := CreateAgent{
			ID:          id,
			Constructor: spawn.Constructor,
			StepTime:    spawn.StepTime,
			MemoryUsage: spawn.MemoryUsage,
		}
		if err := sink.CreateAgent(ctx, msg); err != nil {
			return fmt.Errorf("population: emitting create_agent for %s: %w", id, err)
		}
	}

	if err := sink.Done(ctx); err != nil {
		return fmt.Errorf("population: emitting create_agent_done: %w", err)
	}
	return nil
}
