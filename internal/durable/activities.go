// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package durable

import (
	"context"
	"fmt"
	"sync"

	"open-swarm/internal/coordinator"
	"open-swarm/internal/population"
	"open-swarm/internal/runner"
	"open-swarm/internal/store"
	"open-swarm/pkg/simtypes"
)

// Engine is the set of in-memory actors an Activities value dispatches
// into. Temporal can't carry unexported, unserializable engine state
// across activity invocations, so it lives in a process-wide global set
// once at worker startup instead, the same way the host repo's
// infrastructure managers are wired for its Temporal workers.
type Engine struct {
	Population  *population.Population
	Coordinator *coordinator.Coordinator
	Runners     []*runner.Runner
	Stores      map[string]store.StateStore
}

var (
	globalEngine *Engine
	initOnce     sync.Once
)

// InitializeEngine wires the global engine used by Activities. Must be
// called once per worker process before the worker starts polling.
func InitializeEngine(e *Engine) {
	initOnce.Do(func() {
		globalEngine = e
	})
}

// Activities groups the step-loop activities. It carries no state of
// its own; every method reaches into the process-wide Engine set by
// InitializeEngine.
type Activities struct{}

// coordinatorSink adapts Population's Sink capability onto the
// Coordinator: every spawn this step becomes a balancer object, and the
// batch terminator flips the Coordinator's own create_agent_done flag.
type coordinatorSink struct {
	coordinator *coordinator.Coordinator
	created     int
}

func (s *coordinatorSink) CreateAgent(ctx context.Context, msg population.CreateAgent) error {
	s.coordinator.CreateAgent(msg.ID, msg.Constructor, msg.StepTime, msg.MemoryUsage)
	s.created++
	return nil
}

func (s *coordinatorSink) Done(ctx context.Context) error {
	return s.coordinator.CreateAgentDone(ctx)
}

// CreateAgentsActivity asks Population for this step's spawns and stages
// each one with the Coordinator, returning how many were created. The
// actual placement happens later, during CoordinatorStepActivity's
// balancing pass.
func (a *Activities) CreateAgentsActivity(ctx context.Context, ts simtypes.Timestep) (int, error) {
	e := globalEngine
	if e == nil {
		return 0, fmt.Errorf("durable: engine not initialized")
	}
	sink := &coordinatorSink{coordinator: e.Coordinator}
	if err := e.Population.CreateAgents(ctx, ts, sink); err != nil {
		return 0, fmt.Errorf("durable: create_agents: %w", err)
	}
	return sink.created, nil
}

// CoordinatorStepActivity starts the Coordinator's step, which runs its
// balancing pass (dispatching create_agent/move_agent orders to
// runners) now that both the step and the creation batch are known.
func (a *Activities) CoordinatorStepActivity(ctx context.Context, ts simtypes.Timestep) error {
	e := globalEngine
	if e == nil {
		return fmt.Errorf("durable: engine not initialized")
	}
	if err := e.Coordinator.Step(ctx, ts); err != nil {
		return fmt.Errorf("durable: coordinator step: %w", err)
	}
	return nil
}

// RunnerStepActivity runs one rank's local agents for the given
// timestep and reports how many died.
func (a *Activities) RunnerStepActivity(ctx context.Context, rank int, ts simtypes.Timestep) (StepReport, error) {
	e := globalEngine
	if e == nil {
		return StepReport{}, fmt.Errorf("durable: engine not initialized")
	}
	if rank < 0 || rank >= len(e.Runners) {
		return StepReport{}, fmt.Errorf("durable: rank %d out of range", rank)
	}
	r := e.Runners[rank]
	before := r.LocalAgentCount()
	if err := r.Step(ctx, ts); err != nil {
		return StepReport{}, fmt.Errorf("durable: runner %d step: %w", rank, err)
	}
	if err := r.CreateAgentDone(ctx); err != nil {
		return StepReport{}, fmt.Errorf("durable: runner %d create_agent_done: %w", rank, err)
	}
	if err := r.MoveAgentDone(ctx); err != nil {
		return StepReport{}, fmt.Errorf("durable: runner %d move_agent_done: %w", rank, err)
	}
	after := r.LocalAgentCount()
	died := 0
	if before > after {
		died = before - after
	}
	return StepReport{Rank: rank, AgentsUpdated: after, AgentsDied: died}, nil
}
