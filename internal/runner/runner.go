// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package runner implements the per-rank Runner actor: it executes
// local agents, fans their updates out to state stores, and reports
// profiles back to the Coordinator, gated by the four-way creation/
// move/receive barrier described by the step protocol.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"open-swarm/pkg/agent"
	"open-swarm/pkg/simtypes"
)

// StoreDispatch is the Runner's outbound capability toward state store
// replicas.
type StoreDispatch interface {
	HandleUpdate(ctx context.Context, storeName string, update simtypes.StateUpdate) error
	HandleUpdateDone(ctx context.Context, storeName string, rank int) error
}

// CoordinatorDispatch is the Runner's outbound capability toward the
// Coordinator.
type CoordinatorDispatch interface {
	AgentStepProfile(ctx context.Context, rank int, id simtypes.AgentID, stepTime, memoryUsage float64, nUpdates int, isAlive bool) error
	AgentStepProfileDone(ctx context.Context, rank int) error
}

// PeerDispatch is the Runner's outbound capability toward other Runners:
// shipping a migrating agent and broadcasting the move barrier's
// terminator.
type PeerDispatch interface {
	SendAgent(ctx context.Context, dstRank int, id simtypes.AgentID, a agent.Agent) error
	BroadcastReceiveAgentDone(ctx context.Context, rank int) error
}

// Flusher flushes any transport sends buffered during the step.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Runner executes the agents local to one rank.
type Runner struct {
	mu sync.Mutex

	rank       int
	worldSize  int
	registry   *agent.Registry
	stores     StoreDispatch
	storeNames []string
	coord      CoordinatorDispatch
	peers      PeerDispatch
	flusher    Flusher
	logger     *slog.Logger

	agentOrder []simtypes.AgentID
	agents     map[simtypes.AgentID]agent.Agent

	timestep            *simtypes.Timestep
	flagCreateAgentDone bool
	flagMoveAgentsDone  bool
	numReceiveAgentDone int
}

// New returns a Runner for the given rank.
func New(rank, worldSize int, registry *agent.Registry, stores StoreDispatch, storeNames []string, coord CoordinatorDispatch, peers PeerDispatch, flusher Flusher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		rank:       rank,
		worldSize:  worldSize,
		registry:   registry,
		stores:     stores,
		storeNames: storeNames,
		coord:      coord,
		peers:      peers,
		flusher:    flusher,
		agents:     make(map[simtypes.AgentID]agent.Agent),
		logger:     logger.With("component", "runner", "rank", rank),
	}
	r.prepareForNextStep()
	return r
}

func (r *Runner) prepareForNextStep() {
	r.timestep = nil
	r.flagCreateAgentDone = false
	r.flagMoveAgentsDone = false
	r.numReceiveAgentDone = 0
}

// Step begins a new step. It is a fatal invariant violation to call
// Step while a previous step has not finished.
func (r *Runner) Step(ctx context.Context, ts simtypes.Timestep) error {
	r.mu.Lock()
	if r.timestep != nil {
		prev := r.timestep.Step
		r.mu.Unlock()
		return fmt.Errorf("runner %d: step(%v) called while step %v is still in progress", r.rank, ts.Step, prev)
	}
	r.timestep = &ts
	r.mu.Unlock()
	return r.tryStartStep(ctx)
}

// CreateAgent constructs a new local agent. It is a fatal invariant
// violation to create an agent whose id already exists locally.
func (r *Runner) CreateAgent(id simtypes.AgentID, ctor simtypes.Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[id]; exists {
		return fmt.Errorf("runner %d: can't create agent; %s already exists", r.rank, id)
	}
	a, err := r.registry.Build(ctor)
	if err != nil {
		return fmt.Errorf("runner %d: creating %s: %w", r.rank, id, err)
	}
	r.agents[id] = a
	r.agentOrder = append(r.agentOrder, id)
	return nil
}

// CreateAgentDone marks the creation phase complete for the current
// step.
func (r *Runner) CreateAgentDone(ctx context.Context) error {
	r.mu.Lock()
	if r.flagCreateAgentDone {
		r.mu.Unlock()
		return fmt.Errorf("runner %d: create_agent_done received twice in one step", r.rank)
	}
	r.flagCreateAgentDone = true
	r.mu.Unlock()
	return r.tryStartStep(ctx)
}

// MoveAgent ships a local agent to dstRank and removes it locally. It is
// a fatal invariant violation to move an agent that isn't local.
func (r *Runner) MoveAgent(ctx context.Context, id simtypes.AgentID, dstRank int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, exists := r.agents[id]
	if !exists {
		return fmt.Errorf("runner %d: can't send agent; %s doesn't exist", r.rank, id)
	}
	if err := r.peers.SendAgent(ctx, dstRank, id, a); err != nil {
		return fmt.Errorf("runner %d: sending %s to rank %d: %w", r.rank, id, dstRank, err)
	}
	r.deleteAgent(id)
	return nil
}

// MoveAgentDone marks the move phase complete for the current step and
// broadcasts receive_agent_done to every runner, itself included. The
// broadcast runs with the lock released: a same-process peer wiring
// (as in a single-node deployment, where this rank is also its own
// only peer) may round-trip straight back into ReceiveAgentDone, which
// would otherwise deadlock against this call's own lock.
func (r *Runner) MoveAgentDone(ctx context.Context) error {
	r.mu.Lock()
	if r.flagMoveAgentsDone {
		r.mu.Unlock()
		return fmt.Errorf("runner %d: move_agent_done received twice in one step", r.rank)
	}
	r.flagMoveAgentsDone = true
	r.mu.Unlock()

	if err := r.peers.BroadcastReceiveAgentDone(ctx, r.rank); err != nil {
		return fmt.Errorf("runner %d: broadcasting receive_agent_done: %w", r.rank, err)
	}

	return r.tryStartStep(ctx)
}

// ReceiveAgent accepts an agent migrating in from another rank. It is a
// fatal invariant violation to receive an agent whose id is already
// local.
func (r *Runner) ReceiveAgent(id simtypes.AgentID, a agent.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[id]; exists {
		return fmt.Errorf("runner %d: can't receive agent; %s already exists", r.rank, id)
	}
	r.agents[id] = a
	r.agentOrder = append(r.agentOrder, id)
	return nil
}

// ReceiveAgentDone records that rank has finished sending migrating
// agents for this step.
func (r *Runner) ReceiveAgentDone(ctx context.Context, rank int) error {
	r.mu.Lock()
	if r.numReceiveAgentDone >= r.worldSize {
		r.mu.Unlock()
		return fmt.Errorf("runner %d: receive_agent_done received more than %d times this step", r.rank, r.worldSize)
	}
	r.logger.Debug("peer finished sending agents", "peer_rank", rank)
	r.numReceiveAgentDone++
	r.mu.Unlock()
	return r.tryStartStep(ctx)
}

// tryStartStep must be called WITHOUT holding mu: once every barrier
// for the current step is satisfied it runs doStep, which dispatches
// out to stores, the Coordinator and the transport. Any of those may
// route straight back into this same Runner for the next timestep
// before doStep returns (a same-process wiring, or a single-rank
// deployment where this rank is also its own only peer); holding mu
// across that dispatch would deadlock.
func (r *Runner) tryStartStep(ctx context.Context) error {
	r.mu.Lock()
	r.logger.Debug("checking ready-to-start",
		"has_timestep", r.timestep != nil,
		"create_agent_done", r.flagCreateAgentDone,
		"move_agent_done", r.flagMoveAgentsDone,
		"receive_agent_done", r.numReceiveAgentDone,
		"world_size", r.worldSize,
	)

	if r.timestep == nil || !r.flagCreateAgentDone || !r.flagMoveAgentsDone || r.numReceiveAgentDone < r.worldSize {
		r.mu.Unlock()
		return nil
	}
	ts := *r.timestep
	agentOrder := append([]simtypes.AgentID(nil), r.agentOrder...)
	r.mu.Unlock()

	if err := r.doStep(ctx, ts, agentOrder); err != nil {
		return err
	}

	r.mu.Lock()
	r.prepareForNextStep()
	r.mu.Unlock()
	return nil
}

// doStep runs without holding mu; it only touches r.agents and
// r.agentOrder through the locked helpers below.
func (r *Runner) doStep(ctx context.Context, ts simtypes.Timestep, agentOrder []simtypes.AgentID) error {
	var deadAgents []simtypes.AgentID

	for _, id := range agentOrder {
		a, ok := r.lookupAgent(id)
		if !ok {
			continue // already removed by a prior move within this same step
		}

		start := time.Now()
		updates, err := a.Step(ts)
		if err != nil {
			return fmt.Errorf("runner %d: agent %s step: %w", r.rank, id, err)
		}
		memoryUsage := a.MemoryUsage()
		isAlive := a.IsAlive()
		if !isAlive {
			deadAgents = append(deadAgents, id)
		}

		for _, update := range updates {
			if err := r.stores.HandleUpdate(ctx, update.StoreName, update); err != nil {
				return fmt.Errorf("runner %d: routing update for %s to store %s: %w", r.rank, id, update.StoreName, err)
			}
		}
		stepTime := time.Since(start).Seconds()

		if err := r.coord.AgentStepProfile(ctx, r.rank, id, stepTime, memoryUsage, len(updates), isAlive); err != nil {
			return fmt.Errorf("runner %d: reporting profile for %s: %w", r.rank, id, err)
		}
	}

	for _, storeName := range r.storeNames {
		if err := r.stores.HandleUpdateDone(ctx, storeName, r.rank); err != nil {
			return fmt.Errorf("runner %d: handle_update_done to store %s: %w", r.rank, storeName, err)
		}
	}

	if err := r.coord.AgentStepProfileDone(ctx, r.rank); err != nil {
		return fmt.Errorf("runner %d: reporting step done: %w", r.rank, err)
	}

	if err := r.flusher.Flush(ctx); err != nil {
		return fmt.Errorf("runner %d: flushing transport: %w", r.rank, err)
	}

	r.mu.Lock()
	for _, id := range deadAgents {
		r.deleteAgent(id)
	}
	r.mu.Unlock()
	return nil
}

func (r *Runner) lookupAgent(id simtypes.AgentID) (agent.Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	return a, ok
}

func (r *Runner) deleteAgent(id simtypes.AgentID) {
	delete(r.agents, id)
	for i, candidate := range r.agentOrder {
		if candidate == id {
			r.agentOrder = append(r.agentOrder[:i], r.agentOrder[i+1:]...)
			break
		}
	}
}

// LocalAgentCount reports how many agents are currently local to this
// rank. Intended for tests and diagnostics.
func (r *Runner) LocalAgentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}
