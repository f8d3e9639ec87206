// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package coordinator implements agent placement and rebalancing. A
// single Coordinator runs on the master rank per simulation: it
// receives new-agent reports from the Population, drives the
// LoadBalancer, dispatches creation and move orders to Runners, and
// aggregates per-step agent profiles until every rank has reported,
// then hands control back to the Simulator.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"open-swarm/internal/balancer"
	"open-swarm/pkg/simtypes"
)

// RunnerDispatch is the Coordinator's outbound capability toward
// Runners: targeted creation/move orders plus the broadcast
// terminators every Runner barriers on.
type RunnerDispatch interface {
	CreateAgent(ctx context.Context, rank int, id simtypes.AgentID, ctor simtypes.Constructor) error
	BroadcastCreateAgentDone(ctx context.Context) error
	MoveAgent(ctx context.Context, srcRank int, id simtypes.AgentID, dstRank int) error
	BroadcastMoveAgentDone(ctx context.Context) error
}

// SimulatorDispatch is the Coordinator's outbound capability toward the
// Simulator.
type SimulatorDispatch interface {
	CoordinatorDone(ctx context.Context) error
}

// Coordinator implements the master-only placement and rebalancing
// actor described by the step protocol's creation and move phases.
type Coordinator struct {
	mu sync.Mutex

	balancer  balancer.LoadBalancer
	runners   RunnerDispatch
	simulator SimulatorDispatch
	worldSize int
	logger    *slog.Logger

	numAgentsCreated int
	numAgentsDied    int

	timestep            *simtypes.Timestep
	agentConstructor    map[simtypes.AgentID]simtypes.Constructor
	flagCreateAgentDone bool
	numProfileDone      int

	rankStepTime    []float64
	rankMemoryUsage []float64
	rankNUpdates    []int

	balancingTime time.Duration
}

// New returns a Coordinator that balances across worldSize ranks.
func New(lb balancer.LoadBalancer, runners RunnerDispatch, simulator SimulatorDispatch, worldSize int, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		balancer:  lb,
		runners:   runners,
		simulator: simulator,
		worldSize: worldSize,
		logger:    logger.With("component", "coordinator"),
	}
	c.prepareForNextStep()
	return c
}

func (c *Coordinator) prepareForNextStep() {
	c.timestep = nil
	c.agentConstructor = make(map[simtypes.AgentID]simtypes.Constructor)
	c.balancer.Reset()

	c.flagCreateAgentDone = false
	c.numProfileDone = 0

	c.rankStepTime = make([]float64, c.worldSize)
	c.rankMemoryUsage = make([]float64, c.worldSize)
	c.rankNUpdates = make([]int, c.worldSize)

	c.balancingTime = -1
}

// Step starts a new simulation step. It is a fatal invariant violation
// to call Step while a previous step has not finished.
func (c *Coordinator) Step(ctx context.Context, ts simtypes.Timestep) error {
	c.mu.Lock()
	if c.timestep != nil {
		prev := c.timestep.Step
		c.mu.Unlock()
		return fmt.Errorf("coordinator: step(%v) called while step %v is still in progress", ts.Step, prev)
	}
	c.timestep = &ts
	c.mu.Unlock()
	return c.tryLoadBalance(ctx)
}

// CreateAgent records a newly created agent and stages it for the next
// balancing pass.
func (c *Coordinator) CreateAgent(id simtypes.AgentID, ctor simtypes.Constructor, stepTime, memoryUsage float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.agentConstructor[id] = ctor
	c.balancer.AddObject(id, stepTime, memoryUsage)
	c.numAgentsCreated++
}

// CreateAgentDone marks the creation batch for the current step as
// complete, triggering a balancing pass if the step has already
// started.
func (c *Coordinator) CreateAgentDone(ctx context.Context) error {
	c.mu.Lock()
	if c.flagCreateAgentDone {
		c.mu.Unlock()
		return fmt.Errorf("coordinator: create_agent_done received twice in one step")
	}
	c.flagCreateAgentDone = true
	c.mu.Unlock()
	return c.tryLoadBalance(ctx)
}

// pendingCreation is a snapshot of one balancer-assigned new agent,
// taken under mu so the dispatch loop below can run without it.
type pendingCreation struct {
	bucket int
	id     simtypes.AgentID
	ctor   simtypes.Constructor
}

// tryLoadBalance must be called WITHOUT holding mu: once the step and
// the creation batch are both known, it runs the balancer and then
// dispatches creation/move orders out to every Runner, any of which may
// call back into AgentStepProfile/AgentStepProfileDone, or cascade
// through the Simulator into the next Step, before this call returns (a
// same-process wiring routes those synchronously). Holding mu across
// that dispatch would deadlock.
func (c *Coordinator) tryLoadBalance(ctx context.Context) error {
	c.mu.Lock()
	c.logger.Debug("checking ready-to-balance", "has_timestep", c.timestep != nil, "create_agent_done", c.flagCreateAgentDone)

	if c.timestep == nil || !c.flagCreateAgentDone {
		c.mu.Unlock()
		return nil
	}

	start := time.Now()
	c.balancer.Balance()
	c.balancingTime = time.Since(start)

	newObjects := c.balancer.NewObjects()
	creations := make([]pendingCreation, 0, len(newObjects))
	for _, newObj := range newObjects {
		ctor, ok := c.agentConstructor[newObj.Object]
		if !ok {
			c.mu.Unlock()
			return fmt.Errorf("coordinator: no constructor recorded for new agent %s", newObj.Object)
		}
		creations = append(creations, pendingCreation{bucket: newObj.Bucket, id: newObj.Object, ctor: ctor})
	}
	movingObjects := c.balancer.MovingObjects()
	c.mu.Unlock()

	for _, cr := range creations {
		if err := c.runners.CreateAgent(ctx, cr.bucket, cr.id, cr.ctor); err != nil {
			return fmt.Errorf("coordinator: dispatching create_agent for %s: %w", cr.id, err)
		}
	}
	if err := c.runners.BroadcastCreateAgentDone(ctx); err != nil {
		return fmt.Errorf("coordinator: broadcasting create_agent_done: %w", err)
	}

	for _, mv := range movingObjects {
		if err := c.runners.MoveAgent(ctx, mv.FromBucket, mv.Object, mv.ToBucket); err != nil {
			return fmt.Errorf("coordinator: dispatching move_agent for %s: %w", mv.Object, err)
		}
	}
	if err := c.runners.BroadcastMoveAgentDone(ctx); err != nil {
		return fmt.Errorf("coordinator: broadcasting move_agent_done: %w", err)
	}

	return nil
}

// AgentStepProfile records the outcome of one agent's step. Dead agents
// are removed from the balancer; live agents feed their updated load
// into the balancer's EMA.
func (c *Coordinator) AgentStepProfile(rank int, id simtypes.AgentID, stepTime, memoryUsage float64, nUpdates int, isAlive bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rank < 0 || rank >= c.worldSize {
		return fmt.Errorf("coordinator: agent_step_profile from out-of-range rank %d", rank)
	}

	c.rankStepTime[rank] += stepTime
	c.rankMemoryUsage[rank] += memoryUsage
	c.rankNUpdates[rank] += nUpdates

	if !isAlive {
		c.balancer.DeleteObject(id)
		c.numAgentsDied++
		return nil
	}

	if c.timestep == nil {
		return fmt.Errorf("coordinator: agent_step_profile for %s received outside an active step", id)
	}
	scaledStepTime := stepTime / c.timestep.Duration()
	c.balancer.UpdateLoad(id, scaledStepTime, memoryUsage)
	return nil
}

// AgentStepProfileDone marks rank as having finished reporting every
// agent profile for the current step. Once every rank has reported, the
// Coordinator notifies the Simulator and resets for the next step.
func (c *Coordinator) AgentStepProfileDone(ctx context.Context, rank int) error {
	c.mu.Lock()
	if c.numProfileDone >= c.worldSize {
		c.mu.Unlock()
		return fmt.Errorf("coordinator: agent_step_profile_done received more than %d times this step", c.worldSize)
	}
	c.logger.Debug("runner reported step done", "rank", rank)
	c.numProfileDone++
	c.mu.Unlock()

	return c.tryFinishStep(ctx)
}

// tryFinishStep must be called WITHOUT holding mu: notifying the
// Simulator can cascade straight into the next Step call on this same
// Coordinator before this call returns (a same-process wiring routes
// CoordinatorDone synchronously). Holding mu across that call would
// deadlock.
func (c *Coordinator) tryFinishStep(ctx context.Context) error {
	c.mu.Lock()
	if c.timestep == nil || !c.flagCreateAgentDone || c.numProfileDone < c.worldSize {
		c.mu.Unlock()
		return nil
	}
	step := c.timestep.Step
	created := c.numAgentsCreated
	died := c.numAgentsDied
	balancingTime := c.balancingTime
	c.mu.Unlock()

	if err := c.simulator.CoordinatorDone(ctx); err != nil {
		return fmt.Errorf("coordinator: notifying simulator: %w", err)
	}
	c.logger.Debug("step summary",
		"step", step,
		"agents_created", created,
		"agents_died", died,
		"balancing_time", balancingTime,
	)

	c.mu.Lock()
	c.prepareForNextStep()
	c.mu.Unlock()
	return nil
}
