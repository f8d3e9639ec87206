// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"open-swarm/internal/balancer"
	"open-swarm/internal/config"
	"open-swarm/internal/coordinator"
	"open-swarm/internal/population"
	"open-swarm/internal/runner"
	"open-swarm/internal/simulator"
	"open-swarm/internal/store"
	"open-swarm/internal/timestep"
	"open-swarm/internal/transport"
	"open-swarm/pkg/agent"
	"open-swarm/pkg/simtypes"
)

// deployment is every actor wired together in this process: one Runner
// per rank, a single master-rank Coordinator and Simulator, and one
// StateStore replica per node. All cross-actor calls here are direct
// Go method calls rather than transport-routed messages: since every
// rank lives in the same process there is nothing for an Envelope to
// cross, and this mirrors how internal/durable's activities dispatch
// straight into the same Runner/Coordinator types. transport.Local is
// still used for the Flusher capability every Runner is built against.
type deployment struct {
	sim     *simulator.Simulator
	runners []*runner.Runner
	ledger  *ledger
}

func buildDeployment(cfg *config.Config, logger *slog.Logger) *deployment {
	local := transport.NewLocal(cfg.Topology.NodeRanks)

	rankNode := make([]int, cfg.Topology.WorldSize)
	for node, ranks := range cfg.Topology.NodeRanks {
		for _, rank := range ranks {
			rankNode[rank] = node
		}
	}

	l := newLedger()
	storeAdapters := make([]*storeRouterAdapter, len(cfg.Topology.NodeRanks))
	for node, ranks := range cfg.Topology.NodeRanks {
		hostRank := ranks[0]
		replicas := make(map[string]store.StateStore, len(cfg.Stores))
		for _, name := range cfg.Stores {
			dispatcher := store.NewDispatcher()
			l.registerOn(dispatcher)
			replicas[name] = store.NewMemory(name, hostRank, len(ranks), dispatcher, logger)
		}
		storeAdapters[node] = &storeRouterAdapter{stores: replicas, hostRank: hostRank}
	}

	reg := agent.NewRegistry()
	reg.Register(walletAgentTypeTag, newWalletAgent)

	coordDispatch := &coordinatorDispatchAdapter{}
	peers := &peerDispatchAdapter{}

	runners := make([]*runner.Runner, cfg.Topology.WorldSize)
	for rank := 0; rank < cfg.Topology.WorldSize; rank++ {
		node := rankNode[rank]
		flusher := &flushAdapter{transport: local}
		runners[rank] = runner.New(rank, cfg.Topology.WorldSize, reg, storeAdapters[node], cfg.Stores, coordDispatch, peers, flusher, logger)
	}
	peers.runners = runners

	lb := buildBalancer(cfg)
	runnerDispatch := &runnerDispatchAdapter{runners: runners}
	simDone := &simulatorDoneAdapter{}
	coord := coordinator.New(lb, runnerDispatch, simDone, cfg.Topology.WorldSize, logger)
	coordDispatch.coordinator = coord

	source := newWalletSource(cfg.Topology.WorldSize*4, cfg.Simulation.NSteps)
	pop := population.New(source)

	simDispatch := &simDispatchAdapter{population: pop, coordinator: coord, runners: runners}
	gen := timestep.NewRange(cfg.Simulation.NSteps)
	sim := simulator.New(simDispatch, gen, cfg.Stores, len(cfg.Topology.NodeRanks), logger)
	simDone.sim = sim

	for _, sa := range storeAdapters {
		sa.sim = sim
	}

	return &deployment{sim: sim, runners: runners, ledger: l}
}

func buildBalancer(cfg *config.Config) balancer.LoadBalancer {
	if cfg.Balancer.Kind == "random" {
		return balancer.NewRandom(cfg.Topology.WorldSize)
	}
	return balancer.NewGreedy(cfg.Topology.WorldSize, balancer.WithTunables(
		cfg.Balancer.LambdaA, cfg.Balancer.LambdaB, cfg.Balancer.Lambda, cfg.Balancer.ImbalanceTol,
	))
}

// coordinatorSink adapts the Coordinator onto population.Sink so
// Population never has to know the Coordinator's concrete type.
type coordinatorSink struct{ coordinator *coordinator.Coordinator }

func (s *coordinatorSink) CreateAgent(ctx context.Context, msg population.CreateAgent) error {
	s.coordinator.CreateAgent(msg.ID, msg.Constructor, msg.StepTime, msg.MemoryUsage)
	return nil
}

func (s *coordinatorSink) Done(ctx context.Context) error {
	return s.coordinator.CreateAgentDone(ctx)
}

// simDispatchAdapter implements simulator.Dispatch, fanning each
// timestep out to Population, the Coordinator, and every Runner.
type simDispatchAdapter struct {
	population  *population.Population
	coordinator *coordinator.Coordinator
	runners     []*runner.Runner
}

func (a *simDispatchAdapter) CreateAgents(ctx context.Context, ts simtypes.Timestep) error {
	return a.population.CreateAgents(ctx, ts, &coordinatorSink{coordinator: a.coordinator})
}

func (a *simDispatchAdapter) CoordinatorStep(ctx context.Context, ts simtypes.Timestep) error {
	return a.coordinator.Step(ctx, ts)
}

// BroadcastRunnerStep starts every rank's step concurrently: ranks are
// independent once they've been told the timestep, and the move/update
// barriers inside each Runner already serialize anything that actually
// needs ordering.
func (a *simDispatchAdapter) BroadcastRunnerStep(ctx context.Context, ts simtypes.Timestep) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range a.runners {
		r := r
		g.Go(func() error { return r.Step(gctx, ts) })
	}
	return g.Wait()
}

// simulatorDoneAdapter implements coordinator.SimulatorDispatch. sim is
// set after the Simulator is constructed, since the Coordinator must
// exist before the Simulator does.
type simulatorDoneAdapter struct{ sim *simulator.Simulator }

func (a *simulatorDoneAdapter) CoordinatorDone(ctx context.Context) error {
	return a.sim.CoordinatorDone(ctx)
}

// runnerDispatchAdapter implements coordinator.RunnerDispatch by
// calling straight into the addressed rank's Runner.
type runnerDispatchAdapter struct{ runners []*runner.Runner }

func (a *runnerDispatchAdapter) CreateAgent(ctx context.Context, rank int, id simtypes.AgentID, ctor simtypes.Constructor) error {
	return a.runners[rank].CreateAgent(id, ctor)
}

func (a *runnerDispatchAdapter) BroadcastCreateAgentDone(ctx context.Context) error {
	for _, r := range a.runners {
		if err := r.CreateAgentDone(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *runnerDispatchAdapter) MoveAgent(ctx context.Context, srcRank int, id simtypes.AgentID, dstRank int) error {
	return a.runners[srcRank].MoveAgent(ctx, id, dstRank)
}

func (a *runnerDispatchAdapter) BroadcastMoveAgentDone(ctx context.Context) error {
	for _, r := range a.runners {
		if err := r.MoveAgentDone(ctx); err != nil {
			return err
		}
	}
	return nil
}

// peerDispatchAdapter implements runner.PeerDispatch, shared by every
// rank: a migrating agent lands directly on its destination Runner, and
// the move barrier's terminator reaches every rank including the
// sender.
type peerDispatchAdapter struct{ runners []*runner.Runner }

func (a *peerDispatchAdapter) SendAgent(ctx context.Context, dstRank int, id simtypes.AgentID, ag agent.Agent) error {
	return a.runners[dstRank].ReceiveAgent(id, ag)
}

func (a *peerDispatchAdapter) BroadcastReceiveAgentDone(ctx context.Context, rank int) error {
	for _, r := range a.runners {
		if err := r.ReceiveAgentDone(ctx, rank); err != nil {
			return err
		}
	}
	return nil
}

// coordinatorDispatchAdapter implements runner.CoordinatorDispatch.
// coordinator is set after the Coordinator is constructed, since every
// Runner must exist before the Coordinator's RunnerDispatch does.
type coordinatorDispatchAdapter struct{ coordinator *coordinator.Coordinator }

func (a *coordinatorDispatchAdapter) AgentStepProfile(ctx context.Context, rank int, id simtypes.AgentID, stepTime, memoryUsage float64, nUpdates int, isAlive bool) error {
	return a.coordinator.AgentStepProfile(rank, id, stepTime, memoryUsage, nUpdates, isAlive)
}

func (a *coordinatorDispatchAdapter) AgentStepProfileDone(ctx context.Context, rank int) error {
	return a.coordinator.AgentStepProfileDone(ctx, rank)
}

// flushAdapter implements runner.Flusher over the shared transport.
type flushAdapter struct{ transport *transport.Local }

func (a *flushAdapter) Flush(ctx context.Context) error { return a.transport.Flush(ctx) }

// storeRouterAdapter implements runner.StoreDispatch for every rank
// hosted on one node: stores holds that node's replicas, keyed by
// name, and sim is told once a replica has flushed so it can advance
// the step once every node has reported.
type storeRouterAdapter struct {
	stores   map[string]store.StateStore
	hostRank int
	sim      *simulator.Simulator
}

func (a *storeRouterAdapter) HandleUpdate(ctx context.Context, storeName string, update simtypes.StateUpdate) error {
	s, ok := a.stores[storeName]
	if !ok {
		return fmt.Errorf("run-simulation: no store %q hosted on this node", storeName)
	}
	return s.HandleUpdate(update)
}

func (a *storeRouterAdapter) HandleUpdateDone(ctx context.Context, storeName string, rank int) error {
	s, ok := a.stores[storeName]
	if !ok {
		return fmt.Errorf("run-simulation: no store %q hosted on this node", storeName)
	}
	result, err := s.HandleUpdateDone(ctx, rank)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return a.sim.StoreFlushDone(ctx, storeName, a.hostRank)
}
