// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package simulator implements the top-level phase sequencer: it pulls
// timesteps from a Generator and, once every store on every node has
// flushed and the Coordinator has reported done for the current step,
// advances to the next one. It holds no agent or load-balancing state
// of its own.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"open-swarm/pkg/simtypes"
)

// Dispatch is the Simulator's outbound capability at the start of every
// step: fan the new timestep out to Population, Coordinator, and every
// Runner.
type Dispatch interface {
	CreateAgents(ctx context.Context, ts simtypes.Timestep) error
	CoordinatorStep(ctx context.Context, ts simtypes.Timestep) error
	BroadcastRunnerStep(ctx context.Context, ts simtypes.Timestep) error
}

// Generator yields the next timestep, or ok=false when the simulation
// is complete.
type Generator interface {
	Next() (simtypes.Timestep, bool)
}

// Simulator sequences steps across a fixed set of named stores
// replicated across nNodes nodes.
type Simulator struct {
	mu sync.Mutex

	dispatch   Dispatch
	generator  Generator
	storeNames []string
	nNodes     int
	logger     *slog.Logger

	timestep *simtypes.Timestep

	flagCoordinatorDone bool
	storeFlushDone      map[string]int

	roundStart time.Time

	done    bool
	stopped chan struct{}
}

// New returns a Simulator that will advance through generator's
// timesteps, requiring flushes from every one of storeNames across
// nNodes nodes before each advance.
func New(dispatch Dispatch, generator Generator, storeNames []string, nNodes int, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Simulator{
		dispatch:   dispatch,
		generator:  generator,
		storeNames: storeNames,
		nNodes:     nNodes,
		logger:     logger.With("component", "simulator"),
		stopped:    make(chan struct{}),
	}
	s.prepareForNextStep()
	return s
}

func (s *Simulator) prepareForNextStep() {
	s.flagCoordinatorDone = false
	s.storeFlushDone = make(map[string]int, len(s.storeNames))
	for _, name := range s.storeNames {
		s.storeFlushDone[name] = 0
	}
}

// Start advances into the first timestep, unconditionally.
func (s *Simulator) Start(ctx context.Context) error {
	return s.tryStartStep(ctx, true)
}

// StoreFlushDone records that storeName on one node has flushed for the
// current step.
func (s *Simulator) StoreFlushDone(ctx context.Context, storeName string, rank int) error {
	s.mu.Lock()

	if s.done {
		s.mu.Unlock()
		return nil
	}

	count, ok := s.storeFlushDone[storeName]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("simulator: store_flush_done for unknown store %q", storeName)
	}
	if count >= s.nNodes {
		s.mu.Unlock()
		return fmt.Errorf("simulator: store_flush_done for %q received more than %d times this step", storeName, s.nNodes)
	}
	s.logger.Debug("store flush done", "store", storeName, "rank", rank)
	s.storeFlushDone[storeName] = count + 1
	s.mu.Unlock()

	return s.tryStartStep(ctx, false)
}

// CoordinatorDone records that the Coordinator has finished the current
// step.
func (s *Simulator) CoordinatorDone(ctx context.Context) error {
	s.mu.Lock()

	if s.done {
		s.mu.Unlock()
		return nil
	}
	if s.flagCoordinatorDone {
		s.mu.Unlock()
		return fmt.Errorf("simulator: coordinator_done received twice in one step")
	}
	s.flagCoordinatorDone = true
	s.mu.Unlock()

	return s.tryStartStep(ctx, false)
}

// Done reports whether the simulation has finished (the generator
// returned ok=false).
func (s *Simulator) Done() <-chan struct{} {
	return s.stopped
}

// tryStartStep must be called WITHOUT holding mu: it dispatches into
// Population, Coordinator and every Runner, any of which may call back
// into StoreFlushDone or CoordinatorDone before this call returns (a
// same-process wiring routes those synchronously, and a concurrent
// broadcast across ranks routes them from other goroutines). Holding
// mu across the dispatch would deadlock the same-process case and
// serialize the concurrent one.
func (s *Simulator) tryStartStep(ctx context.Context, starting bool) error {
	s.mu.Lock()
	if !starting {
		s.logger.Debug("checking ready-to-advance", "coordinator_done", s.flagCoordinatorDone)
		if !s.flagCoordinatorDone {
			s.mu.Unlock()
			return nil
		}
		for _, name := range s.storeNames {
			if s.storeFlushDone[name] < s.nNodes {
				s.mu.Unlock()
				return nil
			}
		}
	}

	ts, ok := s.generator.Next()
	if !ok {
		s.logger.Info("simulation finished")
		s.done = true
		close(s.stopped)
		s.mu.Unlock()
		return nil
	}
	s.timestep = &ts
	s.roundStart = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting timestep", "step", ts.Step)
	if err := s.dispatch.CreateAgents(ctx, ts); err != nil {
		return fmt.Errorf("simulator: dispatching create_agents: %w", err)
	}
	if err := s.dispatch.CoordinatorStep(ctx, ts); err != nil {
		return fmt.Errorf("simulator: dispatching coordinator step: %w", err)
	}
	if err := s.dispatch.BroadcastRunnerStep(ctx, ts); err != nil {
		return fmt.Errorf("simulator: broadcasting runner step: %w", err)
	}

	s.mu.Lock()
	s.prepareForNextStep()
	s.mu.Unlock()
	return nil
}
