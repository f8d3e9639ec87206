// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"open-swarm/internal/population"
	"open-swarm/pkg/agent"
	"open-swarm/pkg/simtypes"
)

// walletArgs is the gob-encoded constructor payload for a walletAgent.
type walletArgs struct {
	ID       string
	Balance  float64
	Lifetime int
}

// creditArgs is the gob-encoded payload of a Credit update applied to
// the "accounts" store.
type creditArgs struct {
	Amount float64
}

// walletAgent deposits a small random amount into its own account every
// step, then dies once it has run for Lifetime steps.
type walletAgent struct {
	id      simtypes.AgentID
	balance float64
	step    int
	lived   int
}

const walletAgentTypeTag = "wallet"

func newWalletAgent(args []byte) (agent.Agent, error) {
	var decoded walletArgs
	ctor := simtypes.Constructor{TypeTag: walletAgentTypeTag, Args: args}
	if err := ctor.DecodeArgs(&decoded); err != nil {
		return nil, fmt.Errorf("decoding wallet args: %w", err)
	}
	return &walletAgent{
		id:      simtypes.AgentID(decoded.ID),
		balance: decoded.Balance,
		lived:   decoded.Lifetime,
	}, nil
}

func (w *walletAgent) Step(ts simtypes.Timestep) ([]simtypes.StateUpdate, error) {
	w.step++
	amount := 1 + rand.Float64()*9
	w.balance += amount

	update, err := simtypes.NewStateUpdate("accounts", string(w.id), "Credit", creditArgs{Amount: amount})
	if err != nil {
		return nil, fmt.Errorf("wallet %s: building credit update: %w", w.id, err)
	}
	return []simtypes.StateUpdate{update}, nil
}

func (w *walletAgent) IsAlive() bool {
	return w.step < w.lived
}

func (w *walletAgent) MemoryUsage() float64 {
	return 1 + w.balance/1000
}

// walletSource spawns a fixed number of fresh wallet agents on the
// first timestep only, pre-assigning each its own AgentID so it can tag
// its own ledger updates.
type walletSource struct {
	count    int
	lifetime int
	spawned  bool
}

func newWalletSource(count, lifetime int) *walletSource {
	return &walletSource{count: count, lifetime: lifetime}
}

func (s *walletSource) Spawns(ctx context.Context, ts simtypes.Timestep) ([]population.Spawn, error) {
	if s.spawned {
		return nil, nil
	}
	s.spawned = true

	spawns := make([]population.Spawn, 0, s.count)
	for i := 0; i < s.count; i++ {
		id := uuid.NewString()
		ctor, err := simtypes.NewConstructor(walletAgentTypeTag, walletArgs{
			ID:       id,
			Balance:  0,
			Lifetime: s.lifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("building wallet constructor: %w", err)
		}
		spawns = append(spawns, population.Spawn{
			ID:          simtypes.AgentID(id),
			Constructor: ctor,
			StepTime:    0.01,
			MemoryUsage: 1,
		})
	}
	return spawns, nil
}
