// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package population

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"open-swarm/pkg/simtypes"
)

type stubSource struct {
	spawns []Spawn
	err    error
}

func (s *stubSource) Spawns(ctx context.Context, timestep simtypes.Timestep) ([]Spawn, error) {
	return s.spawns, s.err
}

type recordingSink struct {
	created []CreateAgent
	done    bool
}

func (r *recordingSink) CreateAgent(ctx context.Context, msg CreateAgent) error {
	r.created = append(r.created, msg)
	return nil
}

func (r *recordingSink) Done(ctx context.Context) error {
	r.done = true
	return nil
}

func TestPopulation_AssignsIDsAndSignalsDone(t *testing.T) {
	ctor, err := simtypes.NewConstructor("worker", struct{}{})
	require.NoError(t, err)

	source := &stubSource{spawns: []Spawn{
		{Constructor: ctor, StepTime: 1, MemoryUsage: 1},
		{Constructor: ctor, StepTime: 1, MemoryUsage: 1},
	}}
	p := New(source)
	sink := &recordingSink{}

	err = p.CreateAgents(context.Background(), simtypes.Timestep{Step: 0, Start: 0, End: 1}, sink)
	require.NoError(t, err)

	require.Len(t, sink.created, 2)
	assert.NotEmpty(t, sink.created[0].ID)
	assert.NotEqual(t, sink.created[0].ID, sink.created[1].ID)
	assert.True(t, sink.done)
}

func TestPopulation_DoneEmittedEvenWithNoSpawns(t *testing.T) {
	p := New(&stubSource{})
	sink := &recordingSink{}

	err := p.CreateAgents(context.Background(), simtypes.Timestep{}, sink)
	require.NoError(t, err)
	assert.Empty(t, sink.created)
	assert.True(t, sink.done)
}

func TestPopulation_SourceErrorStopsBeforeDone(t *testing.T) {
	p := New(&stubSource{err: assert.AnError})
	sink := &recordingSink{}

	err := p.CreateAgents(context.Background(), simtypes.Timestep{}, sink)
	require.Error(t, err)
	assert.False(t, sink.done)
}

func TestPopulation_ExplicitIDIsPreserved(t *testing.T) {
	p := New(&stubSource{spawns: []Spawn{{ID: "fixed-id"}}})
	sink := &recordingSink{}

	require.NoError(t, p.CreateAgents(context.Background(), simtypes.Timestep{}, sink))
	require.Len(t, sink.created, 1)
	assert.Equal(t, simtypes.AgentID("fixed-id"), sink.created[0].ID)
}
