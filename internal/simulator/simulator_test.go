// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package simulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"open-swarm/pkg/simtypes"
)

type mockDispatch struct{ mock.Mock }

func (m *mockDispatch) CreateAgents(ctx context.Context, ts simtypes.Timestep) error {
	args := m.Called(ctx, ts)
	return args.Error(0)
}

func (m *mockDispatch) CoordinatorStep(ctx context.Context, ts simtypes.Timestep) error {
	args := m.Called(ctx, ts)
	return args.Error(0)
}

func (m *mockDispatch) BroadcastRunnerStep(ctx context.Context, ts simtypes.Timestep) error {
	args := m.Called(ctx, ts)
	return args.Error(0)
}

type stubGenerator struct {
	steps []simtypes.Timestep
	next  int
}

func (g *stubGenerator) Next() (simtypes.Timestep, bool) {
	if g.next >= len(g.steps) {
		return simtypes.Timestep{}, false
	}
	ts := g.steps[g.next]
	g.next++
	return ts, true
}

func twoStepGenerator() *stubGenerator {
	return &stubGenerator{steps: []simtypes.Timestep{
		{Step: 0, Start: 0, End: 1},
		{Step: 1, Start: 1, End: 2},
	}}
}

func TestSimulator_StartDispatchesFirstStepUnconditionally(t *testing.T) {
	dispatch := &mockDispatch{}
	gen := twoStepGenerator()
	s := New(dispatch, gen, []string{"store-a"}, 2, nil)
	ctx := context.Background()

	dispatch.On("CreateAgents", ctx, gen.steps[0]).Return(nil)
	dispatch.On("CoordinatorStep", ctx, gen.steps[0]).Return(nil)
	dispatch.On("BroadcastRunnerStep", ctx, gen.steps[0]).Return(nil)

	require.NoError(t, s.Start(ctx))
	dispatch.AssertExpectations(t)
}

func TestSimulator_AdvancesOnlyAfterCoordinatorAndEveryStoreOnEveryNode(t *testing.T) {
	dispatch := &mockDispatch{}
	gen := twoStepGenerator()
	s := New(dispatch, gen, []string{"store-a", "store-b"}, 2, nil)
	ctx := context.Background()

	dispatch.On("CreateAgents", ctx, gen.steps[0]).Return(nil)
	dispatch.On("CoordinatorStep", ctx, gen.steps[0]).Return(nil)
	dispatch.On("BroadcastRunnerStep", ctx, gen.steps[0]).Return(nil)
	require.NoError(t, s.Start(ctx))

	dispatch.On("CreateAgents", ctx, gen.steps[1]).Return(nil)
	dispatch.On("CoordinatorStep", ctx, gen.steps[1]).Return(nil)
	dispatch.On("BroadcastRunnerStep", ctx, gen.steps[1]).Return(nil)

	// Out-of-order arrival: store-b's second node flushes before
	// store-a has flushed at all, and coordinator_done arrives in the
	// middle.
	require.NoError(t, s.StoreFlushDone(ctx, "store-b", 0))
	require.NoError(t, s.StoreFlushDone(ctx, "store-b", 1))
	dispatch.AssertNotCalled(t, "CreateAgents", ctx, gen.steps[1])

	require.NoError(t, s.CoordinatorDone(ctx))
	dispatch.AssertNotCalled(t, "CreateAgents", ctx, gen.steps[1])

	require.NoError(t, s.StoreFlushDone(ctx, "store-a", 0))
	dispatch.AssertNotCalled(t, "CreateAgents", ctx, gen.steps[1])

	require.NoError(t, s.StoreFlushDone(ctx, "store-a", 1))
	dispatch.AssertCalled(t, "CreateAgents", ctx, gen.steps[1])
	dispatch.AssertCalled(t, "CoordinatorStep", ctx, gen.steps[1])
	dispatch.AssertCalled(t, "BroadcastRunnerStep", ctx, gen.steps[1])
}

func TestSimulator_TerminatesWhenGeneratorExhausted(t *testing.T) {
	dispatch := &mockDispatch{}
	gen := &stubGenerator{steps: []simtypes.Timestep{{Step: 0, Start: 0, End: 1}}}
	s := New(dispatch, gen, []string{"store-a"}, 1, nil)
	ctx := context.Background()

	dispatch.On("CreateAgents", mock.Anything, mock.Anything).Return(nil)
	dispatch.On("CoordinatorStep", mock.Anything, mock.Anything).Return(nil)
	dispatch.On("BroadcastRunnerStep", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.CoordinatorDone(ctx))
	require.NoError(t, s.StoreFlushDone(ctx, "store-a", 0))

	select {
	case <-s.Done():
	default:
		t.Fatal("expected s.Done() to be closed after the generator was exhausted")
	}

	dispatch.AssertNumberOfCalls(t, "CreateAgents", 1)
}

func TestSimulator_DoubleCoordinatorDoneIsFatal(t *testing.T) {
	dispatch := &mockDispatch{}
	gen := twoStepGenerator()
	s := New(dispatch, gen, []string{"store-a"}, 1, nil)
	ctx := context.Background()

	dispatch.On("CreateAgents", mock.Anything, mock.Anything).Return(nil)
	dispatch.On("CoordinatorStep", mock.Anything, mock.Anything).Return(nil)
	dispatch.On("BroadcastRunnerStep", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.CoordinatorDone(ctx))
	err := s.CoordinatorDone(ctx)
	require.Error(t, err)
}

func TestSimulator_UnknownStoreNameErrors(t *testing.T) {
	dispatch := &mockDispatch{}
	gen := twoStepGenerator()
	s := New(dispatch, gen, []string{"store-a"}, 1, nil)
	ctx := context.Background()

	dispatch.On("CreateAgents", mock.Anything, mock.Anything).Return(nil)
	dispatch.On("CoordinatorStep", mock.Anything, mock.Anything).Return(nil)
	dispatch.On("BroadcastRunnerStep", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, s.Start(ctx))
	err := s.StoreFlushDone(ctx, "store-ghost", 0)
	require.Error(t, err)
}
