// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"open-swarm/pkg/simtypes"
)

type stubAgent struct {
	alive  bool
	memory float64
}

func (s *stubAgent) Step(simtypes.Timestep) ([]simtypes.StateUpdate, error) { return nil, nil }
func (s *stubAgent) IsAlive() bool                                          { return s.alive }
func (s *stubAgent) MemoryUsage() float64                                   { return s.memory }

func TestRegistryBuild(t *testing.T) {
	reg := NewRegistry()
	reg.Register("worker", func(args []byte) (Agent, error) {
		return &stubAgent{alive: true, memory: 1.5}, nil
	})

	ctor, err := simtypes.NewConstructor("worker", struct{}{})
	require.NoError(t, err)

	a, err := reg.Build(ctor)
	require.NoError(t, err)
	assert.True(t, a.IsAlive())
	assert.Equal(t, 1.5, a.MemoryUsage())
}

func TestRegistryBuildUnknownTag(t *testing.T) {
	reg := NewRegistry()
	ctor, err := simtypes.NewConstructor("ghost", struct{}{})
	require.NoError(t, err)

	_, err = reg.Build(ctor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no factory registered")
}

func TestRegistryBuildFactoryError(t *testing.T) {
	reg := NewRegistry()
	reg.Register("broken", func(args []byte) (Agent, error) {
		return nil, assert.AnError
	})
	ctor, err := simtypes.NewConstructor("broken", struct{}{})
	require.NoError(t, err)

	_, err = reg.Build(ctor)
	require.Error(t, err)
}
