// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package simtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorRoundTrip(t *testing.T) {
	type spawnArgs struct {
		Name   string
		Wealth float64
	}

	ctor, err := NewConstructor("household", spawnArgs{Name: "alice", Wealth: 12.5})
	require.NoError(t, err)
	assert.Equal(t, "household", ctor.TypeTag)

	var got spawnArgs
	require.NoError(t, ctor.DecodeArgs(&got))
	assert.Equal(t, spawnArgs{Name: "alice", Wealth: 12.5}, got)
}

func TestStateUpdateOrdering(t *testing.T) {
	a, err := NewStateUpdate("ledger", "5-a", "Credit", 10)
	require.NoError(t, err)
	b, err := NewStateUpdate("ledger", "5-b", "Debit", 3)
	require.NoError(t, err)
	c, err := NewStateUpdate("accounts", "0", "Open", struct{}{})
	require.NoError(t, err)

	updates := []StateUpdate{b, a, c}
	SortUpdates(updates)

	assert.Equal(t, []StateUpdate{c, a, b}, updates)
}

func TestStateUpdateLessIgnoresMethodAndPayload(t *testing.T) {
	a, _ := NewStateUpdate("store", "k", "MethodA", 1)
	b, _ := NewStateUpdate("store", "k", "MethodB", 2)

	assert.False(t, a.Less(b))
	assert.False(t, b.Less(a))
}

func TestNewAgentIDOrdersBySequence(t *testing.T) {
	first := NewAgentID(1, "zzzz")
	second := NewAgentID(2, "aaaa")

	assert.Less(t, string(first), string(second))
}

func TestTimestepDuration(t *testing.T) {
	ts := Timestep{Step: 3, Start: 3, End: 4}
	assert.Equal(t, 1.0, ts.Duration())
}
