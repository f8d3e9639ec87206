// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"open-swarm/pkg/simtypes"
)

func newCountingDispatcher(t *testing.T) (*Dispatcher, *[]string) {
	t.Helper()
	var applied []string
	d := NewDispatcher()
	d.Register("Credit", func(u simtypes.StateUpdate) error {
		applied = append(applied, u.OrderKey+":credit")
		return nil
	})
	d.Register("Debit", func(u simtypes.StateUpdate) error {
		applied = append(applied, u.OrderKey+":debit")
		return nil
	})
	return d, &applied
}

func TestMemory_OrderingLaw(t *testing.T) {
	dispatcher, _ := newCountingDispatcher(t)
	s := NewMemory("ledger", 0, 2, dispatcher, nil)

	b, err := simtypes.NewStateUpdate("ledger", "5-b", "Debit", 3)
	require.NoError(t, err)
	a, err := simtypes.NewStateUpdate("ledger", "5-a", "Credit", 10)
	require.NoError(t, err)

	require.NoError(t, s.HandleUpdate(b))
	require.NoError(t, s.HandleUpdate(a))

	res, err := s.HandleUpdateDone(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, res, "flush must not happen before every rank reports")

	res, err = s.HandleUpdateDone(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "ledger", res.StoreName)

	applied := s.Applied()
	require.Len(t, applied, 2)
	assert.Equal(t, "5-a", applied[0].OrderKey)
	assert.Equal(t, "5-b", applied[1].OrderKey)
}

func TestMemory_FlushResetsCounterForNextStep(t *testing.T) {
	dispatcher, _ := newCountingDispatcher(t)
	s := NewMemory("ledger", 0, 1, dispatcher, nil)

	u, err := simtypes.NewStateUpdate("ledger", "0", "Credit", 1)
	require.NoError(t, err)
	require.NoError(t, s.HandleUpdate(u))

	res, err := s.HandleUpdateDone(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, res)

	// A second step's single rank must trigger a second independent flush.
	require.NoError(t, s.HandleUpdate(u))
	res, err = s.HandleUpdateDone(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, res)
}

func TestMemory_TooManyHandleUpdateDoneIsAnError(t *testing.T) {
	dispatcher, _ := newCountingDispatcher(t)
	s := NewMemory("ledger", 0, 1, dispatcher, nil)

	_, err := s.HandleUpdateDone(context.Background(), 0)
	require.NoError(t, err)

	_, err = s.HandleUpdateDone(context.Background(), 0)
	require.Error(t, err)
}

func TestMemory_DispatchErrorSurfacesAndResetsCounter(t *testing.T) {
	d := NewDispatcher()
	s := NewMemory("ledger", 0, 1, d, nil)

	u, err := simtypes.NewStateUpdate("ledger", "0", "Unregistered", 1)
	require.NoError(t, err)
	require.NoError(t, s.HandleUpdate(u))

	_, err = s.HandleUpdateDone(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no method")
}

func TestReplicaEquality(t *testing.T) {
	// Two independent store replicas fed the same unordered updates
	// must apply them in the same order and reach the same state.
	updates := []simtypes.StateUpdate{}
	for _, key := range []string{"c", "a", "b"} {
		u, err := simtypes.NewStateUpdate("world", key, "Credit", key)
		require.NoError(t, err)
		updates = append(updates, u)
	}

	var replicaA, replicaB []string
	dA := NewDispatcher()
	dA.Register("Credit", func(u simtypes.StateUpdate) error {
		replicaA = append(replicaA, u.OrderKey)
		return nil
	})
	dB := NewDispatcher()
	dB.Register("Credit", func(u simtypes.StateUpdate) error {
		replicaB = append(replicaB, u.OrderKey)
		return nil
	})

	sA := NewMemory("world", 0, 1, dA, nil)
	sB := NewMemory("world", 1, 1, dB, nil)

	for _, u := range updates {
		require.NoError(t, sA.HandleUpdate(u))
	}
	// Feed replica B in a different arrival order; the sort must make
	// the applied sequence identical regardless.
	require.NoError(t, sB.HandleUpdate(updates[1]))
	require.NoError(t, sB.HandleUpdate(updates[2]))
	require.NoError(t, sB.HandleUpdate(updates[0]))

	_, err := sA.HandleUpdateDone(context.Background(), 0)
	require.NoError(t, err)
	_, err = sB.HandleUpdateDone(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, replicaA, replicaB)
}
