// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package store

import (
	"log/slog"
	"sync"

	"open-swarm/pkg/simtypes"
)

// Memory is a StateStore backed by an in-memory dispatch table. It is
// the reference implementation used by tests of the ordering law and by
// any caller that does not need a durable backing file.
type Memory struct {
	*Base

	mu         sync.Mutex
	cache      []simtypes.StateUpdate
	applied    []simtypes.StateUpdate
	dispatcher *Dispatcher
}

// NewMemory returns a Memory store that dispatches applied updates
// through dispatcher.
func NewMemory(storeName string, rank, worldSize int, dispatcher *Dispatcher, logger *slog.Logger) *Memory {
	m := &Memory{dispatcher: dispatcher}
	m.Base = NewBase(storeName, rank, worldSize, m.doFlush, logger)
	return m
}

// HandleUpdate implements StateStore.
func (m *Memory) HandleUpdate(update simtypes.StateUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = append(m.cache, update)
	return nil
}

// Applied returns every update applied so far, in application order.
// Intended for tests asserting the ordering law.
func (m *Memory) Applied() []simtypes.StateUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]simtypes.StateUpdate, len(m.applied))
	copy(out, m.applied)
	return out
}

func (m *Memory) doFlush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	simtypes.SortUpdates(m.cache)

	for _, update := range m.cache {
		if err := m.dispatcher.Apply(update); err != nil {
			return err
		}
		m.applied = append(m.applied, update)
	}
	m.cache = m.cache[:0]
	return nil
}
