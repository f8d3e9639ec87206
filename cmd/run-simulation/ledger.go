// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"sync"

	"open-swarm/internal/store"
	"open-swarm/pkg/simtypes"
)

// ledger is the illustrative state backing the "accounts" store: one
// running balance per agent, applied in the deterministic order every
// StateStore guarantees (sorted by store name then order key).
type ledger struct {
	mu       sync.Mutex
	balances map[string]float64
	applied  int
}

func newLedger() *ledger {
	return &ledger{balances: make(map[string]float64)}
}

func (l *ledger) credit(update simtypes.StateUpdate) error {
	var args creditArgs
	if err := update.DecodeArgs(&args); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[update.OrderKey] += args.Amount
	l.applied++
	return nil
}

func (l *ledger) registerOn(d *store.Dispatcher) {
	d.Register("Credit", l.credit)
}

func (l *ledger) snapshot() (balances map[string]float64, applied int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64, len(l.balances))
	for k, v := range l.balances {
		out[k] = v
	}
	return out, l.applied
}
