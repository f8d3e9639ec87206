// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package simtypes defines the wire-level data model shared by every
// component of a simulation run: timesteps, agent identities, deferred
// agent constructors, and state updates.
package simtypes

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"
)

// Timestep is a discrete logical tick of a simulation, paired with the
// real time interval it represents. Start is inclusive, End is exclusive.
type Timestep struct {
	Step  float64
	Start float64
	End   float64
}

// Duration is the real time span covered by the timestep, used to scale
// a measured step time into the load balancer's EMA feed.
func (t Timestep) Duration() float64 {
	return t.End - t.Start
}

// AgentID identifies an agent uniquely across the whole simulation. It is
// ordered first by creation sequence and then by its uuid suffix, so a
// set of AgentIDs sorts in creation order regardless of which rank
// created them.
type AgentID string

// NewAgentID formats an AgentID from a monotonic sequence number and a
// uuid string, giving every id a stable total order even though uuids
// alone are not comparable meaningfully.
func NewAgentID(sequence uint64, uuid string) AgentID {
	return AgentID(fmt.Sprintf("%020d-%s", sequence, uuid))
}

// Constructor is a closed, serializable deferred agent constructor. It
// replaces the dynamic *args/**kwargs constructor of the original
// implementation with a type-tag lookup against an agent.Registry
// plus a gob-encoded argument payload, so a Constructor can cross a rank
// boundary as plain bytes.
type Constructor struct {
	TypeTag string
	Args    []byte
}

// NewConstructor gob-encodes args and tags the result with typeTag. args
// must be a value the receiving agent.Registry's factory for
// typeTag knows how to gob-decode.
func NewConstructor(typeTag string, args any) (Constructor, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(args); err != nil {
		return Constructor{}, fmt.Errorf("encoding constructor args for %q: %w", typeTag, err)
	}
	return Constructor{TypeTag: typeTag, Args: buf.Bytes()}, nil
}

// DecodeArgs gob-decodes the constructor's argument payload into out,
// which must be a pointer to the type the original args value had.
func (c Constructor) DecodeArgs(out any) error {
	if err := gob.NewDecoder(bytes.NewReader(c.Args)).Decode(out); err != nil {
		return fmt.Errorf("decoding constructor args for %q: %w", c.TypeTag, err)
	}
	return nil
}

// StateUpdate is a single state mutation destined for a named store. It
// orders by (StoreName, OrderKey) only — Method and Payload never affect
// comparison, mirroring the original dataclass's order=True fields.
type StateUpdate struct {
	StoreName string
	OrderKey  string
	Method    string
	Payload   []byte
}

// NewStateUpdate gob-encodes args into Payload. args must match the
// argument type the destination store's dispatch table registered for
// Method.
func NewStateUpdate(storeName, orderKey, method string, args any) (StateUpdate, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(args); err != nil {
		return StateUpdate{}, fmt.Errorf("encoding update payload for %s.%s: %w", storeName, method, err)
	}
	return StateUpdate{StoreName: storeName, OrderKey: orderKey, Method: method, Payload: buf.Bytes()}, nil
}

// DecodeArgs gob-decodes the update's payload into out.
func (u StateUpdate) DecodeArgs(out any) error {
	if err := gob.NewDecoder(bytes.NewReader(u.Payload)).Decode(out); err != nil {
		return fmt.Errorf("decoding update payload for %s.%s: %w", u.StoreName, u.Method, err)
	}
	return nil
}

// Less reports whether u sorts before other by (StoreName, OrderKey),
// the ordering law every StateStore flush must respect.
func (u StateUpdate) Less(other StateUpdate) bool {
	if u.StoreName != other.StoreName {
		return u.StoreName < other.StoreName
	}
	return u.OrderKey < other.OrderKey
}

// SortUpdates sorts updates in place by (StoreName, OrderKey), the order
// a StateStore must apply them in during flush.
func SortUpdates(updates []StateUpdate) {
	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].Less(updates[j])
	})
}
