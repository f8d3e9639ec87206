// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package timestep produces the sequence of logical ticks a Simulator
// advances through. The pacing policy (how a Timestep maps to real
// wall-clock time) is left to the implementation; this package only
// supplies the range-based generator named in the original
// specification.
package timestep

import "open-swarm/pkg/simtypes"

// Generator yields the next Timestep to run, or ok=false once the
// simulation is complete.
type Generator interface {
	Next() (ts simtypes.Timestep, ok bool)
}

// Range is a Generator that emits Timestep{Step: i, Start: i, End: i+1}
// for i in [0, nsteps), then terminates.
type Range struct {
	nsteps int
	next   int
}

// NewRange returns a Range generator that will emit exactly nsteps
// timesteps.
func NewRange(nsteps int) *Range {
	return &Range{nsteps: nsteps}
}

// Next implements Generator.
func (r *Range) Next() (simtypes.Timestep, bool) {
	if r.next >= r.nsteps {
		return simtypes.Timestep{}, false
	}
	i := float64(r.next)
	r.next++
	return simtypes.Timestep{Step: i, Start: i, End: i + 1}, true
}
