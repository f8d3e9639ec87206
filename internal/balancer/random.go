// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package balancer

import (
	"math/rand"

	"open-swarm/pkg/simtypes"
)

// Random is a baseline LoadBalancer that assigns new objects to a
// uniformly random bucket and never proposes moves. Useful as a control
// group when measuring Greedy's convergence behavior.
type Random struct {
	nBuckets     int
	objectBucket map[simtypes.AgentID]int
	newObjects   map[simtypes.AgentID]struct{}
	rng          *rand.Rand
}

// RandomOption configures a Random balancer at construction time.
type RandomOption func(*Random)

// WithRandomSource overrides the random source used for bucket
// assignment, for deterministic tests.
func WithRandomSource(rng *rand.Rand) RandomOption {
	return func(r *Random) { r.rng = rng }
}

// NewRandom returns a Random balancer over nBuckets buckets.
func NewRandom(nBuckets int, opts ...RandomOption) *Random {
	r := &Random{
		nBuckets:     nBuckets,
		objectBucket: make(map[simtypes.AgentID]int),
		newObjects:   make(map[simtypes.AgentID]struct{}),
		rng:          rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reset implements LoadBalancer.
func (r *Random) Reset() {
	r.newObjects = make(map[simtypes.AgentID]struct{})
}

// AddObject implements LoadBalancer.
func (r *Random) AddObject(o simtypes.AgentID, la, lb float64) {
	r.objectBucket[o] = r.rng.Intn(r.nBuckets)
	r.newObjects[o] = struct{}{}
}

// DeleteObject implements LoadBalancer.
func (r *Random) DeleteObject(o simtypes.AgentID) {
	delete(r.objectBucket, o)
}

// UpdateLoad implements LoadBalancer. Random ignores load feedback.
func (r *Random) UpdateLoad(o simtypes.AgentID, la, lb float64) {}

// Balance implements LoadBalancer. Random never proposes a move.
func (r *Random) Balance() {}

// NewObjects implements LoadBalancer.
func (r *Random) NewObjects() []NewObject {
	ret := make([]NewObject, 0, len(r.newObjects))
	for o := range r.newObjects {
		ret = append(ret, NewObject{Object: o, Bucket: r.objectBucket[o]})
	}
	return ret
}

// MovingObjects implements LoadBalancer. Random never moves anything.
func (r *Random) MovingObjects() []MovingObject { return nil }
