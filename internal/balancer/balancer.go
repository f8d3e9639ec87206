// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package balancer implements agent-to-rank placement. A LoadBalancer
// assigns new objects to buckets, absorbs EMA-smoothed load feedback,
// and proposes moves to reduce imbalance on demand.
package balancer

import "open-swarm/pkg/simtypes"

// LoadBalancer decides bucket (rank) assignment for objects (agents)
// and proposes moves to correct imbalance. Object identity is an opaque
// comparable key; callers pass simtypes.AgentID.
type LoadBalancer interface {
	// Reset clears the new-objects set and the prev-bucket map, starting
	// a fresh balancing round. Call once per step before Balance.
	Reset()

	// AddObject assigns o to a bucket and records its seed load
	// estimates.
	AddObject(o simtypes.AgentID, la, lb float64)

	// DeleteObject removes o from its bucket and all load tables.
	DeleteObject(o simtypes.AgentID)

	// UpdateLoad blends new load estimates into o's EMA-smoothed state.
	UpdateLoad(o simtypes.AgentID, la, lb float64)

	// Balance recomputes bucket loads and greedily proposes moves until
	// the imbalance is below tolerance or no further move helps.
	Balance()

	// NewObjects returns the bucket each object added since the last
	// Reset landed in.
	NewObjects() []NewObject

	// MovingObjects returns the objects Balance decided to relocate
	// since the last Reset, with their source and destination buckets.
	MovingObjects() []MovingObject
}

// NewObject is a freshly created object and the bucket it was assigned.
type NewObject struct {
	Object simtypes.AgentID
	Bucket int
}

// MovingObject is an existing object Balance decided to relocate.
type MovingObject struct {
	Object     simtypes.AgentID
	FromBucket int
	ToBucket   int
}
