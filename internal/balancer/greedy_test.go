// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"open-swarm/pkg/simtypes"
)

func TestGreedy_AddObjectSeedsLoadWithoutEMA(t *testing.T) {
	g := NewGreedy(2)
	g.AddObject("a", 10, 20)

	assert.Equal(t, 10.0, g.objectLA["a"])
	assert.Equal(t, 20.0, g.objectLB["a"])
}

func TestGreedy_UpdateLoadBlendsEMA(t *testing.T) {
	g := NewGreedy(2)
	g.AddObject("a", 10, 10)
	g.UpdateLoad("a", 20, 20)

	want := (1-DefaultLambdaA)*10 + DefaultLambdaA*20
	assert.InDelta(t, want, g.objectLA["a"], 1e-9)
}

// seedBucket places an object directly into a bucket, bypassing the
// random initial placement, so balancing tests can start from a known
// skewed layout.
func seedBucket(g *Greedy, bucket int, o simtypes.AgentID, la, lb float64, isNew bool) {
	g.bucketObjects[bucket][o] = struct{}{}
	g.objectBucket[o] = bucket
	g.objectLA[o] = la
	g.objectLB[o] = lb
	if isNew {
		g.newObjects[o] = struct{}{}
	}
}

func TestGreedy_TwoAgentsTwoRanksConverge(t *testing.T) {
	g := NewGreedy(2)
	seedBucket(g, 0, "a", 1, 1, true)
	seedBucket(g, 0, "b", 1, 1, true)

	g.Balance()

	assert.Less(t, g.imbalance, DefaultImbalanceTol)
	assert.NotEqual(t, g.objectBucket["a"], g.objectBucket["b"],
		"two equal-load agents on the same bucket must split across both buckets")
}

func TestGreedy_ConvergesToBalancedBuckets(t *testing.T) {
	// Five equal-load agents all seeded onto bucket 0; balancing across
	// five buckets must spread them out until the imbalance drops under
	// tolerance.
	g := NewGreedy(5)
	for i := 0; i < 5; i++ {
		seedBucket(g, 0, simtypes.AgentID(rune('a'+i)), 1, 1, true)
	}

	g.Balance()

	assert.Less(t, g.imbalance, DefaultImbalanceTol)
}

func TestGreedy_DeleteObjectRemovesAllState(t *testing.T) {
	g := NewGreedy(3)
	g.AddObject("a", 1, 1)
	g.DeleteObject("a")

	_, exists := g.objectLA["a"]
	assert.False(t, exists)
	_, exists = g.objectBucket["a"]
	assert.False(t, exists)
}

func TestGreedy_ResetClearsNewAndPrevBucket(t *testing.T) {
	g := NewGreedy(3)
	g.AddObject("a", 1, 1)
	require.Len(t, g.NewObjects(), 1)

	g.Reset()
	assert.Empty(t, g.NewObjects())
	assert.Empty(t, g.MovingObjects())
}

func TestGreedy_NewObjectNeverReportedAsMoving(t *testing.T) {
	// A freshly added object that Balance happens to relocate should not
	// appear in MovingObjects: new placements aren't migrations.
	g := NewGreedy(2)
	for i := 0; i < 4; i++ {
		seedBucket(g, 0, simtypes.AgentID(rune('a'+i)), 1, 1, false)
	}
	seedBucket(g, 0, "e", 1, 1, true)

	g.Balance()

	for _, m := range g.MovingObjects() {
		assert.NotEqual(t, simtypes.AgentID("e"), m.Object)
	}
}

func TestGreedy_NoMoveWhenAlreadyBalanced(t *testing.T) {
	g := NewGreedy(2)
	seedBucket(g, 0, "a", 1, 1, false)
	seedBucket(g, 1, "b", 1, 1, false)

	g.Balance()

	assert.Empty(t, g.MovingObjects())
}

func TestGreedy_ZeroMaxLoadDoesNotPanic(t *testing.T) {
	g := NewGreedy(2)
	seedBucket(g, 0, "a", 0, 0, true)
	seedBucket(g, 1, "b", 0, 0, true)

	assert.NotPanics(t, func() { g.Balance() })
}
