// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package balancer

import (
	"container/heap"
	"math/rand"

	"open-swarm/pkg/simtypes"
)

// Greedy defaults, named after the original implementation's module
// constants.
const (
	DefaultLambdaA      = 0.9
	DefaultLambdaB      = 0.9
	DefaultLambda       = 0.9
	DefaultImbalanceTol = 0.05
)

// Greedy is a load balancer that, on every Balance call, greedily moves
// objects from the most loaded bucket to the least loaded bucket until
// the imbalance drops below tolerance or no move helps.
type Greedy struct {
	nBuckets int

	lambdaA      float64
	lambdaB      float64
	lambda       float64
	imbalanceTol float64

	bucketObjects []map[simtypes.AgentID]struct{}
	objectBucket  map[simtypes.AgentID]int

	objectLA map[simtypes.AgentID]float64
	objectLB map[simtypes.AgentID]float64

	// Valid only after Balance.
	objectLoad map[simtypes.AgentID]float64
	bucketLoad []float64
	imbalance  float64

	newObjects     map[simtypes.AgentID]struct{}
	objectBucketPrev map[simtypes.AgentID]int

	rng *rand.Rand
}

// GreedyOption configures a Greedy balancer at construction time.
type GreedyOption func(*Greedy)

// WithTunables overrides the default LAMBDA_A/LAMBDA_B/LAMBDA/IMBALANCE_TOL.
func WithTunables(lambdaA, lambdaB, lambda, imbalanceTol float64) GreedyOption {
	return func(g *Greedy) {
		g.lambdaA = lambdaA
		g.lambdaB = lambdaB
		g.lambda = lambda
		g.imbalanceTol = imbalanceTol
	}
}

// WithRand overrides the random source used for initial bucket
// assignment, for deterministic tests.
func WithRand(rng *rand.Rand) GreedyOption {
	return func(g *Greedy) { g.rng = rng }
}

// NewGreedy returns a Greedy balancer over nBuckets buckets.
func NewGreedy(nBuckets int, opts ...GreedyOption) *Greedy {
	g := &Greedy{
		nBuckets:         nBuckets,
		lambdaA:          DefaultLambdaA,
		lambdaB:          DefaultLambdaB,
		lambda:           DefaultLambda,
		imbalanceTol:     DefaultImbalanceTol,
		bucketObjects:    make([]map[simtypes.AgentID]struct{}, nBuckets),
		objectBucket:     make(map[simtypes.AgentID]int),
		objectLA:         make(map[simtypes.AgentID]float64),
		objectLB:         make(map[simtypes.AgentID]float64),
		objectLoad:       make(map[simtypes.AgentID]float64),
		bucketLoad:       make([]float64, nBuckets),
		newObjects:       make(map[simtypes.AgentID]struct{}),
		objectBucketPrev: make(map[simtypes.AgentID]int),
		rng:              rand.New(rand.NewSource(1)),
	}
	for i := range g.bucketObjects {
		g.bucketObjects[i] = make(map[simtypes.AgentID]struct{})
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Reset implements LoadBalancer.
func (g *Greedy) Reset() {
	g.newObjects = make(map[simtypes.AgentID]struct{})
	g.objectBucketPrev = make(map[simtypes.AgentID]int)
}

// AddObject implements LoadBalancer. The seed la/lb are stored as-is; no
// EMA blending happens until the first UpdateLoad call.
func (g *Greedy) AddObject(o simtypes.AgentID, la, lb float64) {
	b := g.rng.Intn(g.nBuckets)

	g.bucketObjects[b][o] = struct{}{}
	g.objectBucket[o] = b

	g.objectLA[o] = la
	g.objectLB[o] = lb

	g.newObjects[o] = struct{}{}
}

// DeleteObject implements LoadBalancer.
func (g *Greedy) DeleteObject(o simtypes.AgentID) {
	b := g.objectBucket[o]

	delete(g.objectLA, o)
	delete(g.objectLB, o)
	delete(g.objectLoad, o)
	delete(g.objectBucket, o)
	delete(g.bucketObjects[b], o)
}

// UpdateLoad implements LoadBalancer.
func (g *Greedy) UpdateLoad(o simtypes.AgentID, la, lb float64) {
	pLA := g.objectLA[o]
	pLB := g.objectLB[o]

	g.objectLA[o] = (1-g.lambdaA)*pLA + g.lambdaA*la
	g.objectLB[o] = (1-g.lambdaB)*pLB + g.lambdaB*lb
}

func (g *Greedy) updateLoad() {
	var maxLA, maxLB float64
	for _, la := range g.objectLA {
		if la > maxLA {
			maxLA = la
		}
	}
	for _, lb := range g.objectLB {
		if lb > maxLB {
			maxLB = lb
		}
	}
	// A balancer with no live objects, or one whose peak load is still
	// zero, has nothing to normalize against; leave every object load
	// at zero rather than dividing by zero.
	if maxLA == 0 {
		maxLA = 1
	}
	if maxLB == 0 {
		maxLB = 1
	}

	for o := range g.objectBucket {
		la := g.objectLA[o] / maxLA
		lb := g.objectLB[o] / maxLB
		g.objectLoad[o] = (1-g.lambda)*la + g.lambda*lb
	}

	for i := range g.bucketLoad {
		g.bucketLoad[i] = 0
	}
	for i, objects := range g.bucketObjects {
		for o := range objects {
			g.bucketLoad[i] += g.objectLoad[o]
		}
	}
}

func (g *Greedy) updateImbalance() {
	if len(g.bucketLoad) == 0 {
		g.imbalance = 0
		return
	}
	minLoad, maxLoad, sumLoad := g.bucketLoad[0], g.bucketLoad[0], 0.0
	for _, l := range g.bucketLoad {
		if l < minLoad {
			minLoad = l
		}
		if l > maxLoad {
			maxLoad = l
		}
		sumLoad += l
	}
	if sumLoad == 0 {
		g.imbalance = 0
		return
	}
	g.imbalance = (maxLoad - minLoad) / sumLoad
}

// objectLoadHeap is a min-heap of (load, object) pairs over one bucket's
// objects, popped lightest-first during a greedy move.
type objectLoadHeap []objectLoadEntry

type objectLoadEntry struct {
	load   float64
	object simtypes.AgentID
}

func (h objectLoadHeap) Len() int            { return len(h) }
func (h objectLoadHeap) Less(i, j int) bool  { return h[i].load < h[j].load }
func (h objectLoadHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *objectLoadHeap) Push(x any)         { *h = append(*h, x.(objectLoadEntry)) }
func (h *objectLoadHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func argmax(loads []float64) int {
	best := 0
	for i, l := range loads {
		if l > loads[best] {
			best = i
		}
	}
	return best
}

func argmin(loads []float64) int {
	best := 0
	for i, l := range loads {
		if l < loads[best] {
			best = i
		}
	}
	return best
}

// greedyMove moves objects from the most loaded bucket to the least
// loaded bucket, lightest-first, until the next move would flip which
// bucket is heavier. Returns whether any object moved.
func (g *Greedy) greedyMove() bool {
	src := argmax(g.bucketLoad)
	dst := argmin(g.bucketLoad)

	h := make(objectLoadHeap, 0, len(g.bucketObjects[src]))
	for o := range g.bucketObjects[src] {
		h = append(h, objectLoadEntry{load: g.objectLoad[o], object: o})
	}
	heap.Init(&h)

	moved := false
	for h.Len() > 0 {
		entry := heap.Pop(&h).(objectLoadEntry)
		l, o := entry.load, entry.object

		if g.bucketLoad[src]-l >= g.bucketLoad[dst]+l {
			moved = true
			if _, ok := g.objectBucketPrev[o]; !ok {
				g.objectBucketPrev[o] = src
			}

			g.bucketLoad[src] -= l
			g.bucketLoad[dst] += l
			delete(g.bucketObjects[src], o)
			g.bucketObjects[dst][o] = struct{}{}
			g.objectBucket[o] = dst
		} else {
			break
		}
	}

	return moved
}

// Balance implements LoadBalancer.
func (g *Greedy) Balance() {
	g.updateLoad()

	for {
		g.updateImbalance()
		if g.imbalance < g.imbalanceTol {
			break
		}
		if !g.greedyMove() {
			break
		}
	}

	for o, prev := range g.objectBucketPrev {
		if _, isNew := g.newObjects[o]; isNew {
			delete(g.objectBucketPrev, o)
			continue
		}
		if prev == g.objectBucket[o] {
			delete(g.objectBucketPrev, o)
		}
	}
}

// NewObjects implements LoadBalancer.
func (g *Greedy) NewObjects() []NewObject {
	ret := make([]NewObject, 0, len(g.newObjects))
	for o := range g.newObjects {
		ret = append(ret, NewObject{Object: o, Bucket: g.objectBucket[o]})
	}
	return ret
}

// MovingObjects implements LoadBalancer.
func (g *Greedy) MovingObjects() []MovingObject {
	ret := make([]MovingObject, 0, len(g.objectBucketPrev))
	for o, src := range g.objectBucketPrev {
		ret = append(ret, MovingObject{Object: o, FromBucket: src, ToBucket: g.objectBucket[o]})
	}
	return ret
}
