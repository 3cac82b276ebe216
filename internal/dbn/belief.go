package dbn

import (
	"math"
	"sort"
	"time"
)

// Belief is the probability distribution over every hidden node at one time
// step, conditioned on all evidence seen so far. Snapshots are immutable:
// Filter returns a fresh value and never mutates its input, so a concurrent
// reader holding a snapshot stays consistent without locking.
type Belief struct {
	step int64
	at   time.Time
	dist map[string][]float64
}

// NewBelief builds the t=0 belief from a prior. Hidden nodes missing from
// the prior start uniform. Supplied distributions must match the node's
// domain, be non-negative, and carry positive mass (they are normalized).
func NewBelief(net *Network, prior map[string][]float64) (*Belief, error) {
	b := &Belief{dist: make(map[string][]float64)}
	for _, node := range net.Hidden() {
		p, ok := prior[node.ID]
		if !ok {
			b.dist[node.ID] = uniform(node.Cardinality())
			continue
		}
		if len(p) != node.Cardinality() {
			return nil, configErrorf("prior for %q has %d entries, domain has %d", node.ID, len(p), node.Cardinality())
		}
		d := append([]float64(nil), p...)
		mass := 0.0
		for _, v := range d {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, configErrorf("prior for %q must be finite and non-negative", node.ID)
			}
			mass += v
		}
		if mass <= 0 {
			return nil, configErrorf("prior for %q has zero mass", node.ID)
		}
		for i := range d {
			d[i] /= mass
		}
		b.dist[node.ID] = d
	}
	return b, nil
}

// UniformBelief builds the t=0 belief with a uniform distribution for every
// hidden node.
func UniformBelief(net *Network) *Belief {
	b, _ := NewBelief(net, nil)
	return b
}

func uniform(k int) []float64 {
	d := make([]float64, k)
	u := 1.0 / float64(k)
	for i := range d {
		d[i] = u
	}
	return d
}

// Step returns the time-step counter of this snapshot (0 for the prior).
func (b *Belief) Step() int64 { return b.step }

// At returns the timestamp of the observation that produced this snapshot.
func (b *Belief) At() time.Time { return b.at }

// Dist returns a copy of the distribution for one hidden node, or nil if the
// node is not tracked.
func (b *Belief) Dist(id string) []float64 {
	d, ok := b.dist[id]
	if !ok {
		return nil
	}
	return append([]float64(nil), d...)
}

// distRef returns the distribution without copying. Internal callers must
// not mutate it.
func (b *Belief) distRef(id string) []float64 { return b.dist[id] }

// Nodes returns the tracked hidden-node ids in sorted order.
func (b *Belief) Nodes() []string {
	out := make([]string, 0, len(b.dist))
	for id := range b.dist {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Entropy returns the Shannon entropy (nats) of one node's distribution.
func (b *Belief) Entropy(id string) float64 {
	h := 0.0
	for _, p := range b.dist[id] {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// NormalizedEntropy returns entropy scaled to [0,1] by the domain size.
func (b *Belief) NormalizedEntropy(id string) float64 {
	k := len(b.dist[id])
	if k <= 1 {
		return 0
	}
	return b.Entropy(id) / math.Log(float64(k))
}

// Validate checks that every distribution sums to one within tolerance and
// is entrywise non-negative.
func (b *Belief) Validate() error {
	for id, d := range b.dist {
		mass := 0.0
		for _, v := range d {
			if v < 0 {
				return configErrorf("belief for %q has a negative entry", id)
			}
			mass += v
		}
		if math.Abs(mass-1) > probSumTolerance {
			return configErrorf("belief for %q sums to %.12f", id, mass)
		}
	}
	return nil
}

// snapshot materializes a successor belief from freshly computed
// distributions. Ownership of dist transfers to the new value.
func snapshot(step int64, at time.Time, dist map[string][]float64) *Belief {
	return &Belief{step: step, at: at, dist: dist}
}

// normalizeInPlace scales xs to unit mass and returns the original mass.
func normalizeInPlace(xs []float64) float64 {
	mass := 0.0
	for _, v := range xs {
		mass += v
	}
	if mass > 0 {
		for i := range xs {
			xs[i] /= mass
		}
	}
	return mass
}
