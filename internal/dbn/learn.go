package dbn

import "sync"

// Learner folds each step's evidence back into the pseudo-counts: a soft
// joint count per CPT row, derived from the frozen belief pair around the
// step. Tables are independent, so they are updated concurrently — each
// goroutine reads only the two snapshots and writes only its own table.
type Learner struct {
	net   *Network
	cpts  *Store
	decay float64
}

// NewLearner builds the learning engine. decay is the forgetting factor
// gamma in (0,1]; 1 disables forgetting (unbounded accumulation under the
// stationary assumption).
func NewLearner(net *Network, cpts *Store, decay float64) (*Learner, error) {
	if decay <= 0 || decay > 1 {
		return nil, configErrorf("decay must be in (0,1], got %g", decay)
	}
	return &Learner{net: net, cpts: cpts, decay: decay}, nil
}

// Decay returns the configured forgetting factor.
func (l *Learner) Decay() float64 { return l.decay }

// Learn accumulates this step's soft counts into every touched CPT row.
// Hidden children receive outer(prev(parent), next(child)); observed
// children receive the one-hot vector at the observed value weighted by
// prev(parent). Observed nodes with a missing value contribute nothing.
//
// A value outside a node's domain aborts the whole update with a DataError
// before any count is touched, so a malformed step never corrupts the
// accumulated evidence.
func (l *Learner) Learn(prev, next *Belief, obs Observation) error {
	for _, node := range l.net.Observed() {
		v, ok := obs.Value(node.ID)
		if ok && node.Index(v) < 0 {
			return &DataError{Node: node.ID, Value: v}
		}
	}

	if l.decay < 1 {
		l.cpts.Decay(l.decay)
	}

	var wg sync.WaitGroup
	for _, node := range l.net.Nodes() {
		t := l.cpts.tables[node.ID]
		var dist []float64
		switch node.Role {
		case RoleHidden:
			dist = next.distRef(node.ID)
		case RoleObserved:
			v, ok := obs.Value(node.ID)
			if !ok {
				continue
			}
			dist = make([]float64, node.Cardinality())
			dist[node.Index(v)] = 1
		}
		if dist == nil {
			continue
		}

		wg.Add(1)
		go func(t *table, dist []float64) {
			defer wg.Done()
			l.accumulate(t, prev, dist)
		}(t, dist)
	}
	wg.Wait()
	return nil
}

// accumulate adds weight*dist to every row of one table, where the row
// weight is the product of the previous belief of each parent at that row's
// configuration.
func (l *Learner) accumulate(t *table, prev *Belief, dist []float64) {
	if len(t.pnodes) == 0 {
		t.add(0, dist, 1)
		return
	}
	parents := make([][]float64, len(t.pnodes))
	for j, pe := range t.parents {
		parents[j] = prev.distRef(pe.Parent)
		if parents[j] == nil {
			return
		}
	}
	for row := range t.rows {
		cfg := t.decodeRow(row)
		w := 1.0
		for j := range cfg {
			w *= parents[j][cfg[j]]
		}
		if w == 0 {
			continue
		}
		t.add(row, dist, w)
	}
}
