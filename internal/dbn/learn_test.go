package dbn

import (
	"errors"
	"math"
	"testing"
	"time"
)

func learnFixture(t *testing.T, decay float64) (*Engine, *Learner, *Store, *Belief) {
	t.Helper()
	net, cpts := twoStateModel(t)
	learner, err := NewLearner(net, cpts, decay)
	if err != nil {
		t.Fatalf("learner: %v", err)
	}
	belief, err := NewBelief(net, map[string][]float64{"state": {0.5, 0.5}})
	if err != nil {
		t.Fatalf("prior: %v", err)
	}
	return NewEngine(net, cpts), learner, cpts, belief
}

func TestLearnRejectsInvalidDecay(t *testing.T) {
	net, cpts := twoStateModel(t)
	for _, gamma := range []float64{0, -0.5, 1.5} {
		if _, err := NewLearner(net, cpts, gamma); err == nil {
			t.Fatalf("expected error for decay %v", gamma)
		}
	}
}

func TestLearnTransitionSoftCount(t *testing.T) {
	engine, learner, cpts, prev := learnFixture(t, 1.0)

	next, _, err := engine.Filter(prev, obsAt(0, "up"))
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	before := cpts.Counts()["state"]
	if err := learner.Learn(prev, next, obsAt(0, "up")); err != nil {
		t.Fatalf("learn: %v", err)
	}
	after := cpts.Counts()["state"]

	// Transition rows gain outer(prev(state), next(state)).
	p := prev.Dist("state")
	n := next.Dist("state")
	for from := 0; from < 2; from++ {
		for to := 0; to < 2; to++ {
			want := before[from][to] + p[from]*n[to]
			if math.Abs(after[from][to]-want) > 1e-12 {
				t.Fatalf("row %d entry %d: got %v want %v", from, to, after[from][to], want)
			}
		}
	}
}

func TestLearnObservedSoftCount(t *testing.T) {
	engine, learner, cpts, prev := learnFixture(t, 1.0)

	next, _, err := engine.Filter(prev, obsAt(0, "down"))
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	before := cpts.Counts()["label"]
	if err := learner.Learn(prev, next, obsAt(0, "down")); err != nil {
		t.Fatalf("learn: %v", err)
	}
	after := cpts.Counts()["label"]

	// Observation rows gain the one-hot at "down" weighted by prev(state).
	p := prev.Dist("state")
	for from := 0; from < 2; from++ {
		if math.Abs(after[from][0]-before[from][0]) > 1e-12 {
			t.Fatalf("row %d: unobserved entry changed", from)
		}
		want := before[from][1] + p[from]
		if math.Abs(after[from][1]-want) > 1e-12 {
			t.Fatalf("row %d: got %v want %v", from, after[from][1], want)
		}
	}
}

func TestLearnMalformedValueLeavesCountsUntouched(t *testing.T) {
	engine, learner, cpts, prev := learnFixture(t, 0.9)

	next, _, err := engine.Filter(prev, Observation{Timestamp: time.Now(), Values: map[string]string{"label": "sideways"}})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	before := cpts.Counts()
	err = learner.Learn(prev, next, Observation{Timestamp: time.Now(), Values: map[string]string{"label": "sideways"}})
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("expected DataError, got %v", err)
	}
	if de.Node != "label" || de.Value != "sideways" {
		t.Fatalf("unexpected DataError %+v", de)
	}
	after := cpts.Counts()
	for id := range before {
		for r := range before[id] {
			for i := range before[id][r] {
				if before[id][r][i] != after[id][r][i] {
					t.Fatalf("counts for %s changed despite DataError", id)
				}
			}
		}
	}
}

func TestLearnMassNonDecreasingWithoutDecay(t *testing.T) {
	engine, learner, cpts, belief := learnFixture(t, 1.0)

	prevMass, _ := cpts.RowMass("label", []int{0})
	labels := []string{"up", "down", "up", "up", "down"}
	for i, l := range labels {
		next, _, err := engine.Filter(belief, obsAt(i, l))
		if err != nil {
			t.Fatalf("filter: %v", err)
		}
		if err := learner.Learn(belief, next, obsAt(i, l)); err != nil {
			t.Fatalf("learn: %v", err)
		}
		mass, _ := cpts.RowMass("label", []int{0})
		if mass+1e-12 < prevMass {
			t.Fatalf("row mass decreased from %v to %v at step %d", prevMass, mass, i)
		}
		prevMass = mass
		belief = next
	}
}

// With constant "up" observations and forgetting enabled, the emission row
// converges toward the point distribution at "up"; smaller gamma converges
// faster.
func TestLearnDecayConvergesToObservation(t *testing.T) {
	residualAfter := func(gamma float64, steps int) float64 {
		net, cpts := twoStateModel(t)
		// Uninformative emission prior so both entries start with mass.
		if err := cpts.SetRows("label", [][]float64{{0.5, 0.5}, {0.5, 0.5}}); err != nil {
			t.Fatalf("set rows: %v", err)
		}
		learner, err := NewLearner(net, cpts, gamma)
		if err != nil {
			t.Fatalf("learner: %v", err)
		}
		engine := NewEngine(net, cpts)
		belief, _ := NewBelief(net, map[string][]float64{"state": {0.5, 0.5}})
		for i := 0; i < steps; i++ {
			next, _, err := engine.Filter(belief, obsAt(i, "up"))
			if err != nil {
				t.Fatalf("filter: %v", err)
			}
			if err := learner.Learn(belief, next, obsAt(i, "up")); err != nil {
				t.Fatalf("learn: %v", err)
			}
			belief = next
		}
		probs, _ := cpts.RowProbabilities("label", []int{0})
		return 1 - probs[0] // distance from the stationary distribution
	}

	slow := residualAfter(0.99, 200)
	fast := residualAfter(0.8, 200)
	if fast >= slow {
		t.Fatalf("smaller decay should converge faster: gamma=0.8 residual %v, gamma=0.99 residual %v", fast, slow)
	}
	if fast > 0.05 {
		t.Fatalf("gamma=0.8 should be close to the observed distribution, residual %v", fast)
	}
}

func TestLearnDecayShrinksOldCounts(t *testing.T) {
	engine, learner, cpts, prev := learnFixture(t, 0.5)

	startMass, _ := cpts.RowMass("state", []int{0})
	next, _, err := engine.Filter(prev, obsAt(0, "up"))
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if err := learner.Learn(prev, next, obsAt(0, "up")); err != nil {
		t.Fatalf("learn: %v", err)
	}
	mass, _ := cpts.RowMass("state", []int{0})
	// old mass halved, new soft count bounded by prev(state=up) = 0.5
	if mass > startMass*0.5+0.5+1e-12 {
		t.Fatalf("decay did not shrink old counts: start %v now %v", startMass, mass)
	}
}
