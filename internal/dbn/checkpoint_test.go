package dbn

import (
	"testing"
)

func TestCheckpointResumesTrajectory(t *testing.T) {
	labels := []string{"up", "up", "down", "up", "down", "down"}

	// Uninterrupted run.
	net, cpts := twoStateModel(t)
	engine := NewEngine(net, cpts)
	learner, _ := NewLearner(net, cpts, 0.95)
	belief, _ := NewBelief(net, map[string][]float64{"state": {0.5, 0.5}})
	for i, l := range labels {
		next, _, err := engine.Filter(belief, obsAt(i, l))
		if err != nil {
			t.Fatalf("filter: %v", err)
		}
		if err := learner.Learn(belief, next, obsAt(i, l)); err != nil {
			t.Fatalf("learn: %v", err)
		}
		belief = next
	}

	// Run stopped after step 3, checkpointed, and resumed.
	net2, cpts2 := twoStateModel(t)
	engine2 := NewEngine(net2, cpts2)
	learner2, _ := NewLearner(net2, cpts2, 0.95)
	belief2, _ := NewBelief(net2, map[string][]float64{"state": {0.5, 0.5}})
	for i := 0; i < 3; i++ {
		next, _, err := engine2.Filter(belief2, obsAt(i, labels[i]))
		if err != nil {
			t.Fatalf("filter: %v", err)
		}
		if err := learner2.Learn(belief2, next, obsAt(i, labels[i])); err != nil {
			t.Fatalf("learn: %v", err)
		}
		belief2 = next
	}

	data, err := NewCheckpoint(0.95, cpts2, belief2).Encode()
	if err != nil {
		t.Fatalf("encode checkpoint: %v", err)
	}
	ckpt, err := DecodeCheckpoint(data)
	if err != nil {
		t.Fatalf("decode checkpoint: %v", err)
	}
	if ckpt.Step != 3 {
		t.Fatalf("checkpoint step %d, want 3", ckpt.Step)
	}

	net3, cpts3 := twoStateModel(t)
	belief3, err := ckpt.Apply(net3, cpts3)
	if err != nil {
		t.Fatalf("apply checkpoint: %v", err)
	}
	engine3 := NewEngine(net3, cpts3)
	learner3, _ := NewLearner(net3, cpts3, ckpt.Decay)
	for i := 3; i < len(labels); i++ {
		next, _, err := engine3.Filter(belief3, obsAt(i, labels[i]))
		if err != nil {
			t.Fatalf("filter: %v", err)
		}
		if err := learner3.Learn(belief3, next, obsAt(i, labels[i])); err != nil {
			t.Fatalf("learn: %v", err)
		}
		belief3 = next
	}

	a, b := belief.Dist("state"), belief3.Dist("state")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("resumed belief differs: %v vs %v", a, b)
		}
	}
	ca, cb := cpts.Counts(), cpts3.Counts()
	for id := range ca {
		for r := range ca[id] {
			for i := range ca[id][r] {
				if ca[id][r][i] != cb[id][r][i] {
					t.Fatalf("resumed counts differ at %s[%d][%d]", id, r, i)
				}
			}
		}
	}
	if belief3.Step() != int64(len(labels)) {
		t.Fatalf("resumed step %d, want %d", belief3.Step(), len(labels))
	}
}
