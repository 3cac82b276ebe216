package dbn

import (
	"math"
	"testing"
	"time"
)

func obsAt(step int, value string) Observation {
	return Observation{
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(step) * time.Minute),
		Values:    map[string]string{"label": value},
	}
}

// Reference chain from the worked two-state scenario: transition
// [[0.7,0.3],[0.4,0.6]] (row = from-state), identity observation table,
// initial belief [0.5,0.5], observations up, up, down.
func referenceChain(belief []float64, observations []int) [][]float64 {
	transition := [][]float64{{0.7, 0.3}, {0.4, 0.6}}
	out := make([][]float64, 0, len(observations))
	cur := append([]float64(nil), belief...)
	for _, o := range observations {
		pred := make([]float64, 2)
		for x := 0; x < 2; x++ {
			for from := 0; from < 2; from++ {
				pred[x] += transition[from][x] * cur[from]
			}
		}
		post := make([]float64, 2)
		post[o] = pred[o] // identity likelihood picks the observed index
		mass := post[0] + post[1]
		post[0] /= mass
		post[1] /= mass
		cur = post
		out = append(out, append([]float64(nil), post...))
	}
	return out
}

func TestFilterWorkedScenario(t *testing.T) {
	net, cpts := twoStateModel(t)
	engine := NewEngine(net, cpts)
	belief, err := NewBelief(net, map[string][]float64{"state": {0.5, 0.5}})
	if err != nil {
		t.Fatalf("prior: %v", err)
	}

	want := referenceChain([]float64{0.5, 0.5}, []int{0, 0, 1})
	for i, label := range []string{"up", "up", "down"} {
		next, warnings, err := engine.Filter(belief, obsAt(i, label))
		if err != nil {
			t.Fatalf("filter step %d: %v", i, err)
		}
		if len(warnings) != 0 {
			t.Fatalf("unexpected warnings at step %d: %v", i, warnings)
		}
		got := next.Dist("state")
		for x := range got {
			if math.Abs(got[x]-want[i][x]) > 1e-9 {
				t.Fatalf("step %d: belief %v, want %v", i, got, want[i])
			}
		}
		if err := next.Validate(); err != nil {
			t.Fatalf("step %d belief invalid: %v", i, err)
		}
		if next.Step() != int64(i+1) {
			t.Fatalf("step counter %d, want %d", next.Step(), i+1)
		}
		belief = next
	}
}

func TestFilterMissingEvidenceIsPurePrediction(t *testing.T) {
	net, cpts := twoStateModel(t)
	engine := NewEngine(net, cpts)
	belief, _ := NewBelief(net, map[string][]float64{"state": {0.5, 0.5}})

	next, warnings, err := engine.Filter(belief, Observation{Timestamp: time.Now(), Values: nil})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	got := next.Dist("state")
	want := []float64{0.55, 0.45} // transition applied to [0.5,0.5]
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("predictive %v, want %v", got, want)
		}
	}
}

func TestFilterDoesNotMutatePreviousBelief(t *testing.T) {
	net, cpts := twoStateModel(t)
	engine := NewEngine(net, cpts)
	belief, _ := NewBelief(net, map[string][]float64{"state": {0.5, 0.5}})

	if _, _, err := engine.Filter(belief, obsAt(0, "up")); err != nil {
		t.Fatalf("filter: %v", err)
	}
	got := belief.Dist("state")
	if got[0] != 0.5 || got[1] != 0.5 {
		t.Fatalf("previous belief mutated: %v", got)
	}
}

func TestFilterZeroLikelihoodFallsBackToPredictive(t *testing.T) {
	net, cpts := twoStateModel(t)
	// Observation table that can never emit "down".
	if err := cpts.SetRows("label", [][]float64{{1, 0}, {1, 0}}); err != nil {
		t.Fatalf("set rows: %v", err)
	}
	engine := NewEngine(net, cpts)
	belief, _ := NewBelief(net, map[string][]float64{"state": {0.5, 0.5}})

	next, warnings, err := engine.Filter(belief, obsAt(0, "down"))
	if err != nil {
		t.Fatalf("filter must not fail on impossible evidence: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Kind != WarningNumerical {
		t.Fatalf("expected one numerical warning, got %v", warnings)
	}
	got := next.Dist("state")
	want := []float64{0.55, 0.45}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("fallback %v, want predictive %v", got, want)
		}
	}
}

func TestFilterOutOfDomainValueTreatedAsMissing(t *testing.T) {
	net, cpts := twoStateModel(t)
	engine := NewEngine(net, cpts)
	belief, _ := NewBelief(net, map[string][]float64{"state": {0.5, 0.5}})

	next, warnings, err := engine.Filter(belief, Observation{
		Timestamp: time.Now(),
		Values:    map[string]string{"label": "sideways"},
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	got := next.Dist("state")
	want := []float64{0.55, 0.45}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("belief %v, want pure prediction %v", got, want)
		}
	}
}

func TestFilterIsDeterministic(t *testing.T) {
	labels := []string{"up", "down", "down", "up", "up", "up", "down"}

	run := func() [][]float64 {
		net, cpts := twoStateModel(t)
		engine := NewEngine(net, cpts)
		belief, _ := NewBelief(net, map[string][]float64{"state": {0.5, 0.5}})
		var out [][]float64
		for i, l := range labels {
			next, _, err := engine.Filter(belief, obsAt(i, l))
			if err != nil {
				t.Fatalf("filter: %v", err)
			}
			out = append(out, next.Dist("state"))
			belief = next
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		for x := range a[i] {
			if a[i][x] != b[i][x] {
				t.Fatalf("trajectories diverge at step %d", i)
			}
		}
	}
}
