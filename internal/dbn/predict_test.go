package dbn

import (
	"math"
	"testing"
)

func TestForecastZeroHorizonIdentity(t *testing.T) {
	net, cpts := twoStateModel(t)
	pred := NewPredictor(net, cpts)
	belief, _ := NewBelief(net, map[string][]float64{"state": {0.3, 0.7}})

	got, err := pred.Forecast(belief, 0)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if got != belief {
		t.Fatalf("horizon 0 must return the belief unchanged")
	}
}

func TestForecastMatchesMatrixPower(t *testing.T) {
	net, cpts := twoStateModel(t)
	pred := NewPredictor(net, cpts)
	belief, _ := NewBelief(net, map[string][]float64{"state": {1, 0}})

	transition := [][]float64{{0.7, 0.3}, {0.4, 0.6}}
	want := []float64{1, 0}
	for h := 1; h <= 4; h++ {
		next := make([]float64, 2)
		for x := 0; x < 2; x++ {
			for from := 0; from < 2; from++ {
				next[x] += transition[from][x] * want[from]
			}
		}
		want = next

		got, err := pred.Forecast(belief, h)
		if err != nil {
			t.Fatalf("forecast h=%d: %v", h, err)
		}
		dist := got.Dist("state")
		for x := range dist {
			if math.Abs(dist[x]-want[x]) > 1e-9 {
				t.Fatalf("h=%d: got %v want %v", h, dist, want)
			}
		}
	}
}

func TestForecastRejectsNegativeHorizon(t *testing.T) {
	net, cpts := twoStateModel(t)
	pred := NewPredictor(net, cpts)
	belief := UniformBelief(net)
	if _, err := pred.Forecast(belief, -1); err == nil {
		t.Fatalf("expected error for negative horizon")
	}
}

func TestObservedForecastIdentityTable(t *testing.T) {
	net, cpts := twoStateModel(t)
	pred := NewPredictor(net, cpts)
	belief, _ := NewBelief(net, map[string][]float64{"state": {0.8, 0.2}})

	dist, err := pred.ObservedForecast(belief, "label")
	if err != nil {
		t.Fatalf("observed forecast: %v", err)
	}
	want := []float64{0.8, 0.2} // identity emission passes the belief through
	for i := range dist {
		if math.Abs(dist[i]-want[i]) > 1e-9 {
			t.Fatalf("got %v want %v", dist, want)
		}
	}
}

func TestClassifyMargin(t *testing.T) {
	net, cpts := twoStateModel(t)
	pred := NewPredictor(net, cpts)
	belief, _ := NewBelief(net, map[string][]float64{"state": {0.8, 0.2}})

	c, err := pred.Classify(belief, "label", ConfidenceMargin)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if c.Label != "up" {
		t.Fatalf("expected up, got %q", c.Label)
	}
	if math.Abs(c.Confidence-0.6) > 1e-9 {
		t.Fatalf("margin confidence %v, want 0.6", c.Confidence)
	}
	if c.Metric != ConfidenceMargin {
		t.Fatalf("metric %q missing from output metadata", c.Metric)
	}
}

func TestClassifyEntropy(t *testing.T) {
	net, cpts := twoStateModel(t)
	pred := NewPredictor(net, cpts)

	certain, _ := NewBelief(net, map[string][]float64{"state": {1, 0}})
	c, err := pred.Classify(certain, "label", ConfidenceEntropy)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if math.Abs(c.Confidence-1) > 1e-9 {
		t.Fatalf("certain belief should score 1, got %v", c.Confidence)
	}

	unsure, _ := NewBelief(net, map[string][]float64{"state": {0.5, 0.5}})
	c, err = pred.Classify(unsure, "label", ConfidenceEntropy)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if math.Abs(c.Confidence) > 1e-9 {
		t.Fatalf("uniform belief should score 0, got %v", c.Confidence)
	}
}

func TestParseConfidenceMetric(t *testing.T) {
	if _, err := ParseConfidenceMetric("margin"); err != nil {
		t.Fatalf("margin should parse: %v", err)
	}
	if _, err := ParseConfidenceMetric("entropy"); err != nil {
		t.Fatalf("entropy should parse: %v", err)
	}
	if _, err := ParseConfidenceMetric("gini"); err == nil {
		t.Fatalf("unknown metric should fail")
	}
}
