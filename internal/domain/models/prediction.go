package models

import "time"

// PredictionRecord captures the forecast emitted after one engine step:
// the most probable next value of an observed node plus the full
// distribution behind it. Actual and Correct are filled in retroactively
// once the observation for the forecast step arrives.
type PredictionRecord struct {
	Symbol        string
	Node          string
	Step          int64
	Timestamp     time.Time
	Horizon       int
	Label         string
	Confidence    float64
	Metric        string
	Labels        []string
	Probabilities []float64
	Actual        string
	Correct       *bool
}

// Resolved reports whether the prediction has been matched against an
// arrived actual value.
func (p *PredictionRecord) Resolved() bool { return p.Correct != nil }

// Resolve records the actual label and scores the prediction.
func (p *PredictionRecord) Resolve(actual string) {
	correct := actual == p.Label
	p.Actual = actual
	p.Correct = &correct
}
