package dbn

import "time"

// Observation carries the observed-node values for one time step. A node
// absent from Values, or mapped to Missing, contributes no evidence: a step
// with no evidence degenerates to pure prediction.
type Observation struct {
	Timestamp time.Time
	Values    map[string]string
}

// Missing marks an observed node with no value this step.
const Missing = ""

// Value returns the recorded value for a node and whether one is present.
func (o Observation) Value(id string) (string, bool) {
	v, ok := o.Values[id]
	if !ok || v == Missing {
		return "", false
	}
	return v, true
}
