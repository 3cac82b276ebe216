package dbn

import "encoding/json"

// Checkpoint captures everything needed to resume a stopped run without
// reprocessing prior observations: accumulated pseudo-counts exactly as
// decayed and added, the most recent belief, and the step counter.
type Checkpoint struct {
	Step   int64                  `json:"step"`
	Decay  float64                `json:"decay"`
	Counts map[string][][]float64 `json:"counts"`
	Belief map[string][]float64   `json:"belief"`
}

// NewCheckpoint snapshots the current model state.
func NewCheckpoint(decay float64, cpts *Store, b *Belief) *Checkpoint {
	c := &Checkpoint{
		Step:   b.Step(),
		Decay:  decay,
		Counts: cpts.Counts(),
		Belief: make(map[string][]float64, len(b.dist)),
	}
	for id := range b.dist {
		c.Belief[id] = b.Dist(id)
	}
	return c
}

// Apply restores the pseudo-counts into the store and rebuilds the belief
// snapshot at the recorded step.
func (c *Checkpoint) Apply(net *Network, cpts *Store) (*Belief, error) {
	if err := cpts.SetCounts(c.Counts); err != nil {
		return nil, err
	}
	b, err := NewBelief(net, c.Belief)
	if err != nil {
		return nil, err
	}
	b.step = c.Step
	return b, nil
}

// Encode serializes the checkpoint as JSON.
func (c *Checkpoint) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeCheckpoint parses a checkpoint produced by Encode.
func DecodeCheckpoint(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
