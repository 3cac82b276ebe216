package dbn

import (
	"math"
	"sort"
)

// ConfidenceMetric selects how a classification's confidence score is
// derived from the forecast distribution.
type ConfidenceMetric string

const (
	// ConfidenceMargin scores confidence as top probability minus the
	// second-highest probability.
	ConfidenceMargin ConfidenceMetric = "margin"

	// ConfidenceEntropy scores confidence as one minus the normalized
	// entropy of the distribution.
	ConfidenceEntropy ConfidenceMetric = "entropy"
)

// ParseConfidenceMetric validates a configured metric name.
func ParseConfidenceMetric(s string) (ConfidenceMetric, error) {
	switch ConfidenceMetric(s) {
	case ConfidenceMargin:
		return ConfidenceMargin, nil
	case ConfidenceEntropy:
		return ConfidenceEntropy, nil
	default:
		return "", configErrorf("unknown confidence metric %q (want margin or entropy)", s)
	}
}

// Predictor projects a belief forward through the transition model alone,
// without evidence updates. It reads the belief snapshot and the CPT store
// and mutates neither.
type Predictor struct {
	net  *Network
	cpts *Store
}

// NewPredictor builds a predictor over a fixed network and CPT store.
func NewPredictor(net *Network, cpts *Store) *Predictor {
	return &Predictor{net: net, cpts: cpts}
}

// Forecast applies the predict step horizon times. horizon=0 returns the
// belief unchanged (identity law).
func (p *Predictor) Forecast(b *Belief, horizon int) (*Belief, error) {
	if horizon < 0 {
		return nil, configErrorf("forecast horizon must be non-negative, got %d", horizon)
	}
	cur := b
	for h := 0; h < horizon; h++ {
		pred, err := predictAll(p.net, p.cpts, cur)
		if err != nil {
			return nil, err
		}
		cur = snapshot(cur.step+1, cur.at, pred)
	}
	return cur, nil
}

// ObservedForecast marginalizes a (typically forecast) belief through the
// observation table of one observed node, yielding the forecast distribution
// over that node's domain.
func (p *Predictor) ObservedForecast(b *Belief, id string) ([]float64, error) {
	node, ok := p.net.Node(id)
	if !ok {
		return nil, configErrorf("unknown node %q", id)
	}
	if node.Role != RoleObserved {
		return nil, configErrorf("node %q is not observed", id)
	}
	t, err := p.cpts.table(id)
	if err != nil {
		return nil, err
	}
	if len(t.pnodes) == 0 {
		return t.probabilities(0), nil
	}

	parents := make([][]float64, len(t.pnodes))
	for j, pe := range t.parents {
		parents[j] = b.distRef(pe.Parent)
		if parents[j] == nil {
			return nil, configErrorf("no belief for parent %q of node %q", pe.Parent, id)
		}
	}
	acc := make([]float64, node.Cardinality())
	for row := range t.rows {
		cfg := t.decodeRow(row)
		w := 1.0
		for j := range cfg {
			w *= parents[j][cfg[j]]
		}
		if w == 0 {
			continue
		}
		probs := t.probabilities(row)
		for i := range acc {
			acc[i] += w * probs[i]
		}
	}
	normalizeInPlace(acc)
	return acc, nil
}

// Classification is the predictor's output for one node: the argmax label
// with a confidence score, plus the full distribution and the metric that
// produced the score.
type Classification struct {
	Node          string           `json:"node"`
	Label         string           `json:"label"`
	Confidence    float64          `json:"confidence"`
	Metric        ConfidenceMetric `json:"metric"`
	Labels        []string         `json:"labels"`
	Probabilities []float64        `json:"probabilities"`
}

// Classify derives the classification output for a node from a belief. For
// an observed node the distribution is marginalized through its observation
// table; for a hidden node the belief distribution is used directly.
func (p *Predictor) Classify(b *Belief, id string, metric ConfidenceMetric) (Classification, error) {
	node, ok := p.net.Node(id)
	if !ok {
		return Classification{}, configErrorf("unknown node %q", id)
	}

	var dist []float64
	var err error
	if node.Role == RoleObserved {
		dist, err = p.ObservedForecast(b, id)
		if err != nil {
			return Classification{}, err
		}
	} else {
		dist = b.Dist(id)
		if dist == nil {
			return Classification{}, configErrorf("no belief for node %q", id)
		}
	}

	best := 0
	for i := range dist {
		if dist[i] > dist[best] {
			best = i
		}
	}

	return Classification{
		Node:          id,
		Label:         node.Domain[best],
		Confidence:    confidence(dist, metric),
		Metric:        metric,
		Labels:        append([]string(nil), node.Domain...),
		Probabilities: dist,
	}, nil
}

func confidence(dist []float64, metric ConfidenceMetric) float64 {
	if len(dist) <= 1 {
		return 1
	}
	switch metric {
	case ConfidenceEntropy:
		h := 0.0
		for _, p := range dist {
			if p > 0 {
				h -= p * math.Log(p)
			}
		}
		return 1 - h/math.Log(float64(len(dist)))
	default: // margin
		sorted := append([]float64(nil), dist...)
		sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
		return sorted[0] - sorted[1]
	}
}
