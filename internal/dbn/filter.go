package dbn

import "fmt"

// Engine performs one-step forward filtering: a predict pass that
// marginalizes the previous belief through the inter-slice transition
// tables, then an evidence update from the observation tables. Processing is
// strictly sequential along the time axis; each call consumes the committed
// belief of the previous step.
type Engine struct {
	net  *Network
	cpts *Store
}

// NewEngine builds the inference engine over a fixed network and CPT store.
func NewEngine(net *Network, cpts *Store) *Engine {
	return &Engine{net: net, cpts: cpts}
}

// Filter produces the belief for the next time step. The previous snapshot
// is never mutated and remains valid for audit. Warnings report recoverable
// numerical conditions; a zero likelihood mass falls back to the predictive
// distribution instead of failing, so a live stream never halts here.
// Out-of-domain observation values are treated as missing evidence; Learn is
// where they surface as a DataError.
func (e *Engine) Filter(prev *Belief, obs Observation) (*Belief, []Warning, error) {
	pred, err := predictAll(e.net, e.cpts, prev)
	if err != nil {
		return nil, nil, err
	}

	var warnings []Warning
	post := make(map[string][]float64, len(pred))
	for _, h := range e.net.Hidden() {
		cur := append([]float64(nil), pred[h.ID]...)
		touched := false
		for _, edge := range e.net.Children(h.ID) {
			child, _ := e.net.Node(edge.Child)
			if child.Role != RoleObserved || edge.Lag != LagIntra {
				continue
			}
			v, ok := obs.Value(child.ID)
			if !ok {
				continue
			}
			vi := child.Index(v)
			if vi < 0 {
				continue
			}
			lik, err := e.likelihood(edge, vi, pred, prev)
			if err != nil {
				return nil, nil, err
			}
			for i := range cur {
				cur[i] *= lik[i]
			}
			touched = true
		}
		if touched {
			if mass := normalizeInPlace(cur); mass <= 0 {
				warnings = append(warnings, Warning{
					Kind:   WarningNumerical,
					Node:   h.ID,
					Detail: fmt.Sprintf("likelihood mass collapsed at step %d, falling back to predictive", prev.step+1),
				})
				cur = append([]float64(nil), pred[h.ID]...)
			}
		}
		post[h.ID] = cur
	}

	return snapshot(prev.step+1, obs.Timestamp, post), warnings, nil
}

// likelihood computes, for the hidden parent on the given edge, the vector
// L(x) = P(child = value | parent = x) with every other parent of the child
// marginalized out under its current predictive (lag 0) or previous (lag 1)
// distribution.
func (e *Engine) likelihood(edge Edge, valueIdx int, pred map[string][]float64, prev *Belief) ([]float64, error) {
	t, err := e.cpts.table(edge.Child)
	if err != nil {
		return nil, err
	}
	pos := -1
	for j, pe := range t.parents {
		if pe.Parent == edge.Parent && pe.Lag == edge.Lag {
			pos = j
			break
		}
	}
	if pos < 0 {
		return nil, configErrorf("edge %s->%s not recorded for node %q", edge.Parent, edge.Child, edge.Child)
	}

	dists := make([][]float64, len(t.pnodes))
	for j, pe := range t.parents {
		if j == pos {
			continue
		}
		if pe.Lag == LagInter {
			dists[j] = prev.distRef(pe.Parent)
		} else {
			dists[j] = pred[pe.Parent]
		}
		if dists[j] == nil {
			return nil, configErrorf("no belief for parent %q of node %q", pe.Parent, edge.Child)
		}
	}

	lik := make([]float64, t.pnodes[pos].Cardinality())
	for row := range t.rows {
		cfg := t.decodeRow(row)
		w := 1.0
		for j := range cfg {
			if j == pos {
				continue
			}
			w *= dists[j][cfg[j]]
		}
		if w == 0 {
			continue
		}
		lik[cfg[pos]] += w * t.probabilities(row)[valueIdx]
	}
	return lik, nil
}

// predictAll computes the one-step predictive distribution for every hidden
// node: predictive(x) = sum over parent configurations of P(x|config) times
// the product of parent beliefs, taking lag-1 parents from the previous
// belief and lag-0 hidden parents from the predictive computed earlier in
// intra-slice topological order.
func predictAll(net *Network, cpts *Store, prev *Belief) (map[string][]float64, error) {
	out := make(map[string][]float64)
	for _, id := range net.hiddenTopo() {
		t, err := cpts.table(id)
		if err != nil {
			return nil, err
		}
		if len(t.pnodes) == 0 {
			out[id] = t.probabilities(0)
			continue
		}
		dists := make([][]float64, len(t.pnodes))
		for j, pe := range t.parents {
			if pe.Lag == LagInter {
				dists[j] = prev.distRef(pe.Parent)
			} else {
				dists[j] = out[pe.Parent]
			}
			if dists[j] == nil {
				return nil, configErrorf("no belief for parent %q of node %q", pe.Parent, id)
			}
		}
		acc := make([]float64, t.child.Cardinality())
		for row := range t.rows {
			cfg := t.decodeRow(row)
			w := 1.0
			for j := range cfg {
				w *= dists[j][cfg[j]]
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
		out[id] = acc
	}
	return out, nil
}
