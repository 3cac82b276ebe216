package dbn

import (
	"fmt"
	"math/rand"
)

// Node ids and labels of the default single-asset direction model: a hidden
// regime chain with a first-order self edge emitting the observed price
// direction each slice.
const (
	NodeRegime    = "regime"
	NodePriceMove = "price_move"

	LabelUp   = "up"
	LabelDown = "down"
)

// StockModelConfig parameterizes BuildStockModel.
type StockModelConfig struct {
	HiddenStates  int     // size of the regime domain, minimum 2
	PriorStrength float64 // total pseudo-count mass per CPT row
	PriorJitter   float64 // fraction of per-cell prior added as seeded noise
	Seed          int64   // rng seed for the jitter; ignored when jitter is 0
}

// regimeDomain names the hidden states. Two states keep the conventional
// bull/bear reading; larger domains fall back to indexed labels.
func regimeDomain(n int) []string {
	if n == 2 {
		return []string{"bull", "bear"}
	}
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("regime_%d", i)
	}
	return out
}

// BuildStockModel constructs the default network and a seeded CPT store:
//
//	regime_{t-1} -> regime_t      (inter-slice, momentum of the hidden state)
//	regime_t     -> price_move_t  (intra-slice emission, domain {up, down})
//
// All randomness comes from the explicit seed; identical configs produce
// identical stores.
func BuildStockModel(cfg StockModelConfig) (*Network, *Store, error) {
	if cfg.HiddenStates < 2 {
		return nil, nil, configErrorf("need at least 2 hidden states, got %d", cfg.HiddenStates)
	}
	if cfg.PriorStrength <= 0 {
		return nil, nil, configErrorf("prior strength must be positive, got %g", cfg.PriorStrength)
	}

	net, err := Build(
		[]Node{
			{ID: NodeRegime, Domain: regimeDomain(cfg.HiddenStates), Role: RoleHidden},
			{ID: NodePriceMove, Domain: []string{LabelUp, LabelDown}, Role: RoleObserved},
		},
		[]Edge{
			{Parent: NodeRegime, Child: NodeRegime, Lag: LagInter},
			{Parent: NodeRegime, Child: NodePriceMove, Lag: LagIntra},
		},
	)
	if err != nil {
		return nil, nil, err
	}

	cpts := NewStore(net)
	var rng *rand.Rand
	if cfg.PriorJitter > 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	for _, node := range net.Nodes() {
		if err := cpts.Seed(node.ID, cfg.PriorStrength, rng, cfg.PriorJitter); err != nil {
			return nil, nil, err
		}
	}
	return net, cpts, nil
}
