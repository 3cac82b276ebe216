package dbn

import (
	"bytes"
	"testing"
)

func TestArtifactRoundTrip(t *testing.T) {
	net, cpts := twoStateModel(t)
	// Accumulate some irregular mass so the round trip is non-trivial.
	if err := cpts.AddSoftCount("state", []int{0}, []float64{0.123456789123, 0.876543210877}, 1.5); err != nil {
		t.Fatalf("add: %v", err)
	}

	artifact := Export("two-state", net, cpts)

	var buf bytes.Buffer
	if err := artifact.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeArtifact(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	net2, cpts2, err := decoded.Model()
	if err != nil {
		t.Fatalf("rebuild model: %v", err)
	}
	if len(net2.Nodes()) != len(net.Nodes()) || len(net2.Edges()) != len(net.Edges()) {
		t.Fatalf("topology changed across round trip")
	}

	for _, id := range []string{"state", "label"} {
		for _, cfg := range [][]int{{0}, {1}} {
			a, err := cpts.RowCounts(id, cfg)
			if err != nil {
				t.Fatalf("row counts: %v", err)
			}
			b, err := cpts2.RowCounts(id, cfg)
			if err != nil {
				t.Fatalf("row counts after round trip: %v", err)
			}
			for i := range a {
				if a[i] != b[i] {
					t.Fatalf("%s row %v entry %d: %v != %v", id, cfg, i, a[i], b[i])
				}
			}
			pa, _ := cpts.RowProbabilities(id, cfg)
			pb, _ := cpts2.RowProbabilities(id, cfg)
			for i := range pa {
				if pa[i] != pb[i] {
					t.Fatalf("%s row %v probability %d differs after round trip", id, cfg, i)
				}
			}
		}
	}
}

func TestArtifactRejectsUnknownRole(t *testing.T) {
	a := &Artifact{Nodes: []ArtifactNode{{ID: "x", Domain: []string{"a"}, Role: "latent"}}}
	if _, _, err := a.Model(); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestBuildStockModelShape(t *testing.T) {
	net, cpts, err := BuildStockModel(StockModelConfig{HiddenStates: 2, PriorStrength: 1, PriorJitter: 0.1, Seed: 7})
	if err != nil {
		t.Fatalf("build stock model: %v", err)
	}
	regime, ok := net.Node(NodeRegime)
	if !ok || regime.Role != RoleHidden || regime.Cardinality() != 2 {
		t.Fatalf("unexpected regime node %+v", regime)
	}
	move, ok := net.Node(NodePriceMove)
	if !ok || move.Role != RoleObserved {
		t.Fatalf("unexpected price_move node %+v", move)
	}
	for _, cfg := range [][]int{{0}, {1}} {
		mass, err := cpts.RowMass(NodePriceMove, cfg)
		if err != nil {
			t.Fatalf("row mass: %v", err)
		}
		if mass <= 0 {
			t.Fatalf("seeded row %v has no mass", cfg)
		}
	}

	// Same seed, same store.
	_, cpts2, err := BuildStockModel(StockModelConfig{HiddenStates: 2, PriorStrength: 1, PriorJitter: 0.1, Seed: 7})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	a, b := cpts.Counts(), cpts2.Counts()
	for id := range a {
		for r := range a[id] {
			for i := range a[id][r] {
				if a[id][r][i] != b[id][r][i] {
					t.Fatalf("same seed produced different priors at %s[%d][%d]", id, r, i)
				}
			}
		}
	}
}
