package dbn

import (
	"encoding/json"
	"io"
)

// Artifact is the structural export consumed by external visualization
// tooling: node list, edge list, and per-row CPT data. It is plain JSON and
// round-trips exactly (encoding/json preserves float64 values bit-for-bit).
type Artifact struct {
	Name  string         `json:"name"`
	Nodes []ArtifactNode `json:"nodes"`
	Edges []ArtifactEdge `json:"edges"`
	Rows  []ArtifactRow  `json:"rows"`
}

// ArtifactNode describes one node of the slice template.
type ArtifactNode struct {
	ID     string   `json:"id"`
	Domain []string `json:"domain"`
	Role   string   `json:"role"`
}

// ArtifactEdge describes one edge with its slice relation.
type ArtifactEdge struct {
	Parent   string `json:"parent"`
	Child    string `json:"child"`
	Relation string `json:"relation"`
}

// ArtifactRow is one CPT row: the parent configuration as domain labels, the
// published probabilities, and the raw pseudo-counts behind them.
type ArtifactRow struct {
	Node          string    `json:"node"`
	ParentConfig  []string  `json:"parent_config"`
	Probabilities []float64 `json:"probabilities"`
	Counts        []float64 `json:"counts"`
}

// Export captures the full model state as an artifact.
func Export(name string, net *Network, cpts *Store) *Artifact {
	a := &Artifact{Name: name}
	for _, node := range net.Nodes() {
		a.Nodes = append(a.Nodes, ArtifactNode{ID: node.ID, Domain: append([]string(nil), node.Domain...), Role: node.Role.String()})
	}
	for _, e := range net.Edges() {
		a.Edges = append(a.Edges, ArtifactEdge{Parent: e.Parent, Child: e.Child, Relation: e.Relation()})
	}
	for _, node := range net.Nodes() {
		t := cpts.tables[node.ID]
		for row := range t.rows {
			cfg := t.decodeRow(row)
			labels := make([]string, len(cfg))
			for j, v := range cfg {
				labels[j] = t.pnodes[j].Domain[v]
			}
			a.Rows = append(a.Rows, ArtifactRow{
				Node:          node.ID,
				ParentConfig:  labels,
				Probabilities: t.probabilities(row),
				Counts:        append([]float64(nil), t.rows[row]...),
			})
		}
	}
	return a
}

// Model rebuilds the network and CPT store from an artifact. Counts are
// restored exactly as exported, so a resumed run continues from identical
// pseudo-counts.
func (a *Artifact) Model() (*Network, *Store, error) {
	nodes := make([]Node, 0, len(a.Nodes))
	for _, an := range a.Nodes {
		role, ok := ParseRole(an.Role)
		if !ok {
			return nil, nil, configErrorf("artifact node %q has unknown role %q", an.ID, an.Role)
		}
		nodes = append(nodes, Node{ID: an.ID, Domain: append([]string(nil), an.Domain...), Role: role})
	}
	edges := make([]Edge, 0, len(a.Edges))
	for _, ae := range a.Edges {
		lag := LagIntra
		switch ae.Relation {
		case "intra":
		case "inter":
			lag = LagInter
		default:
			return nil, nil, configErrorf("artifact edge %s->%s has unknown relation %q", ae.Parent, ae.Child, ae.Relation)
		}
		edges = append(edges, Edge{Parent: ae.Parent, Child: ae.Child, Lag: lag})
	}

	net, err := Build(nodes, edges)
	if err != nil {
		return nil, nil, err
	}
	cpts := NewStore(net)

	for _, ar := range a.Rows {
		t, err := cpts.table(ar.Node)
		if err != nil {
			return nil, nil, err
		}
		cfg := make([]int, len(ar.ParentConfig))
		for j, label := range ar.ParentConfig {
			if j >= len(t.pnodes) {
				return nil, nil, configErrorf("artifact row for %q has too many parent values", ar.Node)
			}
			idx := t.pnodes[j].Index(label)
			if idx < 0 {
				return nil, nil, configErrorf("artifact row for %q: label %q outside domain of %q", ar.Node, label, t.pnodes[j].ID)
			}
			cfg[j] = idx
		}
		row, err := t.rowIndex(cfg)
		if err != nil {
			return nil, nil, err
		}
		counts := ar.Counts
		if len(counts) == 0 {
			counts = ar.Probabilities
		}
		if len(counts) != t.child.Cardinality() {
			return nil, nil, configErrorf("artifact row for %q: %d entries, domain has %d", ar.Node, len(counts), t.child.Cardinality())
		}
		copy(t.rows[row], counts)
	}
	return net, cpts, nil
}

// Encode writes the artifact as indented JSON.
func (a *Artifact) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// DecodeArtifact reads an artifact from JSON.
func DecodeArtifact(r io.Reader) (*Artifact, error) {
	var a Artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, err
	}
	return &a, nil
}
