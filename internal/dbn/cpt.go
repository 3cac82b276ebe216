package dbn

import (
	"math"
	"math/rand"
)

// probSumTolerance is the tolerance within which every published CPT row and
// belief distribution must sum to one.
const probSumTolerance = 1e-9

// table holds the Dirichlet pseudo-counts for one child node. Rows are
// indexed by the mixed-radix encoding of the parent configuration (first
// parent varies slowest, matching construction order of the incoming edges).
// The published probability row is the normalized pseudo-count vector.
type table struct {
	child   Node
	parents []Edge
	pnodes  []Node
	rows    [][]float64
}

func newTable(net *Network, child Node) *table {
	t := &table{child: child, parents: net.Parents(child.ID)}
	rows := 1
	for _, e := range t.parents {
		p, _ := net.Node(e.Parent)
		t.pnodes = append(t.pnodes, p)
		rows *= p.Cardinality()
	}
	t.rows = make([][]float64, rows)
	for i := range t.rows {
		t.rows[i] = make([]float64, child.Cardinality())
	}
	return t
}

func (t *table) numRows() int { return len(t.rows) }

// rowIndex encodes a parent configuration (one domain index per parent) into
// a row number.
func (t *table) rowIndex(cfg []int) (int, error) {
	if len(cfg) != len(t.pnodes) {
		return 0, configErrorf("node %q expects %d parent values, got %d", t.child.ID, len(t.pnodes), len(cfg))
	}
	idx := 0
	for i, v := range cfg {
		k := t.pnodes[i].Cardinality()
		if v < 0 || v >= k {
			return 0, configErrorf("node %q: parent %q index %d outside domain of size %d", t.child.ID, t.pnodes[i].ID, v, k)
		}
		idx = idx*k + v
	}
	return idx, nil
}

// decodeRow is the inverse of rowIndex.
func (t *table) decodeRow(idx int) []int {
	cfg := make([]int, len(t.pnodes))
	for i := len(t.pnodes) - 1; i >= 0; i-- {
		k := t.pnodes[i].Cardinality()
		cfg[i] = idx % k
		idx /= k
	}
	return cfg
}

// probabilities normalizes a row of pseudo-counts. A row with no mass yet
// publishes the uniform distribution.
func (t *table) probabilities(row int) []float64 {
	counts := t.rows[row]
	out := make([]float64, len(counts))
	mass := 0.0
	for _, c := range counts {
		mass += c
	}
	if mass <= 0 {
		u := 1.0 / float64(len(counts))
		for i := range out {
			out[i] = u
		}
		return out
	}
	for i, c := range counts {
		out[i] = c / mass
	}
	return out
}

func (t *table) add(row int, dist []float64, weight float64) {
	counts := t.rows[row]
	for i := range counts {
		counts[i] += weight * dist[i]
	}
}

func (t *table) decay(gamma float64) {
	for _, row := range t.rows {
		for i := range row {
			row[i] *= gamma
		}
	}
}

// Store owns every CPT of a network: one table per node, shaped by that
// node's incoming edges at construction time and never reshaped afterwards.
// Pseudo-counts are mutated in place by the Learning Engine; probabilities
// are derived on read.
type Store struct {
	net    *Network
	tables map[string]*table
}

// NewStore allocates a zeroed table for every node. Rows must be seeded with
// Seed or SetRows before filtering.
func NewStore(net *Network) *Store {
	s := &Store{net: net, tables: make(map[string]*table)}
	for _, node := range net.Nodes() {
		s.tables[node.ID] = newTable(net, node)
	}
	return s
}

// Network returns the topology the store was built for.
func (s *Store) Network() *Network { return s.net }

func (s *Store) table(id string) (*table, error) {
	t, ok := s.tables[id]
	if !ok {
		return nil, configErrorf("no table for node %q", id)
	}
	return t, nil
}

// Seed fills every row of a node's table with a symmetric Dirichlet prior of
// the given total strength. A non-nil rng adds jitter (a fraction of the
// per-cell prior, drawn uniformly) so that otherwise symmetric states can
// break ties; the rng must be explicitly seeded by the caller to keep runs
// reproducible.
func (s *Store) Seed(id string, strength float64, rng *rand.Rand, jitter float64) error {
	t, err := s.table(id)
	if err != nil {
		return err
	}
	if strength <= 0 {
		return configErrorf("node %q: prior strength must be positive, got %g", id, strength)
	}
	cell := strength / float64(t.child.Cardinality())
	for _, row := range t.rows {
		for i := range row {
			row[i] = cell
			if rng != nil && jitter > 0 {
				row[i] += cell * jitter * rng.Float64()
			}
		}
	}
	return nil
}

// SetRows replaces a node's pseudo-counts with explicit rows, e.g. a known
// transition matrix. Row order follows the mixed-radix parent encoding.
func (s *Store) SetRows(id string, rows [][]float64) error {
	t, err := s.table(id)
	if err != nil {
		return err
	}
	if len(rows) != t.numRows() {
		return configErrorf("node %q expects %d rows, got %d", id, t.numRows(), len(rows))
	}
	fresh := make([][]float64, len(rows))
	for r, row := range rows {
		if len(row) != t.child.Cardinality() {
			return configErrorf("node %q row %d: expected %d entries, got %d", id, r, t.child.Cardinality(), len(row))
		}
		mass := 0.0
		for _, v := range row {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return configErrorf("node %q row %d: entries must be finite and non-negative", id, r)
			}
			mass += v
		}
		if mass <= 0 {
			return configErrorf("node %q row %d: zero mass", id, r)
		}
		fresh[r] = append([]float64(nil), row...)
	}
	t.rows = fresh
	return nil
}

// RowProbabilities returns the normalized distribution for one parent
// configuration. ConfigError if the configuration lies outside the recorded
// domain product.
func (s *Store) RowProbabilities(id string, cfg []int) ([]float64, error) {
	t, err := s.table(id)
	if err != nil {
		return nil, err
	}
	row, err := t.rowIndex(cfg)
	if err != nil {
		return nil, err
	}
	return t.probabilities(row), nil
}

// RowCounts returns a copy of the raw pseudo-count vector for one parent
// configuration.
func (s *Store) RowCounts(id string, cfg []int) ([]float64, error) {
	t, err := s.table(id)
	if err != nil {
		return nil, err
	}
	row, err := t.rowIndex(cfg)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), t.rows[row]...), nil
}

// RowMass returns the total pseudo-count mass of one row.
func (s *Store) RowMass(id string, cfg []int) (float64, error) {
	counts, err := s.RowCounts(id, cfg)
	if err != nil {
		return 0, err
	}
	mass := 0.0
	for _, c := range counts {
		mass += c
	}
	return mass, nil
}

// AddSoftCount adds weight*dist to the pseudo-count vector of one row. dist
// may be a one-hot vector (hard evidence) or a belief-weighted distribution
// (soft evidence); it must match the child's domain size.
func (s *Store) AddSoftCount(id string, cfg []int, dist []float64, weight float64) error {
	t, err := s.table(id)
	if err != nil {
		return err
	}
	row, err := t.rowIndex(cfg)
	if err != nil {
		return err
	}
	if len(dist) != t.child.Cardinality() {
		return configErrorf("node %q: soft count has %d entries, domain has %d", id, len(dist), t.child.Cardinality())
	}
	if weight < 0 {
		return configErrorf("node %q: negative soft-count weight %g", id, weight)
	}
	t.add(row, dist, weight)
	return nil
}

// Decay multiplies every pseudo-count by gamma. gamma=1 is a no-op
// (stationary assumption); gamma<1 is exponential forgetting.
func (s *Store) Decay(gamma float64) {
	if gamma >= 1 {
		return
	}
	for _, t := range s.tables {
		t.decay(gamma)
	}
}

// Counts returns a deep copy of every table's raw pseudo-counts, keyed by
// node id. Used for checkpointing.
func (s *Store) Counts() map[string][][]float64 {
	out := make(map[string][][]float64, len(s.tables))
	for id, t := range s.tables {
		rows := make([][]float64, len(t.rows))
		for r, row := range t.rows {
			rows[r] = append([]float64(nil), row...)
		}
		out[id] = rows
	}
	return out
}

// SetCounts restores raw pseudo-counts captured by Counts. Shapes must match
// the network the store was built for.
func (s *Store) SetCounts(counts map[string][][]float64) error {
	for id, rows := range counts {
		t, err := s.table(id)
		if err != nil {
			return err
		}
		if len(rows) != t.numRows() {
			return configErrorf("node %q: checkpoint has %d rows, table has %d", id, len(rows), t.numRows())
		}
		for r, row := range rows {
			if len(row) != t.child.Cardinality() {
				return configErrorf("node %q row %d: checkpoint width %d, domain %d", id, r, len(row), t.child.Cardinality())
			}
			copy(t.rows[r], row)
		}
	}
	return nil
}

// Probabilities returns a deep copy of every table's normalized rows, keyed
// by node id. Used by the convergence monitor.
func (s *Store) Probabilities() map[string][][]float64 {
	out := make(map[string][][]float64, len(s.tables))
	for id, t := range s.tables {
		rows := make([][]float64, len(t.rows))
		for r := range t.rows {
			rows[r] = t.probabilities(r)
		}
		out[id] = rows
	}
	return out
}

// MaxDelta returns the largest absolute probability change between the
// current rows and a previous Probabilities snapshot.
func (s *Store) MaxDelta(prev map[string][][]float64) float64 {
	max := 0.0
	for id, t := range s.tables {
		old, ok := prev[id]
		if !ok {
			continue
		}
		for r := range t.rows {
			if r >= len(old) {
				break
			}
			cur := t.probabilities(r)
			for i := range cur {
				if i >= len(old[r]) {
					break
				}
				if d := math.Abs(cur[i] - old[r][i]); d > max {
					max = d
				}
			}
		}
	}
	return max
}
