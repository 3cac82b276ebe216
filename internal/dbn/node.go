package dbn

// Role tags a node as part of the hidden regime chain or as an observable
// emission. The model has exactly these two roles.
type Role int

const (
	RoleHidden Role = iota
	RoleObserved
)

func (r Role) String() string {
	switch r {
	case RoleHidden:
		return "hidden"
	case RoleObserved:
		return "observed"
	default:
		return "unknown"
	}
}

// ParseRole converts a role string from a serialized artifact.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "hidden":
		return RoleHidden, true
	case "observed":
		return RoleObserved, true
	default:
		return 0, false
	}
}

// Node is one variable of the slice template: an identifier plus a finite,
// ordered domain of state labels. Immutable after Build.
type Node struct {
	ID     string
	Domain []string
	Role   Role
}

// Index returns the position of label in the node's domain, or -1 if the
// label is not part of it.
func (n Node) Index(label string) int {
	for i, l := range n.Domain {
		if l == label {
			return i
		}
	}
	return -1
}

// Cardinality returns the size of the node's domain.
func (n Node) Cardinality() int { return len(n.Domain) }

// Edge lag values.
const (
	LagIntra = 0 // parent and child live in the same time slice
	LagInter = 1 // parent lives in slice t-1, child in slice t
)

// Edge is a directed dependency in the slice template. Inter-slice edges
// carry the first-order Markov assumption: slice t depends on slice t-1 only.
type Edge struct {
	Parent string
	Child  string
	Lag    int
}

// Relation returns the slice-relation tag used by the serialized artifact.
func (e Edge) Relation() string {
	if e.Lag == LagInter {
		return "inter"
	}
	return "intra"
}
