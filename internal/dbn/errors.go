package dbn

import "fmt"

// ConfigError reports an invalid network or table configuration: a cycle
// among intra-slice edges, a dangling edge, an empty domain, or a lookup
// outside a table's parent-configuration space. It is the only error class
// that aborts a run, and only during setup.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "dbn: " + e.Reason
}

func configErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// DataError reports an observation value outside a node's declared domain.
// The learning update for that step is skipped; filtering still runs with
// missing-evidence semantics, so the stream never halts on bad data.
type DataError struct {
	Node  string
	Value string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("dbn: value %q outside domain of node %q", e.Value, e.Node)
}

// WarningKind classifies non-fatal diagnostics emitted while streaming.
type WarningKind string

const (
	// WarningNumerical is emitted when the likelihood mass of an evidence
	// update collapses to zero and the engine falls back to the predictive
	// distribution.
	WarningNumerical WarningKind = "numerical"

	// WarningConvergence is emitted when CPT rows stop changing materially
	// across steps. Informational only.
	WarningConvergence WarningKind = "convergence"
)

// Warning is a non-fatal diagnostic. Warnings are surfaced to the caller and
// logged, never returned as errors: steady-state streaming favors
// availability over strict enforcement.
type Warning struct {
	Kind   WarningKind
	Node   string
	Detail string
}

func (w Warning) String() string {
	if w.Node == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Detail)
	}
	return fmt.Sprintf("%s (%s): %s", w.Kind, w.Node, w.Detail)
}
