// Package operator defines the abstract operator contract (spec §3, §4.5,
// §6): an immutable description of a pipeline stage plus the lazy,
// single-pass sequence its instantiation produces.
//
// This generalizes the teacher's (sandboxws/isotope) three-interface split
// — Operator/Source/Sink — into one shape, because the spec requires every
// operator kind to satisfy the same instantiate(input, control) -> output
// contract regardless of whether its input or output kind is None.
package operator

import (
	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
)

// Location says where an operator is allowed to run.
type Location int

const (
	// Local means the operator may run on any worker in this process.
	Local Location = iota
	// PinnedNode means the operator must run on a specific, named node
	// context (e.g. hardware-bound collection); the builder fails
	// construction if that context isn't available (spec §4.4).
	PinnedNode
)

// Operator is an immutable description of one pipeline stage.
type Operator interface {
	// Name identifies the operator for diagnostics and metrics labels.
	Name() string

	// InputKind is the element kind this operator consumes. A source
	// declares element.KindNone.
	InputKind() element.Kind

	// InferOutput computes the output kind given the actual input kind
	// flowing into this operator, or an error if the types don't chain
	// (spec §7, type_mismatch).
	InferOutput(input element.Kind) (element.Kind, error)

	// Location reports where this operator must run.
	Location() Location

	// Detached reports whether this operator requests a dedicated worker
	// rather than sharing one with other undetached operators.
	Detached() bool

	// Instantiate produces this operator's lazy output sequence. input is
	// nil for a source (InputKind() == element.KindNone). control is the
	// per-node facade (abort/warn/emit/catalog lookups).
	Instantiate(input Sequence, control *diag.Control) (Sequence, error)
}

// Optimizable is implemented by operators that can participate in
// builder-level optimization (spec §6): fusing a downstream filter back
// into a source, and reporting whether output order is preserved.
type Optimizable interface {
	// Optimize lets the operator fuse a predicate pushed down from a
	// later stage, or decline by returning ok=false. order reports
	// whether the combined operator's output remains in input order.
	Optimize(filter Predicate) (fused Operator, order bool, ok bool)
}

// Predicate is an opaque, builder-supplied filter expression an operator
// can choose to fuse into itself via Optimize. The expression language
// itself belongs to the (out-of-scope) operator implementations and the
// schema/type system; the engine only shuttles it through.
type Predicate struct {
	SQL string
}
