package ops

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// Union passes every input batch through unchanged. It exists as a named
// stage so pipeline text that merges two branches into one node (`union`)
// has an explicit operator to desugar to, mirroring the teacher's
// pkg/operators.Union — the engine itself delivers interleaved input in
// arrival order (spec §5 "ordering guarantees"), so there is nothing left
// for Union to do but retain and forward.
type Union struct{}

// NewUnion creates a Union operator.
func NewUnion() *Union { return &Union{} }

func (u *Union) Name() string                                      { return "union" }
func (u *Union) InputKind() element.Kind                            { return element.KindEvents }
func (u *Union) Location() operator.Location                        { return operator.Local }
func (u *Union) Detached() bool                                     { return false }
func (u *Union) InferOutput(in element.Kind) (element.Kind, error) { return eventsToEvents(u.Name(), in) }

func (u *Union) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	transform := func(batch arrow.Record) ([]arrow.Record, error) {
		batch.Retain()
		return []arrow.Record{batch}, nil
	}
	return newRowMapSequence(u.Name(), input, transform), nil
}
