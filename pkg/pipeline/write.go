package pipeline

import (
	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
	"github.com/fluxsec/pipeline/pkg/ops"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// DesugarWrite implements the `write FMT [to SINK]` / `to SINK [write FMT]`
// composite (spec §6 "Pipeline text surface"). Both textual orderings
// desugar to the same decision: if save does not require a joined byte
// stream, print and save are fused into a single execution node; if it
// does, they are returned as two operators for the builder to spawn as
// separate, sequential nodes. Either way the bytes written are identical
// (spec §8 scenario 6).
func DesugarWrite(print ops.Printer, save operator.Operator) ([]operator.Operator, error) {
	requiresJoin := false
	if j, ok := save.(ops.Joiner); ok {
		requiresJoin = j.RequiresJoining()
	}

	if requiresJoin && !print.AllowsJoining() {
		return nil, errs.Newf(errs.InvalidConfiguration, "write",
			"sink %q requires a joined byte stream but printer %q does not support joining", save.Name(), print.Name())
	}
	if requiresJoin {
		return []operator.Operator{print, save}, nil
	}
	return []operator.Operator{&fusedWriteOperator{print: print, save: save}}, nil
}

// fusedWriteOperator hosts print and save in one execution node: print's
// lazy Bytes sequence feeds save's Instantiate directly, with no inbound
// or outbound buffer, pull, or push between them.
type fusedWriteOperator struct {
	print ops.Printer
	save  operator.Operator
}

func (f *fusedWriteOperator) Name() string                { return f.print.Name() + "+" + f.save.Name() }
func (f *fusedWriteOperator) InputKind() element.Kind     { return f.print.InputKind() }
func (f *fusedWriteOperator) Location() operator.Location { return operator.Local }
func (f *fusedWriteOperator) Detached() bool              { return f.print.Detached() || f.save.Detached() }

func (f *fusedWriteOperator) InferOutput(in element.Kind) (element.Kind, error) {
	mid, err := f.print.InferOutput(in)
	if err != nil {
		return element.KindNone, err
	}
	return f.save.InferOutput(mid)
}

func (f *fusedWriteOperator) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	printed, err := f.print.Instantiate(input, control)
	if err != nil {
		return nil, err
	}
	return f.save.Instantiate(printed, control)
}
