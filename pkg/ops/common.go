// Package ops implements the built-in row-batch operators (spec §6's
// representative Slice, plus Filter/Map/Union/Drop), adapted from the
// teacher's (sandboxws/isotope) pkg/operators to the Operator/Sequence
// contract of pkg/operator: an Open/ProcessBatch/Close trio driven by an
// engine-owned channel becomes a single Instantiate call returning a lazy
// Sequence driven by the owning execution node.
package ops

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// recordTransform produces zero or more output records from one input
// record. A nil, nil result with no error is the same "produced nothing"
// outcome as the teacher's ProcessBatch returning an empty slice.
type recordTransform func(batch arrow.Record) ([]arrow.Record, error)

// rowMapSequence adapts a one-record-in, zero-or-more-records-out
// transform to operator.Sequence, threading Pending/ReadyEmpty/End through
// from the input sequence unchanged (spec §4.3.6, §4.5: "respect that the
// input sequence may terminate at any point").
type rowMapSequence struct {
	name      string
	input     operator.Sequence
	transform recordTransform
	pending   []arrow.Record // records produced by transform but not yet yielded
}

func newRowMapSequence(name string, input operator.Sequence, transform recordTransform) operator.Sequence {
	return &rowMapSequence{name: name, input: input, transform: transform}
}

func (s *rowMapSequence) PollNext(ctx context.Context) (operator.Step, error) {
	if len(s.pending) > 0 {
		rec := s.pending[0]
		s.pending = s.pending[1:]
		return operator.Step{Kind: operator.Ready, Value: element.NewEvents(rec)}, nil
	}

	step, err := s.input.PollNext(ctx)
	if err != nil {
		return operator.Step{}, err
	}
	switch step.Kind {
	case operator.End, operator.Pending, operator.ReadyEmpty:
		return step, nil
	}

	ev, ok := step.Value.(element.Events)
	if !ok {
		return operator.Step{}, errs.Newf(errs.TypeMismatch, s.name, "expected an Events element, got %T", step.Value)
	}

	out, err := s.transform(ev.Record)
	ev.Release()
	if err != nil {
		return operator.Step{}, errs.New(errs.LogicError, s.name, err)
	}
	if len(out) == 0 {
		return operator.Step{Kind: operator.ReadyEmpty}, nil
	}

	first := out[0]
	s.pending = out[1:]
	return operator.Step{Kind: operator.Ready, Value: element.NewEvents(first)}, nil
}

// eventsToEvents checks that input is Events and declares output Events —
// the common case for every operator in this package.
func eventsToEvents(name string, input element.Kind) (element.Kind, error) {
	if input != element.KindEvents {
		return element.KindNone, errs.Newf(errs.TypeMismatch, name, "requires Events input, got %s", input)
	}
	return element.KindEvents, nil
}
