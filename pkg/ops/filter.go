package ops

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	helpers "github.com/fluxsec/pipeline/pkg/arrow/helpers"
	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/expr"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// Filter evaluates a SQL condition against each batch and keeps only
// matching rows, adapted from the teacher's pkg/operators.Filter.
type Filter struct {
	conditionSQL string
	alloc        memory.Allocator
}

// NewFilter creates a Filter operator over conditionSQL.
func NewFilter(conditionSQL string, alloc memory.Allocator) *Filter {
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	return &Filter{conditionSQL: conditionSQL, alloc: alloc}
}

func (f *Filter) Name() string                    { return "filter" }
func (f *Filter) InputKind() element.Kind         { return element.KindEvents }
func (f *Filter) Location() operator.Location     { return operator.Local }
func (f *Filter) Detached() bool                  { return false }
func (f *Filter) InferOutput(in element.Kind) (element.Kind, error) { return eventsToEvents(f.Name(), in) }

// Optimize implements operator.Optimizable: a Filter chained immediately
// after another Filter fuses into a single conjunctive predicate, matching
// the teacher's approach of letting a source absorb a pushed-down filter —
// here generalized to filter-into-filter fusion since Filter is the only
// operator in this pack carrying a SQL predicate.
func (f *Filter) Optimize(p operator.Predicate) (operator.Operator, bool, bool) {
	if p.SQL == "" {
		return nil, false, false
	}
	fused := NewFilter("("+f.conditionSQL+") AND ("+p.SQL+")", f.alloc)
	return fused, true, true
}

func (f *Filter) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	eval := expr.NewEvaluator(f.alloc)
	transform := func(batch arrow.Record) ([]arrow.Record, error) {
		mask, err := eval.EvalBool(context.Background(), batch, f.conditionSQL)
		if err != nil {
			return nil, err
		}
		defer mask.Release()

		result, err := helpers.Filter(context.Background(), batch, mask)
		if err != nil {
			return nil, err
		}
		if result.NumRows() == 0 {
			result.Release()
			return nil, nil
		}
		return []arrow.Record{result}, nil
	}
	return newRowMapSequence(f.Name(), input, transform), nil
}
