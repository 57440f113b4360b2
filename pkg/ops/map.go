package ops

import (
	"context"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/expr"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// Map evaluates column-level SQL expressions to produce a new record batch.
// Each entry maps an output column name to a SQL expression, adapted from
// the teacher's pkg/operators.Map.
type Map struct {
	columns map[string]string
	alloc   memory.Allocator
}

// NewMap creates a Map operator over columns (output_name -> SQL expr).
func NewMap(columns map[string]string, alloc memory.Allocator) *Map {
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	return &Map{columns: columns, alloc: alloc}
}

func (m *Map) Name() string                    { return "map" }
func (m *Map) InputKind() element.Kind         { return element.KindEvents }
func (m *Map) Location() operator.Location     { return operator.Local }
func (m *Map) Detached() bool                  { return false }
func (m *Map) InferOutput(in element.Kind) (element.Kind, error) { return eventsToEvents(m.Name(), in) }

func (m *Map) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	eval := expr.NewEvaluator(m.alloc)

	names := make([]string, 0, len(m.columns))
	for name := range m.columns {
		names = append(names, name)
	}
	sort.Strings(names)

	transform := func(batch arrow.Record) ([]arrow.Record, error) {
		fields := make([]arrow.Field, 0, len(names))
		arrays := make([]arrow.Array, 0, len(names))
		for _, name := range names {
			col, err := eval.Eval(context.Background(), batch, m.columns[name])
			if err != nil {
				for _, a := range arrays {
					a.Release()
				}
				return nil, err
			}
			fields = append(fields, arrow.Field{Name: name, Type: col.DataType()})
			arrays = append(arrays, col)
		}
		schema := arrow.NewSchema(fields, nil)
		result := array.NewRecord(schema, arrays, batch.NumRows())
		for _, a := range arrays {
			a.Release()
		}
		return []arrow.Record{result}, nil
	}
	return newRowMapSequence(m.Name(), input, transform), nil
}
