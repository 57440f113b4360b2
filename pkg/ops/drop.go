package ops

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// Drop removes named columns from each batch, adapted from the teacher's
// pkg/operators.Drop.
type Drop struct {
	columns map[string]bool
}

// NewDrop creates a Drop operator removing columns.
func NewDrop(columns []string) *Drop {
	set := make(map[string]bool, len(columns))
	for _, c := range columns {
		set[c] = true
	}
	return &Drop{columns: set}
}

func (d *Drop) Name() string                                      { return "drop" }
func (d *Drop) InputKind() element.Kind                            { return element.KindEvents }
func (d *Drop) Location() operator.Location                        { return operator.Local }
func (d *Drop) Detached() bool                                     { return false }
func (d *Drop) InferOutput(in element.Kind) (element.Kind, error) { return eventsToEvents(d.Name(), in) }

func (d *Drop) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	transform := func(batch arrow.Record) ([]arrow.Record, error) {
		schema := batch.Schema()
		var fields []arrow.Field
		var arrays []arrow.Array
		for i := 0; i < schema.NumFields(); i++ {
			f := schema.Field(i)
			if d.columns[f.Name] {
				continue
			}
			fields = append(fields, f)
			arrays = append(arrays, batch.Column(i))
		}
		newSchema := arrow.NewSchema(fields, nil)
		result := array.NewRecord(newSchema, arrays, batch.NumRows())
		return []arrow.Record{result}, nil
	}
	return newRowMapSequence(d.Name(), input, transform), nil
}
