package ops

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// Rename relabels columns, keeping any column absent from the map under
// its original name, adapted from the teacher's pkg/operators.Rename.
type Rename struct {
	columns map[string]string // old name -> new name
}

// NewRename creates a Rename operator over columns.
func NewRename(columns map[string]string) *Rename {
	return &Rename{columns: columns}
}

func (r *Rename) Name() string                                      { return "rename" }
func (r *Rename) InputKind() element.Kind                           { return element.KindEvents }
func (r *Rename) Location() operator.Location                      { return operator.Local }
func (r *Rename) Detached() bool                                    { return false }
func (r *Rename) InferOutput(in element.Kind) (element.Kind, error) { return eventsToEvents(r.Name(), in) }

func (r *Rename) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	columns := r.columns
	transform := func(batch arrow.Record) ([]arrow.Record, error) {
		schema := batch.Schema()
		newFields := make([]arrow.Field, schema.NumFields())
		arrays := make([]arrow.Array, schema.NumFields())

		for i := 0; i < schema.NumFields(); i++ {
			f := schema.Field(i)
			if newName, ok := columns[f.Name]; ok {
				f.Name = newName
			}
			newFields[i] = f
			arrays[i] = batch.Column(i)
		}

		newSchema := arrow.NewSchema(newFields, nil)
		result := array.NewRecord(newSchema, arrays, batch.NumRows())
		return []arrow.Record{result}, nil
	}
	return newRowMapSequence(r.Name(), input, transform), nil
}
