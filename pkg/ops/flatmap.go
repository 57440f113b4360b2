package ops

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// FlatMap unnests a list column, replicating every other column for each
// element, adapted from the teacher's pkg/operators.FlatMap. Useful for
// security telemetry whose raw events carry a repeated field (e.g. one
// process-start event with several command-line arguments) that downstream
// stages expect one row per element.
type FlatMap struct {
	unnestColumn string
	alloc        memory.Allocator
}

// NewFlatMap creates a FlatMap operator over unnestColumn.
func NewFlatMap(unnestColumn string, alloc memory.Allocator) *FlatMap {
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	return &FlatMap{unnestColumn: unnestColumn, alloc: alloc}
}

func (f *FlatMap) Name() string                                      { return "flatmap" }
func (f *FlatMap) InputKind() element.Kind                           { return element.KindEvents }
func (f *FlatMap) Location() operator.Location                      { return operator.Local }
func (f *FlatMap) Detached() bool                                    { return false }
func (f *FlatMap) InferOutput(in element.Kind) (element.Kind, error) { return eventsToEvents(f.Name(), in) }

func (f *FlatMap) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	alloc := f.alloc
	column := f.unnestColumn

	transform := func(batch arrow.Record) ([]arrow.Record, error) {
		schema := batch.Schema()

		unnestIdx := -1
		for i := 0; i < schema.NumFields(); i++ {
			if schema.Field(i).Name == column {
				unnestIdx = i
				break
			}
		}
		if unnestIdx < 0 {
			return nil, errs.Newf(errs.InvalidConfiguration, f.Name(), "column %q not found", column)
		}

		listCol, ok := batch.Column(unnestIdx).(*array.List)
		if !ok {
			return nil, errs.Newf(errs.TypeMismatch, f.Name(), "column %q is not a list type, got %T", column, batch.Column(unnestIdx))
		}

		listValues := listCol.ListValues()
		numRows := int(batch.NumRows())

		totalOutput := 0
		for i := 0; i < numRows; i++ {
			if listCol.IsNull(i) {
				continue
			}
			start := int(listCol.Offsets()[i])
			end := int(listCol.Offsets()[i+1])
			totalOutput += end - start
		}
		if totalOutput == 0 {
			return nil, nil
		}

		newFields := make([]arrow.Field, schema.NumFields())
		for i := 0; i < schema.NumFields(); i++ {
			if i == unnestIdx {
				elemType := listCol.DataType().(*arrow.ListType).Elem()
				newFields[i] = arrow.Field{Name: schema.Field(i).Name, Type: elemType, Nullable: schema.Field(i).Nullable}
			} else {
				newFields[i] = schema.Field(i)
			}
		}

		builders := make([]array.Builder, schema.NumFields())
		for i := range newFields {
			builders[i] = array.NewBuilder(alloc, newFields[i].Type)
		}
		defer func() {
			for _, b := range builders {
				b.Release()
			}
		}()

		for row := 0; row < numRows; row++ {
			if listCol.IsNull(row) {
				continue
			}
			start := int(listCol.Offsets()[row])
			end := int(listCol.Offsets()[row+1])

			for elemIdx := start; elemIdx < end; elemIdx++ {
				for col := 0; col < schema.NumFields(); col++ {
					if col == unnestIdx {
						appendElement(builders[col], listValues, elemIdx)
					} else {
						appendElement(builders[col], batch.Column(col), row)
					}
				}
			}
		}

		newArrays := make([]arrow.Array, schema.NumFields())
		for i, b := range builders {
			newArrays[i] = b.NewArray()
		}

		newSchema := arrow.NewSchema(newFields, nil)
		result := array.NewRecord(newSchema, newArrays, int64(totalOutput))
		for _, a := range newArrays {
			a.Release()
		}
		return []arrow.Record{result}, nil
	}
	return newRowMapSequence(f.Name(), input, transform), nil
}

// appendElement appends a single value from src[row] onto bldr.
func appendElement(bldr array.Builder, src arrow.Array, row int) {
	if src.IsNull(row) {
		bldr.AppendNull()
		return
	}
	switch b := bldr.(type) {
	case *array.Int64Builder:
		b.Append(src.(*array.Int64).Value(row))
	case *array.Int32Builder:
		b.Append(src.(*array.Int32).Value(row))
	case *array.Float64Builder:
		b.Append(src.(*array.Float64).Value(row))
	case *array.Float32Builder:
		b.Append(src.(*array.Float32).Value(row))
	case *array.StringBuilder:
		b.Append(src.(*array.String).Value(row))
	case *array.BooleanBuilder:
		b.Append(src.(*array.Boolean).Value(row))
	default:
		bldr.AppendNull()
	}
}
