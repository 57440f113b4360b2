package ops

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// CastColumn names a column and the Arrow type it should be cast to.
type CastColumn struct {
	Name       string
	TargetType arrow.DataType
}

// Cast converts specified columns to new Arrow types, element-wise,
// adapted from the teacher's pkg/operators.Cast.
type Cast struct {
	columns []CastColumn
	alloc   memory.Allocator
}

// NewCast creates a Cast operator over columns.
func NewCast(columns []CastColumn, alloc memory.Allocator) *Cast {
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	return &Cast{columns: columns, alloc: alloc}
}

func (c *Cast) Name() string                                        { return "cast" }
func (c *Cast) InputKind() element.Kind                             { return element.KindEvents }
func (c *Cast) Location() operator.Location                        { return operator.Local }
func (c *Cast) Detached() bool                                      { return false }
func (c *Cast) InferOutput(in element.Kind) (element.Kind, error)   { return eventsToEvents(c.Name(), in) }

func (c *Cast) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	castMap := make(map[string]arrow.DataType, len(c.columns))
	for _, col := range c.columns {
		castMap[col.Name] = col.TargetType
	}
	alloc := c.alloc

	transform := func(batch arrow.Record) ([]arrow.Record, error) {
		schema := batch.Schema()
		newFields := make([]arrow.Field, schema.NumFields())
		newArrays := make([]arrow.Array, schema.NumFields())
		var toRelease []arrow.Array

		for i := 0; i < schema.NumFields(); i++ {
			f := schema.Field(i)
			col := batch.Column(i)

			target, needsCast := castMap[f.Name]
			if !needsCast || col.DataType().ID() == target.ID() {
				newFields[i] = f
				newArrays[i] = col
				continue
			}

			casted, err := castArrayToType(alloc, col, target)
			if err != nil {
				for _, a := range toRelease {
					a.Release()
				}
				return nil, fmt.Errorf("cast column %q to %s: %w", f.Name, target, err)
			}
			newFields[i] = arrow.Field{Name: f.Name, Type: target, Nullable: f.Nullable}
			newArrays[i] = casted
			toRelease = append(toRelease, casted)
		}

		newSchema := arrow.NewSchema(newFields, nil)
		result := array.NewRecord(newSchema, newArrays, batch.NumRows())
		for _, a := range toRelease {
			a.Release()
		}
		return []arrow.Record{result}, nil
	}
	return newRowMapSequence(c.Name(), input, transform), nil
}

func castArrayToType(alloc memory.Allocator, arr arrow.Array, target arrow.DataType) (arrow.Array, error) {
	n := arr.Len()

	switch target.ID() {
	case arrow.INT64:
		bldr := array.NewInt64Builder(alloc)
		defer bldr.Release()
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				bldr.AppendNull()
				continue
			}
			bldr.Append(toInt64(arr, i))
		}
		return bldr.NewArray(), nil

	case arrow.FLOAT64:
		bldr := array.NewFloat64Builder(alloc)
		defer bldr.Release()
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				bldr.AppendNull()
				continue
			}
			bldr.Append(toFloat64(arr, i))
		}
		return bldr.NewArray(), nil

	case arrow.STRING:
		bldr := array.NewStringBuilder(alloc)
		defer bldr.Release()
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				bldr.AppendNull()
				continue
			}
			bldr.Append(toStringValue(arr, i))
		}
		return bldr.NewArray(), nil

	case arrow.BOOL:
		bldr := array.NewBooleanBuilder(alloc)
		defer bldr.Release()
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				bldr.AppendNull()
				continue
			}
			bldr.Append(toBool(arr, i))
		}
		return bldr.NewArray(), nil

	default:
		return nil, errs.Newf(errs.InvalidConfiguration, "cast", "unsupported cast target type: %s", target)
	}
}

func toInt64(arr arrow.Array, i int) int64 {
	switch a := arr.(type) {
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Float32:
		return int64(a.Value(i))
	case *array.Float64:
		return int64(a.Value(i))
	default:
		return 0
	}
}

func toFloat64(arr arrow.Array, i int) float64 {
	switch a := arr.(type) {
	case *array.Int8:
		return float64(a.Value(i))
	case *array.Int16:
		return float64(a.Value(i))
	case *array.Int32:
		return float64(a.Value(i))
	case *array.Int64:
		return float64(a.Value(i))
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	default:
		return 0
	}
}

func toStringValue(arr arrow.Array, i int) string {
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i)
	case *array.Int64:
		return fmt.Sprintf("%d", a.Value(i))
	case *array.Float64:
		return fmt.Sprintf("%g", a.Value(i))
	case *array.Boolean:
		if a.Value(i) {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func toBool(arr arrow.Array, i int) bool {
	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i) != 0
	default:
		return false
	}
}
