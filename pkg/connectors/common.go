package connectors

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
)

// eventsFromNone checks that a source's declared input kind is honored —
// a source is only ever instantiated at the head of a chain, where input
// is always KindNone — and declares its own output as Events.
func eventsFromNone(name string, input element.Kind) (element.Kind, error) {
	if input != element.KindNone {
		return element.KindNone, errs.Newf(errs.TypeMismatch, name, "a source requires no input, got %s", input)
	}
	return element.KindEvents, nil
}

// noneFromEvents checks that a sink consumes Events and declares its own
// output as None, terminating the chain (spec §4.4's builder requirement
// that every chain end in KindNone).
func noneFromEvents(name string, input element.Kind) (element.Kind, error) {
	if input != element.KindEvents {
		return element.KindNone, errs.Newf(errs.TypeMismatch, name, "a sink requires Events input, got %s", input)
	}
	return element.KindNone, nil
}

// jsonRowsToRecord converts decoded JSON row maps to an Arrow record
// batch, adapted from the teacher's pkg/connectors.jsonRowsToRecord.
func jsonRowsToRecord(alloc memory.Allocator, schema *arrow.Schema, rows []map[string]interface{}) (arrow.Record, error) {
	numCols := schema.NumFields()
	builders := make([]array.Builder, numCols)
	for i := 0; i < numCols; i++ {
		builders[i] = array.NewBuilder(alloc, schema.Field(i).Type)
	}
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()

	for _, row := range rows {
		for i := 0; i < numCols; i++ {
			f := schema.Field(i)
			val, exists := row[f.Name]
			if !exists || val == nil {
				builders[i].AppendNull()
				continue
			}
			appendJSONValue(builders[i], val)
		}
	}

	arrays := make([]arrow.Array, numCols)
	for i, b := range builders {
		arrays[i] = b.NewArray()
	}
	defer func() {
		for _, a := range arrays {
			a.Release()
		}
	}()

	return array.NewRecord(schema, arrays, int64(len(rows))), nil
}

func appendJSONValue(bldr array.Builder, val interface{}) {
	switch b := bldr.(type) {
	case *array.Int64Builder:
		switch v := val.(type) {
		case float64:
			b.Append(int64(v))
		case json.Number:
			n, _ := v.Int64()
			b.Append(n)
		default:
			b.AppendNull()
		}
	case *array.Int32Builder:
		switch v := val.(type) {
		case float64:
			b.Append(int32(v))
		case json.Number:
			n, _ := v.Int64()
			b.Append(int32(n))
		default:
			b.AppendNull()
		}
	case *array.Float64Builder:
		switch v := val.(type) {
		case float64:
			b.Append(v)
		case json.Number:
			n, _ := v.Float64()
			b.Append(n)
		default:
			b.AppendNull()
		}
	case *array.StringBuilder:
		if s, ok := val.(string); ok {
			b.Append(s)
		} else {
			b.Append(fmt.Sprintf("%v", val))
		}
	case *array.BooleanBuilder:
		if v, ok := val.(bool); ok {
			b.Append(v)
		} else {
			b.AppendNull()
		}
	default:
		bldr.AppendNull()
	}
}

// extractJSONValue reads one cell back out of an Arrow array as a plain
// Go value suitable for json.Marshal, adapted from the teacher's
// pkg/connectors.extractJSONValue/formatValue.
func extractJSONValue(arr arrow.Array, row int) interface{} {
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(row)
	case *array.Int32:
		return a.Value(row)
	case *array.Float64:
		return a.Value(row)
	case *array.Float32:
		return a.Value(row)
	case *array.String:
		return a.Value(row)
	case *array.Boolean:
		return a.Value(row)
	default:
		return fmt.Sprintf("%v", arr)
	}
}

// formatValue renders one cell as a display string for Console.
func formatValue(arr arrow.Array, row int) string {
	if arr.IsNull(row) {
		return "NULL"
	}
	switch a := arr.(type) {
	case *array.Int64:
		return fmt.Sprintf("%d", a.Value(row))
	case *array.Int32:
		return fmt.Sprintf("%d", a.Value(row))
	case *array.Float64:
		return fmt.Sprintf("%.4f", a.Value(row))
	case *array.Float32:
		return fmt.Sprintf("%.4f", a.Value(row))
	case *array.String:
		return a.Value(row)
	case *array.Boolean:
		if a.Value(row) {
			return "true"
		}
		return "false"
	default:
		return "?"
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
