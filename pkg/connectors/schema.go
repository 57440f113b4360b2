package connectors

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/fluxsec/pipeline/pkg/catalog"
	"github.com/fluxsec/pipeline/pkg/errs"
)

// arrowSchema converts a catalog.Schema into the Arrow schema a source
// connector builds its record batches against. The catalog treats Schema
// contents as opaque; only the connectors that actually materialize Events
// need to know the field-type string vocabulary.
func arrowSchema(s catalog.Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(s.Fields))
	for i, f := range s.Fields {
		dt, err := arrowFieldType(f.Type)
		if err != nil {
			return nil, errs.Newf(errs.InvalidConfiguration, "connectors", "schema %q field %q: %w", s.Name, f.Name, err)
		}
		fields[i] = arrow.Field{Name: f.Name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

func arrowFieldType(t string) (arrow.DataType, error) {
	switch t {
	case "int8":
		return arrow.PrimitiveTypes.Int8, nil
	case "int16":
		return arrow.PrimitiveTypes.Int16, nil
	case "int32":
		return arrow.PrimitiveTypes.Int32, nil
	case "int64":
		return arrow.PrimitiveTypes.Int64, nil
	case "float32":
		return arrow.PrimitiveTypes.Float32, nil
	case "float64":
		return arrow.PrimitiveTypes.Float64, nil
	case "string":
		return arrow.BinaryTypes.String, nil
	case "bool":
		return arrow.FixedWidthTypes.Boolean, nil
	case "timestamp_ms":
		return arrow.FixedWidthTypes.Timestamp_ms, nil
	case "timestamp_us":
		return arrow.FixedWidthTypes.Timestamp_us, nil
	default:
		return nil, errs.Newf(errs.InvalidConfiguration, "connectors", "unsupported field type %q", t)
	}
}
