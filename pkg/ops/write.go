package ops

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// Printer is an Events -> Bytes operator serving the `write FMT [to SINK]`
// / `to SINK [write FMT]` composite (spec §6's "Pipeline text surface").
// AllowsJoining reports whether the byte chunks it yields can be
// concatenated back into one contiguous buffer — false for a printer
// whose framing is only meaningful chunk-by-chunk.
type Printer interface {
	operator.Operator
	AllowsJoining() bool
}

// Joiner is implemented by a Bytes-input sink that must receive its whole
// input as one contiguous buffer rather than chunk by chunk.
type Joiner interface {
	operator.Operator
	RequiresJoining() bool
}

// JSONPrinter serializes each Events batch to newline-delimited JSON
// bytes. It allows joining: concatenating its chunks in order reproduces
// the same newline-delimited stream a joining sink needs.
type JSONPrinter struct{}

// NewJSONPrinter creates a `write json` printer stage.
func NewJSONPrinter() *JSONPrinter { return &JSONPrinter{} }

func (p *JSONPrinter) Name() string                { return "print_json" }
func (p *JSONPrinter) InputKind() element.Kind     { return element.KindEvents }
func (p *JSONPrinter) Location() operator.Location { return operator.Local }
func (p *JSONPrinter) Detached() bool              { return false }
func (p *JSONPrinter) AllowsJoining() bool         { return true }

func (p *JSONPrinter) InferOutput(in element.Kind) (element.Kind, error) {
	if in != element.KindEvents {
		return element.KindNone, errs.Newf(errs.TypeMismatch, p.Name(), "requires Events input, got %s", in)
	}
	return element.KindBytes, nil
}

func (p *JSONPrinter) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	return &jsonPrinterSequence{input: input}, nil
}

type jsonPrinterSequence struct {
	input operator.Sequence
}

func (s *jsonPrinterSequence) PollNext(ctx context.Context) (operator.Step, error) {
	step, err := s.input.PollNext(ctx)
	if err != nil {
		return operator.Step{}, err
	}
	switch step.Kind {
	case operator.End, operator.Pending, operator.ReadyEmpty:
		return step, nil
	}

	ev := step.Value.(element.Events)
	buf, err := rowsToJSONLines(ev.Record)
	ev.Release()
	if err != nil {
		return operator.Step{}, errs.New(errs.LogicError, "print_json", err)
	}
	if len(buf) == 0 {
		return operator.Step{Kind: operator.ReadyEmpty}, nil
	}
	return operator.Step{Kind: operator.Ready, Value: element.NewBytes(buf)}, nil
}

// rowsToJSONLines renders one record batch as newline-delimited JSON
// objects, one per row.
func rowsToJSONLines(rec arrow.Record) ([]byte, error) {
	schema := rec.Schema()
	var buf bytes.Buffer
	for row := 0; row < int(rec.NumRows()); row++ {
		obj := make(map[string]interface{}, schema.NumFields())
		for col := 0; col < schema.NumFields(); col++ {
			arr := rec.Column(col)
			if arr.IsNull(row) {
				obj[schema.Field(col).Name] = nil
				continue
			}
			obj[schema.Field(col).Name] = printerCellValue(arr, row)
		}
		line, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func printerCellValue(arr arrow.Array, row int) interface{} {
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
		return nil
	}
}
