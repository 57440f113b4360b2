//go:build !duckdb

// Package duckdb provides DuckDB micro-batch execution for the engine's
// operators. When compiled without the "duckdb" build tag, all functions
// return errors directing users to rebuild with -tags duckdb.
package duckdb

import (
	"errors"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// ErrDuckDBNotAvailable is returned when DuckDB functions are called
// without the duckdb build tag.
var ErrDuckDBNotAvailable = errors.New("duckdb execution strategy requires building with -tags duckdb")

// Instance is a stub for DuckDB instance management.
type Instance struct{}

// NewInstance returns an error when DuckDB is not compiled in.
func NewInstance(_ memory.Allocator, _ int64) (*Instance, error) {
	return nil, ErrDuckDBNotAvailable
}

func (i *Instance) Close() error                                { return nil }
func (i *Instance) RegisterView(_ arrow.Record, _ string) error { return ErrDuckDBNotAvailable }
func (i *Instance) Query(_ string) (arrow.Record, error)        { return nil, ErrDuckDBNotAvailable }

// MicroBatchOperator is a stub implementing operator.Operator that fails
// at Instantiate time, so a pipeline referencing `microbatch_sql` without
// the duckdb build tag fails construction with a clear diagnostic instead
// of silently dropping data.
type MicroBatchOperator struct{}

// NewMicroBatchOperator returns a stub operator.
func NewMicroBatchOperator(_ string, _ int) *MicroBatchOperator { return &MicroBatchOperator{} }

func (m *MicroBatchOperator) SetMemoryLimit(_ int64) {}

func (m *MicroBatchOperator) Name() string                { return "microbatch_sql" }
func (m *MicroBatchOperator) InputKind() element.Kind     { return element.KindEvents }
func (m *MicroBatchOperator) Location() operator.Location { return operator.Local }
func (m *MicroBatchOperator) Detached() bool               { return true }

func (m *MicroBatchOperator) InferOutput(in element.Kind) (element.Kind, error) {
	if in != element.KindEvents {
		return element.KindNone, errs.Newf(errs.TypeMismatch, m.Name(), "requires Events input, got %s", in)
	}
	return element.KindEvents, nil
}

func (m *MicroBatchOperator) Instantiate(_ operator.Sequence, _ *diag.Control) (operator.Sequence, error) {
	return nil, errs.New(errs.InvalidConfiguration, m.Name(), ErrDuckDBNotAvailable)
}
