//go:build duckdb

package duckdb

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// MicroBatchOperator collects incoming Events batches, registers them as a
// DuckDB view once flushCount have accumulated, executes a SQL query
// against that view, and emits the result, adapted from the teacher's
// ProcessBatch/ProcessWatermark pair to a single Sequence that flushes
// mid-stream on the accumulation trigger and once more, unconditionally,
// when the input sequence ends.
type MicroBatchOperator struct {
	sql         string
	flushCount  int
	memoryLimit int64
}

// NewMicroBatchOperator creates a micro-batch operator executing sql.
// flushCount controls how many batches to accumulate before flushing (0
// means every batch).
func NewMicroBatchOperator(sql string, flushCount int) *MicroBatchOperator {
	return &MicroBatchOperator{sql: sql, flushCount: flushCount}
}

// SetMemoryLimit sets the DuckDB memory limit in bytes.
func (m *MicroBatchOperator) SetMemoryLimit(limit int64) { m.memoryLimit = limit }

func (m *MicroBatchOperator) Name() string                { return "microbatch_sql" }
func (m *MicroBatchOperator) InputKind() element.Kind     { return element.KindEvents }
func (m *MicroBatchOperator) Location() operator.Location { return operator.Local }
func (m *MicroBatchOperator) Detached() bool              { return true }

func (m *MicroBatchOperator) InferOutput(in element.Kind) (element.Kind, error) {
	if in != element.KindEvents {
		return element.KindNone, errs.Newf(errs.TypeMismatch, m.Name(), "requires Events input, got %s", in)
	}
	return element.KindEvents, nil
}

func (m *MicroBatchOperator) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	inst, err := NewInstance(memory.DefaultAllocator, m.memoryLimit)
	if err != nil {
		return nil, errs.Newf(errs.LogicError, m.Name(), "open duckdb instance: %w", err)
	}
	trigger := m.flushCount
	if trigger <= 0 {
		trigger = 1
	}
	return &microBatchSequence{op: m, input: input, inst: inst, trigger: trigger}, nil
}

type microBatchSequence struct {
	op      *MicroBatchOperator
	input   operator.Sequence
	inst    *Instance
	trigger int

	buffer []arrow.Record
	ended  bool
}

func (s *microBatchSequence) PollNext(ctx context.Context) (operator.Step, error) {
	if s.ended {
		s.inst.Close()
		return operator.Step{Kind: operator.End}, nil
	}

	step, err := s.input.PollNext(ctx)
	if err != nil {
		return operator.Step{}, err
	}
	switch step.Kind {
	case operator.Pending:
		return step, nil
	case operator.End:
		if len(s.buffer) > 0 {
			s.ended = true
			return s.flush()
		}
		s.inst.Close()
		return step, nil
	case operator.ReadyEmpty:
		return step, nil
	}

	ev := step.Value.(element.Events)
	ev.Record.Retain()
	s.buffer = append(s.buffer, ev.Record)
	ev.Release()

	if len(s.buffer) < s.trigger {
		return operator.Step{Kind: operator.ReadyEmpty}, nil
	}
	return s.flush()
}

func (s *microBatchSequence) flush() (operator.Step, error) {
	var combined arrow.Record
	var err error
	if len(s.buffer) == 1 {
		combined = s.buffer[0]
	} else {
		combined, err = concatenateRecords(memory.DefaultAllocator, s.buffer)
		for _, b := range s.buffer {
			b.Release()
		}
		if err != nil {
			s.buffer = nil
			return operator.Step{}, errs.Newf(errs.LogicError, s.op.Name(), "concatenate: %w", err)
		}
	}
	s.buffer = nil

	if err := s.inst.RegisterView(combined, "input"); err != nil {
		combined.Release()
		return operator.Step{}, errs.Newf(errs.LogicError, s.op.Name(), "register view: %w", err)
	}
	combined.Release()

	result, err := s.inst.Query(s.op.sql)
	if err != nil {
		return operator.Step{}, errs.Newf(errs.LogicError, s.op.Name(), "query: %w", err)
	}
	if result.NumRows() == 0 {
		result.Release()
		if s.ended {
			s.inst.Close()
			return operator.Step{Kind: operator.End}, nil
		}
		return operator.Step{Kind: operator.ReadyEmpty}, nil
	}
	return operator.Step{Kind: operator.Ready, Value: element.NewEvents(result)}, nil
}
