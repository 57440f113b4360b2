package node

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// countingSource emits n fixed-size Bytes elements, then ends. Used to drive
// the demand protocol without dragging in a real connector.
type countingSource struct {
	n         int
	chunkSize int
}

func (s *countingSource) Name() string                  { return "test-source" }
func (s *countingSource) InputKind() element.Kind        { return element.KindNone }
func (s *countingSource) Location() operator.Location    { return operator.Local }
func (s *countingSource) Detached() bool                 { return false }
func (s *countingSource) InferOutput(element.Kind) (element.Kind, error) {
	return element.KindBytes, nil
}

func (s *countingSource) Instantiate(_ operator.Sequence, _ *diag.Control) (operator.Sequence, error) {
	remaining := s.n
	return operator.Func(func(ctx context.Context) (operator.Step, error) {
		if remaining <= 0 {
			return operator.Step{Kind: operator.End}, nil
		}
		remaining--
		return operator.Step{Kind: operator.Ready, Value: element.NewBytes(make([]byte, s.chunkSize))}, nil
	}), nil
}

// failingSource emits one element, then fails.
type failingSource struct{ failErr error }

func (s *failingSource) Name() string                 { return "failing-source" }
func (s *failingSource) InputKind() element.Kind       { return element.KindNone }
func (s *failingSource) Location() operator.Location   { return operator.Local }
func (s *failingSource) Detached() bool                { return false }
func (s *failingSource) InferOutput(element.Kind) (element.Kind, error) {
	return element.KindBytes, nil
}

func (s *failingSource) Instantiate(_ operator.Sequence, _ *diag.Control) (operator.Sequence, error) {
	emitted := false
	return operator.Func(func(ctx context.Context) (operator.Step, error) {
		if !emitted {
			emitted = true
			return operator.Step{Kind: operator.Ready, Value: element.NewBytes([]byte("one"))}, nil
		}
		return operator.Step{}, s.failErr
	}), nil
}

// collectingSink pulls from its input, releasing every element and tallying
// total bytes received into *total.
type collectingSink struct{ total *int }

func (s *collectingSink) Name() string                 { return "test-sink" }
func (s *collectingSink) InputKind() element.Kind      { return element.KindBytes }
func (s *collectingSink) Location() operator.Location  { return operator.Local }
func (s *collectingSink) Detached() bool               { return false }
func (s *collectingSink) InferOutput(element.Kind) (element.Kind, error) {
	return element.KindNone, nil
}

func (s *collectingSink) Instantiate(input operator.Sequence, _ *diag.Control) (operator.Sequence, error) {
	return operator.Func(func(ctx context.Context) (operator.Step, error) {
		step, err := input.PollNext(ctx)
		if err != nil {
			return operator.Step{}, err
		}
		switch step.Kind {
		case operator.Ready:
			*s.total += step.Value.Size()
			step.Value.Release()
			return operator.Step{Kind: operator.ReadyEmpty}, nil
		case operator.End:
			return operator.Step{Kind: operator.End}, nil
		default:
			return operator.Step{Kind: operator.Pending}, nil
		}
	}), nil
}

func waitDone(t *testing.T, n *Node, timeout time.Duration) {
	t.Helper()
	select {
	case <-n.Done():
	case <-time.After(timeout):
		t.Fatalf("node %s did not terminate within %s", n.ID(), timeout)
	}
}

func TestNodeSourceToSinkDeliversAllData(t *testing.T) {
	bus := diag.NewBus("test", nil, nil)
	src := New("src", &countingSource{n: 2, chunkSize: 200000}, bus, element.KindNone, element.KindBytes, nil)

	var total int
	sink := New("sink", &collectingSink{total: &total}, bus, element.KindBytes, element.KindNone, nil)

	if err := sink.Start(context.Background(), []*Node{src}, Env{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitDone(t, sink, 5*time.Second)
	waitDone(t, src, 5*time.Second)

	if err := sink.TerminalErr(); err != nil {
		t.Errorf("expected clean sink exit, got %v", err)
	}
	if err := src.TerminalErr(); err != nil {
		t.Errorf("expected clean source exit, got %v", err)
	}
	if sink.State() != Drained {
		t.Errorf("expected sink Drained, got %v", sink.State())
	}
	if total != 400000 {
		t.Errorf("expected 400000 bytes delivered, got %d", total)
	}
}

func TestNodeDoubleStartIsLogicError(t *testing.T) {
	bus := diag.NewBus("test", nil, nil)
	src := New("src", &countingSource{n: 0, chunkSize: 1}, bus, element.KindNone, element.KindBytes, nil)

	if err := src.Start(context.Background(), nil, Env{}); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	waitDone(t, src, 5*time.Second)

	err := src.Start(context.Background(), nil, Env{})
	if err == nil {
		t.Fatal("expected an error from a second Start call")
	}
	if errs.KindOf(err) != errs.LogicError {
		t.Errorf("expected logic_error, got %v", errs.KindOf(err))
	}
}

// TestNodeAbortsOnOversizedPush exercises handlePush's max_buffered guard
// (spec §4.3.4) directly: the demand protocol itself never requests more
// than max_batch_size at a time, so driving the full pull/push dance can't
// provoke this guard. A misbehaving upstream delivering past max_buffered
// in one push is what the guard exists for.
func TestNodeAbortsOnOversizedPush(t *testing.T) {
	bus := diag.NewBus("test", nil, nil)
	var total int
	sink := New("sink", &collectingSink{total: &total}, bus, element.KindBytes, element.KindNone, nil)
	sink.control = diag.NewControl("sink", bus, nil, nil, false, nil)

	oversized := element.NewBytes(make([]byte, bytesMaxBuffered+1))
	sink.handlePush(pushMsg{elements: []element.Element{oversized}})

	aborted, cause := sink.control.Aborted()
	if !aborted {
		t.Fatal("expected the control plane to be aborted")
	}
	if errs.KindOf(cause) != errs.LogicError {
		t.Errorf("expected logic_error, got %v (%v)", errs.KindOf(cause), cause)
	}
	if !bus.HasError() {
		t.Error("expected the oversized push to be reported to the bus")
	}
}

func TestNodeUpstreamFailurePropagatesDownstream(t *testing.T) {
	bus := diag.NewBus("test", nil, nil)
	cause := errors.New("device unplugged")
	src := New("src", &failingSource{failErr: cause}, bus, element.KindNone, element.KindBytes, nil)

	var total int
	sink := New("sink", &collectingSink{total: &total}, bus, element.KindBytes, element.KindNone, nil)

	if err := sink.Start(context.Background(), []*Node{src}, Env{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitDone(t, src, 5*time.Second)
	waitDone(t, sink, 5*time.Second)

	if src.State() != Aborted {
		t.Errorf("expected source Aborted, got %v", src.State())
	}
	if sink.State() != UpstreamFailed {
		t.Errorf("expected sink UpstreamFailed, got %v", sink.State())
	}
	if !errors.Is(sink.TerminalErr(), cause) {
		t.Errorf("expected downstream error to wrap %v, got %v", cause, sink.TerminalErr())
	}
	if !strings.Contains(sink.TerminalErr().Error(), "terminated abnormally") {
		t.Errorf("expected wrapped upstream-failure message, got %q", sink.TerminalErr().Error())
	}
}
