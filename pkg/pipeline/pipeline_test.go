package pipeline

import (
	"context"
	"testing"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
	"github.com/fluxsec/pipeline/pkg/node"
	"github.com/fluxsec/pipeline/pkg/operator"
)

type fakeOp struct {
	name     string
	in       element.Kind
	out      element.Kind
	location operator.Location
}

func (f *fakeOp) Name() string               { return f.name }
func (f *fakeOp) InputKind() element.Kind    { return f.in }
func (f *fakeOp) Location() operator.Location { return f.location }
func (f *fakeOp) Detached() bool              { return false }
func (f *fakeOp) InferOutput(in element.Kind) (element.Kind, error) {
	if in != f.in {
		return element.KindNone, errs.Newf(errs.TypeMismatch, f.name, "expected %s input, got %s", f.in, in)
	}
	return f.out, nil
}
func (f *fakeOp) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	return operator.Func(func(ctx context.Context) (operator.Step, error) {
		return operator.Step{Kind: operator.End}, nil
	}), nil
}

func source(out element.Kind) *fakeOp {
	return &fakeOp{name: "source", in: element.KindNone, out: out}
}

func sink(in element.Kind) *fakeOp {
	return &fakeOp{name: "sink", in: in, out: element.KindNone}
}

func TestBuildTypeChecksValidChain(t *testing.T) {
	bus := diag.NewBus("test", nil, nil)
	p, err := Build("p", []operator.Operator{source(element.KindEvents), sink(element.KindEvents)}, node.Env{}, bus)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Nodes()) != 2 {
		t.Errorf("expected 2 nodes, got %d", len(p.Nodes()))
	}
}

func TestBuildRejectsEmptyChain(t *testing.T) {
	bus := diag.NewBus("test", nil, nil)
	_, err := Build("p", nil, node.Env{}, bus)
	if errs.KindOf(err) != errs.InvalidConfiguration {
		t.Errorf("expected invalid_configuration, got %v", err)
	}
}

func TestBuildRejectsTypeMismatchMidChain(t *testing.T) {
	bus := diag.NewBus("test", nil, nil)
	// source emits Events but sink wants Bytes.
	_, err := Build("p", []operator.Operator{source(element.KindEvents), sink(element.KindBytes)}, node.Env{}, bus)
	if errs.KindOf(err) != errs.TypeMismatch {
		t.Errorf("expected type_mismatch, got %v", err)
	}
}

func TestBuildRejectsChainNotEndingInSink(t *testing.T) {
	bus := diag.NewBus("test", nil, nil)
	// Output kind after the last stage is Events, not None.
	_, err := Build("p", []operator.Operator{source(element.KindEvents)}, node.Env{}, bus)
	if errs.KindOf(err) != errs.TypeMismatch {
		t.Errorf("expected type_mismatch for a chain that doesn't end in a sink, got %v", err)
	}
}

func TestBuildRejectsPinnedLocation(t *testing.T) {
	bus := diag.NewBus("test", nil, nil)
	pinned := &fakeOp{name: "pinned", in: element.KindNone, out: element.KindEvents, location: operator.PinnedNode}
	_, err := Build("p", []operator.Operator{pinned, sink(element.KindEvents)}, node.Env{}, bus)
	if errs.KindOf(err) != errs.InvalidConfiguration {
		t.Errorf("expected invalid_configuration for an unsatisfiable pinned location, got %v", err)
	}
}

func TestBuildFailsSynchronouslyWithoutSpawningNodes(t *testing.T) {
	bus := diag.NewBus("test", nil, nil)
	p, err := Build("p", []operator.Operator{source(element.KindEvents), sink(element.KindBytes)}, node.Env{}, bus)
	if err == nil {
		t.Fatal("expected an error")
	}
	if p != nil {
		t.Error("expected no Pipeline returned on a build failure")
	}
}

// joiningSink requires its whole input joined into one contiguous buffer.
type joiningSink struct{ fakeOp }

func (j *joiningSink) RequiresJoining() bool { return true }

// nonJoiningSink accepts its Bytes input chunk by chunk.
type nonJoiningSink struct{ fakeOp }

func (j *nonJoiningSink) RequiresJoining() bool { return false }

// stubPrinter is an Events->Bytes printer whose AllowsJoining is
// configurable, standing in for a real print format in desugar tests.
type stubPrinter struct {
	fakeOp
	allowsJoining bool
}

func (s *stubPrinter) AllowsJoining() bool { return s.allowsJoining }

func TestDesugarWriteFusesWhenSaveDoesNotRequireJoining(t *testing.T) {
	print := &stubPrinter{fakeOp: fakeOp{name: "print", in: element.KindEvents, out: element.KindBytes}, allowsJoining: true}
	save := &nonJoiningSink{fakeOp{name: "save", in: element.KindBytes, out: element.KindNone}}

	ops, err := DesugarWrite(print, save)
	if err != nil {
		t.Fatalf("DesugarWrite: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected a single fused operator, got %d", len(ops))
	}
}

func TestDesugarWriteSplitsWhenSaveRequiresJoining(t *testing.T) {
	print := &stubPrinter{fakeOp: fakeOp{name: "print", in: element.KindEvents, out: element.KindBytes}, allowsJoining: true}
	save := &joiningSink{fakeOp{name: "save", in: element.KindBytes, out: element.KindNone}}

	ops, err := DesugarWrite(print, save)
	if err != nil {
		t.Fatalf("DesugarWrite: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected two sequential operators, got %d", len(ops))
	}
	if ops[0] != print || ops[1] != save {
		t.Error("expected print then save, in that order")
	}
}

func TestDesugarWriteRejectsIncompatibleJoinRequirement(t *testing.T) {
	print := &stubPrinter{fakeOp: fakeOp{name: "print", in: element.KindEvents, out: element.KindBytes}, allowsJoining: false}
	save := &joiningSink{fakeOp{name: "save", in: element.KindBytes, out: element.KindNone}}

	_, err := DesugarWrite(print, save)
	if errs.KindOf(err) != errs.InvalidConfiguration {
		t.Errorf("expected invalid_configuration, got %v", err)
	}
}
