package operator

import (
	"context"

	"github.com/fluxsec/pipeline/pkg/element"
)

// StepKind tags the result of one PollNext call (spec §9 design note:
// "model each operator as a state object implementing
// poll_next() -> Pending | Ready(element) | Ready(empty) | End").
type StepKind int

const (
	// Pending means the sequence suspended awaiting a reply (e.g. a
	// control-plane request/response) and should be polled again next
	// scheduler turn without being charged another "made progress" empty
	// yield.
	Pending StepKind = iota
	// Ready carries a produced element.
	Ready
	// ReadyEmpty is the "I made progress but produced nothing; reschedule
	// me" fairness token.
	ReadyEmpty
	// End marks permanent sequence exhaustion.
	End
)

// Step is the result of one Sequence.PollNext call.
type Step struct {
	Kind  StepKind
	Value element.Element
}

// Sequence is a lazy, single-pass, single-advancer stream of output
// elements (spec §3). The owning execution node is the only caller of
// PollNext; it is never called concurrently (spec §4's invariant "the
// operator's output sequence is advanced only by its owning node, never
// concurrently").
type Sequence interface {
	// PollNext advances the sequence by at most one element's worth of
	// work and reports what happened. Implementations must not block
	// indefinitely — use ctx for cancellation on any blocking call.
	PollNext(ctx context.Context) (Step, error)
}

// Func adapts a plain function into a Sequence.
type Func func(ctx context.Context) (Step, error)

func (f Func) PollNext(ctx context.Context) (Step, error) { return f(ctx) }
