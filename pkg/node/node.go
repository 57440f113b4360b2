// Package node implements the execution node (spec §4.3): the scheduled
// unit wrapping exactly one operator instance, its inbound/outbound
// buffering, the pull-based demand protocol with its upstream and
// downstream neighbors, and the lifecycle/diagnostic plane that drives
// start, shutdown, cancellation, and error propagation.
//
// One Node runs on one goroutine — the "cooperative single-thread
// context" of spec §5 — and is never touched from any other goroutine
// except via the message types in messages.go. This generalizes the
// teacher's (sandboxws/isotope) goroutine-per-operator engine
// (pkg/engine.Engine.startSingle), which used plain unbounded Go channels,
// into the bounded, demand/timeout-aware protocol the spec requires.
package node

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
	"github.com/fluxsec/pipeline/pkg/metrics"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// Node is the mutable runtime state hosting one operator instance.
type Node struct {
	id  string
	op  operator.Operator
	bus *diag.Bus

	inputKind  element.Kind
	outputKind element.Kind

	control *diag.Control
	seq     operator.Sequence

	upstream *Node // weak, one-way: we monitor it, it doesn't know us

	inbound  *buffer // nil for sources
	outbound *buffer // nil for sinks

	pendingDemand   *demand // a downstream's unfulfilled pull, if any
	requestInFlight bool    // whether we have an outstanding pull upstream
	rejectDemand    bool    // sequence ended and outbound drained

	inFlightDem *demand // demand whose push is in flight, acked by deliveryAckMsg

	seqEnded bool // PollNext has returned End; sequence is permanently exhausted

	upstreamFailed bool // set by handleUpstreamDown on an abnormal predecessor exit

	state State

	inbox chan message
	wake  chan struct{}
	done  chan struct{}
	term  error // terminal error, valid after done is closed

	metrics *metrics.NodeMetrics
	logger  *slog.Logger

	started int32 // guards double Start
}

// New creates a node bound to op and the shared diagnostic bus. id must be
// unique within the pipeline. inputKind/outputKind are the kinds this node
// was type-checked to carry by the pipeline builder.
func New(id string, op operator.Operator, bus *diag.Bus, inputKind, outputKind element.Kind, m *metrics.NodeMetrics) *Node {
	n := &Node{
		id:         id,
		op:         op,
		bus:        bus,
		inputKind:  inputKind,
		outputKind: outputKind,
		inbox:      make(chan message, 8),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		metrics:    m,
		logger:     slog.Default().With("node", id, "operator", op.Name()),
		state:      Created,
	}
	if inputKind != element.KindNone {
		n.inbound = newBuffer(inputKind)
	}
	if outputKind != element.KindNone {
		n.outbound = newBuffer(outputKind)
	}
	return n
}

// ID returns this node's unique pipeline identifier.
func (n *Node) ID() string { return n.id }

// Operator returns the operator description this node hosts, for builder
// bookkeeping (e.g. routing Detached() operators to a dedicated worker
// pool).
func (n *Node) Operator() operator.Operator { return n.op }

// Done returns a channel closed once this node has terminated, for
// upstream-monitoring by a downstream node (spec §4.3.10).
func (n *Node) Done() <-chan struct{} { return n.done }

// TerminalErr returns the termination cause, valid once Done is closed.
// nil means a normal exit.
func (n *Node) TerminalErr() error { return n.term }

// State returns the node's current lifecycle state. Intended for tests and
// diagnostics only — never branch pipeline logic on a snapshot read from
// outside the node's own goroutine.
func (n *Node) State() State { return n.state }

// scheduleRun requests another run() tick (spec §4.3.8's schedule_run()).
// Safe to call from this node's own goroutine or, via message delivery,
// conceptually "from outside" — in practice always called from inside
// run() or a tiny relay goroutine that owns no node state.
func (n *Node) scheduleRun() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// send posts msg to n's mailbox, blocking while the mailbox is full until
// it accepts msg or the node terminates; a message sent to a terminated
// node is dropped.
func (n *Node) send(msg message) {
	select {
	case n.inbox <- msg:
	case <-n.done:
	}
}

// AbortSilently implements diag.Abortable: the bus calls this on every
// registered node once the first error has been reported elsewhere.
func (n *Node) AbortSilently() {
	if n.control != nil {
		n.control.AbortSilently()
	}
	n.scheduleRun()
}

func (n *Node) abortedErr() (bool, error) {
	if n.control == nil {
		return false, nil
	}
	return n.control.Aborted()
}

// Kill delivers an external exit: terminates the node regardless of
// buffer state (spec §5). The exit is posted from its own goroutine, so a
// full mailbox delays delivery without blocking the caller.
func (n *Node) Kill() {
	go n.send(exitMsg{})
}

// finishAborted terminates the node on its own abort latch, distinguishing
// a predecessor's abnormal exit (UpstreamFailed) from every other abort
// cause, including this node's own operator failure (Aborted).
func (n *Node) finishAborted(cause error) {
	if n.upstreamFailed {
		n.finish(UpstreamFailed, cause)
		return
	}
	n.finish(Aborted, cause)
}

func (n *Node) finish(state State, err error) {
	if n.state.terminal() {
		return
	}
	n.state = state
	n.term = err
	if n.bus != nil {
		n.bus.Unregister(n.id)
	}
	close(n.done)
	n.logger.Info("node terminated", "state", state.String(), "err", err)
}

func (n *Node) warnf(format string, args ...interface{}) {
	if n.control != nil {
		n.control.Warn(fmt.Errorf(format, args...))
	}
}

// logicErr builds a logic_error-kind error scoped to this node (spec §7).
func (n *Node) logicErr(format string, args ...interface{}) error {
	return errs.Newf(errs.LogicError, n.id, format, args...)
}

// nowFn exists so tests can stub the clock without reaching into node
// internals; defaults to the real wall clock.
var nowFn = func() time.Time { return time.Now() }
