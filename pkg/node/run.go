package node

import (
	"context"

	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
)

// loop is the node's single goroutine (spec §5's "cooperative
// single-thread context"). It is the only reader of inbox and wake, and
// the only writer of every field on Node besides the handful accessed
// read-only from monitorUpstream's own tiny goroutine.
func (n *Node) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if !n.state.terminal() {
				n.finish(Aborted, ctx.Err())
			}
			return
		case msg := <-n.inbox:
			n.dispatch(msg)
		case <-n.wake:
			n.run(ctx)
		}
		if n.state.terminal() {
			return
		}
	}
}

// dispatch handles one mailbox message (spec §5). Each handler ends by
// scheduling a run() tick rather than acting further itself, so all
// buffer/state mutation funnels through run()'s single, ordered turn.
func (n *Node) dispatch(msg message) {
	switch m := msg.(type) {
	case pullMsg:
		n.handlePull(m)
	case pushMsg:
		n.handlePush(m)
	case pullRejectedMsg:
		n.requestInFlight = false
		n.warnf("pull rejected by upstream: %v", m.err)
		n.scheduleRun()
	case deliveryAckMsg:
		n.inFlightDem = nil
		n.scheduleRun()
	case upstreamDownMsg:
		n.handleUpstreamDown(m)
	case pushSelfEmit:
		n.bufferProduced(m.e)
		n.scheduleRun()
	case wakeMsg:
		n.scheduleRun()
	case exitMsg:
		n.finish(Aborted, errs.Newf(errs.Unspecified, n.id, "killed"))
	}
}

// run is one scheduler turn (spec §4.3.8): check the abort latch, try to
// satisfy pending demand, request more input, advance the operator
// sequence by at most one step, then re-check abort and end-of-sequence
// before deciding whether another turn is warranted.
func (n *Node) run(ctx context.Context) {
	if n.state.terminal() {
		return
	}
	if aborted, cause := n.abortedErr(); aborted {
		n.finishAborted(cause)
		return
	}

	n.tryDeliver()
	if n.state.terminal() {
		return
	}

	n.requestMoreInput()
	if n.outboundHasRoom() {
		n.advance(ctx)
	}
	if n.state.terminal() {
		return
	}

	if aborted, cause := n.abortedErr(); aborted {
		n.finishAborted(cause)
		return
	}

	if n.seqEnded {
		if n.state == Started {
			n.state = EndOfSequence
		}
		if n.outbound == nil || n.outbound.empty() {
			if n.pendingDemand == nil {
				n.finish(Drained, nil)
				return
			}
			// A demand arrived with nothing left to give it: honor it
			// as "completed, no data" rather than holding it forever.
			n.rejectDemand = true
			n.tryDeliver()
			if n.state.terminal() {
				return
			}
		}
	}

	n.tryDeliver()
	if n.state.terminal() {
		return
	}

	if n.hasPendingWork() {
		n.scheduleRun()
	}
}

// hasPendingWork reports whether another run() tick could make progress
// without first waiting on an external event (a message arriving on
// inbox). Sources keep ticking on their own; everything else waits for
// buffered input or an unresolved demand.
func (n *Node) hasPendingWork() bool {
	if n.pendingDemand != nil {
		return true
	}
	if !n.outboundHasRoom() {
		// Buffered input or a ticking source can't make progress until
		// outbound drains below max_buffered (spec §4.3.8 step 3).
		return false
	}
	if n.inbound != nil && !n.inbound.empty() {
		return true
	}
	if n.inputKind == element.KindNone && !n.seqEnded {
		return true
	}
	return false
}
