package node

import (
	"time"

	"github.com/fluxsec/pipeline/pkg/element"
)

// message is the closed set of things a node's mailbox accepts. Nodes
// communicate only by asynchronous messages (spec §5) — no node ever
// reaches into another's fields.
type message interface{ isMessage() }

// pullMsg is a downstream request for input (spec §4.3.2). It is sent to
// the upstream node's mailbox.
type pullMsg struct {
	sink         *Node
	batchSize    int
	batchTimeout time.Duration
	reply        chan pullReply
}

func (pullMsg) isMessage() {}

// pullReply answers a pullMsg: either a logic error (concurrent pull) or
// nothing — the actual data arrives later as a pushMsg to sink's mailbox.
type pullReply struct {
	err error
}

// pushMsg delivers elements downstream in answer to an earlier pull (spec
// §4.3.4). replyTo, if non-nil, is closed once the receiver has accounted
// for the elements in its inbound buffer — the delivering node's deliver
// step uses this to implement the force/non-force suspend distinction
// (spec §4.3.5).
type pushMsg struct {
	elements []element.Element
	replyTo  chan struct{}
	// eos marks a zero-element "completed, no data" reply an upstream in
	// reject_demand sends after batch_timeout so a pending pull resolves
	// cleanly (spec §4.3.2 item 2) without tripping the ordinary
	// "empty push is a logic error" invariant (spec §4.3.4).
	eos bool
}

func (pushMsg) isMessage() {}

// pullRejectedMsg relays a logic_error rejection of our own outstanding
// pull back onto our mailbox, so requestInFlight clears inside the run
// loop rather than in the relay goroutine that made the request.
type pullRejectedMsg struct{ err error }

func (pullRejectedMsg) isMessage() {}

// deliveryAckMsg is looped back onto the delivering node's own mailbox
// once a non-forced push's replyTo channel fires, so the "on completion"
// bookkeeping (spec §4.3.5) runs inside that node's own single-threaded
// run loop rather than in the small relay goroutine that watched replyTo.
type deliveryAckMsg struct{}

func (deliveryAckMsg) isMessage() {}

// upstreamDownMsg notifies a node that its upstream's goroutine has
// terminated (spec §4.3.10).
type upstreamDownMsg struct {
	predecessorID string
	err           error // nil on normal exit
}

func (upstreamDownMsg) isMessage() {}

// wakeMsg is an internal self-trigger requesting another run() tick (spec
// §4.3.8's schedule_run()).
type wakeMsg struct{}

func (wakeMsg) isMessage() {}

// exitMsg is an external kill: terminates the node regardless of buffer
// state (spec §5, "Cancellation and timeouts").
type exitMsg struct{}

func (exitMsg) isMessage() {}
