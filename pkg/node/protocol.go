package node

import (
	"context"
	"time"

	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// handlePull answers a downstream's pull (spec §4.3.2). A node may have at
// most one outstanding demand at a time; a second pull while one is
// unresolved is a protocol violation from the caller, not from us.
func (n *Node) handlePull(msg pullMsg) {
	if n.pendingDemand != nil {
		msg.reply <- pullReply{err: n.logicErr(
			"pull from %s while demand from %s is still outstanding",
			msg.sink.ID(), n.pendingDemand.sink.ID())}
		return
	}
	msg.reply <- pullReply{}

	if n.rejectDemand {
		// Sequence already ended and outbound already drained: honor the
		// pull's cadence but answer "completed, no data" after
		// batch_timeout rather than instantly, so downstream observes EOS
		// on the same rhythm as an ordinary partial delivery would.
		go func(sink *Node, timeout time.Duration) {
			time.Sleep(timeout)
			sink.send(pushMsg{eos: true})
		}(msg.sink, msg.batchTimeout)
		return
	}

	n.pendingDemand = &demand{
		sink:      msg.sink,
		batchSize: msg.batchSize,
		deadline:  nowFn().Add(msg.batchTimeout),
	}
	n.scheduleRun()
}

// handlePush absorbs a push of input elements (spec §4.3.4), rejecting
// protocol violations (empty push, overflow past max_buffered) as
// logic_error aborts rather than silently tolerating them.
func (n *Node) handlePush(msg pushMsg) {
	n.requestInFlight = false

	if msg.eos {
		if msg.replyTo != nil {
			close(msg.replyTo)
		}
		n.scheduleRun()
		return
	}

	total := element.TotalSize(msg.elements)
	if total == 0 {
		if msg.replyTo != nil {
			close(msg.replyTo)
		}
		n.control.Abort(n.logicErr("upstream delivered an empty push"))
		return
	}
	if n.inbound.size+total > MaxBuffered(n.inbound.kind) {
		if msg.replyTo != nil {
			close(msg.replyTo)
		}
		n.control.Abort(n.logicErr("upstream delivered %d exceeding max_buffered", total))
		return
	}

	n.inbound.pushAll(msg.elements)
	if n.metrics != nil {
		n.metrics.SetInboundOccupancy(n.inbound.size)
	}
	if msg.replyTo != nil {
		close(msg.replyTo)
	}
	n.scheduleRun()
}

// requestMoreInput issues at most one outstanding pull to our upstream when
// there is enough headroom to make it worthwhile (spec §4.3.3).
func (n *Node) requestMoreInput() {
	if n.inbound == nil || n.upstream == nil || n.requestInFlight || n.seqEnded {
		return
	}
	free := MaxBuffered(n.inbound.kind) - n.inbound.size
	if free < MinBatchSize(n.inbound.kind) {
		return
	}
	batchSize := free
	if max := MaxBatchSize(n.inbound.kind); batchSize > max {
		batchSize = max
	}

	n.requestInFlight = true
	up := n.upstream
	go func() {
		reply := make(chan pullReply, 1)
		up.send(pullMsg{sink: n, batchSize: batchSize, batchTimeout: MaxBatchTimeout, reply: reply})
		select {
		case r := <-reply:
			if r.err != nil {
				n.send(pullRejectedMsg{err: r.err})
			}
		case <-up.Done():
			// upstream gone; monitorUpstream will deliver upstreamDownMsg
		case <-n.done:
		}
	}()
}

// tryDeliver fulfills pendingDemand from whatever is already buffered in
// outbound, holding below min_batch_size until the deadline forces a
// partial delivery (spec §4.3.5).
func (n *Node) tryDeliver() {
	if n.pendingDemand == nil || n.outbound == nil {
		return
	}
	d := n.pendingDemand
	forced := d.expired(nowFn()) || n.seqEnded

	avail := n.outbound.size
	if avail == 0 {
		if forced {
			n.pendingDemand = nil
			n.deliver(d, nil)
		}
		return
	}
	if avail < MinBatchSize(n.outbound.kind) && !forced {
		return
	}

	capped := avail
	if max := MaxBatchSize(n.outbound.kind); capped > max {
		capped = max
	}
	if capped > d.batchSize {
		capped = d.batchSize
	}

	batch := n.outbound.takeFront(capped)
	n.pendingDemand = nil
	if forced && n.metrics != nil {
		n.metrics.RecordDeadlineMiss()
	}
	n.deliver(d, batch)
}

// deliver pushes batch to d.sink. A deadline-forced delivery blocks this
// node's own goroutine on the reply directly — there is no useful work to
// interleave with, so a genuine cooperative suspend is the simplest correct
// thing. An ordinary, unforced delivery hands the wait off to a relay
// goroutine and loops the completion back as a deliveryAckMsg, so the
// bookkeeping still runs single-threaded inside this node's run loop (spec
// §4.3.5).
func (n *Node) deliver(d *demand, batch []element.Element) {
	reply := make(chan struct{})
	if len(batch) == 0 {
		// Nothing to give this demand: reply "completed, no data" rather
		// than a bare empty push, which handlePush treats as a protocol
		// violation (spec §4.3.5).
		d.sink.send(pushMsg{eos: true, replyTo: reply})
	} else {
		d.sink.send(pushMsg{elements: batch, replyTo: reply})
	}

	if d.expired(nowFn()) || n.seqEnded {
		<-reply
		n.scheduleRun()
		return
	}

	n.inFlightDem = d
	go func() {
		<-reply
		n.send(deliveryAckMsg{})
	}()
}

// outboundHasRoom reports whether stepping the sequence again is allowed to
// produce more output: a sink has no outbound buffer to overflow, and
// everything else must stay at or under max_buffered for its kind even
// when the terminal sink never pulls (spec §4.3.6, §4.3.8, §5, §8).
func (n *Node) outboundHasRoom() bool {
	return n.outbound == nil || n.outbound.hasRoom()
}

// advance steps the operator sequence up to MaxAdvancesPerRun times (spec
// §4.3.6), buffering produced elements into outbound and recording
// throughput metrics. Never called when outbound lacks room — the caller
// (run) is responsible for that check, since it also governs whether
// another turn is worth scheduling.
func (n *Node) advance(ctx context.Context) {
	if n.seq == nil || n.seqEnded || !n.outboundHasRoom() {
		return
	}
	for i := 0; i < MaxAdvancesPerRun; i++ {
		if i > 0 && !n.outboundHasRoom() {
			return
		}
		start := nowFn()
		step, err := n.seq.PollNext(ctx)
		if n.metrics != nil {
			n.metrics.ObserveAdvance(nowFn().Sub(start).Seconds())
		}
		if err != nil {
			if errs.IsSilent(err) {
				n.control.AbortSilently()
			} else {
				n.control.Abort(err)
			}
			return
		}

		switch step.Kind {
		case operator.End:
			n.seqEnded = true
			return
		case operator.Ready:
			n.bufferProduced(step.Value)
		case operator.ReadyEmpty, operator.Pending:
			// Progress made (or suspended) without producing an element.
		}

		if aborted, _ := n.abortedErr(); aborted {
			return
		}
	}
}

func (n *Node) bufferProduced(e element.Element) {
	if n.outbound == nil {
		// A sink operator consumes its input directly; nothing to buffer.
		e.Release()
		return
	}
	n.outbound.push(e)
	if n.metrics == nil {
		return
	}
	n.metrics.RecordElement()
	switch e.Kind() {
	case element.KindEvents:
		n.metrics.RecordRows(int64(e.Size()))
	case element.KindBytes:
		n.metrics.RecordBytes(int64(e.Size()))
	}
	n.metrics.SetOutboundOccupancy(n.outbound.size)
}
