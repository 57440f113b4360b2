package node

import "fmt"

// monitorUpstream watches n.upstream's termination and relays it as a
// message onto n's own mailbox (spec §4.3.10). This is the "weak upstream
// reference" design note: n holds a handle to signal abort but the
// upstream node is never aware of n's identity beyond a transient pull's
// sink field.
func (n *Node) monitorUpstream() {
	up := n.upstream
	<-up.Done()
	n.send(upstreamDownMsg{predecessorID: up.ID(), err: up.TerminalErr()})
}

// handleUpstreamDown implements spec §4.3.10: drop the upstream handle,
// clear any in-flight request marker defensively, schedule a run, and
// abort with a wrapped error if the upstream's exit was abnormal. The run
// loop's own abort check (run.go) turns the resulting latch into an
// UpstreamFailed termination.
func (n *Node) handleUpstreamDown(msg upstreamDownMsg) {
	n.upstream = nil
	n.requestInFlight = false

	if msg.err != nil {
		n.upstreamFailed = true
		n.control.Abort(fmt.Errorf("predecessor %s terminated abnormally: %w", msg.predecessorID, msg.err))
	}
	n.scheduleRun()
}
