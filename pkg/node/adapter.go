package node

import (
	"context"

	"github.com/fluxsec/pipeline/pkg/operator"
)

// inputAdapter is the lazy input sequence handed to a non-source
// operator's Instantiate (spec §4.3.7). It is driven from inside the same
// run loop that owns the node's inbound buffer, so no locking is needed.
type inputAdapter struct {
	n *Node
}

func newInputAdapter(n *Node) operator.Sequence {
	return &inputAdapter{n: n}
}

// PollNext yields the front-most buffered element (FIFO) if one is
// available. It yields an empty token when the buffer is empty but
// upstream is still alive or a request is in flight — fairness, per spec
// §4.3.7 — and ends only once upstream is gone and the buffer is drained.
func (a *inputAdapter) PollNext(ctx context.Context) (operator.Step, error) {
	n := a.n
	if e, ok := n.inbound.popFront(); ok {
		return operator.Step{Kind: operator.Ready, Value: e}, nil
	}
	if n.upstream != nil || n.requestInFlight {
		return operator.Step{Kind: operator.ReadyEmpty}, nil
	}
	return operator.Step{Kind: operator.End}, nil
}
