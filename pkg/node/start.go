package node

import (
	"context"
	"sync/atomic"

	"github.com/fluxsec/pipeline/pkg/catalog"
	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// Env bundles the process-wide, read-only collaborators every node needs
// at construction (design note, spec §9: "treat as an injected, read-only
// catalog passed at node construction rather than as global mutable
// state").
type Env struct {
	Schemas              *catalog.Catalog
	Concepts             *catalog.Catalog
	AllowUnsafePipelines bool
}

// Start is the single initialization step (spec §4.3.9). previous is the
// full predecessor chain from the pipeline builder; a source requires it
// empty, everything else requires at least one entry. Starting pops the
// nearest predecessor as this node's own upstream, instantiates the
// operator, and propagates Start further upstream.
func (n *Node) Start(ctx context.Context, previous []*Node, env Env) error {
	if !atomic.CompareAndSwapInt32(&n.started, 0, 1) {
		return n.logicErr("double start")
	}

	isSource := n.inputKind == element.KindNone
	if isSource && len(previous) != 0 {
		return n.logicErr("source operator given a non-empty predecessor chain")
	}
	if !isSource && len(previous) == 0 {
		return n.logicErr("non-source operator given an empty predecessor chain")
	}

	var rest []*Node
	if !isSource {
		n.upstream, rest = previous[len(previous)-1], previous[:len(previous)-1]
		go n.monitorUpstream()
	}

	emit := func(e element.Element) error {
		n.send(pushSelfEmit{e})
		return nil
	}
	n.control = diag.NewControl(n.id, n.bus, env.Schemas, env.Concepts, env.AllowUnsafePipelines, emit)
	n.bus.Register(n.id, n)

	var input operator.Sequence
	if !isSource {
		input = newInputAdapter(n)
	}

	seq, err := n.op.Instantiate(input, n.control)
	if err != nil {
		n.finish(Aborted, err)
		return err
	}
	n.seq = seq

	// Open Question (spec §9): instantiation errors supersede propagation
	// errors. Check our own abort latch — set if Instantiate aborted in
	// its prologue — before doing anything else, including forwarding
	// Start errors from upstream.
	if aborted, cause := n.abortedErr(); aborted {
		n.finish(Aborted, cause)
		return cause
	}

	// Both sinks and transformations forward Start upstream so
	// initialization propagates tail-to-head (spec §4.3.9); a sink
	// additionally schedules its own run only once this succeeds, which
	// falls out naturally below.
	if n.upstream != nil {
		if err := n.upstream.Start(ctx, rest, env); err != nil {
			if aborted, cause := n.abortedErr(); aborted {
				return cause
			}
			return err
		}
	}

	n.state = Started
	go n.loop(ctx)
	n.scheduleRun()
	return nil
}

// pushSelfEmit is how Control.Emit hands an element straight to this
// node's own outbound path (spec §4.2 "emit: reserved for sources").
type pushSelfEmit struct{ e element.Element }

func (pushSelfEmit) isMessage() {}
