// Package pipeline implements the builder (spec §4.4): type-checking a
// left-to-right operator chain, spawning one execution node per operator,
// and linking the predecessor chain so start() propagates tail-to-head.
//
// Grounded on the teacher's (sandboxws/isotope) engine.Engine.Run, which
// walked a protobuf ExecutionPlan's operator list and edge set to build an
// adjacency map before wiring channels. Since every node here has exactly
// one predecessor (pipelines are linear `op1 | op2 | ... | opN` chains, not
// arbitrary DAGs — spec §6), no adjacency map is needed: the operator slice
// itself already is the chain, left to right.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
	"github.com/fluxsec/pipeline/pkg/metrics"
	"github.com/fluxsec/pipeline/pkg/node"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// maxDetachedWorkers bounds how many Detached() operators get a reserved
// dedicated-worker slot at once; beyond this the operator still runs (every
// node always has its own goroutine — spec §5), it just isn't guaranteed
// one of the pool's reserved slots.
const maxDetachedWorkers = 8

// Pipeline is a built, not-yet-started chain of execution nodes.
type Pipeline struct {
	name  string
	nodes []*node.Node // source first, sink last
	bus   *diag.Bus
	env   node.Env
	sem   *semaphore.Weighted
	log   *slog.Logger
}

// Build type-checks ops left to right starting from element.KindNone (spec
// §4.4 step 1-2) and spawns one node per operator. It fails synchronously,
// spawning no node, on a type_mismatch or a location the builder cannot
// satisfy (spec §7: "type mismatches ... reported synchronously from the
// pipeline builder; no node is spawned").
func Build(name string, ops []operator.Operator, env node.Env, bus *diag.Bus) (*Pipeline, error) {
	if len(ops) == 0 {
		return nil, errs.Newf(errs.InvalidConfiguration, name, "pipeline must contain at least one operator")
	}

	nodes := make([]*node.Node, 0, len(ops))
	current := element.KindNone
	for i, op := range ops {
		out, err := op.InferOutput(current)
		if err != nil {
			return nil, errs.New(errs.TypeMismatch, op.Name(), fmt.Errorf("stage %d: %w", i, err))
		}
		if op.Location() == operator.PinnedNode {
			// No pinned-node registry exists in this in-process builder;
			// every operator must be runnable locally (spec §4.4 step 4).
			return nil, errs.Newf(errs.InvalidConfiguration, op.Name(), "stage %d requires a node context this builder cannot provide", i)
		}

		id := fmt.Sprintf("%s#%d", op.Name(), i)
		m := metrics.NewNodeMetrics(id, op.Name())
		nodes = append(nodes, node.New(id, op, bus, current, out, m))
		current = out
	}

	if current != element.KindNone {
		return nil, errs.Newf(errs.TypeMismatch, ops[len(ops)-1].Name(),
			"pipeline must terminate in a sink (output None), got %s", current)
	}

	return &Pipeline{
		name: name,
		nodes: nodes,
		bus:  bus,
		env:  env,
		sem:  semaphore.NewWeighted(maxDetachedWorkers),
		log:  slog.Default().With("pipeline", name),
	}, nil
}

// Name returns the pipeline's name, for logging and metrics labels.
func (p *Pipeline) Name() string { return p.name }

// Nodes returns the built node chain, source first. Exposed for tests and
// for cmd/pipeline-run's `validate` subcommand, which builds without
// starting.
func (p *Pipeline) Nodes() []*node.Node { return p.nodes }

// Run starts the full chain and blocks until it terminates, returning the
// first diagnostic's error (spec §7 "user-visible behavior") or nil on a
// clean run.
//
// Starting a linear chain only requires calling Start on the sink — spec
// §4.4 step 3: "pass the full predecessor chain... to the sink's start
// call. The sink pops itself off and forwards the rest upstream." Each
// node's own Start recurses upstream from there (node/start.go).
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, n := range p.nodes {
		if !n.Operator().Detached() {
			continue
		}
		if !p.sem.TryAcquire(1) {
			p.log.Warn("detached worker pool exhausted, operator runs without a reserved slot", "operator", n.Operator().Name())
			continue
		}
		n := n
		g.Go(func() error {
			<-n.Done()
			p.sem.Release(1)
			return nil
		})
	}

	sink := p.nodes[len(p.nodes)-1]
	previous := p.nodes[:len(p.nodes)-1]
	if err := sink.Start(gctx, previous, p.env); err != nil {
		return err
	}

	g.Go(func() error {
		<-sink.Done()
		return sink.TerminalErr()
	})

	if err := g.Wait(); err != nil && !errs.IsSilent(err) {
		return err
	}
	return p.bus.ExitError()
}

// Stop delivers an external exit to every node regardless of buffer state
// (spec §5), for graceful/forced shutdown (see shutdown.go).
func (p *Pipeline) Stop() {
	for _, n := range p.nodes {
		n.Kill()
	}
}
