package diag

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxsec/pipeline/pkg/errs"
)

// Abortable is implemented by anything the Bus can fan an abort signal out
// to — in practice, an execution node's control plane.
type Abortable interface {
	// AbortSilently sets the receiver's own abort latch using the silent
	// sentinel error, without routing a second diagnostic back to the bus.
	AbortSilently()
}

// Bus is the single diagnostic receiver for a pipeline (spec §4.2). It
// tracks whether an error has been seen and fans abort out to every
// registered node on the first one.
type Bus struct {
	logger *slog.Logger

	mu       sync.Mutex
	nodes    map[string]Abortable
	hasError int32 // atomic latch
	first    *Record

	errorsTotal   prometheus.Counter
	warningsTotal prometheus.Counter
}

// NewBus creates an empty diagnostic bus scoped to pipelineName.
func NewBus(pipelineName string, errCounter, warnCounter prometheus.Counter) *Bus {
	return &Bus{
		logger:        slog.Default().With("component", "diag.Bus", "pipeline", pipelineName),
		nodes:         make(map[string]Abortable),
		errorsTotal:   errCounter,
		warningsTotal: warnCounter,
	}
}

// Register adds a node to the fan-out set. Safe to call concurrently with
// Report.
func (b *Bus) Register(id string, a Abortable) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[id] = a
}

// Unregister removes a node once it has terminated, so a later error
// doesn't try to signal a dead node.
func (b *Bus) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.nodes, id)
}

// Report delivers a diagnostic record. On the first Error-severity record,
// the bus latches "has seen error" and signals every currently-registered
// node to abort. Diagnostics are delivered reliably but carry no ordering
// guarantee across nodes.
func (b *Bus) Report(rec Record) {
	if rec.Severity == Warning {
		if b.warningsTotal != nil {
			b.warningsTotal.Inc()
		}
		b.logger.Warn(rec.Message, "source", rec.Source, "err", rec.Err)
		return
	}

	if b.errorsTotal != nil {
		b.errorsTotal.Inc()
	}
	b.logger.Error(rec.Message, "source", rec.Source, "err", rec.Err)

	if !atomic.CompareAndSwapInt32(&b.hasError, 0, 1) {
		// Not the first error: suppress cascade noise per spec §7.
		return
	}

	b.mu.Lock()
	b.first = &rec
	targets := make([]Abortable, 0, len(b.nodes))
	for _, a := range b.nodes {
		targets = append(targets, a)
	}
	b.mu.Unlock()

	for _, a := range targets {
		a.AbortSilently()
	}
}

// HasError reports whether any Error-severity record has been seen.
func (b *Bus) HasError() bool {
	return atomic.LoadInt32(&b.hasError) != 0
}

// FirstError returns the first Error-severity record reported, or nil if
// none has been reported yet.
func (b *Bus) FirstError() *Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.first
}

// ExitError derives the process-level exit error: nil on a clean run, the
// first diagnostic's wrapped error otherwise. Used by cmd/pipeline-run to
// decide the process exit code (spec §7 "User-visible behavior").
func (b *Bus) ExitError() error {
	rec := b.FirstError()
	if rec == nil {
		return nil
	}
	if rec.Err != nil {
		return rec.Err
	}
	return errs.Newf(errs.Unspecified, rec.Source, "%s", rec.Message)
}
