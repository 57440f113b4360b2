package diag

import (
	"sync/atomic"

	"github.com/fluxsec/pipeline/pkg/catalog"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/errs"
)

// EmitFunc is how Control.Emit hands an element to whatever is listening
// for source-driven emission (reserved for sources/diagnostics-driven
// emission per spec §4.2 — most operators never call it).
type EmitFunc func(element.Element) error

// Control is the per-node facade exposed to an operator's body (spec §4.2,
// the "control plane" component). It is constructed once per node and
// bound to that node's own abort latch and the shared Bus.
type Control struct {
	nodeID   string
	bus      *Bus
	catalog  *catalog.Catalog
	concepts *catalog.Catalog
	unsafe   bool
	emit     EmitFunc

	aborted int32 // atomic latch, set at most once
	cause   atomic.Value
}

// NewControl creates a control plane for node nodeID.
func NewControl(nodeID string, bus *Bus, schemaCat, conceptCat *catalog.Catalog, allowUnsafe bool, emit EmitFunc) *Control {
	return &Control{
		nodeID:   nodeID,
		bus:      bus,
		catalog:  schemaCat,
		concepts: conceptCat,
		unsafe:   allowUnsafe,
		emit:     emit,
	}
}

// Abort routes err as an error-severity diagnostic, then sets this node's
// own abort latch if it was not already set.
func (c *Control) Abort(err error) {
	c.bus.Report(Record{Severity: Error, Source: c.nodeID, Message: "operator abort", Err: err})
	c.latch(err)
}

// AbortSilently implements Abortable: it sets the abort latch without
// reporting a second diagnostic, because the bus only calls this after it
// has already reported the triggering error itself.
func (c *Control) AbortSilently() {
	c.latch(errs.AsSilent(nil))
}

// Warn routes err as a warning-severity diagnostic. It never affects data
// flow or the abort latch.
func (c *Control) Warn(err error) {
	c.bus.Report(Record{Severity: Warning, Source: c.nodeID, Message: "operator warning", Err: err})
}

// Emit is reserved for sources or diagnostics-driven emission; not every
// operator needs it, and it is nil for operators that don't opt in.
func (c *Control) Emit(e element.Element) error {
	if c.emit == nil {
		return errs.Newf(errs.LogicError, c.nodeID, "emit not supported by this operator")
	}
	return c.emit(e)
}

// Schemas returns the read-only, process-wide schema catalog.
func (c *Control) Schemas() *catalog.Catalog { return c.catalog }

// Concepts returns the read-only, process-wide concept catalog.
func (c *Control) Concepts() *catalog.Catalog { return c.concepts }

// AllowUnsafePipelines reads the config flag of the same name.
func (c *Control) AllowUnsafePipelines() bool { return c.unsafe }

// Aborted reports whether this node's abort latch has been set, and if so
// the error it was set with.
func (c *Control) Aborted() (bool, error) {
	if atomic.LoadInt32(&c.aborted) == 0 {
		return false, nil
	}
	if v, ok := c.cause.Load().(error); ok {
		return true, v
	}
	return true, nil
}

func (c *Control) latch(err error) {
	if atomic.CompareAndSwapInt32(&c.aborted, 0, 1) {
		c.cause.Store(err)
	}
}
