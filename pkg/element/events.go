package element

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Events wraps an Arrow record batch. Size is the row count; Split uses
// Arrow's own zero-copy NewSlice.
type Events struct {
	Record arrow.Record
}

// NewEvents wraps rec, taking ownership of the caller's reference.
func NewEvents(rec arrow.Record) Events {
	return Events{Record: rec}
}

func (e Events) Kind() Kind { return KindEvents }

func (e Events) Size() int { return int(e.Record.NumRows()) }

// Split returns (prefix_of_n, remainder) as two Arrow record slices sharing
// the same underlying column buffers as e.Record.
func (e Events) Split(n int) (Element, Element) {
	total := e.Size()
	if n <= 0 {
		return Events{Record: e.Record.NewSlice(0, 0)}, e
	}
	if n >= total {
		return e, Events{Record: e.Record.NewSlice(int64(total), int64(total))}
	}
	prefix := e.Record.NewSlice(0, int64(n))
	remainder := e.Record.NewSlice(int64(n), int64(total))
	e.Record.Release()
	return Events{Record: prefix}, Events{Record: remainder}
}

func (e Events) Release() {
	if e.Record != nil {
		e.Record.Release()
	}
}
