package node

import "github.com/fluxsec/pipeline/pkg/element"

// buffer is a FIFO queue of same-kind elements with a running size count
// (spec §3: "row/byte counts maintained alongside buffers equal the sum of
// sizes of held elements").
type buffer struct {
	kind  element.Kind
	items []element.Element
	size  int
}

func newBuffer(kind element.Kind) *buffer {
	return &buffer{kind: kind}
}

func (b *buffer) push(e element.Element) {
	b.items = append(b.items, e)
	b.size += e.Size()
}

func (b *buffer) pushAll(es []element.Element) {
	for _, e := range es {
		b.push(e)
	}
}

// popFront removes and returns the front-most element, FIFO order.
func (b *buffer) popFront() (element.Element, bool) {
	if len(b.items) == 0 {
		return nil, false
	}
	e := b.items[0]
	b.items = b.items[1:]
	b.size -= e.Size()
	return e, true
}

// takeFront removes and returns up to n elements' worth (by Size) from the
// front of the buffer, splitting the straddling element zero-copy, exactly
// as element.SplitVec does for a vector of chunks (spec §4.1).
func (b *buffer) takeFront(n int) []element.Element {
	if n <= 0 {
		return nil
	}
	prefix, remainder := element.SplitVec(b.items, n)
	b.items = remainder
	taken := element.TotalSize(prefix)
	b.size -= taken
	return prefix
}

func (b *buffer) empty() bool { return len(b.items) == 0 }

// hasRoom reports whether the buffer has not yet reached max_buffered for
// its kind (spec §4.3.1).
func (b *buffer) hasRoom() bool { return b.size < MaxBuffered(b.kind) }
