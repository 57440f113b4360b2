package element

import "sync/atomic"

// root is the shared, refcounted backing store for a chain of Bytes slices.
// Multiple Bytes values can point into the same root at different offsets;
// the root's underlying array is only eligible for reuse once every Bytes
// derived from it has called Release.
type root struct {
	refcount int32
	buf      []byte
}

func newRoot(buf []byte) *root {
	return &root{refcount: 1, buf: buf}
}

func (r *root) retain() { atomic.AddInt32(&r.refcount, 1) }

func (r *root) release() {
	if atomic.AddInt32(&r.refcount, -1) == 0 {
		r.buf = nil
	}
}

// Bytes is a refcounted, zero-copy contiguous byte buffer. Split produces
// two Bytes values that alias the same root's backing array.
type Bytes struct {
	root *root
	off  int
	len  int
}

// NewBytes wraps buf as a freshly-owned Bytes chunk (refcount 1).
func NewBytes(buf []byte) Bytes {
	return Bytes{root: newRoot(buf), off: 0, len: len(buf)}
}

func (b Bytes) Kind() Kind { return KindBytes }

func (b Bytes) Size() int { return b.len }

// Data returns the byte slice this chunk currently covers. Valid only
// until Release is called.
func (b Bytes) Data() []byte {
	if b.root == nil {
		return nil
	}
	return b.root.buf[b.off : b.off+b.len]
}

func (b Bytes) Split(n int) (Element, Element) {
	if n <= 0 {
		n = 0
	}
	if n > b.len {
		n = b.len
	}
	b.root.retain()
	prefix := Bytes{root: b.root, off: b.off, len: n}
	remainder := Bytes{root: b.root, off: b.off + n, len: b.len - n}
	return prefix, remainder
}

func (b Bytes) Release() {
	if b.root != nil {
		b.root.release()
	}
}

// Retain returns a new reference to the same backing storage. Use when a
// Bytes value needs to outlive a single handoff (e.g. fan-out to multiple
// downstreams).
func (b Bytes) Retain() Bytes {
	b.root.retain()
	return b
}
