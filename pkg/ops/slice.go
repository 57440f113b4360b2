package ops

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// Slice implements `slice(begin?, end?)` (spec §6, the representative unit
// of row-batch manipulation): either bound may be absent or negative
// (Python-style, relative to the total row count N, known only once the
// input sequence ends). There is no teacher equivalent — sandboxws/isotope
// has no slicing operator — so this is built from scratch in the shape of
// the teacher's other row-transform operators (pkg/operators), generalized
// from ProcessBatch to Instantiate/Sequence.
type Slice struct {
	begin, end *int
}

// NewSlice creates a Slice operator. A nil bound is absent.
func NewSlice(begin, end *int) *Slice {
	return &Slice{begin: begin, end: end}
}

func (s *Slice) Name() string                { return "slice" }
func (s *Slice) InputKind() element.Kind     { return element.KindEvents }
func (s *Slice) Location() operator.Location { return operator.Local }
func (s *Slice) Detached() bool              { return false }

func (s *Slice) InferOutput(in element.Kind) (element.Kind, error) {
	return eventsToEvents(s.Name(), in)
}

// Instantiate picks between two strategies:
//
//   - Both bounds non-negative (or absent): `[b,e)` is already known, so the
//     clamp streams incrementally, never buffering more than one batch at a
//     time (spec §6 "positive/positive"; absent begin/end default to 0/∞,
//     which also covers the both-absent identity case).
//   - Either bound is negative: `N` isn't known until the sequence ends, so
//     the simpler strategy here buffers the whole input and resolves the
//     window at end-of-sequence — correct for every negative-bound case
//     (spec §6's "positive begin/negative end", "negative begin/positive
//     end", and "negative begin/negative end" all reduce to the same
//     Python-style resolution law in spec §8), at the cost of the more
//     memory-frugal partial-buffering spec §6 describes for the mixed-sign
//     cases specifically.
func (s *Slice) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	beginNonNeg := s.begin == nil || *s.begin >= 0
	endNonNeg := s.end == nil || *s.end >= 0

	if beginNonNeg && endNonNeg {
		begin := 0
		if s.begin != nil {
			begin = *s.begin
		}
		end := -1 // sentinel: unbounded
		if s.end != nil {
			end = *s.end
		}
		return &streamingSlice{input: input, begin: begin, end: end}, nil
	}
	return &bufferedSlice{input: input, begin: s.begin, end: s.end}, nil
}

// streamingSlice handles the case where [begin,end) is known up front. end
// == -1 means unbounded.
type streamingSlice struct {
	input      operator.Sequence
	begin, end int
	seen       int // rows consumed so far, global offset
	done       bool
}

func (s *streamingSlice) PollNext(ctx context.Context) (operator.Step, error) {
	if s.done {
		return operator.Step{Kind: operator.End}, nil
	}

	step, err := s.input.PollNext(ctx)
	if err != nil {
		return operator.Step{}, err
	}
	switch step.Kind {
	case operator.End:
		s.done = true
		return step, nil
	case operator.Pending, operator.ReadyEmpty:
		return step, nil
	}

	ev := step.Value.(element.Events)
	rec := ev.Record
	n := int(rec.NumRows())
	batchStart := s.seen
	s.seen += n

	hi := s.end
	if hi < 0 {
		hi = s.seen
	} else if s.seen >= hi {
		s.done = true
	}

	from := s.begin - batchStart
	if from < 0 {
		from = 0
	}
	to := hi - batchStart
	if to > n {
		to = n
	}
	if to < 0 {
		to = 0
	}

	if to <= from {
		ev.Release()
		if s.done {
			return operator.Step{Kind: operator.End}, nil
		}
		return operator.Step{Kind: operator.ReadyEmpty}, nil
	}

	sliced := rec.NewSlice(int64(from), int64(to))
	ev.Release()
	return operator.Step{Kind: operator.Ready, Value: element.NewEvents(sliced)}, nil
}

// bufferedSlice handles any case with a negative bound: it buffers the
// whole input, zero-copy, and resolves the window once N is known.
type bufferedSlice struct {
	input      operator.Sequence
	begin, end *int

	buf   []arrow.Record
	total int

	resolved bool
	out      []arrow.Record
}

func (s *bufferedSlice) PollNext(ctx context.Context) (operator.Step, error) {
	if s.resolved {
		if len(s.out) == 0 {
			return operator.Step{Kind: operator.End}, nil
		}
		rec := s.out[0]
		s.out = s.out[1:]
		return operator.Step{Kind: operator.Ready, Value: element.NewEvents(rec)}, nil
	}

	step, err := s.input.PollNext(ctx)
	if err != nil {
		return operator.Step{}, err
	}
	switch step.Kind {
	case operator.Pending, operator.ReadyEmpty:
		return step, nil
	case operator.End:
		s.resolve()
		return s.PollNext(ctx)
	}

	ev := step.Value.(element.Events)
	if ev.Record.NumRows() > 0 {
		ev.Record.Retain()
		s.buf = append(s.buf, ev.Record)
		s.total += int(ev.Record.NumRows())
	}
	ev.Release()
	return operator.Step{Kind: operator.ReadyEmpty}, nil
}

func (s *bufferedSlice) resolve() {
	lo := resolveIndex(s.begin, s.total, true)
	hi := resolveIndex(s.end, s.total, false)
	if hi <= lo {
		for _, r := range s.buf {
			r.Release()
		}
		s.buf = nil
		s.resolved = true
		return
	}

	offset := 0
	for _, r := range s.buf {
		n := int(r.NumRows())
		from := lo - offset
		if from < 0 {
			from = 0
		}
		to := hi - offset
		if to > n {
			to = n
		}
		offset += n
		if to > from {
			s.out = append(s.out, r.NewSlice(int64(from), int64(to)))
		}
		r.Release()
	}
	s.buf = nil
	s.resolved = true
}

// resolveIndex applies the Python-style resolution law of spec §8: negative
// indices count back from the end, absent begin defaults to 0, absent end
// defaults to n, and both clamp into [0,n].
func resolveIndex(i *int, n int, isBegin bool) int {
	if i == nil {
		if isBegin {
			return 0
		}
		return n
	}
	v := *i
	if v < 0 {
		v += n
	}
	if v < 0 {
		v = 0
	}
	if v > n {
		v = n
	}
	return v
}
