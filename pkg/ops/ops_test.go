package ops

import (
	"context"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// ── test helpers ────────────────────────────────────────────────────

func makeBatch(alloc memory.Allocator, names []string, arrays []arrow.Array) arrow.Record {
	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		fields[i] = arrow.Field{Name: name, Type: arrays[i].DataType()}
	}
	schema := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(schema, arrays, int64(arrays[0].Len()))
	for _, a := range arrays {
		a.Release()
	}
	return rec
}

func makeInt64Arr(alloc memory.Allocator, vals []int64) arrow.Array {
	bldr := array.NewInt64Builder(alloc)
	defer bldr.Release()
	bldr.AppendValues(vals, nil)
	return bldr.NewArray()
}

func makeStringArr(alloc memory.Allocator, vals []string) arrow.Array {
	bldr := array.NewStringBuilder(alloc)
	defer bldr.Release()
	for _, v := range vals {
		bldr.Append(v)
	}
	return bldr.NewArray()
}

// constSeq replays a fixed slice of records, then ends — a stand-in for
// an upstream node's Sequence in isolated operator tests.
type constSeq struct {
	batches []arrow.Record
	i       int
}

func (s *constSeq) PollNext(ctx context.Context) (operator.Step, error) {
	if s.i >= len(s.batches) {
		return operator.Step{Kind: operator.End}, nil
	}
	rec := s.batches[s.i]
	s.i++
	return operator.Step{Kind: operator.Ready, Value: element.NewEvents(rec)}, nil
}

func drain(t *testing.T, seq operator.Sequence) []arrow.Record {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var out []arrow.Record
	for {
		step, err := seq.PollNext(ctx)
		if err != nil {
			t.Fatal(err)
		}
		switch step.Kind {
		case operator.End:
			return out
		case operator.Ready:
			ev := step.Value.(element.Events)
			out = append(out, ev.Record)
		}
	}
}

func releaseAll(recs []arrow.Record) {
	for _, r := range recs {
		r.Release()
	}
}

// ── Filter ──────────────────────────────────────────────────────────

func TestFilterKeepsMatchingRows(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	batch := makeBatch(alloc, []string{"amount"}, []arrow.Array{makeInt64Arr(alloc, []int64{50, 150, 100, 200})})

	f := NewFilter("amount > 100", alloc)
	seq, err := f.Instantiate(&constSeq{batches: []arrow.Record{batch}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := drain(t, seq)
	defer releaseAll(out)

	if len(out) != 1 || out[0].NumRows() != 2 {
		t.Fatalf("expected 1 batch of 2 rows, got %d batch(es)", len(out))
	}
}

func TestFilterNoMatchesYieldsNoBatch(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	batch := makeBatch(alloc, []string{"x"}, []arrow.Array{makeInt64Arr(alloc, []int64{1, 2, 3})})

	f := NewFilter("x > 100", alloc)
	seq, err := f.Instantiate(&constSeq{batches: []arrow.Record{batch}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := drain(t, seq)
	if len(out) != 0 {
		releaseAll(out)
		t.Fatalf("expected no batches, got %d", len(out))
	}
}

// ── Map ─────────────────────────────────────────────────────────────

func TestMapProjectsComputedColumns(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	batch := makeBatch(alloc, []string{"price", "name"},
		[]arrow.Array{makeInt64Arr(alloc, []int64{10, 20}), makeStringArr(alloc, []string{"a", "b"})})

	m := NewMap(map[string]string{"double_price": "price * 2"}, alloc)
	seq, err := m.Instantiate(&constSeq{batches: []arrow.Record{batch}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := drain(t, seq)
	defer releaseAll(out)

	if len(out) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(out))
	}
	prices := out[0].Column(0).(*array.Int64)
	if prices.Value(0) != 20 || prices.Value(1) != 40 {
		t.Errorf("unexpected doubled prices: %v, %v", prices.Value(0), prices.Value(1))
	}
}

// ── Union ───────────────────────────────────────────────────────────

func TestUnionForwardsEveryBatchUnchanged(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	b1 := makeBatch(alloc, []string{"x"}, []arrow.Array{makeInt64Arr(alloc, []int64{1, 2})})
	b2 := makeBatch(alloc, []string{"x"}, []arrow.Array{makeInt64Arr(alloc, []int64{3})})

	u := NewUnion()
	seq, err := u.Instantiate(&constSeq{batches: []arrow.Record{b1, b2}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := drain(t, seq)
	defer releaseAll(out)

	if len(out) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(out))
	}
}

// ── Drop ────────────────────────────────────────────────────────────

func TestDropRemovesNamedColumns(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	batch := makeBatch(alloc, []string{"a", "b", "c"},
		[]arrow.Array{
			makeInt64Arr(alloc, []int64{1, 2}),
			makeInt64Arr(alloc, []int64{3, 4}),
			makeInt64Arr(alloc, []int64{5, 6}),
		})

	d := NewDrop([]string{"b"})
	seq, err := d.Instantiate(&constSeq{batches: []arrow.Record{batch}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := drain(t, seq)
	defer releaseAll(out)

	if len(out) != 1 || out[0].NumCols() != 2 {
		t.Fatalf("expected 1 batch with 2 columns, got %d batch(es)", len(out))
	}
	schema := out[0].Schema()
	if schema.Field(0).Name != "a" || schema.Field(1).Name != "c" {
		t.Errorf("expected [a, c], got [%s, %s]", schema.Field(0).Name, schema.Field(1).Name)
	}
}

// ── Cast ────────────────────────────────────────────────────────────

func TestCastConvertsColumnType(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	batch := makeBatch(alloc, []string{"val"}, []arrow.Array{makeInt64Arr(alloc, []int64{10, 20, 30})})

	c := NewCast([]CastColumn{{Name: "val", TargetType: arrow.PrimitiveTypes.Float64}}, alloc)
	seq, err := c.Instantiate(&constSeq{batches: []arrow.Record{batch}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := drain(t, seq)
	defer releaseAll(out)

	floats := out[0].Column(0).(*array.Float64)
	if floats.Value(0) != 10.0 || floats.Value(1) != 20.0 || floats.Value(2) != 30.0 {
		t.Errorf("unexpected floats: %v, %v, %v", floats.Value(0), floats.Value(1), floats.Value(2))
	}
}

// ── Rename ──────────────────────────────────────────────────────────

func TestRenameRelabelsColumns(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	batch := makeBatch(alloc, []string{"old_col", "keep_col"},
		[]arrow.Array{makeInt64Arr(alloc, []int64{1, 2}), makeStringArr(alloc, []string{"a", "b"})})

	r := NewRename(map[string]string{"old_col": "new_col"})
	seq, err := r.Instantiate(&constSeq{batches: []arrow.Record{batch}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := drain(t, seq)
	defer releaseAll(out)

	schema := out[0].Schema()
	if schema.Field(0).Name != "new_col" || schema.Field(1).Name != "keep_col" {
		t.Errorf("expected [new_col, keep_col], got [%s, %s]", schema.Field(0).Name, schema.Field(1).Name)
	}
}

// ── FlatMap ─────────────────────────────────────────────────────────

func TestFlatMapUnnestsListColumn(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	listBldr := array.NewListBuilder(alloc, arrow.PrimitiveTypes.Int64)
	valBldr := listBldr.ValueBuilder().(*array.Int64Builder)

	listBldr.Append(true)
	valBldr.AppendValues([]int64{1, 2, 3}, nil)
	listBldr.Append(true)
	valBldr.AppendValues([]int64{4}, nil)

	listArr := listBldr.NewArray()
	listBldr.Release()

	idArr := makeInt64Arr(alloc, []int64{100, 200})

	batch := makeBatch(alloc, []string{"id", "args"}, []arrow.Array{idArr, listArr})

	f := NewFlatMap("args", alloc)
	seq, err := f.Instantiate(&constSeq{batches: []arrow.Record{batch}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := drain(t, seq)
	defer releaseAll(out)

	if len(out) != 1 || out[0].NumRows() != 4 {
		t.Fatalf("expected 1 batch of 4 unnested rows, got %d batch(es)", len(out))
	}
	ids := out[0].Column(0).(*array.Int64)
	if ids.Value(0) != 100 || ids.Value(3) != 200 {
		t.Errorf("expected replicated ids [100,100,100,200], got %v,...,%v", ids.Value(0), ids.Value(3))
	}
}

// ── Slice ───────────────────────────────────────────────────────────

func sliceRows(t *testing.T, begin, end *int, vals []int64) []int64 {
	t.Helper()
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	batch := makeBatch(alloc, []string{"x"}, []arrow.Array{makeInt64Arr(alloc, vals)})

	s := NewSlice(begin, end)
	seq, err := s.Instantiate(&constSeq{batches: []arrow.Record{batch}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := drain(t, seq)
	defer releaseAll(out)

	var got []int64
	for _, rec := range out {
		col := rec.Column(0).(*array.Int64)
		for i := 0; i < col.Len(); i++ {
			got = append(got, col.Value(i))
		}
	}
	return got
}

func intp(v int) *int { return &v }

func TestSlicePositiveBeginEnd(t *testing.T) {
	got := sliceRows(t, intp(1), intp(3), []int64{10, 20, 30, 40, 50})
	want := []int64{20, 30}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSliceNegativeEnd(t *testing.T) {
	got := sliceRows(t, nil, intp(-1), []int64{10, 20, 30, 40, 50})
	want := []int64{10, 20, 30, 40}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSliceNegativeBegin(t *testing.T) {
	got := sliceRows(t, intp(-2), nil, []int64{10, 20, 30, 40, 50})
	want := []int64{40, 50}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSliceNegativeBeginAndEnd(t *testing.T) {
	got := sliceRows(t, intp(-4), intp(-1), []int64{10, 20, 30, 40, 50})
	want := []int64{20, 30, 40}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSliceEmptyWindowYieldsNoRows(t *testing.T) {
	got := sliceRows(t, intp(3), intp(1), []int64{10, 20, 30, 40, 50})
	if len(got) != 0 {
		t.Errorf("expected empty slice, got %v", got)
	}
}
