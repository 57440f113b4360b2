// Package connectors implements source and sink connectors for the engine.
package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/fluxsec/pipeline/pkg/catalog"
	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/operator"
)

const defaultBatchSize = 1000

// Generator is a synthetic source, adapted from the teacher's
// pkg/connectors.Generator: it manufactures rows at a configured rate
// against a fixed schema, for load testing and demos without an external
// system. It has no teacher-equivalent pull shape — the teacher drove it
// off an unbounded `chan arrow.Record`; here PollNext paces itself against
// a ticker and yields one batch per tick, which the node's demand protocol
// pulls on its own schedule.
type Generator struct {
	schema        catalog.Schema
	rowsPerSecond int64
	maxRows       int64
	alloc         memory.Allocator
}

// NewGenerator creates a Generator producing rows against schema at
// rowsPerSecond, stopping after maxRows (0 means unbounded).
func NewGenerator(schema catalog.Schema, rowsPerSecond, maxRows int64, alloc memory.Allocator) *Generator {
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	return &Generator{schema: schema, rowsPerSecond: rowsPerSecond, maxRows: maxRows, alloc: alloc}
}

func (g *Generator) Name() string                { return "generator" }
func (g *Generator) InputKind() element.Kind     { return element.KindNone }
func (g *Generator) Location() operator.Location { return operator.Local }
func (g *Generator) Detached() bool              { return false }

func (g *Generator) InferOutput(in element.Kind) (element.Kind, error) {
	return eventsFromNone(g.Name(), in)
}

func (g *Generator) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	schema, err := arrowSchema(g.schema)
	if err != nil {
		return nil, err
	}

	batchSize := defaultBatchSize
	interval := time.Second
	if g.rowsPerSecond > 0 {
		if int64(batchSize) > g.rowsPerSecond {
			batchSize = int(g.rowsPerSecond)
		}
		interval = time.Duration(float64(batchSize) / float64(g.rowsPerSecond) * float64(time.Second))
		if interval <= 0 {
			interval = time.Millisecond
		}
	}

	return &generatorSequence{
		schema:    schema,
		alloc:     g.alloc,
		maxRows:   g.maxRows,
		batchSize: batchSize,
		ticker:    time.NewTicker(interval),
	}, nil
}

type generatorSequence struct {
	schema    *arrow.Schema
	alloc     memory.Allocator
	maxRows   int64
	batchSize int
	ticker    *time.Ticker

	seq     int64
	emitted int64
	done    bool
}

func (g *generatorSequence) PollNext(ctx context.Context) (operator.Step, error) {
	if g.done {
		g.ticker.Stop()
		return operator.Step{Kind: operator.End}, nil
	}

	select {
	case <-ctx.Done():
		return operator.Step{}, ctx.Err()
	case <-g.ticker.C:
	}

	remaining := int64(g.batchSize)
	if g.maxRows > 0 {
		left := g.maxRows - g.emitted
		if left <= 0 {
			g.done = true
			g.ticker.Stop()
			return operator.Step{Kind: operator.End}, nil
		}
		if remaining > left {
			remaining = left
		}
	}

	batch := g.generateBatch(int(remaining))
	g.emitted += remaining
	g.seq += remaining

	if g.maxRows > 0 && g.emitted >= g.maxRows {
		g.done = true
	}
	return operator.Step{Kind: operator.Ready, Value: element.NewEvents(batch)}, nil
}

func (g *generatorSequence) generateBatch(numRows int) arrow.Record {
	builders := make([]array.Builder, g.schema.NumFields())
	for i := 0; i < g.schema.NumFields(); i++ {
		builders[i] = array.NewBuilder(g.alloc, g.schema.Field(i).Type)
	}

	now := time.Now().UnixMilli()
	for row := 0; row < numRows; row++ {
		seq := g.seq + int64(row)
		for i := 0; i < g.schema.NumFields(); i++ {
			f := g.schema.Field(i)
			switch f.Type.ID() {
			case arrow.INT64:
				builders[i].(*array.Int64Builder).Append(seq)
			case arrow.INT32:
				builders[i].(*array.Int32Builder).Append(int32(seq))
			case arrow.FLOAT64:
				builders[i].(*array.Float64Builder).Append(float64(seq) * 1.1)
			case arrow.STRING:
				builders[i].(*array.StringBuilder).Append(fmt.Sprintf("%s_%d", f.Name, seq))
			case arrow.BOOL:
				builders[i].(*array.BooleanBuilder).Append(seq%2 == 0)
			case arrow.TIMESTAMP:
				builders[i].(*array.TimestampBuilder).Append(arrow.Timestamp(now + seq))
			default:
				builders[i].AppendNull()
			}
		}
	}

	arrays := make([]arrow.Array, len(builders))
	for i, b := range builders {
		arrays[i] = b.NewArray()
		b.Release()
	}
	rec := array.NewRecord(g.schema, arrays, int64(numRows))
	for _, a := range arrays {
		a.Release()
	}
	return rec
}
