package connectors

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/element"
	"github.com/fluxsec/pipeline/pkg/operator"
)

// Console prints Events batches to a writer as formatted tables, adapted
// from the teacher's pkg/connectors.Console. It is a sink: its Sequence
// never yields a data element, only ReadyEmpty/End as it drains input.
type Console struct {
	maxRows int
	writer  io.Writer
}

// NewConsole creates a Console sink printing at most maxRows data rows
// per batch (0 means unlimited) to os.Stdout.
func NewConsole(maxRows int) *Console {
	return &Console{maxRows: maxRows, writer: os.Stdout}
}

// SetWriter overrides the output writer (default os.Stdout); mainly for
// tests.
func (c *Console) SetWriter(w io.Writer) { c.writer = w }

func (c *Console) Name() string                { return "console" }
func (c *Console) InputKind() element.Kind     { return element.KindEvents }
func (c *Console) Location() operator.Location { return operator.Local }
func (c *Console) Detached() bool              { return false }

func (c *Console) InferOutput(in element.Kind) (element.Kind, error) {
	return noneFromEvents(c.Name(), in)
}

func (c *Console) Instantiate(input operator.Sequence, control *diag.Control) (operator.Sequence, error) {
	return &consoleSequence{console: c, input: input}, nil
}

type consoleSequence struct {
	console *Console
	input   operator.Sequence
	count   int64
}

func (s *consoleSequence) PollNext(ctx context.Context) (operator.Step, error) {
	step, err := s.input.PollNext(ctx)
	if err != nil {
		return operator.Step{}, err
	}
	switch step.Kind {
	case operator.End, operator.Pending, operator.ReadyEmpty:
		return step, nil
	}

	ev := step.Value.(element.Events)
	s.print(ev.Record)
	s.count += ev.Record.NumRows()
	ev.Release()
	return operator.Step{Kind: operator.ReadyEmpty}, nil
}

func (s *consoleSequence) print(batch arrow.Record) {
	c := s.console
	schema := batch.Schema()
	numCols := schema.NumFields()
	numRows := int(batch.NumRows())
	if c.maxRows > 0 && numRows > c.maxRows {
		numRows = c.maxRows
	}

	widths := make([]int, numCols)
	for i := 0; i < numCols; i++ {
		widths[i] = len(schema.Field(i).Name)
	}
	for row := 0; row < numRows; row++ {
		for col := 0; col < numCols; col++ {
			if val := formatValue(batch.Column(col), row); len(val) > widths[col] {
				widths[col] = len(val)
			}
		}
	}

	c.printHeader(schema, widths)
	c.printSeparator(widths)
	for row := 0; row < numRows; row++ {
		c.printDataRow(batch, widths, row)
	}
	if int(batch.NumRows()) > numRows {
		fmt.Fprintf(c.writer, "... (%d more rows)\n", int(batch.NumRows())-numRows)
	}
	fmt.Fprintln(c.writer)
}

func (c *Console) printHeader(schema *arrow.Schema, widths []int) {
	fmt.Fprint(c.writer, "| ")
	for i := 0; i < schema.NumFields(); i++ {
		if i > 0 {
			fmt.Fprint(c.writer, " | ")
		}
		fmt.Fprint(c.writer, padRight(schema.Field(i).Name, widths[i]))
	}
	fmt.Fprintln(c.writer, " |")
}

func (c *Console) printSeparator(widths []int) {
	fmt.Fprint(c.writer, "|-")
	for i, w := range widths {
		if i > 0 {
			fmt.Fprint(c.writer, "-|-")
		}
		for j := 0; j < w; j++ {
			fmt.Fprint(c.writer, "-")
		}
	}
	fmt.Fprintln(c.writer, "-|")
}

func (c *Console) printDataRow(batch arrow.Record, widths []int, row int) {
	fmt.Fprint(c.writer, "| ")
	for col := 0; col < int(batch.NumCols()); col++ {
		if col > 0 {
			fmt.Fprint(c.writer, " | ")
		}
		fmt.Fprint(c.writer, padRight(formatValue(batch.Column(col), row), widths[col]))
	}
	fmt.Fprintln(c.writer, " |")
}
