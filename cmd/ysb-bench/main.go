// Command ysb-bench runs the Yahoo Streaming Benchmark-style ad-event
// pipeline through the full node/pipeline engine, for comparison against
// cmd/ysb-generator's external Kafka-driven load and against a
// hand-rolled batch loop with no node scheduling at all.
//
// Pipeline: Generator -> Filter(event_type='view') -> Map(ad_id,
// event_time) -> Console
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/fluxsec/pipeline/pkg/catalog"
	"github.com/fluxsec/pipeline/pkg/connectors"
	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/metrics"
	"github.com/fluxsec/pipeline/pkg/node"
	"github.com/fluxsec/pipeline/pkg/ops"
	"github.com/fluxsec/pipeline/pkg/operator"
	"github.com/fluxsec/pipeline/pkg/pipeline"
)

var adEventSchema = catalog.Schema{
	Name: "ad_event",
	Fields: []catalog.Field{
		{Name: "ad_id", Type: "string"},
		{Name: "ad_type", Type: "string"},
		{Name: "event_type", Type: "string"},
		{Name: "event_time", Type: "int64"},
		{Name: "ip_address", Type: "string"},
	},
}

func main() {
	rowsPerSec := flag.Int64("rows-per-second", 1_000_000, "generator source rate")
	maxRows := flag.Int64("max-rows", 0, "generator row cap (0 = unbounded)")
	metricsAddr := flag.String("metrics-addr", ":9091", "address to serve Prometheus metrics on")
	flag.Parse()

	server := metrics.ServeMetrics(*metricsAddr)
	defer server.Shutdown(context.Background())

	alloc := memory.DefaultAllocator
	chain := []operator.Operator{
		connectors.NewGenerator(adEventSchema, *rowsPerSec, *maxRows, alloc),
		ops.NewFilter("event_type = 'view'", alloc),
		ops.NewMap(map[string]string{
			"ad_id":      "ad_id",
			"event_time": "event_time",
		}, alloc),
		connectors.NewConsole(0),
	}

	bus := diag.NewBus("ysb-bench", metrics.ErrorCounter(), metrics.WarningCounter())
	env := node.Env{Schemas: catalog.New(), Concepts: catalog.New()}
	env.Schemas.PutSchema(adEventSchema)

	p, err := pipeline.Build("ysb-bench", chain, env, bus)
	if err != nil {
		slog.Error("build failed", "error", err)
		os.Exit(1)
	}

	slog.Info("starting YSB benchmark", "rows_per_second", *rowsPerSec, "max_rows", *maxRows)
	start := time.Now()
	if err := pipeline.RunWithGracefulShutdown(context.Background(), p, 30*time.Second); err != nil {
		slog.Error("benchmark failed", "error", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "benchmark finished in %s\n", time.Since(start))
}
