// Command pipeline-run builds and runs the engine's demo pipelines.
//
// Adapted from the teacher's cmd/isotope-runtime/main.go, which loaded a
// protobuf ExecutionPlan from disk and handed it to engine.NewEngine. The
// textual pipeline surface (spec §6) is explicitly out of scope here, so
// this command takes its place with a small, named set of Go-constructed
// pipelines instead of a parsed plan — the same role isotope-runtime's
// plan.pb played, minus the wire format.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/spf13/cobra"

	"github.com/fluxsec/pipeline/pkg/catalog"
	"github.com/fluxsec/pipeline/pkg/config"
	"github.com/fluxsec/pipeline/pkg/connectors"
	"github.com/fluxsec/pipeline/pkg/diag"
	"github.com/fluxsec/pipeline/pkg/metrics"
	"github.com/fluxsec/pipeline/pkg/node"
	"github.com/fluxsec/pipeline/pkg/ops"
	"github.com/fluxsec/pipeline/pkg/operator"
	"github.com/fluxsec/pipeline/pkg/pipeline"
)

var (
	configPath  string
	demoName    string
	metricsAddr string
	rowsPerSec  int64
	maxRows     int64
)

func main() {
	root := &cobra.Command{
		Use:   "pipeline-run",
		Short: "Build and run the security-telemetry pipeline engine's demo pipelines",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML settings file (optional)")
	root.PersistentFlags().StringVar(&demoName, "demo", "passthrough", "demo pipeline to build: passthrough|ysb|write-json")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve Prometheus metrics on")
	root.PersistentFlags().Int64Var(&rowsPerSec, "rows-per-second", 1000, "generator source rate")
	root.PersistentFlags().Int64Var(&maxRows, "max-rows", 0, "generator row cap (0 = unbounded)")

	root.AddCommand(runCmd())
	root.AddCommand(validateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build, start, and run a demo pipeline until it terminates",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			slog.SetLogLoggerLevel(settings.Level())

			server := metrics.ServeMetrics(metricsAddr)
			defer server.Shutdown(context.Background())

			p, _, err := buildDemo(demoName, settings)
			if err != nil {
				return err
			}

			slog.Info("starting pipeline", "demo", demoName, "nodes", len(p.Nodes()))
			return pipeline.RunWithGracefulShutdown(context.Background(), p, shutdownTimeout)
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "grace period before a forced exit")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Type-check a demo pipeline without starting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			p, _, err := buildDemo(demoName, settings)
			if err != nil {
				return err
			}
			fmt.Printf("demo %q is valid: %d node(s)\n", demoName, len(p.Nodes()))
			for _, n := range p.Nodes() {
				fmt.Printf("  %s (%s)\n", n.ID(), n.Operator().Name())
			}
			return nil
		},
	}
}

func loadSettings() (config.Settings, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// demoSchema is the row layout every built-in demo's Generator produces:
// a monotonically increasing id, a floating measurement, and a label,
// matching the shape the teacher's ysb-bench uses for its synthetic load.
var demoSchema = catalog.Schema{
	Name: "telemetry_event",
	Fields: []catalog.Field{
		{Name: "event_id", Type: "int64"},
		{Name: "value", Type: "float64"},
		{Name: "label", Type: "string"},
	},
}

// buildDemo constructs one of the named demo pipelines. Since the textual
// pipeline surface is out of scope, these stand in for what a parsed
// pipeline definition would have produced — each is a fixed, linear
// operator chain built directly in Go, in the same spirit as the
// teacher's ysb-bench comparing hand-built operator chains against a
// parsed plan.
func buildDemo(name string, settings config.Settings) (*pipeline.Pipeline, *diag.Bus, error) {
	alloc := memory.DefaultAllocator

	var chain []operator.Operator
	switch name {
	case "passthrough":
		chain = []operator.Operator{
			connectors.NewGenerator(demoSchema, rowsPerSec, maxRows, alloc),
			connectors.NewConsole(10),
		}
	case "ysb":
		chain = []operator.Operator{
			connectors.NewGenerator(demoSchema, rowsPerSec, maxRows, alloc),
			ops.NewFilter("value > 0.0", alloc),
			connectors.NewConsole(10),
		}
	case "write-json":
		sink, err := connectors.NewFileSink(os.DevNull)
		if err != nil {
			return nil, nil, err
		}
		printOps, err := pipeline.DesugarWrite(ops.NewJSONPrinter(), sink)
		if err != nil {
			return nil, nil, err
		}
		chain = append([]operator.Operator{
			connectors.NewGenerator(demoSchema, rowsPerSec, maxRows, alloc),
		}, printOps...)
	default:
		return nil, nil, fmt.Errorf("unknown demo %q (want passthrough|ysb|write-json)", name)
	}

	bus := diag.NewBus(name, metrics.ErrorCounter(), metrics.WarningCounter())
	env := node.Env{
		Schemas:              catalog.New(),
		Concepts:             catalog.New(),
		AllowUnsafePipelines: settings.AllowUnsafePipelines,
	}
	env.Schemas.PutSchema(demoSchema)

	p, err := pipeline.Build(name, chain, env, bus)
	if err != nil {
		return nil, nil, err
	}
	return p, bus, nil
}
