// Package metrics provides Prometheus instrumentation for the pipeline
// engine, generalized from the teacher's (sandboxws/isotope) per-operator
// counters to the execution node's full lifecycle: rows/batches/bytes
// processed, buffer occupancy, and diagnostics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	rowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_rows_processed_total",
		Help: "Total number of rows processed by node",
	}, []string{"node_id", "operator_name"})

	bytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_bytes_processed_total",
		Help: "Total number of bytes processed by node",
	}, []string{"node_id", "operator_name"})

	elementsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_elements_processed_total",
		Help: "Total number of elements advanced by node",
	}, []string{"node_id", "operator_name"})

	advanceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_advance_latency_seconds",
		Help:    "Latency of a single operator sequence advance",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	}, []string{"node_id", "operator_name"})

	diagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_diagnostics_total",
		Help: "Total number of diagnostics reported to the bus",
	}, []string{"severity"})

	inboundOccupancy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_inbound_buffer_occupancy",
		Help: "Current inbound buffer size (rows or bytes depending on element kind)",
	}, []string{"node_id", "operator_name"})

	outboundOccupancy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_outbound_buffer_occupancy",
		Help: "Current outbound buffer size (rows or bytes depending on element kind)",
	}, []string{"node_id", "operator_name"})

	demandDeadlineMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_demand_deadline_misses_total",
		Help: "Total number of pull demands forced to a partial delivery by their deadline",
	}, []string{"node_id", "operator_name"})
)

// NodeMetrics is the per-node Prometheus handle bundle, constructed once
// at node creation and threaded through the run loop.
type NodeMetrics struct {
	rows            prometheus.Counter
	bytes           prometheus.Counter
	elements        prometheus.Counter
	advanceLatency  prometheus.Observer
	inboundGauge    prometheus.Gauge
	outboundGauge   prometheus.Gauge
	deadlineMisses  prometheus.Counter
}

// NewNodeMetrics binds the package-level vectors to a specific node id and
// operator name.
func NewNodeMetrics(nodeID, operatorName string) *NodeMetrics {
	return &NodeMetrics{
		rows:           rowsProcessed.WithLabelValues(nodeID, operatorName),
		bytes:          bytesProcessed.WithLabelValues(nodeID, operatorName),
		elements:       elementsProcessed.WithLabelValues(nodeID, operatorName),
		advanceLatency: advanceLatency.WithLabelValues(nodeID, operatorName),
		inboundGauge:   inboundOccupancy.WithLabelValues(nodeID, operatorName),
		outboundGauge:  outboundOccupancy.WithLabelValues(nodeID, operatorName),
		deadlineMisses: demandDeadlineMisses.WithLabelValues(nodeID, operatorName),
	}
}

func (m *NodeMetrics) RecordRows(n int64)        { m.rows.Add(float64(n)) }
func (m *NodeMetrics) RecordBytes(n int64)       { m.bytes.Add(float64(n)) }
func (m *NodeMetrics) RecordElement()            { m.elements.Add(1) }
func (m *NodeMetrics) ObserveAdvance(seconds float64) { m.advanceLatency.Observe(seconds) }
func (m *NodeMetrics) SetInboundOccupancy(n int)  { m.inboundGauge.Set(float64(n)) }
func (m *NodeMetrics) SetOutboundOccupancy(n int) { m.outboundGauge.Set(float64(n)) }
func (m *NodeMetrics) RecordDeadlineMiss()        { m.deadlineMisses.Inc() }

// ErrorCounter and WarningCounter expose the bus-level diagnostic counters
// (spec §4.2) for diag.NewBus to increment.
func ErrorCounter() prometheus.Counter   { return diagnosticsTotal.WithLabelValues("error") }
func WarningCounter() prometheus.Counter { return diagnosticsTotal.WithLabelValues("warning") }

// ServeMetrics starts an HTTP server on addr serving Prometheus metrics at
// /metrics, exactly as the teacher's pkg/metrics.ServeMetrics does.
func ServeMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go server.ListenAndServe()
	return server
}
