package infrastructure

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the pipeline's prometheus registry and collectors
type Metrics struct {
	Registry *prometheus.Registry

	TasksFetched        *prometheus.CounterVec
	FetchRetries        *prometheus.CounterVec
	SilverRows          *prometheus.GaugeVec
	SourcesJoined       *prometheus.CounterVec
	GoldRows            prometheus.Gauge
	RowsLabeled         prometheus.Counter
	LabelNA             *prometheus.GaugeVec
	RecordsExported     *prometheus.CounterVec
	LookaheadViolations *prometheus.GaugeVec
	StageDuration       *prometheus.HistogramVec

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the pipeline collectors plus Go and process
// collectors on a fresh registry
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		TasksFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "tasks_total",
			Help: "Fetch tasks by interface and outcome.",
		}, []string{"interface", "status"}),
		FetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "retries_total",
			Help: "Retried fetch attempts by interface.",
		}, []string{"interface"}),
		SilverRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "normalize", Name: "silver_rows",
			Help: "Rows in the consolidated silver table of an interface.",
		}, []string{"interface"}),
		SourcesJoined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "assemble", Name: "sources_total",
			Help: "Sources processed by the join engine by outcome.",
		}, []string{"interface", "status"}),
		GoldRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "assemble", Name: "gold_rows",
			Help: "Rows in the gold feature table.",
		}),
		RowsLabeled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "label", Name: "rows_total",
			Help: "Gold rows labeled.",
		}),
		LabelNA: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "label", Name: "na",
			Help: "Unavailable labels by horizon.",
		}, []string{"horizon"}),
		RecordsExported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "export", Name: "records_total",
			Help: "Exported records by format.",
		}, []string{"format"}),
		LookaheadViolations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "audit", Name: "lookahead_violations",
			Help: "Rows whose effective date is after the observation date.",
		}, []string{"column"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "stage_duration_seconds",
			Help:    "Stage wall time.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage", "status"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Report server requests by route and status code.",
		}, []string{"method", "route", "code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Report server request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TasksFetched,
		m.FetchRetries,
		m.SilverRows,
		m.SourcesJoined,
		m.GoldRows,
		m.RowsLabeled,
		m.LabelNA,
		m.RecordsExported,
		m.LookaheadViolations,
		m.StageDuration,
		m.HTTPRequests,
		m.HTTPRequestDuration,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// WriteTextfile writes the registry to path for textfile collection
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
