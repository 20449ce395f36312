package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc/codes"
)

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	grpcRequests *prometheus.CounterVec
	grpcDuration *prometheus.HistogramVec
	grpcErrors   *prometheus.CounterVec

	relationFetches  *prometheus.CounterVec
	relationRows     *prometheus.CounterVec
	relationErrors   *prometheus.CounterVec
	relationDuration *prometheus.HistogramVec

	statements        *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
}

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0}

// NewPrometheusExporter creates a new Prometheus exporter registered with reg.
// Expression cache metrics are read from the collector at scrape time.
func NewPrometheusExporter(collector *Collector, reg prometheus.Registerer) *PrometheusExporter {
	factory := promauto.With(reg)

	cacheMetric := func(read func(m *CacheMetrics) float64) func() float64 {
		return func() float64 { return read(collector.GetCacheMetrics()) }
	}
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "relgraph_expression_cache_hits_total",
		Help: "Total number of parsed expression cache hits",
	}, cacheMetric(func(m *CacheMetrics) float64 { return float64(m.Hits) }))
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "relgraph_expression_cache_misses_total",
		Help: "Total number of parsed expression cache misses",
	}, cacheMetric(func(m *CacheMetrics) float64 { return float64(m.Misses) }))
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "relgraph_expression_cache_evictions_total",
		Help: "Total number of expression cache evictions due to memory limits",
	}, cacheMetric(func(m *CacheMetrics) float64 { return float64(m.Evictions) }))
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "relgraph_expression_cache_hit_rate",
		Help: "Current expression cache hit rate (0.0 to 1.0)",
	}, cacheMetric(func(m *CacheMetrics) float64 { return m.HitRate }))
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "relgraph_expression_cache_keys_current",
		Help: "Current number of parsed expressions in the cache",
	}, cacheMetric(func(m *CacheMetrics) float64 { return float64(m.KeysCurrent) }))
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "relgraph_expression_cache_memory_bytes",
		Help: "Current estimated memory usage of the expression cache in bytes",
	}, cacheMetric(func(m *CacheMetrics) float64 { return float64(m.MemoryBytes) }))

	return &PrometheusExporter{
		collector: collector,
		grpcRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relgraph_grpc_requests_total",
			Help: "Total number of gRPC requests",
		}, []string{"method"}),
		grpcDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relgraph_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: durationBuckets,
		}, []string{"method"}),
		grpcErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relgraph_grpc_errors_total",
			Help: "Total number of failed gRPC requests by status code",
		}, []string{"method", "code"}),
		relationFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relgraph_relation_fetches_total",
			Help: "Total number of batched relation fetches",
		}, []string{"model", "relation"}),
		relationRows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relgraph_relation_fetch_rows_total",
			Help: "Total number of related rows returned by relation fetches",
		}, []string{"model", "relation"}),
		relationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relgraph_relation_fetch_errors_total",
			Help: "Total number of failed relation fetches",
		}, []string{"model", "relation"}),
		relationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relgraph_relation_fetch_duration_seconds",
			Help:    "Duration of batched relation fetches in seconds",
			Buckets: durationBuckets,
		}, []string{"model", "relation"}),
		statements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relgraph_statements_total",
			Help: "Total number of executed statements",
		}, []string{"op", "table"}),
		statementDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relgraph_statement_duration_seconds",
			Help:    "Duration of executed statements in seconds",
			Buckets: durationBuckets,
		}, []string{"op"}),
	}
}

// RecordRequest records a request in Prometheus.
func (e *PrometheusExporter) RecordRequest(method string) {
	e.grpcRequests.WithLabelValues(method).Inc()
}

// RecordDuration records a duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(method string, durationSeconds float64) {
	e.grpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordError records a failed request in Prometheus.
func (e *PrometheusExporter) RecordError(method string, code codes.Code) {
	e.grpcErrors.WithLabelValues(method, code.String()).Inc()
}

// RecordFetch records a batched relation fetch in Prometheus.
func (e *PrometheusExporter) RecordFetch(model, relation string, owners, rows int, d time.Duration, err error) {
	e.relationFetches.WithLabelValues(model, relation).Inc()
	e.relationRows.WithLabelValues(model, relation).Add(float64(rows))
	e.relationDuration.WithLabelValues(model, relation).Observe(d.Seconds())
	if err != nil {
		e.relationErrors.WithLabelValues(model, relation).Inc()
	}
}

// ObserveStatement records an executed statement in Prometheus.
func (e *PrometheusExporter) ObserveStatement(op, table string, d time.Duration, _ error) {
	e.statements.WithLabelValues(op, table).Inc()
	e.statementDuration.WithLabelValues(op).Observe(d.Seconds())
}
