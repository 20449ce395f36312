package metrics

import (
	"time"

	"google.golang.org/grpc/status"
)

// Recorder fans gRPC call, relation fetch and statement observations out
// to the collector and, when set, the Prometheus exporter.
type Recorder struct {
	collector *Collector
	exporter  *PrometheusExporter
}

// NewRecorder creates a recorder; exporter may be nil.
func NewRecorder(collector *Collector, exporter *PrometheusExporter) *Recorder {
	return &Recorder{collector: collector, exporter: exporter}
}

// RecordCall records one finished gRPC call. A non-nil err is counted
// under its status code.
func (r *Recorder) RecordCall(method string, d time.Duration, err error) {
	r.collector.RecordRequest(method)
	r.collector.RecordDuration(method, d.Seconds())
	if err != nil {
		r.collector.RecordError(method, status.Code(err))
	}

	if r.exporter == nil {
		return
	}
	r.exporter.RecordRequest(method)
	r.exporter.RecordDuration(method, d.Seconds())
	if err != nil {
		r.exporter.RecordError(method, status.Code(err))
	}
}

// RecordFetch records one batched relation fetch.
func (r *Recorder) RecordFetch(model, relation string, owners, rows int, d time.Duration, err error) {
	r.collector.RecordFetch(model, relation, owners, rows, d, err)
	if r.exporter != nil {
		r.exporter.RecordFetch(model, relation, owners, rows, d, err)
	}
}

// ObserveStatement records one executed statement; pass it to repositories.Observe.
func (r *Recorder) ObserveStatement(op, table string, d time.Duration, err error) {
	r.collector.ObserveStatement(op, table, d, err)
	if r.exporter != nil {
		r.exporter.ObserveStatement(op, table, d, err)
	}
}
