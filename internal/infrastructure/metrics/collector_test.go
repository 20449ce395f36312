package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/asakaida/relgraph/pkg/cache/memorycache"
)

func TestCollector_RecordFetch(t *testing.T) {
	collector := NewCollector()

	collector.RecordFetch("Person", "pets", 3, 4, time.Millisecond, nil)
	collector.RecordFetch("Person", "pets", 1, 0, time.Millisecond, errors.New("boom"))

	fetches := collector.GetFetchMetrics()
	if got := fetches.Fetches["Person.pets"]; got != 2 {
		t.Errorf("expected 2 fetches, got %d", got)
	}
	if got := fetches.Rows["Person.pets"]; got != 4 {
		t.Errorf("expected 4 rows, got %d", got)
	}
	if got := fetches.Errors["Person.pets"]; got != 1 {
		t.Errorf("expected 1 error, got %d", got)
	}
}

func TestCollector_ObserveStatement(t *testing.T) {
	collector := NewCollector()

	collector.ObserveStatement("select", "animals", time.Millisecond, nil)
	collector.ObserveStatement("select", "animals", time.Millisecond, nil)
	collector.ObserveStatement("insert", "persons", time.Millisecond, nil)

	counts := collector.GetStatementCounts()
	if counts["select animals"] != 2 || counts["insert persons"] != 1 {
		t.Errorf("unexpected statement counts: %v", counts)
	}
}

func TestCollector_CacheMetrics(t *testing.T) {
	t.Run("without cache", func(t *testing.T) {
		m := NewCollector().GetCacheMetrics()
		if m.Hits != 0 || m.KeysCurrent != 0 {
			t.Errorf("expected zero metrics, got %+v", m)
		}
	})

	t.Run("with cache", func(t *testing.T) {
		ctx := context.Background()
		c := memorycache.New(&memorycache.Config[string]{MaxSizeBytes: 1 << 20, DefaultTTL: time.Minute, EnableMetrics: true})
		c.Set(ctx, "pets", "parsed", 0)
		c.Get(ctx, "pets")
		c.Get(ctx, "missing")

		collector := NewCollector()
		collector.SetCache(c)

		m := collector.GetCacheMetrics()
		if m.Hits != 1 || m.Misses != 1 {
			t.Errorf("expected 1 hit and 1 miss, got %+v", m)
		}
		if m.KeysCurrent != 1 {
			t.Errorf("expected 1 key, got %d", m.KeysCurrent)
		}
		if m.HitRate != 0.5 {
			t.Errorf("expected hit rate 0.5, got %v", m.HitRate)
		}
	})
}

func TestPrometheusExporter_Fetches(t *testing.T) {
	collector := NewCollector()
	exporter := NewPrometheusExporter(collector, prometheus.NewRegistry())
	recorder := NewRecorder(collector, exporter)

	recorder.RecordFetch("Person", "movies", 2, 3, 5*time.Millisecond, nil)
	recorder.ObserveStatement("select", "movies", time.Millisecond, nil)

	if got := testutil.ToFloat64(exporter.relationFetches.WithLabelValues("Person", "movies")); got != 1 {
		t.Errorf("expected 1 fetch, got %v", got)
	}
	if got := testutil.ToFloat64(exporter.relationRows.WithLabelValues("Person", "movies")); got != 3 {
		t.Errorf("expected 3 rows, got %v", got)
	}
	if got := testutil.ToFloat64(exporter.statements.WithLabelValues("select", "movies")); got != 1 {
		t.Errorf("expected 1 statement, got %v", got)
	}
	if got := collector.GetFetchMetrics().Fetches["Person.movies"]; got != 1 {
		t.Errorf("expected collector to see the fetch, got %d", got)
	}
}

func TestPrometheusExporter_CacheGauges(t *testing.T) {
	ctx := context.Background()
	c := memorycache.New(&memorycache.Config[string]{MaxSizeBytes: 1 << 20, DefaultTTL: time.Minute, EnableMetrics: true})
	c.Set(ctx, "pets", "parsed", 0)
	c.Get(ctx, "pets")

	collector := NewCollector()
	collector.SetCache(c)
	reg := prometheus.NewRegistry()
	NewPrometheusExporter(collector, reg)

	expected := `
# HELP relgraph_expression_cache_hits_total Total number of parsed expression cache hits
# TYPE relgraph_expression_cache_hits_total counter
relgraph_expression_cache_hits_total 1
# HELP relgraph_expression_cache_keys_current Current number of parsed expressions in the cache
# TYPE relgraph_expression_cache_keys_current gauge
relgraph_expression_cache_keys_current 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"relgraph_expression_cache_hits_total", "relgraph_expression_cache_keys_current")
	if err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}
