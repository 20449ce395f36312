package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/asakaida/relgraph/pkg/cache"
)

// CacheStats is the part of the expression cache the collector reads.
type CacheStats interface {
	Metrics() *cache.Metrics
	Len() int
	Size() int64
}

// Collector collects and aggregates metrics for the application.
type Collector struct {
	// API metrics
	apiRequests sync.Map // map[string]*uint64 - method -> count
	apiErrors   sync.Map // map[string]*uint64 - method -> error count
	apiCodes    sync.Map // map[string]*uint64 - "method code" -> error count
	apiDuration sync.Map // map[string]*durationValue - method -> total duration in seconds

	// Relation fetch metrics, keyed by "Model.relation"
	fetches     sync.Map // map[string]*uint64
	fetchRows   sync.Map // map[string]*uint64
	fetchErrors sync.Map // map[string]*uint64

	// Statement metrics, keyed by "op table"
	statements sync.Map // map[string]*uint64

	// Expression cache (optional)
	cache CacheStats
}

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds expression cache metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	KeysCurrent int64
	MemoryBytes int64
	Evictions   uint64
}

// APIMetrics holds API request metrics.
type APIMetrics struct {
	RequestCounts        map[string]uint64
	ErrorCounts          map[string]uint64
	ErrorCodes           map[string]uint64 // keyed by "method code"
	TotalDurationSeconds map[string]float64
}

// FetchMetrics holds relation fetch metrics keyed by "Model.relation".
type FetchMetrics struct {
	Fetches map[string]uint64
	Rows    map[string]uint64
	Errors  map[string]uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the expression cache for collecting cache metrics.
func (c *Collector) SetCache(cache CacheStats) {
	c.cache = cache
}

// RecordRequest records an API request.
func (c *Collector) RecordRequest(method string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.apiRequests, method), 1)
}

// RecordError records a failed API call and its status code.
func (c *Collector) RecordError(method string, code codes.Code) {
	atomic.AddUint64(c.getOrCreateCounter(&c.apiErrors, method), 1)
	atomic.AddUint64(c.getOrCreateCounter(&c.apiCodes, method+" "+code.String()), 1)
}

// RecordDuration records the duration of an API call in seconds.
func (c *Collector) RecordDuration(method string, durationSeconds float64) {
	val, _ := c.apiDuration.LoadOrStore(method, &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// RecordFetch records one batched relation fetch.
func (c *Collector) RecordFetch(model, relation string, owners, rows int, _ time.Duration, err error) {
	key := model + "." + relation
	atomic.AddUint64(c.getOrCreateCounter(&c.fetches, key), 1)
	atomic.AddUint64(c.getOrCreateCounter(&c.fetchRows, key), uint64(rows))
	if err != nil {
		atomic.AddUint64(c.getOrCreateCounter(&c.fetchErrors, key), 1)
	}
}

// ObserveStatement records one executed statement. It has the shape of
// repositories.Observer.
func (c *Collector) ObserveStatement(op, table string, _ time.Duration, _ error) {
	atomic.AddUint64(c.getOrCreateCounter(&c.statements, op+" "+table), 1)
}

// GetCacheMetrics returns current cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}

	metrics := c.cache.Metrics()
	if metrics == nil {
		return &CacheMetrics{}
	}

	return &CacheMetrics{
		Hits:        metrics.Hits,
		Misses:      metrics.Misses,
		HitRate:     metrics.HitRate(),
		Evictions:   metrics.KeysEvicted,
		KeysCurrent: int64(c.cache.Len()),
		MemoryBytes: c.cache.Size(),
	}
}

// GetAPIMetrics returns current API metrics.
func (c *Collector) GetAPIMetrics() *APIMetrics {
	result := &APIMetrics{
		RequestCounts:        snapshot(&c.apiRequests),
		ErrorCounts:          snapshot(&c.apiErrors),
		ErrorCodes:           snapshot(&c.apiCodes),
		TotalDurationSeconds: make(map[string]float64),
	}

	c.apiDuration.Range(func(key, value any) bool {
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[key.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

// GetFetchMetrics returns current relation fetch metrics.
func (c *Collector) GetFetchMetrics() *FetchMetrics {
	return &FetchMetrics{
		Fetches: snapshot(&c.fetches),
		Rows:    snapshot(&c.fetchRows),
		Errors:  snapshot(&c.fetchErrors),
	}
}

// GetStatementCounts returns executed statements keyed by "op table".
func (c *Collector) GetStatementCounts() map[string]uint64 {
	return snapshot(&c.statements)
}

// getOrCreateCounter gets or creates a counter for the given key.
func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}

func snapshot(m *sync.Map) map[string]uint64 {
	out := make(map[string]uint64)
	m.Range(func(key, value any) bool {
		out[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	return out
}
