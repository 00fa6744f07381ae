package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the engine. A nil *Collector
// records nothing, so components can run without metrics in tests.
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec

	// Engine metrics
	CacheEvents        *prometheus.CounterVec
	Rollbacks          *prometheus.CounterVec
	PollInvalidations  prometheus.Counter
	OfflineQueueDepth  prometheus.Gauge
	OfflineSyncResults *prometheus.CounterVec
	LiveFeeds          prometheus.Gauge
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of remote store operations",
			},
			[]string{"operation", "status"},
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Remote store operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_events_total",
				Help:      "Query cache changes by kind",
			},
			[]string{"kind"},
		),
		Rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "optimistic_rollbacks_total",
				Help:      "Optimistic mutations rolled back after a failed write",
			},
			[]string{"mutation"},
		),
		PollInvalidations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_invalidations_total",
				Help:      "Feed invalidations triggered by location polling",
			},
		),
		OfflineQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "offline_queue_pending",
				Help:      "Offline notes waiting to be synced",
			},
		),
		OfflineSyncResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "offline_sync_total",
				Help:      "Offline notes processed by drains",
			},
			[]string{"result"},
		),
		LiveFeeds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_feeds",
				Help:      "Open live feed subscriptions",
			},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.StoreOperations,
		c.StoreDuration,
		c.CacheEvents,
		c.Rollbacks,
		c.PollInvalidations,
		c.OfflineQueueDepth,
		c.OfflineSyncResults,
		c.LiveFeeds,
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordStoreOperation records one remote store call.
func (c *Collector) RecordStoreOperation(operation string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.StoreOperations.WithLabelValues(operation, status).Inc()
	c.StoreDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheEvent counts a cache change.
func (c *Collector) RecordCacheEvent(kind string) {
	if c == nil {
		return
	}
	c.CacheEvents.WithLabelValues(kind).Inc()
}

// RecordRollback counts an optimistic mutation that was undone.
func (c *Collector) RecordRollback(mutation string) {
	if c == nil {
		return
	}
	c.Rollbacks.WithLabelValues(mutation).Inc()
}

// RecordPollInvalidation counts a movement-triggered refetch.
func (c *Collector) RecordPollInvalidation() {
	if c == nil {
		return
	}
	c.PollInvalidations.Inc()
}

// SetOfflinePending publishes the number of unsynced offline notes.
func (c *Collector) SetOfflinePending(n int) {
	if c == nil {
		return
	}
	c.OfflineQueueDepth.Set(float64(n))
}

// RecordOfflineSync counts drain outcomes ("synced", "failed", "skipped").
func (c *Collector) RecordOfflineSync(result string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.OfflineSyncResults.WithLabelValues(result).Add(float64(n))
}

// SetLiveFeeds publishes the number of open live subscriptions.
func (c *Collector) SetLiveFeeds(n int) {
	if c == nil {
		return
	}
	c.LiveFeeds.Set(float64(n))
}
