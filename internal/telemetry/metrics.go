package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/smartschedule"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Permission cache metrics
	PermissionCacheHits      metric.Int64Counter
	PermissionCacheMisses    metric.Int64Counter
	PermissionFetches        metric.Int64Counter
	PermissionFetchErrors    metric.Int64Counter
	PermissionFetchDuration  metric.Float64Histogram
	PermissionEvictions      metric.Int64Counter
	PermissionStaleDiscarded metric.Int64Counter

	// Gate metrics
	GateDecisions metric.Int64Counter

	// Backend client metrics
	BackendRequests metric.Int64Counter
	BackendRetries  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.PermissionCacheHits, _ = meter.Int64Counter(
		"smartschedule.permissions.cache.hits.total",
		metric.WithDescription("Permission reads served from a fresh cache entry"),
		metric.WithUnit("{read}"),
	)

	m.PermissionCacheMisses, _ = meter.Int64Counter(
		"smartschedule.permissions.cache.misses.total",
		metric.WithDescription("Permission reads that required a fetch"),
		metric.WithUnit("{read}"),
	)

	m.PermissionFetches, _ = meter.Int64Counter(
		"smartschedule.permissions.fetches.total",
		metric.WithDescription("Permission snapshot fetches issued to the backend"),
		metric.WithUnit("{fetch}"),
	)

	m.PermissionFetchErrors, _ = meter.Int64Counter(
		"smartschedule.permissions.fetch.errors.total",
		metric.WithDescription("Permission snapshot fetches that failed"),
		metric.WithUnit("{error}"),
	)

	m.PermissionFetchDuration, _ = meter.Float64Histogram(
		"smartschedule.permissions.fetch.duration",
		metric.WithDescription("Duration of permission snapshot fetches"),
		metric.WithUnit("ms"),
	)

	m.PermissionEvictions, _ = meter.Int64Counter(
		"smartschedule.permissions.cache.evictions.total",
		metric.WithDescription("Idle permission entries evicted"),
		metric.WithUnit("{entry}"),
	)

	m.PermissionStaleDiscarded, _ = meter.Int64Counter(
		"smartschedule.permissions.stale_discarded.total",
		metric.WithDescription("Fetch results discarded because a newer result or reset superseded them"),
		metric.WithUnit("{fetch}"),
	)

	m.GateDecisions, _ = meter.Int64Counter(
		"smartschedule.gate.decisions.total",
		metric.WithDescription("Route and permission gate decisions"),
		metric.WithUnit("{decision}"),
	)

	m.BackendRequests, _ = meter.Int64Counter(
		"smartschedule.backend.requests.total",
		metric.WithDescription("Requests sent to the SmartSchedule backend"),
		metric.WithUnit("{request}"),
	)

	m.BackendRetries, _ = meter.Int64Counter(
		"smartschedule.backend.retries.total",
		metric.WithDescription("Record reads retried after a transient failure"),
		metric.WithUnit("{retry}"),
	)

	return m
}
