// Package metrics provides Prometheus metrics for the staking tier service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Calculation outcomes used as the "outcome" label.
const (
	OutcomeOK               = "ok"
	OutcomeInsufficientData = "insufficient_data"
	OutcomeNoTiers          = "no_tiers"
	OutcomeError            = "error"
)

// Ledger event results used as the "result" label.
const (
	EventApplied   = "applied"
	EventDuplicate = "duplicate"
	EventFailed    = "failed"
)

var gcPauseBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000} //nolint:gochecknoglobals // fixed bucket layout

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Tier engine
	calculations       *prometheus.CounterVec
	calculationLatency prometheus.Histogram
	tierResolutions    *prometheus.CounterVec
	upgradesAvailable  prometheus.Counter
	tiersUnreachable   prometheus.Counter

	// Ledger ingestion
	ledgerEvents *prometheus.CounterVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActive            prometheus.Gauge
	workerIdle              prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Ledger store
	stakers            prometheus.Gauge
	poolTotal          prometheus.Gauge
	storeUpdateLatency prometheus.Histogram
	storeQueryLatency  prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// Runtime
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton behind the package-level helpers

// Custom registry keeps the exposition free of default Go collectors.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // shared registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "staketier",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(auto promauto.Factory, name, help string) prometheus.Counter {
	return auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(auto promauto.Factory, name, help string, labels ...string) *prometheus.CounterVec {
	return auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(auto promauto.Factory, name, help string) prometheus.Gauge {
	return auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(auto promauto.Factory, name, help string, buckets []float64) prometheus.Histogram {
	return auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)
	b := m.histogramBuckets

	m.calculations = m.counterVec(auto, "calculations_total", "Tier progress calculations by outcome", "outcome")
	m.calculationLatency = m.histogram(auto, "calculation_latency_milliseconds", "Tier progress calculation latency in milliseconds", b)
	m.tierResolutions = m.counterVec(auto, "tier_resolutions_total", "Resolved tiers by tier id", "tier")
	m.upgradesAvailable = m.counter(auto, "tier_upgrades_available_total", "Evaluations where the ledger tier lags the resolved tier")
	m.tiersUnreachable = m.counter(auto, "tier_unreachable_total", "Evaluations where the next tier cannot be reached under the fee")

	m.ledgerEvents = m.counterVec(auto, "ledger_events_total", "Ledger events by kind and result", "kind", "result")

	m.queueSize = m.gauge(auto, "queue_size", "Current number of queued ledger events")
	m.queueCapacity = m.gauge(auto, "queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge(auto, "queue_utilization_ratio", "Queue utilization ratio (size / capacity)")
	m.queueEnqueued = m.counter(auto, "queue_enqueue_total", "Ledger events enqueued")
	m.queueDequeued = m.counter(auto, "queue_dequeue_total", "Ledger events dequeued")
	m.queueEnqueueErrors = m.counter(auto, "queue_enqueue_errors_total", "Rejected enqueue attempts")
	m.queueProcessingLatency = m.histogram(auto, "queue_processing_latency_milliseconds", "Time from dequeue to applied event in milliseconds", b)

	m.workerCount = m.gauge(auto, "worker_count", "Configured number of workers")
	m.workerActive = m.gauge(auto, "worker_active_count", "Workers currently applying an event")
	m.workerIdle = m.gauge(auto, "worker_idle_count", "Workers waiting for events")
	m.workerProcessingLatency = m.histogram(auto, "worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", b)
	m.workerErrors = m.counter(auto, "worker_errors_total", "Events a worker failed to apply")

	m.stakers = m.gauge(auto, "stakers", "Accounts with a positive stake")
	m.poolTotal = m.gauge(auto, "pool_total_staked", "Total staked in the pool (approximate float)")
	m.storeUpdateLatency = m.histogram(auto, "store_update_latency_milliseconds", "Ledger store write latency in milliseconds", b)
	m.storeQueryLatency = m.histogram(auto, "store_query_latency_milliseconds", "Ledger store read latency in milliseconds", b)

	m.httpRequests = m.counterVec(auto, "http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: b,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec(auto, "errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec(auto, "errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge(auto, "system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge(auto, "system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram(auto, "system_gc_pause_time_milliseconds", "Last GC pause in milliseconds", gcPauseBuckets)
}

func on() bool { return globalManager.enabled }

// RecordCalculation counts one engine calculation and its latency.
func RecordCalculation(outcome string, latencyMs float64) {
	if !on() {
		return
	}
	globalManager.calculations.WithLabelValues(outcome).Inc()
	globalManager.calculationLatency.Observe(latencyMs)
}

// RecordTierResolution counts a resolved tier.
func RecordTierResolution(tierID string) {
	if !on() {
		return
	}
	globalManager.tierResolutions.WithLabelValues(tierID).Inc()
}

// RecordUpgradeAvailable counts an evaluation where the recorded tier lags.
func RecordUpgradeAvailable() {
	if !on() {
		return
	}
	globalManager.upgradesAvailable.Inc()
}

// RecordTierUnreachable counts an evaluation whose next tier is out of reach.
func RecordTierUnreachable() {
	if !on() {
		return
	}
	globalManager.tiersUnreachable.Inc()
}

// RecordLedgerEvent counts an ingested ledger event by kind and result.
func RecordLedgerEvent(kind, result string) {
	if !on() {
		return
	}
	globalManager.ledgerEvents.WithLabelValues(kind, result).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if !on() {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !on() {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	if !on() {
		return
	}
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if !on() {
		return
	}
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if !on() {
		return
	}
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if !on() {
		return
	}
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	if !on() {
		return
	}
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	if !on() {
		return
	}
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	if !on() {
		return
	}
	globalManager.workerActive.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	if !on() {
		return
	}
	globalManager.workerIdle.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if !on() {
		return
	}
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if !on() {
		return
	}
	globalManager.workerErrors.Inc()
}

// UpdateStakers sets the number of accounts with a positive stake.
func UpdateStakers(count int) {
	if !on() {
		return
	}
	globalManager.stakers.Set(float64(count))
}

// UpdatePoolTotal sets the pool total gauge.
func UpdatePoolTotal(total float64) {
	if !on() {
		return
	}
	globalManager.poolTotal.Set(total)
}

// RecordStoreUpdateLatency records a ledger store write.
func RecordStoreUpdateLatency(latencyMs float64) {
	if !on() {
		return
	}
	globalManager.storeUpdateLatency.Observe(latencyMs)
}

// RecordStoreQueryLatency records a ledger store read.
func RecordStoreQueryLatency(latencyMs float64) {
	if !on() {
		return
	}
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if !on() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !on() {
		return
	}
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method and type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !on() {
		return
	}
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !on() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !on() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !on() {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry backing the package-level helpers.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
