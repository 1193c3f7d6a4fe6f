// Package metrics provides Prometheus metrics for the agentmatch service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by callers.
const (
	ResultGranted = "granted"
	ResultDenied  = "denied"

	GeneratorErrorTimeout   = "timeout"
	GeneratorErrorMalformed = "malformed"
	GeneratorErrorFailure   = "failure"
)

// scoreBuckets cover the 0-100 score range in steps of 10.
var scoreBuckets = prometheus.LinearBuckets(10, 10, 10) //nolint:gochecknoglobals // constant bucket layout

// Manager manages all Prometheus metrics for the agentmatch service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Dispatch metrics
	dispatchRequests *prometheus.CounterVec
	jobTransitions   *prometheus.CounterVec
	jobDuration      prometheus.Histogram
	inflightPairs    prometheus.Gauge
	autoDispatchRuns *prometheus.CounterVec

	// Generator metrics
	generatorLatency prometheus.Histogram
	generatorErrors  *prometheus.CounterVec
	generatorRetries prometheus.Counter

	// Quota metrics
	quotaReservations *prometheus.CounterVec
	quotaReleases     prometheus.Counter

	// Matching metrics
	matchScore        prometheus.Histogram
	rankingLatency    prometheus.Histogram
	rankingCandidates prometheus.Histogram
	profilesTotal     prometheus.Gauge

	// Queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "agentmatch",
		subsystem:        "service",
		histogramBuckets: prometheus.ExponentialBuckets(1, 2, 16), // 1ms .. ~33s
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	m.dispatchRequests = m.counterVec("dispatch_requests_total",
		"Dispatch requests by synchronous outcome", "outcome")
	m.jobTransitions = m.counterVec("dispatch_job_transitions_total",
		"Dispatch job state transitions by target state", "state")
	m.jobDuration = m.histogram("dispatch_job_duration_milliseconds",
		"Time from job start to terminal state", m.histogramBuckets)
	m.inflightPairs = m.gauge("dispatch_inflight_pairs",
		"Subject/candidate pairs with a non-terminal job")
	m.autoDispatchRuns = m.counterVec("auto_dispatch_runs_total",
		"Auto-dispatch runs by result", "result")

	m.generatorLatency = m.histogram("generator_latency_milliseconds",
		"Latency of conversation generator attempts", m.histogramBuckets)
	m.generatorErrors = m.counterVec("generator_errors_total",
		"Conversation generator failures by kind", "kind")
	m.generatorRetries = m.counter("generator_retries_total",
		"Conversation generator retries")

	m.quotaReservations = m.counterVec("quota_reservations_total",
		"Quota reservation attempts by result", "result")
	m.quotaReleases = m.counter("quota_releases_total",
		"Reservations returned because no job could be queued")

	m.matchScore = m.histogram("match_score",
		"Distribution of computed match totals", scoreBuckets)
	m.rankingLatency = m.histogram("ranking_latency_milliseconds",
		"Time to rank a candidate pool", m.histogramBuckets)
	m.rankingCandidates = m.histogram("ranking_candidates",
		"Candidates scored per ranking", prometheus.ExponentialBuckets(1, 4, 8))
	m.profilesTotal = m.gauge("profiles_total",
		"Profiles known to the service")

	m.queueSize = m.gauge("queue_size", "Current number of queued dispatch tasks")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued dispatch tasks")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Tasks accepted by the queue")
	m.queueDequeued = m.counter("queue_dequeued_total", "Tasks taken by workers")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Tasks rejected because the queue was full or closed")

	m.workerCount = m.gauge("worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently executing a job")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time a worker spends on one task", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Tasks that ended with an execution error")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_total",
		"Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Most recent GC pause", m.histogramBuckets)
}

// RecordDispatchRequest counts a dispatch request by outcome.
func RecordDispatchRequest(outcome string) {
	globalManager.dispatchRequests.WithLabelValues(outcome).Inc()
}

// RecordJobTransition counts a job entering state.
func RecordJobTransition(state string) {
	globalManager.jobTransitions.WithLabelValues(state).Inc()
}

// RecordJobDuration records how long a job ran.
func RecordJobDuration(ms float64) {
	globalManager.jobDuration.Observe(ms)
}

// UpdateInflightPairs sets the in-flight pair gauge.
func UpdateInflightPairs(n int64) {
	globalManager.inflightPairs.Set(float64(n))
}

// RecordAutoDispatchRun counts an auto-dispatch run.
func RecordAutoDispatchRun(result string) {
	globalManager.autoDispatchRuns.WithLabelValues(result).Inc()
}

// RecordGeneratorLatency records one generator attempt.
func RecordGeneratorLatency(ms float64) {
	globalManager.generatorLatency.Observe(ms)
}

// RecordGeneratorError counts a generator failure by kind.
func RecordGeneratorError(kind string) {
	globalManager.generatorErrors.WithLabelValues(kind).Inc()
}

// RecordGeneratorRetry counts a generator retry.
func RecordGeneratorRetry() {
	globalManager.generatorRetries.Inc()
}

// RecordQuotaReservation counts a reservation attempt.
func RecordQuotaReservation(granted bool) {
	result := ResultDenied
	if granted {
		result = ResultGranted
	}
	globalManager.quotaReservations.WithLabelValues(result).Inc()
}

// RecordQuotaRelease counts a compensating release.
func RecordQuotaRelease() {
	globalManager.quotaReleases.Inc()
}

// RecordMatchScore observes a computed match total.
func RecordMatchScore(total int) {
	globalManager.matchScore.Observe(float64(total))
}

// RecordRanking records ranking latency and pool size.
func RecordRanking(candidates int, latencyMs float64) {
	globalManager.rankingLatency.Observe(latencyMs)
	globalManager.rankingCandidates.Observe(float64(candidates))
}

// UpdateProfilesTotal sets the number of known profiles.
func UpdateProfilesTotal(n int) {
	globalManager.profilesTotal.Set(float64(n))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
