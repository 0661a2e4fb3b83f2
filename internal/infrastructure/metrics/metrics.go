package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Jobs
	JobsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "appgen_jobs_started_total",
			Help: "Total number of generation jobs admitted to the pipeline",
		},
	)
	JobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appgen_jobs_finished_total",
			Help: "Generation jobs by terminal outcome",
		},
		[]string{"result"}, // result: complete|error
	)
	ActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "appgen_jobs_active",
			Help: "Current number of running generation jobs",
		},
	)
	JobDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "appgen_job_duration_seconds",
			Help:    "Histogram of job durations in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 9), // 1s..256s
		},
	)

	// Stages
	StageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appgen_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	StageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appgen_stage_failures_total",
			Help: "Pipeline stage failures by stage",
		},
		[]string{"stage"},
	)
	GenerationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appgen_generation_attempts_total",
			Help: "Application synthesis attempts by result",
		},
		[]string{"result"}, // result: ok|fail
	)

	// Validation
	ValidationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appgen_validation_runs_total",
			Help: "Static validation runs by result",
		},
		[]string{"result"}, // result: pass|warn|fail|corrected
	)

	// Reuse cache
	ReuseLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appgen_reuse_lookups_total",
			Help: "Similarity lookups against generation history",
		},
		[]string{"result"}, // result: hit|miss
	)
	HistoryEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "appgen_history_entries",
			Help: "Number of entries in the in-memory generation history",
		},
	)

	// Rate limiting
	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appgen_rate_limit_decisions_total",
			Help: "Rate limiter decisions",
		},
		[]string{"decision"}, // decision: allow|deny
	)

	// LLM
	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appgen_llm_requests_total",
			Help: "Number of LLM requests by model and capability",
		},
		[]string{"model", "capability"},
	)

	// Streams
	OpenStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "appgen_open_streams",
			Help: "Currently open progress streams by transport",
		},
		[]string{"transport"}, // transport: sse|ws
	)

	// DB / file storage ops
	StoreOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appgen_store_ops_total",
			Help: "Storage operations performed",
		},
		[]string{"store", "op"},
	)

	// HTTP
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "path"},
	)
	HTTPErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of HTTP request errors.",
		},
		[]string{"method", "path", "status"},
	)

	// Errors
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appgen_errors_total",
			Help: "Errors encountered in components",
		},
		[]string{"component", "type"},
	)
)

func init() {
	prometheus.MustRegister(
		// Jobs
		JobsStarted,
		JobsFinished,
		ActiveJobs,
		JobDurationSeconds,
		// Stages
		StageDurationSeconds,
		StageFailures,
		GenerationAttempts,
		ValidationRuns,
		// Reuse
		ReuseLookups,
		HistoryEntries,
		// Rate limit
		RateLimitDecisions,
		// LLM
		LLMRequests,
		// Streams
		OpenStreams,
		// Store
		StoreOps,
		// HTTP
		HTTPRequestDuration,
		HTTPRequests,
		HTTPErrors,
		// Errors
		Errors,
	)
}

// StartMetricsServer serves /metrics on its own listener until the process exits.
func StartMetricsServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

// Jobs
func IncJobStarted() {
	JobsStarted.Inc()
	ActiveJobs.Inc()
}

func IncJobFinished(result string, d time.Duration) {
	JobsFinished.WithLabelValues(result).Inc()
	ActiveJobs.Dec()
	JobDurationSeconds.Observe(d.Seconds())
}

// Stages
func ObserveStageDuration(stage string, d time.Duration) {
	StageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

func IncStageFailure(stage string) {
	StageFailures.WithLabelValues(stage).Inc()
}

func IncGenerationAttempt(ok bool) {
	if ok {
		GenerationAttempts.WithLabelValues("ok").Inc()
		return
	}
	GenerationAttempts.WithLabelValues("fail").Inc()
}

// Validation
func IncValidationRun(result string) {
	ValidationRuns.WithLabelValues(result).Inc()
}

// Reuse
func IncReuseLookup(hit bool) {
	if hit {
		ReuseLookups.WithLabelValues("hit").Inc()
		return
	}
	ReuseLookups.WithLabelValues("miss").Inc()
}

func SetHistoryEntries(n int) {
	HistoryEntries.Set(float64(n))
}

// Rate limit
func IncRateLimitDecision(allowed bool) {
	if allowed {
		RateLimitDecisions.WithLabelValues("allow").Inc()
		return
	}
	RateLimitDecisions.WithLabelValues("deny").Inc()
}

// LLM
func IncLLMRequest(model, capability string) {
	LLMRequests.WithLabelValues(model, capability).Inc()
}

// Streams
func IncOpenStreams(transport string) {
	OpenStreams.WithLabelValues(transport).Inc()
}

func DecOpenStreams(transport string) {
	OpenStreams.WithLabelValues(transport).Dec()
}

// Store ops
func IncStoreOp(store, op string) {
	StoreOps.WithLabelValues(store, op).Inc()
}

// HTTP
func ObserveHTTPRequest(method, path string, status int, d time.Duration) {
	statusStr := strconv.Itoa(status)
	HTTPRequests.WithLabelValues(method, path).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(d.Seconds())
	if status >= 400 {
		HTTPErrors.WithLabelValues(method, path, statusStr).Inc()
	}
}

// Errors
func IncError(component, typ string) {
	Errors.WithLabelValues(component, typ).Inc()
}
