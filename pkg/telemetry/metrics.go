package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the control plane.
type Metrics struct {
	config MetricsConfig

	// Generation metrics
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	correctionAttempts *prometheus.CounterVec

	// LLM provider metrics
	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokens       *prometheus.CounterVec

	// Cache metrics
	cacheOps *prometheus.CounterVec

	// Validation metrics
	validationsTotal *prometheus.CounterVec

	// Execution metrics
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	stepsExecuted     *prometheus.CounterVec

	// History storage metrics
	historyWrites *prometheus.CounterVec

	// Error metrics
	errorsByCode *prometheus.CounterVec

	// API metrics
	apiRequests        *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec

	// System metrics
	activeExecutions prometheus.Gauge
	wsConnections    prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),

		generationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total number of plan generation requests",
			},
			[]string{"provider", "status", "cached"},
		),

		generationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Plan generation duration in seconds",
				Buckets:   buckets,
			},
			[]string{"provider"},
		),

		correctionAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "correction_attempts_total",
				Help:      "Total number of self-correction attempts during generation",
			},
			[]string{"provider"},
		),

		llmCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_calls_total",
				Help:      "Total number of LLM back-end calls",
			},
			[]string{"provider", "model", "status"},
		),

		llmCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_call_duration_seconds",
				Help:      "LLM back-end call duration in seconds",
				Buckets:   buckets,
			},
			[]string{"provider"},
		),

		llmTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_total",
				Help:      "Total LLM tokens consumed",
			},
			[]string{"provider", "direction"},
		),

		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_operations_total",
				Help:      "Total plan cache operations by outcome",
			},
			[]string{"operation"},
		),

		validationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Total plan validations by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),

		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total plan executions by final status",
			},
			[]string{"status"},
		),

		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Plan execution duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),

		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total steps executed by result",
			},
			[]string{"status"},
		),

		historyWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_writes_total",
				Help:      "Total execution records written by storage backend",
			},
			[]string{"backend"},
		),

		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total structured errors by code",
			},
			[]string{"code"},
		),

		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total API requests by route and status",
			},
			[]string{"method", "route", "status"},
		),

		apiRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   buckets,
			},
			[]string{"route"},
		),

		activeExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_executions",
				Help:      "Number of plan executions currently in flight",
			},
		),

		wsConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections",
				Help:      "Number of open streaming connections",
			},
		),
	}

	m.registry.MustRegister(
		m.generationsTotal,
		m.generationDuration,
		m.correctionAttempts,
		m.llmCalls,
		m.llmCallDuration,
		m.llmTokens,
		m.cacheOps,
		m.validationsTotal,
		m.executionsTotal,
		m.executionDuration,
		m.stepsExecuted,
		m.historyWrites,
		m.errorsByCode,
		m.apiRequests,
		m.apiRequestDuration,
		m.activeExecutions,
		m.wsConnections,
	)

	return m, nil
}

// RecordGeneration records a completed generation request.
func (m *Metrics) RecordGeneration(provider, status string, cached bool, duration time.Duration) {
	if m.registry == nil {
		return
	}
	cachedLabel := "false"
	if cached {
		cachedLabel = "true"
	}
	m.generationsTotal.WithLabelValues(provider, status, cachedLabel).Inc()
	m.generationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordCorrectionAttempt records one self-correction round.
func (m *Metrics) RecordCorrectionAttempt(provider string) {
	if m.registry == nil {
		return
	}
	m.correctionAttempts.WithLabelValues(provider).Inc()
}

// RecordLLMCall records one LLM back-end call.
func (m *Metrics) RecordLLMCall(provider, model, status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.llmCalls.WithLabelValues(provider, model, status).Inc()
	m.llmCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordLLMTokens records prompt and completion token usage.
func (m *Metrics) RecordLLMTokens(provider string, promptTokens, completionTokens int) {
	if m.registry == nil {
		return
	}
	m.llmTokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	m.llmTokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
}

// RecordCacheHit records a plan cache hit.
func (m *Metrics) RecordCacheHit() { m.recordCacheOp("hit") }

// RecordCacheMiss records a plan cache miss.
func (m *Metrics) RecordCacheMiss() { m.recordCacheOp("miss") }

// RecordCacheStore records a plan cache write.
func (m *Metrics) RecordCacheStore() { m.recordCacheOp("store") }

// RecordCacheEviction records a plan cache eviction.
func (m *Metrics) RecordCacheEviction() { m.recordCacheOp("evict") }

func (m *Metrics) recordCacheOp(op string) {
	if m.registry == nil {
		return
	}
	m.cacheOps.WithLabelValues(op).Inc()
}

// RecordValidation records a plan validation by mode and outcome.
func (m *Metrics) RecordValidation(mode string, ok bool) {
	if m.registry == nil {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "passed"
	}
	m.validationsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordExecutionStarted records the start of a plan execution.
func (m *Metrics) RecordExecutionStarted() {
	if m.registry == nil {
		return
	}
	m.activeExecutions.Inc()
}

// RecordExecutionCompleted records a completed plan execution.
func (m *Metrics) RecordExecutionCompleted(status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.activeExecutions.Dec()
	m.executionsTotal.WithLabelValues(status).Inc()
	m.executionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStepResult records the result of one executed step.
func (m *Metrics) RecordStepResult(status string) {
	if m.registry == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(status).Inc()
}

// RecordHistoryWrite records a persisted execution record.
func (m *Metrics) RecordHistoryWrite(backend string) {
	if m.registry == nil {
		return
	}
	m.historyWrites.WithLabelValues(backend).Inc()
}

// RecordError records a structured error by code.
func (m *Metrics) RecordError(code string) {
	if m.registry == nil {
		return
	}
	m.errorsByCode.WithLabelValues(code).Inc()
}

// RecordAPIRequest records an API request with its response status.
func (m *Metrics) RecordAPIRequest(method, route string, status int, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, fmt.Sprintf("%d", status)).Inc()
	m.apiRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// WSConnectionOpened records a new streaming connection.
func (m *Metrics) WSConnectionOpened() {
	if m.registry == nil {
		return
	}
	m.wsConnections.Inc()
}

// WSConnectionClosed records a closed streaming connection.
func (m *Metrics) WSConnectionClosed() {
	if m.registry == nil {
		return
	}
	m.wsConnections.Dec()
}

// Timer measures elapsed time for histogram observations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts the metrics HTTP server in a background goroutine.
func (m *Metrics) StartMetricsServer() error {
	if m.registry == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:    m.config.ListenAddress,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Metrics server failures are not fatal to the control plane.
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
