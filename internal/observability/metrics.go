package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	stageDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
)

// Metrics holds all Prometheus metric instruments for the pipeline.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Agent loop metrics
	AgentMessagesReceived    *prometheus.CounterVec
	AgentMessagesCompleted   *prometheus.CounterVec
	AgentMessagesDeadLetters *prometheus.CounterVec
	AgentEventsPublished     *prometheus.CounterVec
	AgentStageDuration       *prometheus.HistogramVec

	// Lifecycle metrics
	InvoiceTransitionsTotal *prometheus.CounterVec
	BudgetAlertsTotal       *prometheus.CounterVec

	// Collaborator metrics
	InsightsRequestsTotal        *prometheus.CounterVec
	InsightsCircuitBreakerState  *prometheus.GaugeVec
	AlertDeliveryRetriesTotal    prometheus.Counter
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoices_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "invoices_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		// Agent loop
		AgentMessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoices_agent_messages_received_total",
			Help: "Total messages received per agent.",
		}, []string{"agent"}),
		AgentMessagesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoices_agent_messages_completed_total",
			Help: "Total messages completed per agent.",
		}, []string{"agent"}),
		AgentMessagesDeadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoices_agent_messages_dead_lettered_total",
			Help: "Total messages dead-lettered per agent.",
		}, []string{"agent", "reason"}),
		AgentEventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoices_agent_events_published_total",
			Help: "Total lifecycle events published per agent.",
		}, []string{"agent", "subject"}),
		AgentStageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "invoices_agent_stage_duration_seconds",
			Help:    "Stage processing duration in seconds.",
			Buckets: stageDurationBuckets,
		}, []string{"agent"}),

		// Lifecycle
		InvoiceTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoices_state_transitions_total",
			Help: "Total invoice state transitions.",
		}, []string{"from", "to"}),
		BudgetAlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoices_budget_alerts_total",
			Help: "Total budget alerts raised.",
		}, []string{"impact", "risk"}),

		// Collaborators
		InsightsRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoices_insights_requests_total",
			Help: "Total requests to the insights service.",
		}, []string{"operation", "status"}),
		InsightsCircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "invoices_insights_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"operation"}),
		AlertDeliveryRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "invoices_alert_delivery_retries_total",
			Help: "Total alert webhook delivery retries.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		// Agent loop
		m.AgentMessagesReceived,
		m.AgentMessagesCompleted,
		m.AgentMessagesDeadLetters,
		m.AgentEventsPublished,
		m.AgentStageDuration,
		// Lifecycle
		m.InvoiceTransitionsTotal,
		m.BudgetAlertsTotal,
		// Collaborators
		m.InsightsRequestsTotal,
		m.InsightsCircuitBreakerState,
		m.AlertDeliveryRetriesTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordMessageReceived records a message delivery to an agent.
func (m *Metrics) RecordMessageReceived(agent string) {
	m.AgentMessagesReceived.WithLabelValues(agent).Inc()
}

// RecordMessageCompleted records a completed message and the stage duration.
func (m *Metrics) RecordMessageCompleted(agent string, duration time.Duration) {
	m.AgentMessagesCompleted.WithLabelValues(agent).Inc()
	m.AgentStageDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordMessageDeadLettered records a dead-lettered message.
func (m *Metrics) RecordMessageDeadLettered(agent, reason string) {
	m.AgentMessagesDeadLetters.WithLabelValues(agent, reason).Inc()
}

// RecordEventPublished records a lifecycle event publication.
func (m *Metrics) RecordEventPublished(agent, subject string) {
	m.AgentEventsPublished.WithLabelValues(agent, subject).Inc()
}

// RecordTransition records an invoice state transition.
func (m *Metrics) RecordTransition(from, to string) {
	m.InvoiceTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordBudgetAlert records a raised budget alert.
func (m *Metrics) RecordBudgetAlert(impact, risk string) {
	m.BudgetAlertsTotal.WithLabelValues(impact, risk).Inc()
}

// RecordInsightsRequest records an insights service call.
func (m *Metrics) RecordInsightsRequest(operation, status string) {
	m.InsightsRequestsTotal.WithLabelValues(operation, status).Inc()
}

// SetInsightsCircuitBreakerState sets the breaker state for an operation.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetInsightsCircuitBreakerState(operation string, state float64) {
	m.InsightsCircuitBreakerState.WithLabelValues(operation).Set(state)
}

// RecordAlertRetry records an alert webhook delivery retry.
func (m *Metrics) RecordAlertRetry() {
	m.AlertDeliveryRetriesTotal.Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start))
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
