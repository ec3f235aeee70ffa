package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardbot_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardbot_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"method", "path"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardbot_webhook_events_total",
			Help: "Webhook deliveries by outcome (queued, challenge, ignored, duplicate, dropped, invalid)",
		},
		[]string{"outcome"},
	)

	webhookQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardbot_webhook_queue_depth",
			Help: "Page events waiting for the consumer",
		},
	)

	ruleEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardbot_rule_evaluations_total",
			Help: "Page events evaluated by result",
		},
		[]string{"result"},
	)

	eventProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cardbot_event_processing_seconds",
			Help:    "Time from dequeue to evaluation finished",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
	)

	dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardbot_dispatches_total",
			Help: "Discord notifications by action type and status",
		},
		[]string{"action", "status"},
	)

	wizardSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardbot_wizard_sessions_total",
			Help: "Interactive sessions by flow and outcome",
		},
		[]string{"flow", "outcome"},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardbot_rate_limit_rejections_total",
			Help: "Webhook requests rejected by the rate limiter",
		},
	)

	circuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cardbot_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordWebhook(outcome string) {
	webhookEvents.WithLabelValues(outcome).Inc()
}

func SetQueueDepth(n int) {
	webhookQueueDepth.Set(float64(n))
}

func RecordEvaluation(result string, duration time.Duration) {
	ruleEvaluations.WithLabelValues(result).Inc()
	eventProcessingDuration.Observe(duration.Seconds())
}

func RecordDispatch(action, status string) {
	dispatches.WithLabelValues(action, status).Inc()
}

func RecordWizardSession(flow, outcome string) {
	wizardSessions.WithLabelValues(flow, outcome).Inc()
}

func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

func SetCircuitState(name string, state int) {
	circuitState.WithLabelValues(name).Set(float64(state))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request metrics labelled by the matched chi route, so
// unmatched paths do not create new series.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		RecordRequest(r.Method, path, wrapped.status, time.Since(start))
	})
}
