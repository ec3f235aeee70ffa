package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordWebhook(t *testing.T) {
	before := testutil.ToFloat64(webhookEvents.WithLabelValues("queued"))
	RecordWebhook("queued")
	RecordWebhook("queued")

	if got := testutil.ToFloat64(webhookEvents.WithLabelValues("queued")) - before; got != 2 {
		t.Errorf("queued delta = %v, want 2", got)
	}
}

func TestRecordEvaluation(t *testing.T) {
	before := testutil.ToFloat64(ruleEvaluations.WithLabelValues("matched"))
	RecordEvaluation("matched", 20*time.Millisecond)

	if got := testutil.ToFloat64(ruleEvaluations.WithLabelValues("matched")) - before; got != 1 {
		t.Errorf("matched delta = %v, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	SetQueueDepth(7)
	if got := testutil.ToFloat64(webhookQueueDepth); got != 7 {
		t.Errorf("queue depth = %v", got)
	}

	SetCircuitState("discord", 1)
	if got := testutil.ToFloat64(circuitState.WithLabelValues("discord")); got != 1 {
		t.Errorf("circuit state = %v", got)
	}
}

func TestCounters(t *testing.T) {
	RecordDispatch("send_to_topic", "sent")
	RecordWizardSession("notifications", "completed")
	RecordRateLimitRejection()
	RecordRequest("GET", "/health", 200, time.Millisecond)
}

func TestHandler(t *testing.T) {
	RecordWebhook("challenge")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cardbot_webhook_events_total") {
		t.Error("metrics output missing cardbot_webhook_events_total")
	}
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/cards/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/cards/{id}", "201"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/cards/42", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/cards/{id}", "201")) - before; got != 1 {
		t.Errorf("route counter delta = %v, want 1", got)
	}
}

func TestResponseWriter_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.Write([]byte("test"))

	if rw.status != http.StatusOK {
		t.Errorf("expected default status 200, got %d", rw.status)
	}
}

func TestResponseWriter_ExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)

	if rw.status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rw.status)
	}
}
