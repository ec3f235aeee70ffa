package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/lalithlochan/cardbot/internal/circuitbreaker"
	"github.com/lalithlochan/cardbot/internal/metrics"
	"github.com/lalithlochan/cardbot/internal/notion"
	"github.com/lalithlochan/cardbot/internal/redis"
)

// maxWebhookBody caps a single delivery.
const maxWebhookBody = 1 << 20

// EventQueue is the handoff to the single consumer that owns rule evaluation.
type EventQueue interface {
	Offer(ev notion.PageEvent) error
	Len() int
}

// DeliveryGuard drops redelivered webhooks.
type DeliveryGuard interface {
	Reserve(ctx context.Context, deliveryID string) error
	Release(ctx context.Context, deliveryID string) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string                 `json:"status"`
	QueueDepth int                    `json:"queue_depth"`
	Circuits   []circuitbreaker.Stats `json:"circuits,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger   *zap.Logger
	queue    EventQueue
	dedupe   DeliveryGuard // nil if Redis not configured
	breakers []*circuitbreaker.CircuitBreaker
}

// NewHandler creates a handler without delivery de-duplication.
func NewHandler(logger *zap.Logger, queue EventQueue) *Handler {
	return &Handler{
		logger: logger,
		queue:  queue,
	}
}

// NewHandlerWithDeduper creates a handler that acknowledges redelivered
// events without queueing them again.
func NewHandlerWithDeduper(logger *zap.Logger, queue EventQueue, dedupe DeliveryGuard) *Handler {
	return &Handler{
		logger: logger,
		queue:  queue,
		dedupe: dedupe,
	}
}

// WatchBreaker reports cb on the health endpoint.
func (h *Handler) WatchBreaker(cb *circuitbreaker.CircuitBreaker) {
	h.breakers = append(h.breakers, cb)
}

// NotionWebhook handles POST /notion-webhook. Page updates are acknowledged
// as soon as they are queued; evaluation and Discord dispatch happen on the
// consumer.
func (h *Handler) NotionWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		metrics.RecordWebhook("invalid")
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Unreadable body", err.Error())
		return
	}

	wh, err := notion.ParseWebhook(body)
	if err != nil {
		metrics.RecordWebhook("invalid")
		h.logger.Warn("malformed webhook payload", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	switch {
	case wh.IsChallenge():
		metrics.RecordWebhook("challenge")
		h.logger.Info("answering webhook url verification")
		h.writeJSON(w, http.StatusOK, map[string]string{"challenge": wh.Challenge})
		return

	case wh.IsVerificationToken():
		metrics.RecordWebhook("challenge")
		// The token has to be pasted into the integration settings by hand.
		h.logger.Info("received webhook verification token", zap.String("verification_token", wh.VerificationToken))
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return

	case !wh.IsPageUpdate():
		metrics.RecordWebhook("ignored")
		h.logger.Debug("ignoring webhook event", zap.String("event_type", wh.EventType()))
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	ev, err := wh.PageEvent()
	if err != nil {
		metrics.RecordWebhook("invalid")
		h.logger.Warn("webhook page event unusable",
			zap.Error(err),
			zap.String("event_type", wh.EventType()),
		)
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	logger := h.logger.With(
		zap.String("page_id", ev.PageID),
		zap.String("delivery_id", ev.DeliveryID),
	)

	if h.dedupe != nil {
		if err := h.dedupe.Reserve(ctx, ev.DeliveryID); err != nil {
			if errors.Is(err, redis.ErrDuplicateRequest) {
				metrics.RecordWebhook("duplicate")
				logger.Info("duplicate webhook delivery acknowledged")
				h.writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
				return
			}
			logger.Warn("delivery de-duplication failed, proceeding", zap.Error(err))
		}
	}

	if err := h.queue.Offer(ev); err != nil {
		metrics.RecordWebhook("dropped")
		logger.Error("webhook queue full, asking sender to redeliver", zap.Error(err))
		if h.dedupe != nil {
			if err := h.dedupe.Release(ctx, ev.DeliveryID); err != nil {
				logger.Warn("failed to release delivery id", zap.Error(err))
			}
		}
		w.Header().Set("Retry-After", "5")
		h.writeError(w, http.StatusServiceUnavailable, "queue_full", "Event queue is full", "retry the delivery later")
		return
	}

	metrics.RecordWebhook("queued")
	metrics.SetQueueDepth(h.queue.Len())
	logger.Debug("page event queued", zap.String("event_type", ev.Type))

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// Health handles GET /health. An open circuit reports degraded but still
// answers 200 so the listener is not restarted for a Discord outage.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "ok",
		QueueDepth: h.queue.Len(),
	}
	for _, cb := range h.breakers {
		stats := cb.Stats()
		if stats.State != circuitbreaker.StateClosed.String() {
			resp.Status = "degraded"
		}
		resp.Circuits = append(resp.Circuits, stats)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
