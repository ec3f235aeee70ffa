package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/cardbot/internal/metrics"
	"github.com/lalithlochan/cardbot/internal/notion"
	"github.com/lalithlochan/cardbot/internal/rules"
)

// PageFetcher loads a page when a delivery carried only its id.
type PageFetcher interface {
	GetPage(ctx context.Context, pageID string) (*notion.Page, error)
}

// Evaluator matches an event against stored rules.
type Evaluator interface {
	Process(ctx context.Context, ev notion.PageEvent) (rules.Outcome, error)
}

type Config struct {
	// EventTimeout bounds page fetch, evaluation and dispatch for one event.
	EventTimeout time.Duration
}

// Worker is the only consumer of the queue, so events are evaluated one at
// a time in arrival order.
type Worker struct {
	queue     *Queue
	pages     PageFetcher
	evaluator Evaluator
	config    Config
	logger    *zap.Logger
}

func New(queue *Queue, pages PageFetcher, evaluator Evaluator, cfg Config, logger *zap.Logger) *Worker {
	if cfg.EventTimeout == 0 {
		cfg.EventTimeout = 30 * time.Second
	}

	return &Worker{
		queue:     queue,
		pages:     pages,
		evaluator: evaluator,
		config:    cfg,
		logger:    logger,
	}
}

// Start drains the queue until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("webhook worker started", zap.Int("queue_capacity", w.queue.Cap()))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping", zap.Int("pending", w.queue.Len()))
			return
		case job := <-w.queue.jobs:
			metrics.SetQueueDepth(w.queue.Len())
			w.handle(ctx, job)
		}
	}
}

// handle never lets a failure escape: errors and panics are logged and the
// event is dropped.
func (w *Worker) handle(ctx context.Context, job Job) {
	start := time.Now()
	logger := w.logger.With(
		zap.String("page_id", job.Event.PageID),
		zap.String("database_id", job.Event.DatabaseID),
		zap.String("event_type", job.Event.Type),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing page event", zap.Any("panic", r))
			metrics.RecordEvaluation("panic", time.Since(start))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, w.config.EventTimeout)
	defer cancel()

	ev, err := w.complete(ctx, job.Event)
	if err != nil {
		logger.Error("failed to load page for event", zap.Error(err))
		metrics.RecordEvaluation("error", time.Since(start))
		return
	}

	out, err := w.evaluator.Process(ctx, ev)
	if err != nil {
		logger.Error("failed to evaluate page event", zap.Error(err))
		metrics.RecordEvaluation("error", time.Since(start))
		return
	}

	metrics.RecordEvaluation(out.Result, time.Since(start))
	if out.Result == rules.ResultMatched {
		for i := 0; i < out.Dispatched; i++ {
			metrics.RecordDispatch(out.ActionType, "sent")
		}
		for i := 0; i < out.Failed; i++ {
			metrics.RecordDispatch(out.ActionType, "failed")
		}
		logger.Info("page event processed",
			zap.String("rule_id", out.RuleID),
			zap.Int("dispatched", out.Dispatched),
			zap.Int("failed", out.Failed),
			zap.Duration("queued_for", start.Sub(job.ReceivedAt)),
		)
	}
}

// complete fills in properties, URL and database id from the page itself
// when the delivery omitted them.
func (w *Worker) complete(ctx context.Context, ev notion.PageEvent) (notion.PageEvent, error) {
	if ev.Properties != nil && ev.DatabaseID != "" {
		return ev, nil
	}

	page, err := w.pages.GetPage(ctx, ev.PageID)
	if err != nil {
		return ev, fmt.Errorf("get page %s: %w", ev.PageID, err)
	}

	ev.Properties = page.Properties
	if ev.URL == "" {
		ev.URL = page.URL
	}
	if ev.DatabaseID == "" {
		ev.DatabaseID = page.Parent.Database()
	}
	return ev, nil
}
