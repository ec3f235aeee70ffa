package worker

import (
	"errors"
	"time"

	"github.com/lalithlochan/cardbot/internal/notion"
)

// ErrQueueFull is returned by Offer when the consumer is behind.
var ErrQueueFull = errors.New("webhook queue is full")

// Job is one page event waiting for evaluation.
type Job struct {
	Event      notion.PageEvent
	ReceivedAt time.Time
}

// Queue hands page events from the HTTP listener to the single consumer.
type Queue struct {
	jobs chan Job
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 100
	}
	return &Queue{jobs: make(chan Job, size)}
}

// Offer enqueues without blocking.
func (q *Queue) Offer(ev notion.PageEvent) error {
	select {
	case q.jobs <- Job{Event: ev, ReceivedAt: time.Now()}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) Len() int {
	return len(q.jobs)
}

func (q *Queue) Cap() int {
	return cap(q.jobs)
}
