package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/vitovidale/video-insight-service/domain"
)

var ErrQueueClosed = errors.New("memory queue closed")

// Queue is an unbounded in-process job queue. A job whose handler fails is
// put back at the tail after RequeueDelay.
type Queue struct {
	mu           sync.Mutex
	cond         *sync.Cond
	pending      []domain.Job
	published    []domain.Job
	deadLetters  []domain.DeadLetter
	closed       bool
	RequeueDelay time.Duration
}

func NewQueue() *Queue {
	q := &Queue{RequeueDelay: time.Second}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) Publish(_ context.Context, job domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.pending = append(q.pending, job)
	q.published = append(q.published, job)
	q.cond.Signal()
	return nil
}

func (q *Queue) PublishDeadLetter(_ context.Context, letter domain.DeadLetter) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetters = append(q.deadLetters, letter)
	return nil
}

// Consume hands jobs to handler one at a time until ctx is done or the queue
// is closed. Several goroutines may consume concurrently.
func (q *Queue) Consume(ctx context.Context, handler domain.JobHandler) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	for {
		job, ok := q.next(ctx)
		if !ok {
			return ctx.Err()
		}
		if err := handler(ctx, job); err != nil {
			q.requeue(ctx, job)
		}
	}
}

func (q *Queue) next(ctx context.Context) (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}
	if q.closed || ctx.Err() != nil {
		return domain.Job{}, false
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	return job, true
}

func (q *Queue) requeue(ctx context.Context, job domain.Job) {
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.RequeueDelay):
		}
		q.mu.Lock()
		defer q.mu.Unlock()
		if !q.closed {
			q.pending = append(q.pending, job)
			q.cond.Signal()
		}
	}()
}

// Close wakes every consumer and rejects further publishes.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Published returns every job ever published, in order.
func (q *Queue) Published() []domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.published)
}

// Pending returns the jobs waiting for a consumer.
func (q *Queue) Pending() []domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.pending)
}

// Drain removes and returns the waiting jobs.
func (q *Queue) Drain() []domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

func (q *Queue) DeadLetters() []domain.DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.deadLetters)
}
