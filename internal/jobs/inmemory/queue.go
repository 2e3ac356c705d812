package inmemory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fintrix/internal/jobs"
	applog "fintrix/internal/log"

	"github.com/google/uuid"
)

// Queue is an in-memory implementation of the recurring-unit publisher and
// consumer. It uses a buffered channel for distribution and is safe for
// concurrent use. Units are lost on restart; the next scheduler tick finds
// the same templates still due and publishes them again.
type Queue struct {
	jobChan   chan *jobs.RecurringDue
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	workers   int
	policy    jobs.RetryPolicy
	logger    *slog.Logger
}

// NewQueue creates a new in-memory queue. bufferSize determines how many
// units can be queued before PublishRecurringDue blocks.
func NewQueue(bufferSize, workers int, policy jobs.RetryPolicy, logger *slog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		jobChan:   make(chan *jobs.RecurringDue, bufferSize),
		closeChan: make(chan struct{}),
		workers:   workers,
		policy:    policy,
		logger:    logger.With(applog.FieldComponent, applog.ComponentQueue),
	}
}

// PublishRecurringDue implements the Publisher interface.
func (q *Queue) PublishRecurringDue(ctx context.Context, job *jobs.RecurringDue) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

func (q *Queue) processJob(ctx context.Context, job *jobs.RecurringDue, handler jobs.Handler) {
	err := handler(ctx, job)
	if err == nil {
		return
	}

	if jobs.IsPermanent(err) {
		q.logger.WarnContext(ctx, "Dropping recurring unit",
			"job_id", job.JobID,
			applog.FieldTransactionID, job.TransactionID,
			applog.FieldError, err)
		return
	}

	if !q.policy.ShouldRetry(err, job.Attempt) {
		q.logger.ErrorContext(ctx, "Recurring unit permanently failed",
			"job_id", job.JobID,
			applog.FieldTransactionID, job.TransactionID,
			applog.FieldUserID, job.UserID,
			"attempts", job.Attempt,
			applog.FieldError, err)
		return
	}

	backoff := q.policy.Backoff(job.Attempt)
	retry := *job
	retry.Attempt++
	q.logger.WarnContext(ctx, "Retrying recurring unit",
		"job_id", job.JobID,
		applog.FieldTransactionID, job.TransactionID,
		"attempt", retry.Attempt,
		"backoff", backoff,
		applog.FieldError, err)

	time.AfterFunc(backoff, func() {
		if err := q.PublishRecurringDue(ctx, &retry); err != nil {
			q.logger.WarnContext(ctx, "Failed to requeue recurring unit",
				"job_id", retry.JobID,
				applog.FieldError, err)
		}
	})
}

// Stop implements the Consumer interface.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
