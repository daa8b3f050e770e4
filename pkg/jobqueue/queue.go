package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/pkg/events"
	"ai-genbot-gateway/pkg/taskqueue"
)

var ErrDeadlineTooLong = errors.New("job deadline does not fit the visibility timeout")

// Guard tells whether a job already delivered its artifact, so a redelivered
// message is acked instead of run twice.
type Guard interface {
	Delivered(ctx context.Context, jobID string) (bool, error)
}

type Config struct {
	Workers int
	// Visibility must strictly exceed every job deadline.
	Visibility      time.Duration
	MaxAttempts     int
	RetryDelay      time.Duration
	FinalizeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.Visibility <= 0 {
		c.Visibility = entity.KindVideoGen.DefaultDeadline() + time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = 30 * time.Second
	}
	return c
}

// Queue runs durable jobs from a Broker through the same Runner as the
// in-process queue.
type Queue struct {
	cfg    Config
	broker Broker
	runner taskqueue.Runner
	guard  Guard
	events taskqueue.Publisher
	logger logger.ILogger

	sem       chan struct{}
	mu        sync.Mutex
	running   map[string]context.CancelCauseFunc
	cancelled map[string]struct{}
	wg        sync.WaitGroup
	base      context.Context
	stopBase  context.CancelCauseFunc
}

func New(cfg Config, broker Broker, runner taskqueue.Runner, guard Guard, publisher taskqueue.Publisher, log logger.ILogger) *Queue {
	cfg = cfg.withDefaults()
	base, stop := context.WithCancelCause(context.Background())
	return &Queue{
		cfg:       cfg,
		broker:    broker,
		runner:    runner,
		guard:     guard,
		events:    publisher,
		logger:    log,
		sem:       make(chan struct{}, cfg.Workers),
		running:   make(map[string]context.CancelCauseFunc),
		cancelled: make(map[string]struct{}),
		base:      base,
		stopBase:  stop,
	}
}

func (q *Queue) Config() Config { return q.cfg }

// Submit publishes job to the broker.
func (q *Queue) Submit(ctx context.Context, job *entity.Job) error {
	job.Class = entity.ClassDurable
	if job.Attempt <= 0 {
		job.Attempt = 1
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.cfg.MaxAttempts
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	if job.Timeout <= 0 {
		job.Timeout = job.Kind.DefaultDeadline()
	}
	if job.Timeout >= q.cfg.Visibility {
		return fmt.Errorf("%w: %s >= %s", ErrDeadlineTooLong, job.Timeout, q.cfg.Visibility)
	}
	if err := q.broker.Publish(ctx, job); err != nil {
		return fmt.Errorf("failed to publish durable job %s: %w", job.ID, err)
	}
	q.publish(events.NewJobEvent(events.JobSubmitted, job, entity.JobQueued))
	return nil
}

// Run consumes until ctx is done, then cancels running jobs with
// entity.ErrShutdown. Those are nacked and redelivered after a restart.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Info("DURABLE", "Durable queue consuming", map[string]interface{}{
		"workers":    q.cfg.Workers,
		"visibility": q.cfg.Visibility.String(),
	})
	err := q.broker.Consume(ctx, q.handle)
	q.stopBase(entity.ErrShutdown)
	q.wg.Wait()
	q.logger.Info("DURABLE", "Durable queue stopped", nil)
	return err
}

// Cancel fires the cancellation of a running job, or marks a queued one so
// it is acked and finalized as cancelled when it is delivered.
func (q *Queue) Cancel(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cancel, ok := q.running[jobID]; ok {
		cancel(entity.ErrJobCancelled)
		return
	}
	q.cancelled[jobID] = struct{}{}
}

type Stats struct {
	Running int `json:"running"`
	Workers int `json:"workers"`
	Pending int `json:"pending"`
}

func (q *Queue) Stats(ctx context.Context) Stats {
	q.mu.Lock()
	s := Stats{Running: len(q.running), Workers: q.cfg.Workers}
	q.mu.Unlock()
	if n, err := q.broker.Pending(ctx); err == nil {
		s.Pending = n
	}
	return s
}

func (q *Queue) handle(ctx context.Context, d Delivery) {
	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		_ = d.Nak(q.cfg.RetryDelay)
		return
	}
	// The visibility clock started at the claim, before the slot was free.
	if err := d.InProgress(); err != nil {
		<-q.sem
		q.logger.Warn("DURABLE", "Claim expired before a worker was free", map[string]interface{}{"error": err.Error()})
		return
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer func() { <-q.sem }()
		q.process(d)
	}()
}

func (q *Queue) process(d Delivery) {
	job, err := d.Job()
	if err != nil {
		q.logger.Error("DURABLE", "Dropping undecodable job", map[string]interface{}{"error": err.Error()})
		_ = d.Term()
		return
	}
	job.Attempt = d.Attempt()
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.cfg.MaxAttempts
	}

	if q.guard != nil {
		delivered, err := q.guard.Delivered(q.base, job.ID)
		if err != nil {
			q.logger.Warn("DURABLE", "Delivery guard unavailable", map[string]interface{}{"jobId": job.ID, "error": err.Error()})
		}
		if delivered {
			q.logger.Info("DURABLE", "Job already delivered, acking redelivery", map[string]interface{}{"jobId": job.ID, "attempt": job.Attempt})
			_ = d.Ack()
			q.finish(job, entity.JobCompleted, nil, 0)
			return
		}
	}

	q.mu.Lock()
	_, wasCancelled := q.cancelled[job.ID]
	delete(q.cancelled, job.ID)
	q.mu.Unlock()
	if wasCancelled {
		_ = d.Ack()
		q.finish(job, entity.JobCancelled, entity.ErrJobCancelled, 0)
		return
	}

	if job.Attempt > job.MaxAttempts {
		_ = d.Term()
		q.finish(job, entity.JobFailed, &entity.JobError{
			Kind:   entity.ErrorPermanent,
			Detail: "The job was interrupted too many times and has been dropped.",
		}, 0)
		return
	}

	job.Deadline = time.Now().Add(job.Timeout)
	ctx, cancel, stop := taskqueue.WithJobDeadline(q.base, job)
	defer stop()
	q.mu.Lock()
	q.running[job.ID] = cancel
	q.mu.Unlock()

	started := time.Now()
	q.publish(events.NewJobEvent(events.JobStarted, job, entity.JobRunning))
	runErr := q.runner.Run(ctx, job)
	state, cause, _ := taskqueue.Settle(ctx, runErr)

	q.mu.Lock()
	delete(q.running, job.ID)
	q.mu.Unlock()
	cancel(nil)

	if state == entity.JobCancelled && errors.Is(cause, entity.ErrShutdown) {
		if err := d.Nak(q.cfg.RetryDelay); err != nil {
			q.logger.Warn("DURABLE", "Nak failed, waiting for visibility expiry", map[string]interface{}{"jobId": job.ID, "error": err.Error()})
		}
		q.logger.Info("DURABLE", "Job released for redelivery", map[string]interface{}{"jobId": job.ID, "attempt": job.Attempt})
		return
	}

	if state == entity.JobFailed {
		err = d.Term()
	} else {
		err = d.Ack()
	}
	if err != nil {
		q.logger.Warn("DURABLE", "Settling delivery failed", map[string]interface{}{"jobId": job.ID, "state": string(state), "error": err.Error()})
	}
	q.finish(job, state, cause, time.Since(started))
}

func (q *Queue) finish(job *entity.Job, state entity.JobState, cause error, elapsed time.Duration) {
	event := events.NewJobEvent(events.JobFinished, job, state)
	event.Elapsed = elapsed
	if state == entity.JobFailed {
		event.ErrorKind = entity.ErrorKindOf(cause)
	}
	q.publish(event)

	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.FinalizeTimeout)
	defer cancel()
	q.runner.Finalize(ctx, job, state, cause)
}

func (q *Queue) publish(event events.JobEvent) {
	if q.events != nil {
		q.events.PublishJob(event)
	}
}
