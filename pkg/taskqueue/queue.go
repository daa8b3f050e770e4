package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/pkg/events"
)

var (
	ErrClosed           = errors.New("task queue is shut down")
	ErrUnsupportedClass = errors.New("task queue does not serve this class")
	ErrDuplicateJob     = errors.New("job already queued")
)

type Config struct {
	QuickWorkers       int
	LongRunWorkers     int
	QuickMaxAttempts   int
	LongRunMaxAttempts int
	FinalizeTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.QuickWorkers <= 0 {
		c.QuickWorkers = 4
	}
	if c.LongRunWorkers <= 0 {
		c.LongRunWorkers = 2
	}
	if c.QuickMaxAttempts <= 0 {
		c.QuickMaxAttempts = 2
	}
	if c.LongRunMaxAttempts <= 0 {
		c.LongRunMaxAttempts = 1
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = 30 * time.Second
	}
	return c
}

type ClassStats struct {
	Queued  int `json:"queued"`
	Running int `json:"running"`
	Workers int `json:"workers"`
}

type task struct {
	job      *entity.Job
	cancel   context.CancelCauseFunc
	running  bool
	claimed  time.Time
	terminal bool
}

// lane is one FIFO class with its own worker pool. Items are guarded by the
// queue mutex.
type lane struct {
	class       entity.PriorityClass
	workers     int
	maxAttempts int
	items       []*task
	running     int
	ready       *sync.Cond
}

// Queue is the in-process task queue: two FIFO classes, quick and long_run,
// each drained by its own workers. Submission never blocks.
type Queue struct {
	cfg    Config
	runner Runner
	events Publisher
	logger logger.ILogger

	mu      sync.Mutex
	lanes   map[entity.PriorityClass]*lane
	tasks   map[string]*task
	closed  bool
	started bool

	base     context.Context
	stopBase context.CancelCauseFunc
	workers  sync.WaitGroup
	finals   sync.WaitGroup
}

func New(cfg Config, runner Runner, publisher Publisher, log logger.ILogger) *Queue {
	cfg = cfg.withDefaults()
	if publisher == nil {
		publisher = nopPublisher{}
	}
	base, stop := context.WithCancelCause(context.Background())
	q := &Queue{
		cfg:      cfg,
		runner:   runner,
		events:   publisher,
		logger:   log,
		tasks:    make(map[string]*task),
		base:     base,
		stopBase: stop,
	}
	q.lanes = map[entity.PriorityClass]*lane{
		entity.ClassQuick:   {class: entity.ClassQuick, workers: cfg.QuickWorkers, maxAttempts: cfg.QuickMaxAttempts},
		entity.ClassLongRun: {class: entity.ClassLongRun, workers: cfg.LongRunWorkers, maxAttempts: cfg.LongRunMaxAttempts},
	}
	for _, l := range q.lanes {
		l.ready = sync.NewCond(&q.mu)
	}
	return q
}

// Start launches the worker pools. It is a no-op when already started.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for _, l := range q.lanes {
		for i := 0; i < l.workers; i++ {
			q.workers.Add(1)
			go q.work(l)
		}
	}
	q.logger.Info("QUEUE", "Task queue started", map[string]interface{}{
		"quickWorkers":   q.cfg.QuickWorkers,
		"longRunWorkers": q.cfg.LongRunWorkers,
	})
}

// Run starts the workers and shuts the queue down once ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	q.Start()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), q.cfg.FinalizeTimeout)
	defer cancel()
	return q.Shutdown(shutdownCtx)
}

// Submit appends job to the tail of its class and returns its 1-based
// position in that class.
func (q *Queue) Submit(job *entity.Job) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrClosed
	}
	l, ok := q.lanes[job.Class]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedClass, job.Class)
	}
	if _, dup := q.tasks[job.ID]; dup {
		return 0, ErrDuplicateJob
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = l.maxAttempts
	}
	if job.Attempt <= 0 {
		job.Attempt = 1
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	if job.Timeout <= 0 {
		job.Timeout = job.Kind.DefaultDeadline()
	}

	t := &task{job: job}
	q.tasks[job.ID] = t
	l.items = append(l.items, t)
	l.ready.Signal()
	q.events.PublishJob(events.NewJobEvent(events.JobSubmitted, job, entity.JobQueued))
	return len(l.items), nil
}

func (q *Queue) work(l *lane) {
	defer q.workers.Done()
	for {
		q.mu.Lock()
		for len(l.items) == 0 && !q.closed {
			l.ready.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		t := l.items[0]
		l.items[0] = nil
		l.items = l.items[1:]

		t.job.Deadline = time.Now().Add(t.job.Timeout)
		ctx, cancel, stop := WithJobDeadline(q.base, t.job)
		t.cancel = cancel
		t.running = true
		t.claimed = time.Now()
		l.running++
		q.mu.Unlock()

		q.run(ctx, l, t)
		stop()
		cancel(nil)
	}
}

func (q *Queue) run(ctx context.Context, l *lane, t *task) {
	job := t.job
	q.events.PublishJob(events.NewJobEvent(events.JobStarted, job, entity.JobRunning))

	err := q.runner.Run(ctx, job)
	state, cause, retryable := Settle(ctx, err)

	q.mu.Lock()
	l.running--
	t.running = false
	if state == entity.JobFailed && retryable && job.Attempt < job.MaxAttempts && !q.closed {
		job.Attempt++
		t.cancel = nil
		q.events.PublishJob(events.NewJobEvent(events.JobRequeued, job, entity.JobQueued))
		l.items = append(l.items, t)
		l.ready.Signal()
		q.mu.Unlock()

		q.logger.Warn("QUEUE", "Requeued job after transient failure", map[string]interface{}{
			"jobId":   job.ID,
			"class":   string(l.class),
			"attempt": job.Attempt,
			"error":   err.Error(),
		})
		return
	}
	if state == entity.JobFailed && q.closed && retryable {
		state, cause = entity.JobCancelled, entity.ErrShutdown
	}
	q.mu.Unlock()

	q.finish(t, state, cause, time.Since(t.claimed))
}

// finish publishes the terminal event and finalizes the job. It runs at
// most once per task.
func (q *Queue) finish(t *task, state entity.JobState, cause error, elapsed time.Duration) {
	q.mu.Lock()
	if t.terminal {
		q.mu.Unlock()
		return
	}
	t.terminal = true
	delete(q.tasks, t.job.ID)
	q.mu.Unlock()

	event := events.NewJobEvent(events.JobFinished, t.job, state)
	event.Elapsed = elapsed
	if state == entity.JobFailed {
		event.ErrorKind = entity.ErrorKindOf(cause)
	}
	q.events.PublishJob(event)

	if state != entity.JobCompleted {
		details := map[string]interface{}{
			"jobId":   t.job.ID,
			"userId":  t.job.UserID,
			"kind":    string(t.job.Kind),
			"state":   string(state),
			"attempt": t.job.Attempt,
		}
		if cause != nil {
			details["error"] = cause.Error()
		}
		q.logger.Info("QUEUE", "Job finished without result", details)
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.FinalizeTimeout)
	defer cancel()
	q.runner.Finalize(ctx, t.job, state, cause)
}

// Cancel fires the job's cancellation. A queued job is removed and
// finalized as cancelled right away.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	t, ok := q.tasks[jobID]
	if !ok {
		q.mu.Unlock()
		return false
	}
	q.cancelLocked(t, entity.ErrJobCancelled)
	q.mu.Unlock()
	return true
}

// CancelUser cancels every job of userID that match accepts (nil accepts
// all) and returns how many were cancelled.
func (q *Queue) CancelUser(userID int64, match func(*entity.Job) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, t := range q.tasks {
		if t.job.UserID != userID || (match != nil && !match(t.job)) {
			continue
		}
		q.cancelLocked(t, entity.ErrJobCancelled)
		n++
	}
	return n
}

func (q *Queue) cancelLocked(t *task, cause error) {
	if t.running {
		t.cancel(cause)
		return
	}
	l := q.lanes[t.job.Class]
	for i, queued := range l.items {
		if queued == t {
			l.items = append(l.items[:i], l.items[i+1:]...)
			break
		}
	}
	q.finals.Add(1)
	go func() {
		defer q.finals.Done()
		q.finish(t, entity.JobCancelled, cause, 0)
	}()
}

func (q *Queue) Stats() map[entity.PriorityClass]ClassStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[entity.PriorityClass]ClassStats, len(q.lanes))
	for class, l := range q.lanes {
		out[class] = ClassStats{Queued: len(l.items), Running: l.running, Workers: l.workers}
	}
	return out
}

// Position returns the 1-based place of a queued job in its class, 0 when
// it is running, and false when unknown.
func (q *Queue) Position(jobID string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[jobID]
	if !ok {
		return 0, false
	}
	if t.running {
		return 0, true
	}
	for i, queued := range q.lanes[t.job.Class].items {
		if queued == t {
			return i + 1, true
		}
	}
	return 0, true
}

// Shutdown stops accepting jobs, cancels running ones with
// entity.ErrShutdown, finalizes queued ones as cancelled and waits for the
// workers until ctx is done.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	var pending []*task
	for _, l := range q.lanes {
		pending = append(pending, l.items...)
		l.items = nil
		l.ready.Broadcast()
	}
	q.mu.Unlock()

	q.stopBase(entity.ErrShutdown)
	for _, t := range pending {
		q.finals.Add(1)
		go func(t *task) {
			defer q.finals.Done()
			q.finish(t, entity.JobCancelled, entity.ErrShutdown, 0)
		}(t)
	}

	done := make(chan struct{})
	go func() {
		q.workers.Wait()
		q.finals.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.logger.Info("QUEUE", "Task queue stopped", map[string]interface{}{"cancelledQueued": len(pending)})
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task queue shutdown: %w", ctx.Err())
	}
}
