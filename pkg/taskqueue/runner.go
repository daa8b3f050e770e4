package taskqueue

import (
	"context"
	"errors"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/pkg/events"
)

// Runner executes jobs for both the in-process and the durable queue.
//
// Run performs one attempt. Finalize is called exactly once per job after
// its terminal state is known, with a context that is not cancelled by the
// job's own cancellation.
type Runner interface {
	Run(ctx context.Context, job *entity.Job) error
	Finalize(ctx context.Context, job *entity.Job, state entity.JobState, err error)
}

// Publisher receives job lifecycle events. *events.Bus implements it.
type Publisher interface {
	PublishJob(event events.JobEvent)
}

type nopPublisher struct{}

func (nopPublisher) PublishJob(events.JobEvent) {}

// ErrDeadline is the cancellation cause of a job whose deadline elapsed.
var ErrDeadline = errors.New("job deadline exceeded")

// Settle turns the result of one attempt into a terminal state. retryable
// reports whether another attempt may fix it.
func Settle(ctx context.Context, err error) (state entity.JobState, cause error, retryable bool) {
	if err == nil {
		return entity.JobCompleted, nil, false
	}
	switch cause := context.Cause(ctx); {
	case errors.Is(cause, entity.ErrJobCancelled), errors.Is(cause, entity.ErrShutdown):
		return entity.JobCancelled, cause, false
	case errors.Is(cause, ErrDeadline):
		return entity.JobFailed, &entity.JobError{
			Kind:   entity.ErrorTransient,
			Detail: "The request took too long. Please try again.",
			Err:    context.DeadlineExceeded,
		}, false
	}
	if errors.Is(err, entity.ErrJobCancelled) || errors.Is(err, entity.ErrShutdown) {
		return entity.JobCancelled, err, false
	}
	return entity.JobFailed, err, entity.ErrorKindOf(err) == entity.ErrorTransient
}

// WithJobDeadline derives the attempt context: cancellable with a cause and
// bounded by job.Deadline.
func WithJobDeadline(parent context.Context, job *entity.Job) (context.Context, context.CancelCauseFunc, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	if job.Deadline.IsZero() {
		return ctx, cancel, func() {}
	}
	ctx, stop := context.WithDeadlineCause(ctx, job.Deadline, ErrDeadline)
	return ctx, cancel, stop
}
