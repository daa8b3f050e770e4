package events

import (
	"time"

	"ai-genbot-gateway/internal/entity"
)

const TopicJobLifecycle = "genbot.jobs.lifecycle"

const (
	JobSubmitted = "JOB_SUBMITTED"
	JobStarted   = "JOB_STARTED"
	JobRequeued  = "JOB_REQUEUED"
	JobFinished  = "JOB_FINISHED"
)

// JobEvent is published by both queues. Exactly one JOB_FINISHED is
// published per job, carrying the terminal state.
type JobEvent struct {
	Type      string                `json:"type"`
	JobID     string                `json:"job_id"`
	UserID    int64                 `json:"user_id"`
	Kind      entity.GenerationKind `json:"kind"`
	Class     entity.PriorityClass  `json:"class"`
	Model     string                `json:"model,omitempty"`
	Command   string                `json:"command,omitempty"`
	State     entity.JobState       `json:"state"`
	ErrorKind entity.ErrorKind      `json:"error_kind,omitempty"`
	Attempt   int                   `json:"attempt"`
	Elapsed   time.Duration         `json:"elapsed"`
	At        time.Time             `json:"at"`
}

// NewJobEvent names the provider as the model when the job has none.
func NewJobEvent(eventType string, job *entity.Job, state entity.JobState) JobEvent {
	model := job.Model
	if model == "" {
		model = job.Provider
	}
	return JobEvent{
		Type:    eventType,
		JobID:   job.ID,
		UserID:  job.UserID,
		Kind:    job.Kind,
		Class:   job.Class,
		Model:   model,
		Command: job.Command,
		State:   state,
		Attempt: job.Attempt,
		At:      time.Now(),
	}
}

func (e JobEvent) EventType() string { return e.Type }

func (e JobEvent) Timestamp() time.Time { return e.At }
