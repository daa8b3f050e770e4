// FILE: internal/entity/job_entity.go
package entity

import (
	"strconv"
	"strings"
	"time"
)

type PriorityClass string

const (
	ClassQuick   PriorityClass = "quick"
	ClassLongRun PriorityClass = "long_run"
	ClassDurable PriorityClass = "durable"
)

type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is one unit of work originating from one user command.
// ProgressMessageID is fixed once the placeholder is posted.
type Job struct {
	ID                string         `json:"id"`
	UserID            int64          `json:"user_id"`
	ChatID            int64          `json:"chat_id"`
	OriginMessageID   int64          `json:"origin_message_id"`
	ProgressMessageID int64          `json:"progress_message_id"`
	Class             PriorityClass  `json:"class"`
	Kind              GenerationKind `json:"kind"`
	Provider          string         `json:"provider,omitempty"`
	Model             string         `json:"model,omitempty"`
	Command           string         `json:"command,omitempty"`
	Args              JobArgs        `json:"args,omitempty"`
	SubmittedAt       time.Time      `json:"submitted_at"`
	Timeout           time.Duration  `json:"timeout"`
	Deadline          time.Time      `json:"deadline"`
	Attempt           int            `json:"attempt"`
	MaxAttempts       int            `json:"max_attempts"`
	// NoRecord marks lookups (lyrics, clip info) that neither count against
	// quota nor leave a generation record.
	NoRecord bool `json:"no_record,omitempty"`
}

// Ref is the session-side pointer to an in-flight job.
func (j *Job) Ref() JobRef {
	return JobRef{JobID: j.ID, Kind: j.Kind, Class: j.Class}
}

type JobRef struct {
	JobID string         `json:"job_id"`
	Kind  GenerationKind `json:"kind"`
	Class PriorityClass  `json:"class"`
}

// JobArgs is opaque to the queues; handlers and adapters agree on keys.
type JobArgs map[string]string

func (a JobArgs) Get(key string) string {
	if a == nil {
		return ""
	}
	return a[key]
}

func (a JobArgs) Int(key string, fallback int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(a.Get(key))); err == nil {
		return v
	}
	return fallback
}

func (a JobArgs) Float(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(a.Get(key)), 64); err == nil {
		return v
	}
	return fallback
}

func (a JobArgs) Bool(key string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(a.Get(key)))
	return v
}

const (
	ArgPrompt       = "prompt"
	ArgTitle        = "title"
	ArgLyrics       = "lyrics"
	ArgTags         = "tags"
	ArgInstrumental = "instrumental"
	ArgFileID       = "file_id"
	ArgImageURL     = "image_url"
	ArgVoiceID      = "voice_id"
	ArgSize         = "size"
	ArgSteps        = "steps"
	ArgGuidance     = "guidance"
	ArgFrames       = "frames"
	ArgFPS          = "fps"
	ArgOperation    = "operation"
	ArgClipID       = "clip_id"
	ArgContinueAt   = "continue_at"
)
