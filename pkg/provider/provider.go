package provider

import (
	"context"
	"fmt"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/pkg/llm"
	"ai-genbot-gateway/pkg/progress"
)

// Request is everything an adapter may need for one invocation.
type Request struct {
	JobID  string
	UserID int64
	Kind   entity.GenerationKind
	Model  string
	Args   entity.JobArgs

	// Text chat input: system prompt plus history ending with the new user turn.
	System   string
	Messages []llm.Message

	// InputPath is a downloaded attachment (voice note, photo), if any.
	InputPath  string
	ScratchDir string

	// Checkpoint survives redelivery of a durable job so an adapter can
	// resume polling an upstream generation instead of starting over.
	Checkpoint Checkpoint
}

type Checkpoint interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, value string) error
}

type ArtifactKind string

const (
	ArtifactText ArtifactKind = "text"
	ArtifactURL  ArtifactKind = "url"
	ArtifactFile ArtifactKind = "file"
)

// Artifact is the deliverable of a completed invocation. Items holds the
// parts of multi-part results (a music generation returns two clips).
type Artifact struct {
	Kind  ArtifactKind
	Text  string
	URL   string
	Path  string
	MIME  string
	Title string
	Items []Artifact
	Meta  map[string]string
}

func (a *Artifact) Parts() []Artifact {
	if len(a.Items) > 0 {
		return a.Items
	}
	return []Artifact{*a}
}

// Outcome is Completed when Failure is nil.
type Outcome struct {
	Artifact *Artifact
	Failure  *Error
}

func Completed(a *Artifact) Outcome {
	return Outcome{Artifact: a}
}

// Failed classifies err and wraps it into an Outcome.
func Failed(err error) Outcome {
	return Outcome{Failure: AsError(err)}
}

func (o Outcome) OK() bool { return o.Failure == nil }

// Err returns the failure as an error, or nil.
func (o Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}

// Provider is the uniform facade in front of every upstream.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, req Request, sink progress.Sink) Outcome
}

func invalidInput(format string, args ...interface{}) Outcome {
	return Outcome{Failure: &Error{Class: ClassInvalidInput, Detail: fmt.Sprintf(format, args...)}}
}
