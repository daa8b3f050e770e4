// FILE: internal/entity/error_entity.go
package entity

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the user-facing error taxonomy.
type ErrorKind string

const (
	ErrorInput     ErrorKind = "input"
	ErrorQuota     ErrorKind = "quota"
	ErrorTransient ErrorKind = "transient"
	ErrorPermanent ErrorKind = "permanent"
	ErrorInternal  ErrorKind = "internal"
)

var (
	ErrJobCancelled = errors.New("job cancelled")
	ErrShutdown     = errors.New("gateway shutting down")
)

// UserError carries a message that is safe to show in the chat.
type UserError struct {
	Kind    ErrorKind
	Message string
	Err     error
	// MessageID is a bot message already posted for this request; the error
	// replaces its text instead of arriving as a new reply.
	MessageID int64
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *UserError) Unwrap() error { return e.Err }

// ErrorMessageID returns the message a user error should be shown in, or 0.
func ErrorMessageID(err error) int64 {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.MessageID
	}
	return 0
}

func NewInputError(format string, args ...interface{}) *UserError {
	return &UserError{Kind: ErrorInput, Message: fmt.Sprintf(format, args...)}
}

func NewQuotaError(message string) *UserError {
	return &UserError{Kind: ErrorQuota, Message: message}
}

// JobError is what a job run returns when it did not complete.
type JobError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *JobError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *JobError) Unwrap() error { return e.Err }

// ErrorKindOf classifies any error. Unclassified errors are internal.
func ErrorKindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTransient
	}
	return ErrorInternal
}

// ErrorDetail returns the part of err that may be shown to a user.
func ErrorDetail(err error) string {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Detail
	}
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Message
	}
	return ""
}
