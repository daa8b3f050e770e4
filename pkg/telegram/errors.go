package telegram

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMessageNotModified is matched by errors.Is when an edit carried the
// same content the message already shows.
var ErrMessageNotModified = errors.New("telegram: message is not modified")

var ErrFileTooLarge = errors.New("telegram: file too large")

type RequestError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
	Body        string
}

func (e *RequestError) Error() string {
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		desc = strings.TrimSpace(e.Body)
	}
	if desc == "" {
		return fmt.Sprintf("telegram %s: http %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("telegram %s: http %d: %s", e.Method, e.StatusCode, desc)
}

func (e *RequestError) Is(target error) bool {
	if target == ErrMessageNotModified {
		return strings.Contains(strings.ToLower(e.Description), "message is not modified")
	}
	return false
}

// Retryable reports whether the platform asked us to slow down or failed
// on its side.
func (e *RequestError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
