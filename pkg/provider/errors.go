package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/pkg/llm"
)

type Class string

const (
	ClassTransient    Class = "transient"
	ClassPermanent    Class = "permanent"
	ClassQuota        Class = "quota"
	ClassInvalidInput Class = "invalid_input"
)

const maxDetail = 300

type Error struct {
	Class  Class
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (http %d): %s", e.Class, e.Status, e.Detail)
	}
	if e.Err != nil && e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind maps the adapter class onto the user-facing error taxonomy.
func (e *Error) Kind() entity.ErrorKind {
	switch e.Class {
	case ClassTransient:
		return entity.ErrorTransient
	case ClassQuota:
		return entity.ErrorQuota
	case ClassInvalidInput:
		return entity.ErrorInput
	default:
		return entity.ErrorPermanent
	}
}

var quotaMarkers = []string{"quota", "insufficient credit", "insufficient_quota", "not enough credits", "billing"}

// Classify maps an HTTP status and body onto a Class.
func Classify(status int, body string) Class {
	lower := strings.ToLower(body)
	if status == 402 || ((status == 429 || status == 403) && containsAny(lower, quotaMarkers)) {
		return ClassQuota
	}
	switch {
	case status == 408 || status == 429 || status >= 500:
		return ClassTransient
	case status == 400 || status == 404 || status == 413 || status == 415 || status == 422:
		return ClassInvalidInput
	default:
		return ClassPermanent
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// ClassOf classifies any error an upstream call can return.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	var se *llm.StatusError
	if errors.As(err, &se) {
		return Classify(se.StatusCode, se.Body)
	}
	if errors.Is(err, context.Canceled) {
		return ClassPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassTransient
	}
	return ClassPermanent
}

// AsError wraps err into an *Error, keeping an existing one.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	var se *llm.StatusError
	if errors.As(err, &se) {
		return &Error{Class: Classify(se.StatusCode, se.Body), Status: se.StatusCode, Detail: ScrubDetail(se.Body), Err: err}
	}
	return &Error{Class: ClassOf(err), Err: err}
}

// ScrubDetail extracts a short human message from an upstream error body.
func ScrubDetail(body string) string {
	body = strings.TrimSpace(body)
	var parsed map[string]interface{}
	if json.Unmarshal([]byte(body), &parsed) == nil {
		for _, key := range []string{"message", "detail", "error"} {
			switch v := parsed[key].(type) {
			case string:
				if v != "" {
					body = v
				}
			case map[string]interface{}:
				if m, ok := v["message"].(string); ok && m != "" {
					body = m
				}
			}
		}
	}
	runes := []rune(body)
	if len(runes) > maxDetail {
		body = string(runes[:maxDetail])
	}
	return body
}
