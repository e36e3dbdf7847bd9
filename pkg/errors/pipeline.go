package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a classified pipeline error.
type ErrorCode string

const (
	ErrCodeTimeout         ErrorCode = "timeout"
	ErrCodeRateLimit       ErrorCode = "rate_limit"
	ErrCodeUnavailable     ErrorCode = "upstream_unavailable"
	ErrCodeCancelled       ErrorCode = "cancelled"
	ErrCodeInvalidInput    ErrorCode = "invalid_input"
	ErrCodeDuplicate       ErrorCode = "duplicate_request"
	ErrCodeNotReady        ErrorCode = "not_ready"
	ErrCodePayloadTooLarge ErrorCode = "payload_too_large"
	ErrCodeEmptyTranscript ErrorCode = "empty_transcript"
	ErrCodeStorage         ErrorCode = "storage_error"
	ErrCodeProcessingError ErrorCode = "processing_error"
)

// PipelineError is a structured error for pipeline failures.
type PipelineError struct {
	Code     ErrorCode
	Stage    string
	Message  string
	Duration time.Duration
	Timeout  time.Duration
	Cause    error
}

func (e *PipelineError) Error() string {
	if e.Timeout > 0 && e.Duration > 0 {
		return fmt.Sprintf("%s: %s timed out after %s (limit: %s)", e.Code, e.Stage, e.Duration.Truncate(time.Second), e.Timeout.Truncate(time.Second))
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ClassifyError inspects an error and returns a *PipelineError with the
// appropriate code. If the error doesn't match any known pattern, it
// returns a PipelineError with ErrCodeProcessingError.
func ClassifyError(err error, stage string) *PipelineError {
	if err == nil {
		return nil
	}

	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}

	pe = &PipelineError{
		Stage: stage,
		Cause: err,
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Code = ErrCodeTimeout
		pe.Message = "operation timed out"
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCancelled):
		pe.Code = ErrCodeCancelled
		pe.Message = "operation cancelled"
	case errors.Is(err, ErrRateLimited):
		pe.Code = ErrCodeRateLimit
		pe.Message = "upstream rate limit exceeded"
	case errors.Is(err, ErrUnavailable):
		pe.Code = ErrCodeUnavailable
		pe.Message = "upstream service unavailable"
	case errors.Is(err, ErrInvalidInput):
		pe.Code = ErrCodeInvalidInput
		pe.Message = "invalid input"
	case errors.Is(err, ErrDuplicate):
		pe.Code = ErrCodeDuplicate
		pe.Message = "duplicate request"
	case errors.Is(err, ErrNotReady):
		pe.Code = ErrCodeNotReady
		pe.Message = "summary not ready"
	case matchesAny(err, "rate limit", "429", "too many requests"):
		pe.Code = ErrCodeRateLimit
		pe.Message = "upstream rate limit exceeded"
	case matchesAny(err, "unavailable", "connection refused", "503"):
		pe.Code = ErrCodeUnavailable
		pe.Message = "upstream service unavailable"
	default:
		pe.Code = ErrCodeProcessingError
		pe.Message = err.Error()
	}

	return pe
}

// matchesAny reports whether the error text contains any of the given
// fragments, case-insensitively. Upstream HTTP clients do not always
// return typed errors, so classification falls back to text matching.
func matchesAny(err error, fragments ...string) bool {
	msg := strings.ToLower(err.Error())
	for _, f := range fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

// NewPipelineError creates a PipelineError with the given code, stage and message.
func NewPipelineError(code ErrorCode, stage, message string) *PipelineError {
	return &PipelineError{Code: code, Stage: stage, Message: message}
}

// NewTimeoutError creates a PipelineError describing an exceeded time limit.
func NewTimeoutError(stage string, duration, timeout time.Duration) *PipelineError {
	return &PipelineError{
		Code:     ErrCodeTimeout,
		Stage:    stage,
		Message:  "operation timed out",
		Duration: duration,
		Timeout:  timeout,
		Cause:    context.DeadlineExceeded,
	}
}
