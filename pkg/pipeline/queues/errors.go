package queues

import "errors"

// Queue errors.
var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMessageNotFound    = errors.New("message not found")
	ErrQueueClosed        = errors.New("queue is closed")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// ErrorCategory drives the worker's ack/nack decision.
type ErrorCategory string

const (
	// ErrorCategoryTransient means the message should be retried.
	ErrorCategoryTransient ErrorCategory = "transient"
	// ErrorCategoryPermanent means retrying cannot help; the message
	// goes straight to the dead letter queue.
	ErrorCategoryPermanent ErrorCategory = "permanent"
)

// ProcessingError carries the retry category for a failed handler run.
type ProcessingError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Err      error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error should trigger a retry.
func (e *ProcessingError) IsRetryable() bool {
	return e.Category == ErrorCategoryTransient
}

// AsProcessingError unwraps err to a ProcessingError, if it is one.
func AsProcessingError(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// NewTransientError creates a new transient error.
func NewTransientError(code, message string, err error) *ProcessingError {
	return &ProcessingError{
		Category: ErrorCategoryTransient,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(code, message string, err error) *ProcessingError {
	return &ProcessingError{
		Category: ErrorCategoryPermanent,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}
