// Package errors provides common domain error types for the scribe pipeline.
//
// This package defines sentinel errors for common domain conditions like
// "unknown meeting" or "duplicate chunk" that can be used across all packages.
// Using typed errors enables consistent error handling patterns with
// errors.Is() checks.
//
// Usage:
//
//	import scerrors "github.com/minuteworks/scribe/pkg/errors"
//
//	// Return a domain error
//	return nil, scerrors.ErrNotFound
//
//	// Check for domain errors
//	if scerrors.IsNotFound(err) {
//	    // handle not found case
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for pipeline conditions.
var (
	// ErrNotFound indicates the requested resource was not found
	// (unknown meeting, unknown share link).
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates invalid input that will never succeed on
	// retry (bad sequence number, oversized payload).
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicate indicates the request repeats previously accepted work
	// (chunk with an existing sequence number). Callers that need
	// idempotent behaviour resolve it rather than surfacing it.
	ErrDuplicate = errors.New("duplicate request")

	// ErrNotReady indicates the operation requires a completed summary
	// that does not exist yet.
	ErrNotReady = errors.New("summary not ready")

	// ErrRateLimited indicates an upstream service rejected the call due
	// to rate limiting. Retryable with backoff.
	ErrRateLimited = errors.New("upstream rate limited")

	// ErrUnavailable indicates an upstream service failed for a
	// non-rate-limit reason. Not retried automatically.
	ErrUnavailable = errors.New("upstream unavailable")

	// ErrInvalidState indicates the operation is not valid for the
	// current job state (e.g. cancelling a Completed job).
	ErrInvalidState = errors.New("invalid state")

	// ErrCancelled indicates the job was cancelled by an explicit
	// cancel request.
	ErrCancelled = errors.New("cancelled")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput reports whether any error in err's chain is ErrInvalidInput.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsDuplicate reports whether any error in err's chain is ErrDuplicate.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsNotReady reports whether any error in err's chain is ErrNotReady.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}

// IsRateLimited reports whether any error in err's chain is ErrRateLimited.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsUnavailable reports whether any error in err's chain is ErrUnavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsCancelled reports whether any error in err's chain is ErrCancelled.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
