package queues

import (
	"time"

	scerrors "github.com/minuteworks/scribe/pkg/errors"
)

// RetryPolicy defines retry behavior for failed summarization attempts.
// The bound and schedule are configuration, not constants: upstream rate
// limit behavior varies by provider.
type RetryPolicy struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     5 * time.Minute,
		BackoffFactor:  2.0,
	}
}

// CalculateBackoff calculates the backoff duration before the given retry
// attempt. Attempt 0 (first retry) waits InitialBackoff; each subsequent
// retry multiplies by BackoffFactor, capped at MaxBackoff.
func (p RetryPolicy) CalculateBackoff(retryCount int) time.Duration {
	if retryCount <= 0 {
		return p.InitialBackoff
	}

	backoff := p.InitialBackoff
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffFactor)
		if backoff > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return backoff
}

// RetryDecision represents the decision about whether to retry.
type RetryDecision struct {
	ShouldRetry     bool
	BackoffDuration time.Duration
	Reason          string
}

// DecideRetry makes a retry decision based on the number of attempts
// already made and the error's retry category. Handler errors carry an
// explicit category; anything else is classified by code.
func (p RetryPolicy) DecideRetry(err error, attempts int) RetryDecision {
	if attempts >= p.MaxAttempts {
		return RetryDecision{
			ShouldRetry: false,
			Reason:      "max attempts exceeded",
		}
	}

	if pe, ok := AsProcessingError(err); ok {
		if !pe.IsRetryable() {
			return RetryDecision{
				ShouldRetry: false,
				Reason:      "permanent error: " + pe.Code,
			}
		}
		return RetryDecision{
			ShouldRetry:     true,
			BackoffDuration: p.CalculateBackoff(attempts - 1),
			Reason:          "transient error: " + pe.Code,
		}
	}

	cls := scerrors.ClassifyError(err, "")
	if cls != nil && !scerrors.IsRetryable(cls.Code) {
		return RetryDecision{
			ShouldRetry: false,
			Reason:      "permanent error: " + string(cls.Code),
		}
	}

	return RetryDecision{
		ShouldRetry:     true,
		BackoffDuration: p.CalculateBackoff(attempts - 1),
		Reason:          "retryable error",
	}
}
