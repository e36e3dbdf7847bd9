package queues

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	scerrors "github.com/minuteworks/scribe/pkg/errors"
)

func TestCalculateBackoff(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
	}

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second}, // capped
		{10, 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.CalculateBackoff(tt.retryCount), "retryCount=%d", tt.retryCount)
	}
}

func TestDecideRetry(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
		BackoffFactor:  2.0,
	}

	tests := []struct {
		name     string
		err      error
		attempts int
		want     bool
	}{
		{"rate limit under bound", scerrors.ErrRateLimited, 1, true},
		{"rate limit at bound", scerrors.ErrRateLimited, 3, false},
		{"rate limit over bound", scerrors.ErrRateLimited, 4, false},
		{"unavailable is permanent", scerrors.ErrUnavailable, 1, false},
		{"invalid input is permanent", scerrors.ErrInvalidInput, 1, false},
		{"unclassified is permanent", errors.New("boom"), 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := policy.DecideRetry(tt.err, tt.attempts)
			assert.Equal(t, tt.want, decision.ShouldRetry, decision.Reason)
			if tt.want {
				assert.Positive(t, decision.BackoffDuration)
			}
		})
	}
}

func TestDecideRetryHonorsHandlerCategory(t *testing.T) {
	policy := DefaultRetryPolicy()

	transient := NewTransientError("storage", "db down", errors.New("conn refused"))
	decision := policy.DecideRetry(transient, 1)
	assert.True(t, decision.ShouldRetry, decision.Reason)
	assert.Positive(t, decision.BackoffDuration)

	permanent := NewPermanentError("bad_message", "cannot process", nil)
	decision = policy.DecideRetry(permanent, 1)
	assert.False(t, decision.ShouldRetry)
	assert.Contains(t, decision.Reason, "bad_message")

	// The attempt bound wins over the category.
	decision = policy.DecideRetry(transient, policy.MaxAttempts)
	assert.False(t, decision.ShouldRetry)
}

func TestDecideRetryBackoffGrowsWithAttempts(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = 10

	first := policy.DecideRetry(scerrors.ErrRateLimited, 1)
	second := policy.DecideRetry(scerrors.ErrRateLimited, 2)
	assert.Greater(t, second.BackoffDuration, first.BackoffDuration)
}
