package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelHelpers(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		checker func(error) bool
		want    bool
	}{
		{"not found direct", ErrNotFound, IsNotFound, true},
		{"not found wrapped", fmt.Errorf("meeting mt-abc: %w", ErrNotFound), IsNotFound, true},
		{"invalid input wrapped", fmt.Errorf("chunk too big: %w", ErrInvalidInput), IsInvalidInput, true},
		{"duplicate wrapped", fmt.Errorf("seq 3: %w", ErrDuplicate), IsDuplicate, true},
		{"not ready", ErrNotReady, IsNotReady, true},
		{"rate limited wrapped", fmt.Errorf("llm: %w", ErrRateLimited), IsRateLimited, true},
		{"unavailable", ErrUnavailable, IsUnavailable, true},
		{"invalid state", ErrInvalidState, IsInvalidState, true},
		{"cancelled", ErrCancelled, IsCancelled, true},
		{"mismatch", ErrNotFound, IsDuplicate, false},
		{"unrelated error", fmt.Errorf("boom"), IsNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.checker(tt.err))
		})
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrInvalidInput, ErrDuplicate, ErrNotReady,
		ErrRateLimited, ErrUnavailable, ErrInvalidState, ErrCancelled,
	}
	seen := make(map[string]bool)
	for _, s := range sentinels {
		assert.False(t, seen[s.Error()], "duplicate sentinel message: %s", s.Error())
		seen[s.Error()] = true
	}
}
