// Package ai defines the upstream transcription and summarization
// interfaces used by the pipeline, plus an OpenAI-compatible provider
// and a scripted mock for tests.
package ai

import (
	"context"

	scerrors "github.com/minuteworks/scribe/pkg/errors"
)

// Transcriber converts a single audio chunk into text.
type Transcriber interface {
	Transcribe(ctx context.Context, meetingID string, seq int64, audio []byte) (string, error)
}

// Summarizer generates a summary from an assembled transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Provider is the combined upstream surface the pipeline depends on.
type Provider interface {
	Transcriber
	Summarizer
}

// Failure sentinels. Providers wrap their transport-level errors into
// these so the retry policy can classify them without string matching.
var (
	ErrRateLimited = scerrors.ErrRateLimited
	ErrUnavailable = scerrors.ErrUnavailable
)
