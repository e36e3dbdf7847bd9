package ai

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a scripted Provider for tests. Transcription results
// and failures are keyed by sequence number; summarization failures can
// be queued to exercise retry paths.
type MockProvider struct {
	mu sync.Mutex

	// Transcripts maps chunk seq to the text to return. Missing seqs
	// fall back to a generated placeholder.
	Transcripts map[int64]string

	// TranscribeErrs maps chunk seq to an error to return instead.
	TranscribeErrs map[int64]error

	// SummarizeErrs is consumed front to back, one per call. Once
	// drained, Summarize succeeds with SummaryText.
	SummarizeErrs []error
	SummaryText   string

	transcribeCalls int
	summarizeCalls  int
}

// NewMockProvider returns a mock with a default summary.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Transcripts:    make(map[int64]string),
		TranscribeErrs: make(map[int64]error),
		SummaryText:    "mock summary",
	}
}

func (m *MockProvider) Transcribe(ctx context.Context, meetingID string, seq int64, audio []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcribeCalls++

	if err, ok := m.TranscribeErrs[seq]; ok {
		return "", err
	}
	if text, ok := m.Transcripts[seq]; ok {
		return text, nil
	}
	return fmt.Sprintf("segment %d", seq), nil
}

func (m *MockProvider) Summarize(ctx context.Context, transcript string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.summarizeCalls++

	if len(m.SummarizeErrs) > 0 {
		err := m.SummarizeErrs[0]
		m.SummarizeErrs = m.SummarizeErrs[1:]
		return "", err
	}
	return m.SummaryText, nil
}

// TranscribeCalls reports how many transcriptions were attempted.
func (m *MockProvider) TranscribeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcribeCalls
}

// SummarizeCalls reports how many summarizations were attempted.
func (m *MockProvider) SummarizeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summarizeCalls
}

var _ Provider = (*MockProvider)(nil)
