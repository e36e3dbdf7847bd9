package ai_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minuteworks/scribe/pkg/ai"
	"github.com/minuteworks/scribe/pkg/logging"
)

func newProvider(sttURL, llmURL string) *ai.OpenAIProvider {
	return ai.NewOpenAIProvider(ai.OpenAIConfig{
		STTURL:    sttURL,
		STTAPIKey: "test-key",
		STTModel:  "whisper-1",
		LLMURL:    llmURL,
		LLMAPIKey: "test-key",
		LLMModel:  "gpt-4o-mini",
	}, logging.NewNopLogger())
}

func TestTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "mt-abc12345-7.webm", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "hello from the meeting"}`))
	}))
	defer server.Close()

	p := newProvider(server.URL, "")
	text, err := p.Transcribe(context.Background(), "mt-abc12345", 7, []byte("audio-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "hello from the meeting", text)
}

func TestSummarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"content": "a concise summary"}}]}`))
	}))
	defer server.Close()

	p := newProvider("", server.URL)
	summary, err := p.Summarize(context.Background(), "line one\nline two")
	require.NoError(t, err)
	assert.Equal(t, "a concise summary", summary)
}

func TestClassify_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := newProvider(server.URL, server.URL)

	_, err := p.Summarize(context.Background(), "transcript")
	assert.True(t, errors.Is(err, ai.ErrRateLimited), "got %v", err)

	_, err = p.Transcribe(context.Background(), "mt-abc12345", 1, []byte("a"))
	assert.True(t, errors.Is(err, ai.ErrRateLimited), "got %v", err)
}

func TestClassify_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	p := newProvider(server.URL, server.URL)

	_, err := p.Summarize(context.Background(), "transcript")
	assert.True(t, errors.Is(err, ai.ErrUnavailable), "got %v", err)
}

func TestClassify_ClientErrorIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	p := newProvider(server.URL, server.URL)

	_, err := p.Summarize(context.Background(), "transcript")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ai.ErrRateLimited))
	assert.False(t, errors.Is(err, ai.ErrUnavailable))
}

func TestTransportErrorIsUnavailable(t *testing.T) {
	// Nothing listens on this address.
	p := newProvider("http://127.0.0.1:1/stt", "http://127.0.0.1:1/llm")

	_, err := p.Summarize(context.Background(), "transcript")
	assert.True(t, errors.Is(err, ai.ErrUnavailable), "got %v", err)
}

func TestMockProvider(t *testing.T) {
	m := ai.NewMockProvider()
	ctx := context.Background()

	m.Transcripts[2] = "scripted text"
	m.TranscribeErrs[3] = errors.New("stt failure")

	text, err := m.Transcribe(ctx, "mt-1", 1, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "segment 1", text)

	text, err = m.Transcribe(ctx, "mt-1", 2, []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "scripted text", text)

	_, err = m.Transcribe(ctx, "mt-1", 3, []byte("c"))
	assert.Error(t, err)
	assert.Equal(t, 3, m.TranscribeCalls())

	m.SummarizeErrs = []error{errors.New("first call fails")}
	_, err = m.Summarize(ctx, "transcript")
	assert.Error(t, err)
	summary, err := m.Summarize(ctx, "transcript")
	require.NoError(t, err)
	assert.Equal(t, "mock summary", summary)
	assert.Equal(t, 2, m.SummarizeCalls())
}
