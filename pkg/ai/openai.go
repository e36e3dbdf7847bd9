package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/minuteworks/scribe/pkg/logging"
)

// OpenAIConfig holds connection settings for an OpenAI-compatible
// provider. STT and LLM endpoints are configured separately so
// deployments can mix providers.
type OpenAIConfig struct {
	STTURL    string        `yaml:"stt_url"`
	STTAPIKey string        `yaml:"stt_api_key"`
	STTModel  string        `yaml:"stt_model"`
	LLMURL    string        `yaml:"llm_url"`
	LLMAPIKey string        `yaml:"llm_api_key"`
	LLMModel  string        `yaml:"llm_model"`
	Timeout   time.Duration `yaml:"timeout"`
}

// OpenAIProvider implements Provider against OpenAI-compatible HTTP
// endpoints: multipart transcription plus chat completions.
type OpenAIProvider struct {
	config OpenAIConfig
	client *http.Client
	logger logging.Logger
}

// NewOpenAIProvider creates a provider from config.
func NewOpenAIProvider(config OpenAIConfig, logger logging.Logger) *OpenAIProvider {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIProvider{
		config: config,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(logging.F("component", "openai_provider")),
	}
}

// Transcribe uploads one audio chunk as multipart/form-data and returns
// the transcribed text.
func (p *OpenAIProvider) Transcribe(ctx context.Context, meetingID string, seq int64, audio []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fmt.Sprintf("%s-%d.webm", meetingID, seq))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	_ = writer.WriteField("model", p.config.STTModel)
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.STTURL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.config.STTAPIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt request: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, "stt"); err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("stt response decode: %w", err)
	}
	return result.Text, nil
}

// Summarize runs one chat completion over the full transcript.
func (p *OpenAIProvider) Summarize(ctx context.Context, transcript string) (string, error) {
	payload := map[string]interface{}{
		"model": p.config.LLMModel,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a helpful assistant that summarizes meeting transcripts."},
			{"role": "user", "content": "Summarize the following meeting transcript:\n\n" + transcript},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.LLMURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.LLMAPIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, "llm"); err != nil {
		return "", err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("llm response decode: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("llm response contained no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// classifyStatus maps non-2xx responses onto the failure sentinels so
// callers can decide retry behavior with errors.Is.
func classifyStatus(resp *http.Response, stage string) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s status %d: %w: %s", stage, resp.StatusCode, ErrRateLimited, string(b))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s status %d: %w: %s", stage, resp.StatusCode, ErrUnavailable, string(b))
	default:
		return fmt.Errorf("%s status %d: %s", stage, resp.StatusCode, string(b))
	}
}
