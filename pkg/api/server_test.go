package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minuteworks/scribe/pkg/ai"
	"github.com/minuteworks/scribe/pkg/api"
	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/meeting"
	"github.com/minuteworks/scribe/pkg/pipeline"
	"github.com/minuteworks/scribe/pkg/pipeline/queues"
	"github.com/minuteworks/scribe/pkg/pipeline/storage"
	"github.com/minuteworks/scribe/pkg/share"
	"github.com/minuteworks/scribe/pkg/status"
)

type apiEnv struct {
	server *httptest.Server
	engine *pipeline.Engine
	queue  *queues.MemoryQueue
	health error
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	store := storage.NewMemoryStore()
	queue := queues.NewMemoryQueue(queues.QueueConfig{
		Name:              "test:summary",
		VisibilityTimeout: 5 * time.Second,
		MaxRetries:        3,
	})
	logger := logging.NewNopLogger()
	publisher := status.NewPublisher(logger)

	env := &apiEnv{queue: queue}
	env.engine = pipeline.NewEngine(store, queue, ai.NewMockProvider(), pipeline.Config{
		MaxChunkBytes: 1024,
		Retry:         queues.DefaultRetryPolicy(),
	}, logger, pipeline.WithStatusListener(publisher.Publish))

	srv := api.NewServer(env.engine, share.NewRegistry(store, logger), publisher,
		func(r *http.Request) error { return env.health }, logger)
	env.server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.server.Close)
	return env
}

func (env *apiEnv) do(t *testing.T, method, path string, body []byte) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, env.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp, decoded
}

// createMeeting registers a meeting through the API and returns its id.
func (env *apiEnv) createMeeting(t *testing.T) string {
	t.Helper()
	resp, body := env.do(t, http.MethodPost, "/api/meetings", []byte(`{"owner_id": "user-1", "title": "standup"}`))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string)
}

// drain processes queued summary jobs synchronously.
func (env *apiEnv) drain(t *testing.T) {
	t.Helper()
	for {
		msgs, err := env.queue.Dequeue(1, 0)
		require.NoError(t, err)
		if len(msgs) == 0 {
			return
		}
		for _, qm := range msgs {
			msg, err := qm.ParseMessage()
			require.NoError(t, err)
			if err := env.engine.HandleSummaryMessage(context.Background(), msg); err != nil {
				require.NoError(t, env.queue.Nack(qm.ID, 0))
			} else {
				require.NoError(t, env.queue.Ack(qm.ID))
			}
		}
	}
}

func TestCreateMeeting(t *testing.T) {
	env := newAPIEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/meetings", []byte(`{"owner_id": "user-1", "title": "planning"}`))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, strings.HasPrefix(body["id"].(string), "mt-"))
	assert.Equal(t, "idle", body["state"])

	resp, body = env.do(t, http.MethodPost, "/api/meetings", []byte(`{"title": "no owner"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "owner")
}

func TestSubmitChunk(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createMeeting(t)

	resp, body := env.do(t, http.MethodPut, fmt.Sprintf("/api/meetings/%s/chunks/1", id), []byte("audio"))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["accepted"])

	// Duplicate seq conflicts.
	resp, _ = env.do(t, http.MethodPut, fmt.Sprintf("/api/meetings/%s/chunks/1", id), []byte("again"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Bad sequence numbers are invalid input.
	resp, _ = env.do(t, http.MethodPut, fmt.Sprintf("/api/meetings/%s/chunks/0", id), []byte("audio"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPut, fmt.Sprintf("/api/meetings/%s/chunks/abc", id), []byte("audio"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown meeting.
	resp, _ = env.do(t, http.MethodPut, "/api/meetings/mt-unknown99/chunks/1", []byte("audio"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Oversized payload is cut off at the transport.
	resp, body = env.do(t, http.MethodPut, fmt.Sprintf("/api/meetings/%s/chunks/2", id), make([]byte, 4096))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "exceeds")

	// The rejected seq stays available for a within-limit retry.
	resp, _ = env.do(t, http.MethodPut, fmt.Sprintf("/api/meetings/%s/chunks/2", id), []byte("audio"))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestStatusAndTranscript(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createMeeting(t)

	env.do(t, http.MethodPut, fmt.Sprintf("/api/meetings/%s/chunks/1", id), []byte("a"))
	env.do(t, http.MethodPut, fmt.Sprintf("/api/meetings/%s/chunks/3", id), []byte("c"))

	resp, body := env.do(t, http.MethodGet, fmt.Sprintf("/api/meetings/%s/status", id), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", body["state"])
	assert.Equal(t, float64(1), body["watermark"])

	resp, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/meetings/%s/transcript", id), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "segment 1", body["transcript"])

	resp, _ = env.do(t, http.MethodGet, "/api/meetings/mt-unknown99/status", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSummaryLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createMeeting(t)

	// Trigger without transcript conflicts.
	resp, _ := env.do(t, http.MethodPost, fmt.Sprintf("/api/meetings/%s/summary", id), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	env.do(t, http.MethodPut, fmt.Sprintf("/api/meetings/%s/chunks/1", id), []byte("a"))

	resp, body := env.do(t, http.MethodPost, fmt.Sprintf("/api/meetings/%s/summary", id), nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "queued", body["state"])

	env.drain(t)

	resp, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/meetings/%s/status", id), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["state"])
}

func TestCancelSummary(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createMeeting(t)

	// Nothing to cancel.
	resp, _ := env.do(t, http.MethodDelete, fmt.Sprintf("/api/meetings/%s/summary", id), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	env.do(t, http.MethodPut, fmt.Sprintf("/api/meetings/%s/chunks/1", id), []byte("a"))
	env.do(t, http.MethodPost, fmt.Sprintf("/api/meetings/%s/summary", id), nil)

	resp, _ = env.do(t, http.MethodDelete, fmt.Sprintf("/api/meetings/%s/summary", id), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, fmt.Sprintf("/api/meetings/%s/status", id), nil)
	assert.Equal(t, "failed", body["state"])
	assert.Equal(t, "cancelled by caller", body["last_error"])
}

func TestShareLinks(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createMeeting(t)

	// Sharing before completion conflicts.
	resp, _ := env.do(t, http.MethodPost, fmt.Sprintf("/api/meetings/%s/share", id), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	env.do(t, http.MethodPut, fmt.Sprintf("/api/meetings/%s/chunks/1", id), []byte("a"))
	env.do(t, http.MethodPost, fmt.Sprintf("/api/meetings/%s/summary", id), nil)
	env.drain(t)

	resp, body := env.do(t, http.MethodPost, fmt.Sprintf("/api/meetings/%s/share", id), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	shareID := body["id"].(string)
	assert.True(t, strings.HasPrefix(shareID, "sh-"))

	// Repeated create returns the same link.
	resp, body = env.do(t, http.MethodPost, fmt.Sprintf("/api/meetings/%s/share", id), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, shareID, body["id"])

	// Public resolution exposes the snapshot only.
	resp, body = env.do(t, http.MethodGet, "/api/shared/"+shareID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "mock summary", body["summary"])
	assert.NotContains(t, body, "meeting_id")
	assert.NotContains(t, body, "owner_id")

	resp, _ = env.do(t, http.MethodGet, "/api/shared/sh-0000000000000000", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	env := newAPIEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	env.health = errors.New("database unreachable")
	resp, body = env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestVersion(t *testing.T) {
	env := newAPIEnv(t)

	resp, body := env.do(t, http.MethodGet, "/version", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "scribe", body["service_name"])
}

func TestEvents_StreamsStatusTransitions(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createMeeting(t)

	env.do(t, http.MethodPut, fmt.Sprintf("/api/meetings/%s/chunks/1", id), []byte("a"))
	env.do(t, http.MethodPost, fmt.Sprintf("/api/meetings/%s/summary", id), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		env.server.URL+fmt.Sprintf("/api/meetings/%s/events", id), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	env.drain(t)

	var states []string
	buf := make([]byte, 4096)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range strings.Split(string(buf[:n]), "\n") {
				if !strings.HasPrefix(line, "data: ") {
					continue
				}
				var snap meeting.StatusSnapshot
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap))
				states = append(states, string(snap.State))
			}
		}
		if err != nil || containsState(states, "completed") {
			break
		}
	}
	assert.Contains(t, states, "completed")
}

func containsState(states []string, want string) bool {
	for _, s := range states {
		if s == want {
			return true
		}
	}
	return false
}

func TestEvents_UnknownMeeting(t *testing.T) {
	env := newAPIEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/api/meetings/mt-unknown99/events", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
