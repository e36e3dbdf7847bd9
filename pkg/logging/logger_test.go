package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(buf *bytes.Buffer) Logger {
	return NewLogger(&Config{
		Level:       LevelDebug,
		ServiceName: "scribe-test",
		Environment: "test",
		JSONFormat:  true,
		Output:      buf,
	})
}

func parseLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestJSONOutputIncludesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONLogger(&buf)

	log.Info("chunk accepted", F("seq", 3))

	entry := parseLine(t, &buf)
	assert.Equal(t, "scribe-test", entry["service_name"])
	assert.Equal(t, "test", entry["environment"])
	assert.Equal(t, "chunk accepted", entry["message"])
	assert.Equal(t, float64(3), entry["seq"])
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONLogger(&buf)

	log.Error("job failed",
		Err(errors.New("rate limited")),
		F("attempts", int64(3)),
		F("backoff", 2*time.Second),
		F("retryable", true),
	)

	entry := parseLine(t, &buf)
	assert.Equal(t, "rate limited", entry["error"])
	assert.Equal(t, float64(3), entry["attempts"])
	assert.Equal(t, true, entry["retryable"])
}

func TestWithAttachesFields(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONLogger(&buf).With(F("component", "assembler"))

	log.Info("watermark advanced")

	entry := parseLine(t, &buf)
	assert.Equal(t, "assembler", entry["component"])
}

func TestWithContextExtractsIDs(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONLogger(&buf)

	ctx := context.WithValue(context.Background(), MeetingIDKey, "mt-abc123")
	ctx = context.WithValue(ctx, JobIDKey, "jb-def456")

	log.WithContext(ctx).Info("job queued")

	entry := parseLine(t, &buf)
	assert.Equal(t, "mt-abc123", entry["meeting_id"])
	assert.Equal(t, "jb-def456", entry["job_id"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   Level
		want string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{Level("bogus"), "info"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in).String())
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	log := NewNopLogger()
	// Must not panic and must chain.
	log.With(F("k", "v")).WithContext(context.Background()).Info("ignored")
}
