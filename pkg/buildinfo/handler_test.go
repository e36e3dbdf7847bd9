package buildinfo_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minuteworks/scribe/pkg/buildinfo"
)

func TestHandler(t *testing.T) {
	handler := buildinfo.Handler("test-service")
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()

	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var info buildinfo.Info
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))

	assert.Equal(t, "test-service", info.ServiceName)
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.Commit)
	assert.NotEmpty(t, info.BuildTime)
	assert.True(t, strings.HasPrefix(info.GoVersion, "go"), "go_version %q", info.GoVersion)
}

func TestHandler_MultipleServices(t *testing.T) {
	for _, serviceName := range []string{"scribe", "scribe-worker", "scribe-api"} {
		t.Run(serviceName, func(t *testing.T) {
			rec := httptest.NewRecorder()
			buildinfo.Handler(serviceName)(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

			var info buildinfo.Info
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
			assert.Equal(t, serviceName, info.ServiceName)
		})
	}
}
