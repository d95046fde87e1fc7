package judge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, cfg ClientConfig, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.BaseURL = server.URL
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	return NewClient(cfg, discardLogger())
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestExecuteDecodesResult(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submissions", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("base64_encoded"))
		assert.Equal(t, "true", r.URL.Query().Get("wait"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, encode("print(1)"), req["source_code"])
		assert.Equal(t, encode("5 7"), req["stdin"])
		assert.Equal(t, float64(71), req["language_id"])

		timeStr := "0.012"
		memory := 3456
		json.NewEncoder(w).Encode(submissionResponse{
			Token:  "tok-1",
			Status: Status{ID: 3, Description: "Accepted"},
			Stdout: encode("12\n"),
			Time:   &timeStr,
			Memory: &memory,
		})
	})

	client := newTestClient(t, ClientConfig{}, handler)

	result, err := client.Execute(context.Background(), Submission{
		SourceCode: "print(1)",
		LanguageID: 71,
		Stdin:      "5 7",
	})
	require.NoError(t, err)

	assert.Equal(t, "tok-1", result.Token)
	assert.Equal(t, "12\n", result.Stdout)
	assert.Equal(t, 0.012, result.Time)
	assert.Equal(t, 3456, result.Memory)
	assert.True(t, result.Passed())
}

func TestExecuteSendsLimitsAndAuth(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Auth-Token"))
		assert.Equal(t, "judge0-ce.example.com", r.Header.Get("X-RapidAPI-Host"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 2.5, req["cpu_time_limit"])
		assert.Equal(t, float64(65536), req["memory_limit"])

		json.NewEncoder(w).Encode(submissionResponse{
			Status: Status{ID: 4, Description: "Wrong Answer"},
		})
	})

	client := newTestClient(t, ClientConfig{
		APIKey:  "secret",
		APIHost: "judge0-ce.example.com",
	}, handler)

	result, err := client.Execute(context.Background(), Submission{
		SourceCode:    "x",
		LanguageID:    54,
		CPUTimeLimit:  2.5,
		MemoryLimitKB: 65536,
	})
	require.NoError(t, err)
	assert.False(t, result.Passed())
}

func TestExecuteUpstreamFailure(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	client := newTestClient(t, ClientConfig{}, handler)

	_, err := client.Execute(context.Background(), Submission{SourceCode: "x", LanguageID: 71})
	require.Error(t, err)
	// initial request plus two retries
	assert.Equal(t, int32(3), hits.Load())
}

func TestPassed(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{"accepted id", Status{ID: 3, Description: "Accepted"}, true},
		{"accepted description only", Status{ID: 15, Description: "accepted (exact match)"}, true},
		{"wrong answer", Status{ID: 4, Description: "Wrong Answer"}, false},
		{"time limit", Status{ID: 5, Description: "Time Limit Exceeded"}, false},
		{"internal error", Status{ID: -1, Description: "Judge error"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Result{Status: tt.status}
			assert.Equal(t, tt.want, result.Passed())
		})
	}
}

func TestLanguageID(t *testing.T) {
	id, ok := LanguageID("python")
	require.True(t, ok)
	assert.Equal(t, 71, id)

	id, ok = LanguageID("  CPP ")
	require.True(t, ok)
	assert.Equal(t, 54, id)

	_, ok = LanguageID("rust")
	assert.False(t, ok)
}

func TestDecodeBase64(t *testing.T) {
	assert.Equal(t, "hello", decodeBase64(encode("hello")))
	assert.Equal(t, "", decodeBase64(""))

	// multiline base64 as emitted by some deployments
	assert.Equal(t, "hello world", decodeBase64("aGVsbG8g\nd29ybGQ="))

	// plain text passes through untouched
	assert.Equal(t, "not base64!!", decodeBase64("not base64!!"))
}
