package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		proxyURL    string
		expectError bool
	}{
		{name: "Valid client without proxy"},
		{name: "Valid client with proxy", proxyURL: "http://proxy.example.com:8080"},
		{name: "Valid client with https proxy", proxyURL: "https://proxy.example.com:8080"},
		{name: "Invalid proxy URL", proxyURL: "://invalid-url", expectError: true},
		{name: "Unsupported proxy scheme", proxyURL: "socks5://proxy.example.com:1080", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(ClientConfig{
				APIKey:    "sk-ant-test-key",
				Model:     "claude-sonnet-4-5-20250929",
				ProxyURL:  tt.proxyURL,
				Timeout:   30 * time.Second,
				MaxTokens: 2000,
			})

			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "claude-sonnet-4-5-20250929", client.model)
			assert.Equal(t, 2000, client.maxTokens)
			assert.Equal(t, defaultMaxRetries, client.maxAttempts)
		})
	}
}

func TestCalculateStats(t *testing.T) {
	client := &Client{}
	response := anthropic.MessagesResponse{
		Usage: anthropic.MessagesUsage{
			InputTokens:  1000000,
			OutputTokens: 100000,
		},
	}

	stats := client.calculateStats(response, 1.5)

	assert.Equal(t, 1000000, stats.InputTokens)
	assert.Equal(t, 100000, stats.OutputTokens)
	assert.InDelta(t, 4.50, stats.CostUSD, 0.01)
	assert.Equal(t, 1.5, stats.DurationSeconds)
}

// messagesServer answers every Messages call with text, counting requests.
func messagesServer(t *testing.T, text string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"content":     []map[string]string{{"type": "text", "text": text}},
			"usage":       map[string]int{"input_tokens": 1200, "output_tokens": 150},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientTriage(t *testing.T) {
	var calls atomic.Int32
	srv := messagesServer(t, `{"status": "Degraded", "summary": "App logs are unreadable", "suspectFiles": ["app-logs-json.txt"]}`, &calls)

	client, err := NewClient(ClientConfig{APIKey: "sk-ant-test", Model: "claude-sonnet-4-5-20250929", MaxTokens: 2000, Timeout: 5 * time.Second, BaseURL: srv.URL})
	require.NoError(t, err)

	triage, stats, err := client.Triage(context.Background(), sampleAggregate(t))
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, triage.Status)
	assert.Equal(t, []string{"app-logs-json.txt"}, triage.SuspectFiles)
	require.NotNil(t, stats)
	assert.Equal(t, 1200, stats.InputTokens)
	assert.Equal(t, 150, stats.OutputTokens)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientTriage_UnparseableNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := messagesServer(t, "I cannot help with that", &calls)

	client, err := NewClient(ClientConfig{APIKey: "sk-ant-test", Model: "m", MaxTokens: 100, Timeout: 5 * time.Second, BaseURL: srv.URL})
	require.NoError(t, err)
	client.backoff = noWait

	_, _, err = client.Triage(context.Background(), sampleAggregate(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse triage")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientTriage_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{APIKey: "sk-ant-test", Model: "m", MaxTokens: 100, Timeout: 5 * time.Second, BaseURL: srv.URL, MaxAttempts: 2})
	require.NoError(t, err)
	client.backoff = noWait

	_, _, err = client.Triage(context.Background(), sampleAggregate(t))
	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
