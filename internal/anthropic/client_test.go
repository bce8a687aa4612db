// ABOUTME: Tests for the Anthropic streaming client against a fake SSE server
// ABOUTME: Covers delta ordering, tool-input assembly, usage, errors, and cancellation

package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseServer returns an httptest server that writes the given SSE payload
func sseServer(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, event := range events {
			fmt.Fprintf(w, "data: %s\n\n", event)
			flusher.Flush()
		}
	}))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{APIKey: "test-key", BaseURL: baseURL})
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, client.Model())
	assert.Equal(t, DefaultMaxTokens, client.MaxTokens())
}

func TestStream_TextDeltas(t *testing.T) {
	server := sseServer(t, []string{
		`{"type":"message_start","message":{"usage":{"input_tokens":12,"output_tokens":1}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":", world"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}`,
		`{"type":"message_stop"}`,
	})
	defer server.Close()

	client := newTestClient(t, server.URL)

	var deltas []string
	result, err := client.Stream(context.Background(), &Request{
		Messages: []MessageParam{TextMessage(RoleUser, "hi")},
	}, func(text string) {
		deltas = append(deltas, text)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello", ", world"}, deltas)
	assert.Equal(t, "Hello, world", result.Text())
	assert.Equal(t, StopEndTurn, result.StopReason)
	assert.False(t, result.Paused())
	assert.Equal(t, 12, result.Usage.InputTokens)
	assert.Equal(t, 7, result.Usage.OutputTokens)
}

func TestStream_ToolUsePause(t *testing.T) {
	server := sseServer(t, []string{
		`{"type":"message_start","message":{"usage":{"input_tokens":20,"output_tokens":1}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me check."}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"server_tool_use","id":"tu_1","name":"web_search"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"query\":"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"go releases\"}"}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"message_delta","delta":{"stop_reason":"pause_turn"},"usage":{"output_tokens":15}}`,
		`{"type":"message_stop"}`,
	})
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.Stream(context.Background(), &Request{
		Messages: []MessageParam{TextMessage(RoleUser, "latest go release?")},
		Tools:    []Tool{WebSearchTool(3)},
	}, nil)
	require.NoError(t, err)

	assert.True(t, result.Paused())
	require.Len(t, result.Content, 2)
	assert.Equal(t, "server_tool_use", result.Content[1].Type)
	assert.Equal(t, "web_search", result.Content[1].Name)
	assert.JSONEq(t, `{"query":"go releases"}`, string(result.Content[1].Input))
}

func TestStream_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		json.NewEncoder(w).Encode(map[string]any{
			"type": "error",
			"error": map[string]string{
				"type":    "overloaded_error",
				"message": "Overloaded",
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Stream(context.Background(), &Request{
		Messages: []MessageParam{TextMessage(RoleUser, "hi")},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded_error")
}

func TestStream_ErrorEvent(t *testing.T) {
	server := sseServer(t, []string{
		`{"type":"message_start","message":{"usage":{"input_tokens":5,"output_tokens":0}}}`,
		`{"type":"error","error":{"type":"api_error","message":"internal server error"}}`,
	})
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Stream(context.Background(), &Request{
		Messages: []MessageParam{TextMessage(RoleUser, "hi")},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal server error")
}

func TestStream_Cancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, `data: {"type":"message_start","message":{"usage":{"input_tokens":3,"output_tokens":0}}}`+"\n\n")
		flusher.Flush()
		// Hold the stream open until the client gives up
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.Stream(ctx, &Request{
		Messages: []MessageParam{TextMessage(RoleUser, "hi")},
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStream_TruncatedStream(t *testing.T) {
	server := sseServer(t, []string{
		`{"type":"message_start","message":{"usage":{"input_tokens":3,"output_tokens":0}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
	})
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Stream(context.Background(), &Request{
		Messages: []MessageParam{TextMessage(RoleUser, "hi")},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpectedly")
}
