// ABOUTME: Streaming HTTP client for the Anthropic Messages API
// ABOUTME: Parses the SSE event stream into text deltas and a final Result

package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	apiVersion     = "2023-06-01"
	defaultBaseURL = "https://api.anthropic.com/v1/messages"

	// DefaultModel is used when the config leaves the model unset
	DefaultModel = "claude-haiku-4-5-20251001"

	// DefaultMaxTokens bounds each model call's output
	DefaultMaxTokens = 1024
)

// Config holds client construction parameters
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string

	// HTTPClient overrides the default client (mainly for tests)
	HTTPClient *http.Client
}

// Client calls the Anthropic Messages API with streaming enabled
type Client struct {
	httpClient *http.Client
	apiKey     string
	model      string
	maxTokens  int
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Messages API client. The API key is required; model,
// max tokens, and base URL fall back to defaults when unset.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// No overall timeout: a streamed response stays open as long as the
		// model produces output. Cancellation comes from the request context.
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient: httpClient,
		apiKey:     cfg.APIKey,
		model:      model,
		maxTokens:  maxTokens,
		baseURL:    baseURL,
		logger:     slog.Default().With("component", "anthropic"),
	}, nil
}

// Model returns the model identifier this client targets
func (c *Client) Model() string {
	return c.model
}

// MaxTokens returns the per-call output token bound
func (c *Client) MaxTokens() int {
	return c.maxTokens
}

// Stream performs one streamed model call. Text deltas are forwarded to
// onText in production order as they arrive; the assembled content blocks,
// stop reason, and usage are returned once the stream completes. The call
// aborts when ctx is cancelled, returning ctx.Err().
func (c *Client) Stream(ctx context.Context, req *Request, onText func(string)) (*Result, error) {
	req.Stream = true
	if req.Model == "" {
		req.Model = c.model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.maxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling messages api: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}

	result, err := c.readStream(ctx, resp.Body, onText)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("model call complete",
		"model", req.Model,
		"stop_reason", result.StopReason,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"duration", time.Since(start))
	return result, nil
}

// readStream consumes the SSE body, forwarding text deltas and assembling
// the final content blocks.
func (c *Client) readStream(ctx context.Context, body io.Reader, onText func(string)) (*Result, error) {
	result := &Result{}
	var blocks []ContentBlock
	// Accumulates streamed tool input JSON per block index
	partialInput := map[int]*strings.Builder{}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			return nil, fmt.Errorf("decoding stream event: %w", err)
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				result.Usage.InputTokens = event.Message.Usage.InputTokens
			}

		case "content_block_start":
			for len(blocks) <= event.Index {
				blocks = append(blocks, ContentBlock{})
			}
			if event.ContentBlock != nil {
				blocks[event.Index] = *event.ContentBlock
			}

		case "content_block_delta":
			if event.Delta == nil || event.Index >= len(blocks) {
				continue
			}
			switch event.Delta.Type {
			case "text_delta":
				blocks[event.Index].Text += event.Delta.Text
				if onText != nil && event.Delta.Text != "" {
					onText(event.Delta.Text)
				}
			case "input_json_delta":
				buf, ok := partialInput[event.Index]
				if !ok {
					buf = &strings.Builder{}
					partialInput[event.Index] = buf
				}
				buf.WriteString(event.Delta.PartialJSON)
			}

		case "content_block_stop":
			if buf, ok := partialInput[event.Index]; ok && event.Index < len(blocks) {
				blocks[event.Index].Input = json.RawMessage(buf.String())
				delete(partialInput, event.Index)
			}

		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				result.StopReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				result.Usage.OutputTokens = event.Usage.OutputTokens
			}

		case "message_stop":
			result.Content = blocks
			return result, nil

		case "error":
			if event.Error != nil {
				return nil, fmt.Errorf("stream error: %s: %s", event.Error.Type, event.Error.Message)
			}
			return nil, fmt.Errorf("stream error")
		}
	}

	if err := scanner.Err(); err != nil {
		// Surface cancellation as such rather than as a read error
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("reading stream: %w", err)
	}

	// Stream ended without a message_stop
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, fmt.Errorf("stream ended unexpectedly")
}

// decodeError turns a non-200 response into an error value
func (c *Client) decodeError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("api status %d", resp.StatusCode)
	}

	var apiErr apiError
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("api status %d: %s: %s", resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
	}
	return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
