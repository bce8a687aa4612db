// ABOUTME: Request and response types for the Anthropic Messages API
// ABOUTME: Covers content blocks, server tool declarations, usage, and stream events

package anthropic

import "encoding/json"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Stop reasons returned in message_delta events
const (
	StopEndTurn   = "end_turn"
	StopMaxTokens = "max_tokens"
	StopToolUse   = "tool_use"
	StopPauseTurn = "pause_turn" // model paused mid-turn to run a server tool
)

// MessageParam is one turn in the rolling history sent to the API
type MessageParam struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a single block of message content. The populated fields
// depend on Type: "text" uses Text; "server_tool_use" uses ID, Name, Input;
// "web_search_tool_result" uses ToolUseID and Content. Unknown block types
// round-trip through Raw so a continuation request can echo them verbatim.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// TextBlock builds a plain text content block
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// TextMessage builds a single-text-block message for the given role
func TextMessage(role, text string) MessageParam {
	return MessageParam{Role: role, Content: []ContentBlock{TextBlock(text)}}
}

// Tool declares a server-side tool capability on a request
type Tool struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	MaxUses int    `json:"max_uses,omitempty"`
}

// WebSearchTool declares the hosted web search tool, capped at maxUses
// invocations per request.
func WebSearchTool(maxUses int) Tool {
	return Tool{Type: "web_search_20250305", Name: "web_search", MaxUses: maxUses}
}

// Request is the Messages API request body
type Request struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	System      string         `json:"system,omitempty"`
	Messages    []MessageParam `json:"messages"`
	Temperature *float64       `json:"temperature,omitempty"`
	Tools       []Tool         `json:"tools,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
}

// Usage counts tokens consumed by one model call
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another call's usage into u
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Result is the assembled outcome of one streamed model call
type Result struct {
	Content    []ContentBlock
	StopReason string
	Usage      Usage
}

// Paused reports whether the model stopped mid-turn to use a tool and
// expects the caller to continue the conversation with the same history.
func (r *Result) Paused() bool {
	return r.StopReason == StopPauseTurn || r.StopReason == StopToolUse
}

// Text returns the concatenated text of all text blocks in the result
func (r *Result) Text() string {
	var out string
	for _, block := range r.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out
}

// apiError is the error envelope returned by the API
type apiError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// streamEvent is the decoded payload of one SSE data line
type streamEvent struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Message *struct {
		Usage Usage `json:"usage"`
	} `json:"message,omitempty"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *struct {
		Type        string `json:"type"`
		Text        string `json:"text,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
		StopReason  string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`
	Usage *Usage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
