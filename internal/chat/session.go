// ABOUTME: Streaming chat session - runs one chat turn across possibly several model rounds
// ABOUTME: Appends the user message, relays text increments, loops on tool pauses, always finalizes

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/ember-chat/internal/anthropic"
	"github.com/2389/ember-chat/internal/store"
)

// ErrEmptyMessage is returned when the user message is empty after trimming
var ErrEmptyMessage = errors.New("message must not be empty")

// DefaultTemperature is used when neither the client nor the configuration
// sets a sampling temperature
const DefaultTemperature = 0.7

// DefaultMaxRounds bounds the tool pause/resume loop within one turn
const DefaultMaxRounds = 8

// webSearchMaxUses caps web search invocations per model round
const webSearchMaxUses = 3

// Options tunes turn behavior. Zero values fall back to the package defaults.
type Options struct {
	SystemPrompt string
	MaxRounds    int
	Temperature  *float64 // applied when the client omits one
}

// Frame is one unit pushed to the client. Exactly one of the three shapes is
// populated: a text increment, an error notice, or the terminal done event
// carrying cumulative usage for the turn.
type Frame struct {
	Text  string           `json:"text,omitempty"`
	Error string           `json:"error,omitempty"`
	Done  bool             `json:"done,omitempty"`
	Usage *anthropic.Usage `json:"usage,omitempty"`
}

// ConversationStore defines what the session needs from storage
type ConversationStore interface {
	AppendMessage(ctx context.Context, id string, msg *store.Message) (*store.Conversation, error)
}

// Streamer defines what the session needs from the model layer
type Streamer interface {
	Stream(ctx context.Context, req *anthropic.Request, onText func(string)) (*anthropic.Result, error)
	Model() string
	MaxTokens() int
}

// Service executes chat turns. Turns on different conversations run
// concurrently; turns on the same conversation are serialized by a
// per-conversation lock so a retry cannot race an in-flight stream.
type Service struct {
	store        ConversationStore
	model        Streamer
	systemPrompt string
	maxRounds    int
	temperature  float64
	logger       *slog.Logger

	mu    sync.Mutex
	locks map[string]*lockEntry
}

// lockEntry serializes turns on one conversation. Entries are refcounted so
// the lock map does not grow with every conversation ever chatted on.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// New creates a chat service
func New(convStore ConversationStore, model Streamer, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	temperature := DefaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	return &Service{
		store:        convStore,
		model:        model,
		systemPrompt: opts.SystemPrompt,
		maxRounds:    maxRounds,
		temperature:  temperature,
		logger:       logger.With("component", "chat"),
		locks:        make(map[string]*lockEntry),
	}
}

// Send runs one chat turn. It validates the input, records the user message,
// and returns a channel of frames for the caller to relay. The channel always
// ends with a done frame and is then closed, on every exit path including
// cancellation and mid-stream model errors.
//
// Ownership is NOT checked here: callers must have already resolved the
// conversation for the acting owner before invoking Send.
func (s *Service) Send(ctx context.Context, conversationID, message string, temperature *float64) (<-chan Frame, error) {
	text := strings.TrimSpace(message)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	temp := s.clampTemperature(temperature)

	lock := s.acquireLock(conversationID)
	lock.mu.Lock()

	// Record the user message first, then build the model history from the
	// store's view so the model sees its own just-written turn.
	conv, err := s.store.AppendMessage(ctx, conversationID, &store.Message{
		Role:      store.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	})
	if err != nil {
		s.releaseLock(conversationID, lock)
		return nil, err
	}

	frames := make(chan Frame, 16)
	go func() {
		defer s.releaseLock(conversationID, lock)
		s.run(ctx, conversationID, conv, temp, frames)
	}()
	return frames, nil
}

// run executes the round loop and finalization for one turn
func (s *Service) run(ctx context.Context, conversationID string, conv *store.Conversation, temperature float64, frames chan<- Frame) {
	logger := s.logger.With("conversation_id", conversationID)
	history := historyParams(conv.Messages)

	var text strings.Builder
	var usage anthropic.Usage
	var lastContent []anthropic.ContentBlock

	for round := 0; round < s.maxRounds; round++ {
		req := &anthropic.Request{
			Model:       s.model.Model(),
			MaxTokens:   s.model.MaxTokens(),
			System:      s.systemPrompt,
			Messages:    history,
			Temperature: &temperature,
			Tools:       []anthropic.Tool{anthropic.WebSearchTool(webSearchMaxUses)},
		}

		result, err := s.model.Stream(ctx, req, func(delta string) {
			text.WriteString(delta)
			sendFrame(ctx, frames, Frame{Text: delta})
		})
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("turn cancelled", "round", round)
			} else {
				logger.Error("model call failed", "round", round, "error", err)
				sendFrame(ctx, frames, Frame{Error: "Failed to get response"})
			}
			break
		}

		usage.Add(result.Usage)
		lastContent = result.Content
		if !result.Paused() {
			logger.Debug("turn complete",
				"rounds", round+1,
				"stop_reason", result.StopReason,
				"input_tokens", usage.InputTokens,
				"output_tokens", usage.OutputTokens)
			break
		}

		// The model paused to run a tool. Echo its structured content back as
		// the assistant turn and let it continue from where it stopped.
		logger.Debug("model paused for tool use", "round", round, "stop_reason", result.StopReason)
		history = append(history, anthropic.MessageParam{
			Role:    anthropic.RoleAssistant,
			Content: result.Content,
		})
	}

	s.finalize(ctx, logger, conversationID, text.String(), lastContent, usage, frames)
}

// finalize persists whatever text accumulated, emits the terminal frame, and
// closes the channel. Persistence is best-effort: the client already has the
// text, so a storage fault is logged rather than surfaced.
func (s *Service) finalize(ctx context.Context, logger *slog.Logger, conversationID, text string, content []anthropic.ContentBlock, usage anthropic.Usage, frames chan<- Frame) {
	defer close(frames)

	if text != "" {
		msg := &store.Message{
			Role:      store.RoleAssistant,
			Content:   text,
			Blocks:    structuredBlocks(content),
			CreatedAt: time.Now(),
		}
		// Survives client cancellation: partial results are kept
		if _, err := s.store.AppendMessage(context.WithoutCancel(ctx), conversationID, msg); err != nil {
			logger.Error("failed to persist assistant message", "error", err)
		}
	}

	// The done frame is sent unconditionally: the consumer drains the channel
	// until close even after disconnect, and the terminal frame must be the
	// last thing it sees on every exit path, cancellation included.
	frames <- Frame{Done: true, Usage: &usage}
}

// sendFrame delivers an increment unless the turn has been cancelled
func sendFrame(ctx context.Context, frames chan<- Frame, f Frame) {
	select {
	case frames <- f:
	case <-ctx.Done():
	}
}

// acquireLock returns the serialization lock for a conversation, pinning it
// until the matching releaseLock
func (s *Service) acquireLock(id string) *lockEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &lockEntry{}
		s.locks[id] = lock
	}
	lock.refs++
	return lock
}

// releaseLock unlocks the entry and drops it from the map once no turn holds it
func (s *Service) releaseLock(id string, lock *lockEntry) {
	lock.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, id)
	}
}

// historyParams converts stored messages into model request turns. Assistant
// messages that kept structured tool content are replayed verbatim so a later
// round sees the tool provenance; everything else goes as plain text.
func historyParams(messages []store.Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if len(msg.Blocks) > 0 {
			var blocks []anthropic.ContentBlock
			if err := json.Unmarshal(msg.Blocks, &blocks); err == nil && len(blocks) > 0 {
				params = append(params, anthropic.MessageParam{Role: msg.Role, Content: blocks})
				continue
			}
		}
		if msg.Content == "" {
			continue
		}
		params = append(params, anthropic.TextMessage(msg.Role, msg.Content))
	}
	return params
}

// structuredBlocks marshals assistant content for storage when it carries
// more than plain text. Text-only turns store nothing extra.
func structuredBlocks(content []anthropic.ContentBlock) json.RawMessage {
	structured := false
	for _, block := range content {
		if block.Type != "text" {
			structured = true
			break
		}
	}
	if !structured {
		return nil
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil
	}
	return raw
}

// clampTemperature applies the configured default and clamps to [0, 1]
func (s *Service) clampTemperature(t *float64) float64 {
	if t == nil {
		return s.temperature
	}
	switch {
	case *t < 0:
		return 0
	case *t > 1:
		return 1
	default:
		return *t
	}
}
