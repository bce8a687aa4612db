// ABOUTME: Package documentation for the chat turn orchestration layer
// ABOUTME: Explains the round loop, framing guarantees, and finalization contract

// Package chat orchestrates one chat turn against the model.
//
// A turn starts with a user message and may span several model rounds when
// the model pauses mid-turn to run its web search tool. Text increments are
// relayed to the caller over a frame channel in production order; the channel
// always ends with a single done frame carrying the turn's cumulative token
// usage, then closes. That holds on every exit path: clean completion,
// mid-stream model failure, and client cancellation.
//
// Whatever text accumulated before the turn ended is persisted as the
// assistant message. Persistence failures during finalization are logged and
// swallowed because the client already received the text.
//
// The service serializes turns per conversation; turns on different
// conversations run concurrently without coordination.
package chat
