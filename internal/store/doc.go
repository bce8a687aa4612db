// Package store provides persistence for conversations, messages, users, and
// login sessions.
//
// # Backends
//
// Two implementations of the Store interface are available, selected at
// startup by configuration:
//
//   - MemoryStore: map-backed, for tests and throwaway runs
//   - SQLiteStore: file-backed via modernc.org/sqlite with WAL enabled
//
// Callers depend only on the Store interface so backends stay swappable.
//
// # Conversation semantics
//
// A conversation holds an append-only ordered message history, capped at
// MaxMessages. Appending beyond the cap evicts the oldest messages first,
// preserving the order of the remainder.
//
// The title starts as the sentinel DefaultTitle and is replaced exactly once:
// the first time a user message is appended while the sentinel still holds,
// the title becomes the first 50 characters of that message. Reset clears the
// history and restores the sentinel; identity and creation time survive.
//
// # Ownership
//
// GetConversation, ListConversations, and ResetConversation are owner-scoped.
// A conversation owned by someone else is indistinguishable from one that
// does not exist (ErrNotFound), which prevents existence probing.
//
// AppendMessage is deliberately not owner-scoped: it is called on both the
// user and assistant sides of a turn. Callers must gate it behind a prior
// owner-scoped GetConversation.
package store
