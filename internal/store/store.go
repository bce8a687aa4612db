// ABOUTME: Store interface and data types for ember-chat persistence
// ABOUTME: Defines Conversation, Message, User structs and the Store interface for backends

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist or is not
// visible to the caller. Ownership mismatches report ErrNotFound too, so a
// caller cannot probe for conversations belonging to other users.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when creating a user with an email that is already registered
var ErrDuplicateUser = errors.New("user already exists")

// MaxMessages is the retention cap per conversation. Appends beyond the cap
// evict the oldest messages first.
const MaxMessages = 100

// DefaultTitle is the sentinel title assigned at creation. It is replaced
// exactly once, by the first user message appended while it still holds.
const DefaultTitle = "New conversation"

// titleLength is how many characters of the first user message become the title
const titleLength = 50

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is one chat thread owned by a single user
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages"`
}

// Summary is conversation metadata without message bodies, for list endpoints
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is a single user or assistant turn. Content carries the plain text;
// Blocks optionally carries the structured content of assistant turns that
// used a tool, stored verbatim and ignored by title derivation and rendering.
type Message struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Blocks    json.RawMessage `json:"-"`
	CreatedAt time.Time       `json:"-"`
}

// User is a registered account that owns conversations
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session is a browser login session backing the session cookie
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store defines the interface for conversation and account persistence.
// Backends are selected at startup; callers depend only on this interface.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, ownerID string) (*Conversation, error)
	GetConversation(ctx context.Context, id, ownerID string) (*Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]*Summary, error)
	ResetConversation(ctx context.Context, id, ownerID string) (bool, error)

	// AppendMessage applies the one-time auto-title rule and the retention cap,
	// and returns the updated conversation. It does NOT check ownership: callers
	// must gate it behind a prior GetConversation for the acting owner.
	AppendMessage(ctx context.Context, id string, msg *Message) (*Conversation, error)

	// Users and sessions (consumed by the auth layer)
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Close releases any resources held by the store
	Close() error
}

// deriveTitle returns the first titleLength characters of a user message,
// as a raw substring with no trimming.
func deriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) > titleLength {
		runes = runes[:titleLength]
	}
	return string(runes)
}
