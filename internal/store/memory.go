// ABOUTME: In-memory implementation of the Store interface
// ABOUTME: Map-backed, mutex-guarded; state is lost when the process exits

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with process-local maps. Useful for tests and
// for running without a database file.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	users         map[string]*User
	usersByEmail  map[string]*User
	sessions      map[string]*Session
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		users:         make(map[string]*User),
		usersByEmail:  make(map[string]*User),
		sessions:      make(map[string]*Session),
	}
}

func (s *MemoryStore) CreateConversation(_ context.Context, ownerID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := &Conversation{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     DefaultTitle,
		CreatedAt: time.Now().UTC(),
		Messages:  []Message{},
	}
	s.conversations[conv.ID] = conv
	return copyConversation(conv), nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id, ownerID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok || conv.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return copyConversation(conv), nil
}

func (s *MemoryStore) ListConversations(_ context.Context, ownerID string) ([]*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := []*Summary{}
	for _, conv := range s.conversations {
		if conv.OwnerID != ownerID {
			continue
		}
		summaries = append(summaries, &Summary{
			ID:        conv.ID,
			Title:     conv.Title,
			CreatedAt: conv.CreatedAt,
		})
	}

	// Newest first, matching the sqlite backend's ordering
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, id string, msg *Message) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	m := *msg
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	conv.Messages = append(conv.Messages, m)

	if m.Role == RoleUser && conv.Title == DefaultTitle {
		conv.Title = deriveTitle(m.Content)
	}

	if len(conv.Messages) > MaxMessages {
		conv.Messages = conv.Messages[len(conv.Messages)-MaxMessages:]
	}

	return copyConversation(conv), nil
}

func (s *MemoryStore) ResetConversation(_ context.Context, id, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok || conv.OwnerID != ownerID {
		return false, nil
	}

	conv.Messages = []Message{}
	conv.Title = DefaultTitle
	return true, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByEmail[user.Email]; exists {
		return ErrDuplicateUser
	}

	u := *user
	s.users[u.ID] = &u
	s.usersByEmail[u.Email] = &u
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u := *user
	return &u, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	u := *user
	return &u, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := *session
	s.sessions[sess.ID] = &sess
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok || time.Now().After(session.ExpiresAt) {
		return nil, ErrNotFound
	}
	sess := *session
	return &sess, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

// copyConversation returns a deep copy so callers cannot mutate shared state
func copyConversation(conv *Conversation) *Conversation {
	out := *conv
	out.Messages = make([]Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return &out
}
