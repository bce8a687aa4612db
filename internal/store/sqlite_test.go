// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers conversation CRUD, retention cap, auto-titling, ownership, and users

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestCreateAndGetConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if conv.ID == "" {
		t.Error("expected a generated conversation ID")
	}
	if conv.Title != DefaultTitle {
		t.Errorf("Title mismatch: got %q, want %q", conv.Title, DefaultTitle)
	}
	if len(conv.Messages) != 0 {
		t.Errorf("expected empty history, got %d messages", len(conv.Messages))
	}

	got, err := store.GetConversation(ctx, conv.ID, "user-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.ID != conv.ID {
		t.Errorf("ID mismatch: got %q, want %q", got.ID, conv.ID)
	}
	if got.OwnerID != "user-1" {
		t.Errorf("OwnerID mismatch: got %q, want %q", got.OwnerID, "user-1")
	}
	if !got.CreatedAt.Equal(conv.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, conv.CreatedAt)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetConversation(context.Background(), "nonexistent", "user-1")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetConversation_WrongOwnerIndistinguishable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	// An existing conversation owned by someone else must look exactly like a
	// missing one.
	_, errWrongOwner := store.GetConversation(ctx, conv.ID, "mallory")
	_, errMissing := store.GetConversation(ctx, "nonexistent", "mallory")

	if errWrongOwner != ErrNotFound {
		t.Errorf("wrong owner: expected ErrNotFound, got %v", errWrongOwner)
	}
	if errWrongOwner != errMissing {
		t.Errorf("wrong-owner and missing errors differ: %v vs %v", errWrongOwner, errMissing)
	}
}

func TestListConversations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.CreateConversation(ctx, "alice"); err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}
	}
	if _, err := store.CreateConversation(ctx, "bob"); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	summaries, err := store.ListConversations(ctx, "alice")
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(summaries) != 3 {
		t.Errorf("expected 3 conversations, got %d", len(summaries))
	}
	for _, sum := range summaries {
		if sum.ID == "" || sum.Title != DefaultTitle {
			t.Errorf("unexpected summary: %+v", sum)
		}
	}
}

func TestAppendMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	updated, err := store.AppendMessage(ctx, conv.ID, &Message{
		Role:    RoleUser,
		Content: "Hello genie",
	})
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	if len(updated.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(updated.Messages))
	}
	if updated.Messages[0].Role != RoleUser {
		t.Errorf("Role mismatch: got %q, want %q", updated.Messages[0].Role, RoleUser)
	}
	if updated.Messages[0].Content != "Hello genie" {
		t.Errorf("Content mismatch: got %q", updated.Messages[0].Content)
	}
}

func TestAppendMessage_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AppendMessage(context.Background(), "fake-id", &Message{
		Role:    RoleUser,
		Content: "Hello",
	})
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendMessage_AutoTitleOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	first := "I need a birthday gift for my wife who loves gardening"
	updated, err := store.AppendMessage(ctx, conv.ID, &Message{Role: RoleUser, Content: first})
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	want := "I need a birthday gift for my wife who loves garde"
	if updated.Title != want {
		t.Errorf("Title mismatch: got %q, want %q", updated.Title, want)
	}

	// A second user message must not change the title
	updated, err = store.AppendMessage(ctx, conv.ID, &Message{Role: RoleUser, Content: "Something completely different"})
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if updated.Title != want {
		t.Errorf("Title changed on second append: got %q, want %q", updated.Title, want)
	}
}

func TestAppendMessage_AssistantDoesNotTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	updated, err := store.AppendMessage(ctx, conv.ID, &Message{Role: RoleAssistant, Content: "Hi there!"})
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if updated.Title != DefaultTitle {
		t.Errorf("assistant message changed title: got %q", updated.Title)
	}
}

func TestAppendMessage_RetentionCap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	for i := 0; i < MaxMessages+10; i++ {
		if _, err := store.AppendMessage(ctx, conv.ID, &Message{
			Role:    RoleUser,
			Content: fmt.Sprintf("Message %d", i),
		}); err != nil {
			t.Fatalf("AppendMessage %d failed: %v", i, err)
		}
	}

	got, err := store.GetConversation(ctx, conv.ID, "user-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}

	if len(got.Messages) != MaxMessages {
		t.Fatalf("expected %d messages, got %d", MaxMessages, len(got.Messages))
	}
	if got.Messages[0].Content != "Message 10" {
		t.Errorf("oldest retained mismatch: got %q, want %q", got.Messages[0].Content, "Message 10")
	}
	if got.Messages[len(got.Messages)-1].Content != fmt.Sprintf("Message %d", MaxMessages+9) {
		t.Errorf("newest retained mismatch: got %q", got.Messages[len(got.Messages)-1].Content)
	}
}

func TestAppendMessage_BlocksRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	blocks := json.RawMessage(`[{"type":"text","text":"hi"},{"type":"server_tool_use","name":"web_search"}]`)
	if _, err := store.AppendMessage(ctx, conv.ID, &Message{
		Role:    RoleAssistant,
		Content: "hi",
		Blocks:  blocks,
	}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	got, err := store.GetConversation(ctx, conv.ID, "user-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if string(got.Messages[0].Blocks) != string(blocks) {
		t.Errorf("blocks not stored verbatim: got %s", got.Messages[0].Blocks)
	}
}

func TestResetConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if _, err := store.AppendMessage(ctx, conv.ID, &Message{Role: RoleUser, Content: "Hello"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	ok, err := store.ResetConversation(ctx, conv.ID, "user-1")
	if err != nil {
		t.Fatalf("ResetConversation failed: %v", err)
	}
	if !ok {
		t.Fatal("expected reset to succeed")
	}

	got, err := store.GetConversation(ctx, conv.ID, "user-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(got.Messages) != 0 {
		t.Errorf("expected empty history after reset, got %d messages", len(got.Messages))
	}
	if got.Title != DefaultTitle {
		t.Errorf("title not restored: got %q", got.Title)
	}
	if !got.CreatedAt.Equal(conv.CreatedAt) {
		t.Errorf("CreatedAt changed across reset: got %v, want %v", got.CreatedAt, conv.CreatedAt)
	}

	// Resetting an already-empty conversation is safe
	ok, err = store.ResetConversation(ctx, conv.ID, "user-1")
	if err != nil {
		t.Fatalf("second ResetConversation failed: %v", err)
	}
	if !ok {
		t.Error("expected second reset to succeed")
	}
}

func TestResetConversation_UnownedOrMissing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if _, err := store.AppendMessage(ctx, conv.ID, &Message{Role: RoleUser, Content: "private"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	ok, err := store.ResetConversation(ctx, conv.ID, "mallory")
	if err != nil {
		t.Fatalf("ResetConversation failed: %v", err)
	}
	if ok {
		t.Error("reset by wrong owner must report failure")
	}

	ok, err = store.ResetConversation(ctx, "nonexistent", "mallory")
	if err != nil {
		t.Fatalf("ResetConversation failed: %v", err)
	}
	if ok {
		t.Error("reset of missing conversation must report failure")
	}

	// No side effects on the real conversation
	got, err := store.GetConversation(ctx, conv.ID, "alice")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Errorf("unowned reset mutated history: %d messages", len(got.Messages))
	}
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := &User{
		ID:           "user-1",
		Email:        "alice@example.com",
		PasswordHash: "$2a$10$notarealhash",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	got, err := store.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if got.ID != user.ID || got.PasswordHash != user.PasswordHash {
		t.Errorf("user mismatch: %+v", got)
	}

	// Duplicate email is rejected
	err = store.CreateUser(ctx, &User{
		ID:        "user-2",
		Email:     "alice@example.com",
		CreatedAt: time.Now().UTC(),
	})
	if err != ErrDuplicateUser {
		t.Errorf("expected ErrDuplicateUser, got %v", err)
	}

	if _, err := store.GetUser(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := &User{ID: "user-1", Email: "a@b.c", PasswordHash: "x", CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	session := &Session{
		ID:        "session-1",
		UserID:    "user-1",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		ExpiresAt: time.Now().UTC().Add(time.Hour).Truncate(time.Second),
	}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := store.GetSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID mismatch: got %q", got.UserID)
	}

	if err := store.DeleteSession(ctx, "session-1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := store.GetSession(ctx, "session-1"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGetSession_Expired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := &User{ID: "user-1", Email: "a@b.c", PasswordHash: "x", CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	session := &Session{
		ID:        "stale",
		UserID:    "user-1",
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if _, err := store.GetSession(ctx, "stale"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for expired session, got %v", err)
	}
}
