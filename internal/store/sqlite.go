// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message/user persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL,
			title      TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_owner
			ON conversations(owner_id);

		CREATE TABLE IF NOT EXISTS messages (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			blocks          TEXT,
			created_at      TEXT NOT NULL,

			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, id);

		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, ownerID string) (*Conversation, error) {
	conv := &Conversation{
		ID:        newID(),
		OwnerID:   ownerID,
		Title:     DefaultTitle,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Messages:  []Message{},
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, owner_id, title, created_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.OwnerID, conv.Title, conv.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("conversation created", "conversation_id", conv.ID, "owner_id", ownerID)
	return conv, nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id, ownerID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, created_at FROM conversations WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	messages, err := s.getMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages
	return conv, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, ownerID string) ([]*Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at FROM conversations WHERE owner_id = ? ORDER BY created_at DESC, id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []*Summary{}
	for rows.Next() {
		var sum Summary
		var createdAt string
		if err := rows.Scan(&sum.ID, &sum.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		sum.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		summaries = append(summaries, &sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return summaries, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, id string, msg *Message) (*Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ownerID, title string
	err = tx.QueryRowContext(ctx,
		`SELECT owner_id, title FROM conversations WHERE id = ?`, id,
	).Scan(&ownerID, &title)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var blocks any
	if len(msg.Blocks) > 0 {
		blocks = string(msg.Blocks)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, blocks, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, msg.Role, msg.Content, blocks, createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	// Auto-title: only the first user message while the sentinel title holds
	if msg.Role == RoleUser && title == DefaultTitle {
		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET title = ? WHERE id = ? AND title = ?`,
			deriveTitle(msg.Content), id, DefaultTitle,
		)
		if err != nil {
			return nil, fmt.Errorf("updating title: %w", err)
		}
	}

	// Retention cap: evict oldest messages beyond MaxMessages
	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, id,
	).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	if count > MaxMessages {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM messages WHERE id IN (
				SELECT id FROM messages
				WHERE conversation_id = ?
				ORDER BY id
				LIMIT ?
			)`, id, count-MaxMessages,
		)
		if err != nil {
			return nil, fmt.Errorf("evicting messages: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing append: %w", err)
	}

	return s.GetConversation(ctx, id, ownerID)
}

func (s *SQLiteStore) ResetConversation(ctx context.Context, id, ownerID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE id = ? AND owner_id = ?`, id, ownerID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return false, fmt.Errorf("deleting messages: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET title = ? WHERE id = ?`, DefaultTitle, id,
	); err != nil {
		return false, fmt.Errorf("resetting title: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing reset: %w", err)
	}

	s.logger.Debug("conversation reset", "conversation_id", id)
	return true, nil
}

// getMessages returns all messages for a conversation in insertion order
func (s *SQLiteStore) getMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, blocks, created_at FROM messages WHERE conversation_id = ? ORDER BY id`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var blocks sql.NullString
		var createdAt string
		if err := rows.Scan(&msg.Role, &msg.Content, &blocks, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if blocks.Valid {
			msg.Blocks = []byte(blocks.String)
		}
		msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanConversation scans a conversation row without its messages
func scanConversation(row *sql.Row) (*Conversation, error) {
	var conv Conversation
	var createdAt string
	if err := row.Scan(&conv.ID, &conv.OwnerID, &conv.Title, &createdAt); err != nil {
		return nil, err
	}
	var err error
	conv.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &conv, nil
}
