// Package history persists chat transcripts to sqlite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jask/chatfuse/internal/database"
)

// Role labels who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleShell     Role = "shell"
	RoleSystem    Role = "system"
)

// Session is one chat session.
type Session struct {
	ID        string
	StartedAt time.Time
	Provider  string
	Model     string
}

// Message is one transcript entry.
type Message struct {
	ID               int64
	SessionID        string
	CreatedAt        time.Time
	Role             Role
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Store wraps the transcript tables.
type Store struct {
	db *sql.DB
}

// now returns UTC truncated to seconds, matching sqlite's timestamp
// resolution so session ordering compares cleanly.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateSession starts a new session and returns its id.
func (s *Store) CreateSession(ctx context.Context, provider, model string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, provider, model) VALUES (?, ?, ?, ?)`,
		id, now(), provider, model)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// AppendMessage records one transcript entry.
func (s *Store) AppendMessage(ctx context.Context, m Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, created_at, role, content, prompt_tokens, completion_tokens)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.SessionID, now(), string(m.Role), m.Content, m.PromptTokens, m.CompletionTokens)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Messages returns a session's transcript in insertion order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, created_at, role, content, prompt_tokens, completion_tokens
		 FROM messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.CreatedAt, &role, &m.Content, &m.PromptTokens, &m.CompletionTokens); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentSessions lists the newest sessions first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, provider, model FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.StartedAt, &sess.Provider, &sess.Model); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ClearSession drops a session's transcript but keeps the session row.
func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	return database.WithTx(s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
		return err
	})
}

// TotalUsage sums token counts across a session.
func (s *Store) TotalUsage(ctx context.Context, sessionID string) (prompt, completion int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0)
		 FROM messages WHERE session_id = ?`, sessionID).Scan(&prompt, &completion)
	if err != nil {
		return 0, 0, fmt.Errorf("sum usage: %w", err)
	}
	return prompt, completion, nil
}
