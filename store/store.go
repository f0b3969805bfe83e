// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists conversations and their messages. All reads and
// writes are scoped by the owning user id; messages are append-only.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Conversation is one persisted thread.
type Conversation struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int       `json:"message_count"`
}

// Message is one question/answer pair inside a conversation.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	Timestamp      time.Time `json:"timestamp"`
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	last_message_at TIMESTAMP NOT NULL,
	user_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE INDEX IF NOT EXISTS idx_conversation_last_message
	ON conversations(user_id, last_message_at DESC);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, user_id, timestamp DESC);
`

// ConversationStore is the SQLite-backed persistence layer.
type ConversationStore struct {
	db     *sql.DB
	titler Titler
}

// Titler generates a conversation title, best-effort. A nil Titler makes
// every title deterministic.
type Titler interface {
	Title(ctx context.Context, question, answer string) (string, error)
}

// Open initialises the database at path and applies the schema.
func Open(path string, titler Titler) (*ConversationStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening conversation db: %w", err)
	}
	// modernc sqlite serialises writes itself; one connection avoids
	// SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying conversation schema: %w", err)
	}
	return &ConversationStore{db: db, titler: titler}, nil
}

func (s *ConversationStore) Close() error { return s.db.Close() }

// Create starts a conversation for userID from its first exchange and
// returns the new id. Title generation never fails the insert.
func (s *ConversationStore) Create(ctx context.Context, userID, question, answer string) (string, error) {
	id := uuid.NewString()
	title := s.generateTitle(ctx, question, answer)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, last_message_at, user_id) VALUES (?, ?, ?, ?, ?)`,
		id, title, now, now, userID); err != nil {
		return "", fmt.Errorf("inserting conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, question, answer, timestamp, user_id) VALUES (?, ?, ?, ?, ?)`,
		id, question, answer, now, userID); err != nil {
		return "", fmt.Errorf("inserting first message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// AppendMessage adds an exchange to an existing conversation owned by
// userID and bumps last_message_at.
func (s *ConversationStore) AppendMessage(ctx context.Context, userID, conversationID, question, answer string) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = ? WHERE id = ? AND user_id = ?`,
		now, conversationID, userID)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s not found for user", conversationID)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, question, answer, timestamp, user_id) VALUES (?, ?, ?, ?, ?)`,
		conversationID, question, answer, now, userID); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return tx.Commit()
}

// List returns the user's conversations, most recent first.
func (s *ConversationStore) List(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at, c.last_message_at, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id AND m.user_id = c.user_id
		WHERE c.user_id = ?
		GROUP BY c.id, c.title, c.created_at, c.last_message_at
		ORDER BY c.last_message_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.LastMessageAt, &c.MessageCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns one conversation owned by userID, or sql.ErrNoRows.
func (s *ConversationStore) Get(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.title, c.created_at, c.last_message_at, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id AND m.user_id = c.user_id
		WHERE c.id = ? AND c.user_id = ?
		GROUP BY c.id, c.title, c.created_at, c.last_message_at`,
		conversationID, userID).
		Scan(&c.ID, &c.Title, &c.CreatedAt, &c.LastMessageAt, &c.MessageCount)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Messages returns a conversation's exchanges in chronological order.
func (s *ConversationStore) Messages(ctx context.Context, userID, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, question, answer, timestamp
		FROM messages
		WHERE conversation_id = ? AND user_id = ?
		ORDER BY timestamp ASC, id ASC`, conversationID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Question, &m.Answer, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete removes a conversation and its messages.
func (s *ConversationStore) Delete(ctx context.Context, userID, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ? AND user_id = ?`, conversationID, userID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ? AND user_id = ?`, conversationID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// CleanupOlderThan removes conversations whose last activity predates the
// cutoff. Run periodically from main.
func (s *ConversationStore) CleanupOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE conversation_id IN (
			SELECT id FROM conversations WHERE last_message_at < ?
		)`, cutoff); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE last_message_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info("cleaned up old conversations", "removed", n, "cutoff", cutoff)
	}
	return n, nil
}
