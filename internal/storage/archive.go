// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tsunamayo7/helix-ai-studio/internal/history"
	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

// ErrNoChat is returned when a message is recorded without a chat id.
var ErrNoChat = errors.New("message has no chat")

// schema creates the archive tables. Timestamps are unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	endpoint   TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	chat_id    TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	message_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	is_error   INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (chat_id, seq),
	UNIQUE (chat_id, message_id),
	FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_chats_updated_at ON chats(updated_at DESC);
`

// =============================================================================
// ARCHIVE
// =============================================================================

// Archive is the local chat database.
type Archive struct {
	db   *sql.DB
	path string

	// now is replaceable in tests.
	now func() time.Time
}

// Compile-time checks.
var (
	_ history.Store    = (*Archive)(nil)
	_ history.Recorder = (*Archive)(nil)
)

// DefaultPath returns ~/.helix/archive.db, or a relative path if the home
// directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".helix", "archive.db")
	}
	return filepath.Join(home, ".helix", "archive.db")
}

// Open opens or creates the archive at path.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Archive{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file.
func (a *Archive) Path() string {
	return a.path
}

// Close releases the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// =============================================================================
// RECORDING
// =============================================================================

// RecordMessage appends msg to the chat, creating the chat row if needed.
// Recording the same message id twice is a no-op.
func (a *Archive) RecordMessage(ctx context.Context, chat model.ChatID, endpoint string, msg model.ChatMessage) error {
	if chat.IsZero() {
		return ErrNoChat
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := a.now().UnixMilli()
	if err := touchChat(ctx, tx, chat, endpoint, now); err != nil {
		return err
	}

	created := now
	if !msg.Timestamp.IsZero() {
		created = msg.Timestamp.UnixMilli()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (chat_id, seq, message_id, role, content, is_error, created_at)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?
		FROM messages WHERE chat_id = ?
		ON CONFLICT (chat_id, message_id) DO NOTHING`,
		chat.String(), storedMessageID(msg), string(msg.Role), msg.Content, msg.IsError, created, chat.String())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return tx.Commit()
}

// SetTitle stores the title of a chat, creating the chat row if needed.
func (a *Archive) SetTitle(ctx context.Context, chat model.ChatID, title string) error {
	if chat.IsZero() {
		return ErrNoChat
	}
	now := a.now().UnixMilli()
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO chats (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		chat.String(), title, now, now)
	if err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	return nil
}

// touchChat inserts the chat row or bumps its update time. An empty endpoint
// leaves the stored endpoint alone.
func touchChat(ctx context.Context, tx *sql.Tx, chat model.ChatID, endpoint string, now int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, endpoint, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			updated_at = excluded.updated_at,
			endpoint = CASE WHEN excluded.endpoint = '' THEN chats.endpoint ELSE excluded.endpoint END`,
		chat.String(), endpoint, now, now)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return nil
}

// storedMessageID strips the transcript prefix; replay adds it back.
func storedMessageID(msg model.ChatMessage) string {
	return strings.TrimPrefix(msg.ID, "msg_")
}

// =============================================================================
// READING
// =============================================================================

// GetChat loads a chat and its messages in order. Unknown chats return an
// error matching history.ErrNotFound.
func (a *Archive) GetChat(ctx context.Context, id model.ChatID) (*history.Chat, error) {
	var (
		summary history.ChatSummary
		created int64
		updated int64
	)
	row := a.db.QueryRowContext(ctx, `
		SELECT c.id, c.title, c.endpoint, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id)
		FROM chats c WHERE c.id = ?`, id.String())
	var endpoint string
	err := row.Scan(&summary.ID, &summary.Title, &endpoint, &created, &updated, &summary.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("archived chat %s: %w", id, history.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	summary.Tab = history.TabForEndpoint(endpoint)
	summary.CreatedAt = formatMillis(created)
	summary.UpdatedAt = formatMillis(updated)

	rows, err := a.db.QueryContext(ctx, `
		SELECT message_id, role, content, is_error, created_at
		FROM messages WHERE chat_id = ? ORDER BY seq`, id.String())
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	chat := &history.Chat{ChatSummary: summary, Messages: make([]model.HistoryRecord, 0, summary.MessageCount)}
	for rows.Next() {
		var (
			rec     model.HistoryRecord
			isError bool
			at      int64
		)
		if err := rows.Scan(&rec.ID, &rec.Role, &rec.Content, &isError, &at); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if isError && rec.Role == string(model.RoleSystem) {
			rec.Role = "error"
		}
		rec.CreatedAt = formatMillis(at)
		chat.Messages = append(chat.Messages, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return chat, nil
}

// ListChats returns archived chats, most recently updated first. A non-empty
// endpoint restricts the list to chats recorded on that endpoint.
func (a *Archive) ListChats(ctx context.Context, endpoint string) ([]history.ChatSummary, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.endpoint, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id)
		FROM chats c
		WHERE ? = '' OR c.endpoint = ?
		ORDER BY c.updated_at DESC, c.rowid DESC`, endpoint, endpoint)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]history.ChatSummary, 0)
	for rows.Next() {
		var (
			s                history.ChatSummary
			ep               string
			created, updated int64
		)
		if err := rows.Scan(&s.ID, &s.Title, &ep, &created, &updated, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		s.Tab = history.TabForEndpoint(ep)
		s.CreatedAt = formatMillis(created)
		s.UpdatedAt = formatMillis(updated)
		chats = append(chats, s)
	}
	return chats, rows.Err()
}

// DeleteChat removes a chat and its messages.
func (a *Archive) DeleteChat(ctx context.Context, id model.ChatID) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("archived chat %s: %w", id, history.ErrNotFound)
	}
	return nil
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}
