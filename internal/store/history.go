// ABOUTME: Conversation log and forward index persistence
// ABOUTME: Log entries are ordered by insertion sequence, not timestamp

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// AppendLogEntry persists a log entry, assigning ID and CreatedAt when unset.
func (s *SQLiteStore) AppendLogEntry(ctx context.Context, e *LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}

	query := `
		INSERT INTO log_entries (entry_id, chat_id, sender, sender_id, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, e.ID, e.ChatID, e.Sender, e.SenderID, e.Text, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}
	return nil
}

// ListLogEntries returns the most recent limit entries of a chat in
// chronological order. A non-positive limit returns everything.
func (s *SQLiteStore) ListLogEntries(ctx context.Context, chatID int64, limit int) ([]*LogEntry, error) {
	query := `
		SELECT entry_id, chat_id, sender, sender_id, text, created_at FROM (
			SELECT seq, entry_id, chat_id, sender, sender_id, text, created_at
			FROM log_entries
			WHERE chat_id = ?
			ORDER BY seq DESC
			LIMIT ?
		)
		ORDER BY seq ASC
	`
	return s.queryLogEntries(ctx, query, chatID, sqlLimit(limit))
}

// ListRecentLogEntries returns the most recent limit entries across all
// chats in chronological order.
func (s *SQLiteStore) ListRecentLogEntries(ctx context.Context, limit int) ([]*LogEntry, error) {
	query := `
		SELECT entry_id, chat_id, sender, sender_id, text, created_at FROM (
			SELECT seq, entry_id, chat_id, sender, sender_id, text, created_at
			FROM log_entries
			ORDER BY seq DESC
			LIMIT ?
		)
		ORDER BY seq ASC
	`
	return s.queryLogEntries(ctx, query, sqlLimit(limit))
}

func (s *SQLiteStore) queryLogEntries(ctx context.Context, query string, args ...any) ([]*LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying log entries: %w", err)
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		var e LogEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ChatID, &e.Sender, &e.SenderID, &e.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing log entry created_at: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating log entries: %w", err)
	}
	return entries, nil
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// SaveForward records which client a forwarded operator message belongs to.
func (s *SQLiteStore) SaveForward(ctx context.Context, f *Forward) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now()
	}
	query := `
		INSERT OR REPLACE INTO forwards (operator_id, message_id, client_id, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, f.OperatorID, f.MessageID, f.ClientID, formatTime(f.CreatedAt)); err != nil {
		return fmt.Errorf("saving forward: %w", err)
	}
	return nil
}

// GetForward looks up the client behind a forwarded message. Returns ErrNotFound if unknown.
func (s *SQLiteStore) GetForward(ctx context.Context, operatorID int64, messageID int) (*Forward, error) {
	query := `
		SELECT operator_id, message_id, client_id, created_at
		FROM forwards
		WHERE operator_id = ? AND message_id = ?
	`

	var f Forward
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, operatorID, messageID).Scan(&f.OperatorID, &f.MessageID, &f.ClientID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying forward: %w", err)
	}
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing forward created_at: %w", err)
	}
	return &f, nil
}
