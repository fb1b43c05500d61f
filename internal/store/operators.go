// ABOUTME: Operator availability and client session persistence
// ABOUTME: Sessions map client chat ids to operator chat ids and are not tied to operator rows

package store

import (
	"context"
	"fmt"
)

// ListOperators returns all operators ordered by chat id.
func (s *SQLiteStore) ListOperators(ctx context.Context) ([]*Operator, error) {
	query := `
		SELECT chat_id, available, created_at, updated_at
		FROM operators
		ORDER BY chat_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying operators: %w", err)
	}
	defer rows.Close()

	var operators []*Operator
	for rows.Next() {
		var op Operator
		var available int
		var createdAt, updatedAt string
		if err := rows.Scan(&op.ChatID, &available, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning operator row: %w", err)
		}
		op.Available = available != 0
		if op.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing operator created_at: %w", err)
		}
		if op.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing operator updated_at: %w", err)
		}
		operators = append(operators, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operator rows: %w", err)
	}

	return operators, nil
}

// UpsertOperator creates the operator or updates its availability.
func (s *SQLiteStore) UpsertOperator(ctx context.Context, chatID int64, available bool) error {
	query := `
		INSERT INTO operators (chat_id, available, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			available = excluded.available,
			updated_at = excluded.updated_at
	`

	ts := formatTime(now())
	if _, err := s.db.ExecContext(ctx, query, chatID, boolToInt(available), ts, ts); err != nil {
		return fmt.Errorf("upserting operator: %w", err)
	}

	s.logger.Debug("upserted operator", "chat_id", chatID, "available", available)
	return nil
}

// DeleteOperator removes an operator. Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) DeleteOperator(ctx context.Context, chatID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM operators WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("deleting operator: %w", err)
	}
	return expectOneRow(result, "operator")
}

// ListSessions returns all sessions ordered by client id.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*Session, error) {
	query := `
		SELECT client_id, operator_id, created_at, updated_at
		FROM sessions
		ORDER BY client_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		var createdAt, updatedAt string
		if err := rows.Scan(&sess.ClientID, &sess.OperatorID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		if sess.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing session created_at: %w", err)
		}
		if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing session updated_at: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	return sessions, nil
}

// PutSession assigns the client to the operator, replacing any previous assignment.
func (s *SQLiteStore) PutSession(ctx context.Context, clientID, operatorID int64) error {
	query := `
		INSERT INTO sessions (client_id, operator_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			operator_id = excluded.operator_id,
			updated_at = excluded.updated_at
	`

	ts := formatTime(now())
	if _, err := s.db.ExecContext(ctx, query, clientID, operatorID, ts, ts); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	s.logger.Debug("saved session", "client_id", clientID, "operator_id", operatorID)
	return nil
}

// DeleteSession removes the client's session. Returns ErrNotFound if there is none.
func (s *SQLiteStore) DeleteSession(ctx context.Context, clientID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE client_id = ?`, clientID)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return expectOneRow(result, "session")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// expectOneRow maps a zero-row delete to ErrNotFound.
func expectOneRow(result interface{ RowsAffected() (int64, error) }, entity string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, ErrNotFound)
	}
	return nil
}
