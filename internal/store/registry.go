// ABOUTME: Known-client phone registry and admin list persistence
// ABOUTME: Phones are stored as digits only so formatting differences don't matter

package store

import (
	"context"
	"fmt"
	"strings"
)

// NormalizePhone strips everything but digits from a phone number.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsKnownPhone reports whether the phone is in the registry.
func (s *SQLiteStore) IsKnownPhone(ctx context.Context, phone string) (bool, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return false, nil
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM known_phones WHERE phone = ?`, phone).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking known phone: %w", err)
	}
	return exists > 0, nil
}

// AddKnownPhones inserts phones into the registry, skipping blanks and
// duplicates. Returns how many were new.
func (s *SQLiteStore) AddKnownPhones(ctx context.Context, phones []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO known_phones (phone, added_at) VALUES (?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	ts := formatTime(now())
	added := 0
	for _, p := range phones {
		p = NormalizePhone(p)
		if p == "" {
			continue
		}
		result, err := stmt.ExecContext(ctx, p, ts)
		if err != nil {
			return 0, fmt.Errorf("inserting phone: %w", err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing phones: %w", err)
	}

	s.logger.Info("registry updated", "added", added, "submitted", len(phones))
	return added, nil
}

// CountKnownPhones returns the registry size.
func (s *SQLiteStore) CountKnownPhones(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM known_phones`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting known phones: %w", err)
	}
	return n, nil
}

// ListAdmins returns admin chat ids in ascending order.
func (s *SQLiteStore) ListAdmins(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM admins ORDER BY chat_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying admins: %w", err)
	}
	defer rows.Close()

	var admins []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning admin row: %w", err)
		}
		admins = append(admins, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating admin rows: %w", err)
	}
	return admins, nil
}

// AddAdmin grants admin rights. Adding an existing admin is a no-op.
func (s *SQLiteStore) AddAdmin(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO admins (chat_id, created_at) VALUES (?, ?)`, chatID, formatTime(now()))
	if isConstraintViolation(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("adding admin: %w", err)
	}
	s.logger.Info("added admin", "chat_id", chatID)
	return nil
}

// DeleteAdmin revokes admin rights. Returns ErrNotFound if the id isn't an admin.
func (s *SQLiteStore) DeleteAdmin(ctx context.Context, chatID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM admins WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("deleting admin: %w", err)
	}
	return expectOneRow(result, "admin")
}
