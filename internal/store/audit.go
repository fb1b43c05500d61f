// ABOUTME: Audit log entity and store methods for tracking administrative actions
// ABOUTME: Records which admin changed which operator or admin, and maintenance runs

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditAddOperator    AuditAction = "add_operator"
	AuditDeleteOperator AuditAction = "delete_operator"
	AuditAddAdmin       AuditAction = "add_admin"
	AuditDeleteAdmin    AuditAction = "delete_admin"
	AuditRefresh        AuditAction = "refresh"
	AuditImport         AuditAction = "import"
)

// AuditEntry is a single audit log entry.
type AuditEntry struct {
	ID        string      // UUID v4
	ActorID   int64       // chat id of the admin, 0 for the CLI
	Action    AuditAction // what was done
	TargetID  int64       // affected chat id, 0 when none
	Timestamp time.Time
	Detail    map[string]any
}

// AuditFilter narrows ListAuditLog. Nil fields match everything.
type AuditFilter struct {
	Since   *time.Time
	ActorID *int64
	Action  *AuditAction
	Limit   int // default 100, max 1000
}

// AppendAuditLog appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (audit_id, actor_id, action, target_id, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.ActorID, e.Action, e.TargetID, formatTime(e.Timestamp), detailJSON)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log",
		"id", e.ID,
		"actor", e.ActorID,
		"action", e.Action,
		"target", e.TargetID,
	)
	return nil
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

func scanAuditEntry(row rowScanner) (*AuditEntry, error) {
	var e AuditEntry
	var action, ts string
	var detailJSON *string

	if err := row.Scan(&e.ID, &e.ActorID, &action, &e.TargetID, &ts, &detailJSON); err != nil {
		return nil, fmt.Errorf("scanning audit entry: %w", err)
	}

	e.Action = AuditAction(action)
	var err error
	if e.Timestamp, err = parseTime(ts); err != nil {
		return nil, fmt.Errorf("parsing audit timestamp: %w", err)
	}
	if detailJSON != nil {
		if e.Detail, err = DecodeExtra([]byte(*detailJSON)); err != nil {
			return nil, fmt.Errorf("decoding audit detail: %w", err)
		}
	}
	return &e, nil
}

const auditLogQuery = `
	SELECT audit_id, actor_id, action, target_id, ts, detail_json
	FROM audit_log
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR actor_id = ?)
	  AND (? IS NULL OR action = ?)
	ORDER BY seq DESC
	LIMIT ?
`

// ListAuditLog returns audit entries matching the filter, newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	var since, action *string
	if f.Since != nil {
		v := formatTime(*f.Since)
		since = &v
	}
	if f.Action != nil {
		v := string(*f.Action)
		action = &v
	}

	rows, err := s.db.QueryContext(ctx, auditLogQuery,
		since, since,
		f.ActorID, f.ActorID,
		action, action,
		normalizeAuditLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []*AuditEntry{}
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}
