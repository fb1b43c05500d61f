// ABOUTME: Client record persistence with JSON columns for settings sets and extra fields
// ABOUTME: PutClient rewrites the whole record so unknown fields must travel in Extra

package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

const clientColumns = `chat_id, phone, first_name, last_name, state,
	cities_json, subscriptions_json, extra_json, created_at, updated_at`

// ListClients returns all client records ordered by chat id.
func (s *SQLiteStore) ListClients(ctx context.Context) ([]*Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients ORDER BY chat_id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating client rows: %w", err)
	}

	return clients, nil
}

// GetClient returns one client record or ErrNotFound.
func (s *SQLiteStore) GetClient(ctx context.Context, chatID int64) (*Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE chat_id = ?`

	c, err := scanClient(s.db.QueryRowContext(ctx, query, chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// PutClient inserts or fully replaces a client record.
// CreatedAt is kept from the stored row when the record already exists.
func (s *SQLiteStore) PutClient(ctx context.Context, c *Client) error {
	if !c.State.Valid() {
		return fmt.Errorf("invalid client state %q", c.State)
	}

	cities, err := json.Marshal(SortedSet(c.Cities))
	if err != nil {
		return fmt.Errorf("encoding cities: %w", err)
	}
	subs, err := json.Marshal(SortedSet(c.Subscriptions))
	if err != nil {
		return fmt.Errorf("encoding subscriptions: %w", err)
	}
	extra := []byte("{}")
	if len(c.Extra) > 0 {
		if extra, err = json.Marshal(c.Extra); err != nil {
			return fmt.Errorf("encoding extra fields: %w", err)
		}
	}

	created := c.CreatedAt
	if created.IsZero() {
		created = now()
	}

	query := `
		INSERT INTO clients (` + clientColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			phone = excluded.phone,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			state = excluded.state,
			cities_json = excluded.cities_json,
			subscriptions_json = excluded.subscriptions_json,
			extra_json = excluded.extra_json,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		c.ChatID,
		c.Phone,
		c.FirstName,
		c.LastName,
		string(c.State),
		string(cities),
		string(subs),
		string(extra),
		formatTime(created),
		formatTime(now()),
	)
	if err != nil {
		return fmt.Errorf("saving client: %w", err)
	}

	s.logger.Debug("saved client", "chat_id", c.ChatID, "state", c.State)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*Client, error) {
	var c Client
	var state, cities, subs, extra, createdAt, updatedAt string

	err := row.Scan(
		&c.ChatID,
		&c.Phone,
		&c.FirstName,
		&c.LastName,
		&state,
		&cities,
		&subs,
		&extra,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning client row: %w", err)
	}

	c.State = ClientState(state)
	if err := json.Unmarshal([]byte(cities), &c.Cities); err != nil {
		return nil, fmt.Errorf("decoding cities for %d: %w", c.ChatID, err)
	}
	if err := json.Unmarshal([]byte(subs), &c.Subscriptions); err != nil {
		return nil, fmt.Errorf("decoding subscriptions for %d: %w", c.ChatID, err)
	}
	if c.Extra, err = DecodeExtra([]byte(extra)); err != nil {
		return nil, fmt.Errorf("decoding extra fields for %d: %w", c.ChatID, err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing client created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing client updated_at: %w", err)
	}

	return &c, nil
}

// DecodeExtra parses a JSON object keeping numbers as json.Number so that
// large identifiers survive a rewrite unchanged. Empty objects decode to nil.
func DecodeExtra(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var extra map[string]any
	if err := dec.Decode(&extra); err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return nil, nil
	}
	return extra, nil
}

// SortedSet returns the unique values of in, sorted. Never nil.
func SortedSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
