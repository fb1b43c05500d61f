// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, enables WAL, creates the schema and applies column migrations

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"  // pure Go, default
	DriverCgo     = "sqlite3" // mattn/go-sqlite3, needs cgo
)

// timeLayout is used for every persisted timestamp so that text ordering
// matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path using the
// pure Go driver. The schema is created if it doesn't exist and parent
// directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return OpenSQLiteStore(DriverModernc, path)
}

// OpenSQLiteStore is NewSQLiteStore with an explicit driver name.
// An empty driver selects DriverModernc.
func OpenSQLiteStore(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	switch driver {
	case "":
		driver = DriverModernc
	case DriverModernc, DriverCgo:
	default:
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps writes serialized and makes :memory: usable.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
// Sessions carry no foreign key to operators: deleting an operator
// leaves its sessions in place.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS operators (
			chat_id    INTEGER PRIMARY KEY,
			available  INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			client_id   INTEGER PRIMARY KEY,
			operator_id INTEGER NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_operator ON sessions(operator_id);

		CREATE TABLE IF NOT EXISTS clients (
			chat_id            INTEGER PRIMARY KEY,
			phone              TEXT NOT NULL DEFAULT '',
			first_name         TEXT NOT NULL DEFAULT '',
			last_name          TEXT NOT NULL DEFAULT '',
			state              TEXT NOT NULL,
			cities_json        TEXT NOT NULL DEFAULT '[]',
			subscriptions_json TEXT NOT NULL DEFAULT '[]',
			created_at         TEXT NOT NULL,
			updated_at         TEXT NOT NULL,

			CHECK (state IN ('chatbot', 'operator', 'entering_cities'))
		);

		CREATE TABLE IF NOT EXISTS known_phones (
			phone    TEXT PRIMARY KEY,
			added_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS admins (
			chat_id    INTEGER PRIMARY KEY,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS log_entries (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_id   TEXT NOT NULL UNIQUE,
			chat_id    INTEGER NOT NULL,
			sender     TEXT NOT NULL,
			sender_id  INTEGER NOT NULL,
			text       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_log_entries_chat ON log_entries(chat_id, seq);

		CREATE TABLE IF NOT EXISTS forwards (
			operator_id INTEGER NOT NULL,
			message_id  INTEGER NOT NULL,
			client_id   INTEGER NOT NULL,
			created_at  TEXT NOT NULL,
			PRIMARY KEY (operator_id, message_id)
		);

		CREATE TABLE IF NOT EXISTS audit_log (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			audit_id    TEXT NOT NULL UNIQUE,
			actor_id    INTEGER NOT NULL,
			action      TEXT NOT NULL,
			target_id   INTEGER NOT NULL DEFAULT 0,
			ts          TEXT NOT NULL,
			detail_json TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_log_actor ON audit_log(actor_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations adds columns introduced after the first schema.
// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "clients",
			column: "extra_json",
			apply:  `ALTER TABLE clients ADD COLUMN extra_json TEXT NOT NULL DEFAULT '{}'`,
		},
	}

	for _, m := range migrations {
		var exists int
		check := fmt.Sprintf(`SELECT 1 FROM pragma_table_info('%s') WHERE name = ?`, m.table)
		err := s.db.QueryRow(check, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}

// now is overridable so tests can pin timestamps.
var now = func() time.Time { return time.Now().UTC() }
