// Package store provides persistent storage for the relay using SQLite.
//
// # Architecture
//
// The store package exposes small interfaces, one per consumer:
//
//   - OperatorStore: operator availability and client sessions
//   - ClientStore: authorized client records
//   - RegistryStore: phones of known clients
//   - AdminStore: admin chat ids
//   - HistoryStore: the conversation log
//   - ForwardStore: forwarded operator message → client links
//
// SQLiteStore implements all of them in a single struct; Store is the union.
//
// # Data Models
//
//   - Operator: chat id plus availability flag
//   - Session: client chat id → operator chat id
//   - Client: profile, state, cities and subscriptions sets, extra fields
//   - LogEntry: one logged message, keyed by the client chat
//   - Forward: where a forwarded message came from
//
// Sessions have no foreign key to operators. Deleting an operator leaves
// its sessions in place; the session layer treats them as pointing at an
// unavailable operator.
//
// # SQLite Configuration
//
// The default driver is modernc.org/sqlite (pure Go). OpenSQLiteStore
// accepts DriverCgo to use mattn/go-sqlite3 instead. WAL mode is enabled
// and the pool is limited to one connection.
//
// # Error Handling
//
// Missing rows are reported as ErrNotFound (possibly wrapped; use errors.Is).
//
// # Testing
//
// Use NewMockStore() for unit tests. FailWrites makes every mutation
// fail, which is how callers test that a failed write leaves their
// in-memory state untouched.
package store
