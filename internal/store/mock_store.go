// ABOUTME: Mock Store implementation for testing
// ABOUTME: Keeps everything in maps and can be told to fail writes

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu        sync.RWMutex
	operators map[int64]*Operator
	sessions  map[int64]*Session
	clients   map[int64]*Client
	phones    map[string]struct{}
	admins    map[int64]struct{}
	log       []*LogEntry
	forwards  map[forwardKey]*Forward
	audit     []*AuditEntry

	// writeErr, when set, is returned by every mutating call.
	writeErr error
}

type forwardKey struct {
	operatorID int64
	messageID  int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		operators: make(map[int64]*Operator),
		sessions:  make(map[int64]*Session),
		clients:   make(map[int64]*Client),
		phones:    make(map[string]struct{}),
		admins:    make(map[int64]struct{}),
		forwards:  make(map[forwardKey]*Forward),
	}
}

// FailWrites makes every subsequent write return err. Pass nil to recover.
func (m *MockStore) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

func (m *MockStore) writeFailure(op string) error {
	if m.writeErr != nil {
		return fmt.Errorf("%s: %w", op, m.writeErr)
	}
	return nil
}

// ListOperators returns all operators ordered by chat id.
func (m *MockStore) ListOperators(ctx context.Context) ([]*Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Operator, 0, len(m.operators))
	for _, op := range m.operators {
		cp := *op
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

// UpsertOperator creates the operator or updates its availability.
func (m *MockStore) UpsertOperator(ctx context.Context, chatID int64, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeFailure("upserting operator"); err != nil {
		return err
	}

	ts := now()
	if op, ok := m.operators[chatID]; ok {
		op.Available = available
		op.UpdatedAt = ts
		return nil
	}
	m.operators[chatID] = &Operator{ChatID: chatID, Available: available, CreatedAt: ts, UpdatedAt: ts}
	return nil
}

// DeleteOperator removes an operator.
func (m *MockStore) DeleteOperator(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeFailure("deleting operator"); err != nil {
		return err
	}

	if _, ok := m.operators[chatID]; !ok {
		return fmt.Errorf("operator: %w", ErrNotFound)
	}
	delete(m.operators, chatID)
	return nil
}

// ListSessions returns all sessions ordered by client id.
func (m *MockStore) ListSessions(ctx context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

// PutSession assigns a client to an operator.
func (m *MockStore) PutSession(ctx context.Context, clientID, operatorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeFailure("saving session"); err != nil {
		return err
	}

	ts := now()
	if s, ok := m.sessions[clientID]; ok {
		s.OperatorID = operatorID
		s.UpdatedAt = ts
		return nil
	}
	m.sessions[clientID] = &Session{ClientID: clientID, OperatorID: operatorID, CreatedAt: ts, UpdatedAt: ts}
	return nil
}

// DeleteSession removes a client's session.
func (m *MockStore) DeleteSession(ctx context.Context, clientID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeFailure("deleting session"); err != nil {
		return err
	}

	if _, ok := m.sessions[clientID]; !ok {
		return fmt.Errorf("session: %w", ErrNotFound)
	}
	delete(m.sessions, clientID)
	return nil
}

// ListClients returns all client records ordered by chat id.
func (m *MockStore) ListClients(ctx context.Context) ([]*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

// GetClient returns a client record.
func (m *MockStore) GetClient(ctx context.Context, chatID int64) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

// PutClient inserts or replaces a client record.
func (m *MockStore) PutClient(ctx context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeFailure("saving client"); err != nil {
		return err
	}
	if !c.State.Valid() {
		return fmt.Errorf("invalid client state %q", c.State)
	}

	cp := c.Clone()
	cp.Cities = SortedSet(cp.Cities)
	cp.Subscriptions = SortedSet(cp.Subscriptions)
	if prev, ok := m.clients[c.ChatID]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now()
	}
	cp.UpdatedAt = now()
	m.clients[c.ChatID] = cp
	return nil
}

// IsKnownPhone reports whether the phone is registered.
func (m *MockStore) IsKnownPhone(ctx context.Context, phone string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.phones[NormalizePhone(phone)]
	return ok, nil
}

// AddKnownPhones registers phones and returns how many were new.
func (m *MockStore) AddKnownPhones(ctx context.Context, phones []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeFailure("inserting phone"); err != nil {
		return 0, err
	}

	added := 0
	for _, p := range phones {
		p = NormalizePhone(p)
		if p == "" {
			continue
		}
		if _, ok := m.phones[p]; !ok {
			m.phones[p] = struct{}{}
			added++
		}
	}
	return added, nil
}

// CountKnownPhones returns the registry size.
func (m *MockStore) CountKnownPhones(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.phones), nil
}

// ListAdmins returns admin ids in ascending order.
func (m *MockStore) ListAdmins(ctx context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]int64, 0, len(m.admins))
	for id := range m.admins {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// AddAdmin grants admin rights.
func (m *MockStore) AddAdmin(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeFailure("adding admin"); err != nil {
		return err
	}
	m.admins[chatID] = struct{}{}
	return nil
}

// DeleteAdmin revokes admin rights.
func (m *MockStore) DeleteAdmin(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeFailure("deleting admin"); err != nil {
		return err
	}
	if _, ok := m.admins[chatID]; !ok {
		return fmt.Errorf("admin: %w", ErrNotFound)
	}
	delete(m.admins, chatID)
	return nil
}

// AppendLogEntry appends to the in-memory log.
func (m *MockStore) AppendLogEntry(ctx context.Context, e *LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeFailure("inserting log entry"); err != nil {
		return err
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	cp := *e
	m.log = append(m.log, &cp)
	return nil
}

// ListLogEntries returns the newest limit entries of a chat, oldest first.
func (m *MockStore) ListLogEntries(ctx context.Context, chatID int64, limit int) ([]*LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*LogEntry
	for _, e := range m.log {
		if e.ChatID == chatID {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	return tail(matched, limit), nil
}

// ListRecentLogEntries returns the newest limit entries overall, oldest first.
func (m *MockStore) ListRecentLogEntries(ctx context.Context, limit int) ([]*LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*LogEntry, 0, len(m.log))
	for _, e := range m.log {
		cp := *e
		all = append(all, &cp)
	}
	return tail(all, limit), nil
}

func tail(entries []*LogEntry, limit int) []*LogEntry {
	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}

// SaveForward records a forwarded message.
func (m *MockStore) SaveForward(ctx context.Context, f *Forward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeFailure("saving forward"); err != nil {
		return err
	}
	cp := *f
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now()
	}
	m.forwards[forwardKey{f.OperatorID, f.MessageID}] = &cp
	return nil
}

// GetForward looks up a forwarded message.
func (m *MockStore) GetForward(ctx context.Context, operatorID int64, messageID int) (*Forward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.forwards[forwardKey{operatorID, messageID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

// AppendAuditLog records an audit entry.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeFailure("appending audit entry"); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now()
	}
	cp := *e
	m.audit = append(m.audit, &cp)
	return nil
}

// ListAuditLog returns matching audit entries, newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeAuditLimit(f.Limit)
	out := []*AuditEntry{}
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.audit[i]
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.ActorID != nil && e.ActorID != *f.ActorID {
			continue
		}
		if f.Action != nil && e.Action != *f.Action {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time interface checks.
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
