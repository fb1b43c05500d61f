// ABOUTME: Session Store: operator availability and client-to-operator assignment
// ABOUTME: Write-through cache over store.OperatorStore with least-loaded assignment

package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/2389/helpdesk-relay/internal/store"
)

// Errors
var (
	// ErrNotFound means the session or operator does not exist. Callers
	// closing sessions are expected to tolerate it.
	ErrNotFound = store.ErrNotFound

	// ErrPersistence wraps storage failures. The cache is unchanged when
	// it is returned.
	ErrPersistence = errors.New("persisting session state")
)

// Assignment is the outcome of ResolveOrAssign.
type Assignment struct {
	OperatorID int64
	// Found is false when no operator is available.
	Found bool
	// Reassigned is false only when the client's existing operator is
	// still available. Without an operator it reports whether a
	// previous session was broken.
	Reassigned bool
}

// OperatorInfo summarizes one operator for listings.
type OperatorInfo struct {
	ChatID    int64
	Available bool
	Sessions  int
}

// Store owns the operator availability map and the session map.
type Store struct {
	backend store.OperatorStore
	logger  *slog.Logger

	mu        sync.Mutex
	operators map[int64]bool  // chat id -> available
	sessions  map[int64]int64 // client id -> operator id
}

// New creates a Store and loads its state from backend.
func New(ctx context.Context, backend store.OperatorStore, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend: backend,
		logger:  logger.With("component", "sessions"),
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the cached state with what is persisted.
func (s *Store) Reload(ctx context.Context) error {
	ops, err := s.backend.ListOperators(ctx)
	if err != nil {
		return fmt.Errorf("loading operators: %w", err)
	}
	sess, err := s.backend.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("loading sessions: %w", err)
	}

	operators := make(map[int64]bool, len(ops))
	for _, op := range ops {
		operators[op.ChatID] = op.Available
	}
	sessions := make(map[int64]int64, len(sess))
	for _, ss := range sess {
		sessions[ss.ClientID] = ss.OperatorID
	}

	s.mu.Lock()
	s.operators = operators
	s.sessions = sessions
	s.mu.Unlock()

	s.logger.Info("session state loaded", "operators", len(operators), "sessions", len(sessions))
	return nil
}

// SetAvailability marks an operator available or not, creating it if
// needed. Idempotent.
func (s *Store) SetAvailability(ctx context.Context, operatorID int64, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.UpsertOperator(ctx, operatorID, available); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.operators[operatorID] = available

	s.logger.Info("operator availability changed", "operator_id", operatorID, "available", available)
	return nil
}

// IsOperator reports whether the chat id belongs to an operator.
func (s *Store) IsOperator(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.operators[chatID]
	return ok
}

// Availability returns the operator's flag and whether the operator exists.
func (s *Store) Availability(operatorID int64) (available, exists bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	available, exists = s.operators[operatorID]
	return available, exists
}

// AvailableOperators returns available operators in ascending order.
func (s *Store) AvailableOperators() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availableLocked()
}

func (s *Store) availableLocked() []int64 {
	var out []int64
	for id, available := range s.operators {
		if available {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LoadCounts returns the session count of every available operator.
func (s *Store) LoadCounts() map[int64]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCountsLocked()
}

func (s *Store) loadCountsLocked() map[int64]int {
	counts := make(map[int64]int)
	for _, id := range s.availableLocked() {
		counts[id] = 0
	}
	for _, op := range s.sessions {
		if _, ok := counts[op]; ok {
			counts[op]++
		}
	}
	return counts
}

// LeastLoadedAvailableOperator returns the available operator with the
// fewest sessions. Ties go to the lowest chat id.
func (s *Store) LeastLoadedAvailableOperator() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leastLoadedLocked()
}

func (s *Store) leastLoadedLocked() (int64, bool) {
	counts := s.loadCountsLocked()
	var best int64
	found := false
	for _, id := range s.availableLocked() {
		if !found || counts[id] < counts[best] {
			best, found = id, true
		}
	}
	return best, found
}

// ResolveOrAssign returns the operator handling the client, assigning the
// least loaded available operator when the client has none or its
// operator is no longer available. The check-pick-write sequence is atomic.
func (s *Store) ResolveOrAssign(ctx context.Context, clientID int64) (Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, hadSession := s.sessions[clientID]
	if hadSession && s.operators[current] {
		return Assignment{OperatorID: current, Found: true}, nil
	}

	next, ok := s.leastLoadedLocked()
	if !ok {
		s.logger.Debug("no operator available", "client_id", clientID, "had_session", hadSession)
		return Assignment{Reassigned: hadSession}, nil
	}

	if err := s.backend.PutSession(ctx, clientID, next); err != nil {
		return Assignment{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.sessions[clientID] = next

	s.logger.Info("assigned operator",
		"client_id", clientID,
		"operator_id", next,
		"previous_operator_id", current,
	)
	return Assignment{OperatorID: next, Found: true, Reassigned: true}, nil
}

// CurrentOperator returns the client's assigned operator without checking
// availability.
func (s *Store) CurrentOperator(clientID int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.sessions[clientID]
	return op, ok
}

// CloseSession removes the client's session. Returns ErrNotFound if the
// client has none.
func (s *Store) CloseSession(ctx context.Context, clientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[clientID]; !ok {
		return fmt.Errorf("client %d: %w", clientID, ErrNotFound)
	}
	if err := s.backend.DeleteSession(ctx, clientID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	delete(s.sessions, clientID)

	s.logger.Info("session closed", "client_id", clientID)
	return nil
}

// DeleteOperator removes the operator. Its sessions are left in place and
// get reassigned lazily by ResolveOrAssign.
func (s *Store) DeleteOperator(ctx context.Context, operatorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.operators[operatorID]; !ok {
		return fmt.Errorf("operator %d: %w", operatorID, ErrNotFound)
	}
	if err := s.backend.DeleteOperator(ctx, operatorID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	delete(s.operators, operatorID)

	s.logger.Info("operator deleted", "operator_id", operatorID)
	return nil
}

// ClientsOf returns the clients assigned to the operator in ascending order.
func (s *Store) ClientsOf(operatorID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []int64
	for client, op := range s.sessions {
		if op == operatorID {
			out = append(out, client)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Operators lists every operator with its availability and load.
func (s *Store) Operators() []OperatorInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	load := make(map[int64]int)
	for _, op := range s.sessions {
		load[op]++
	}
	out := make([]OperatorInfo, 0, len(s.operators))
	for id, available := range s.operators {
		out = append(out, OperatorInfo{ChatID: id, Available: available, Sessions: load[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}
