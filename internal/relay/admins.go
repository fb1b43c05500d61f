// ABOUTME: Admin set cached over store.AdminStore, seeded from configuration

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/2389/helpdesk-relay/internal/store"
)

// Admins is the set of chat ids allowed to run admin commands.
type Admins struct {
	backend store.AdminStore

	mu  sync.RWMutex
	ids map[int64]struct{}
}

// NewAdmins persists seed ids and loads the full set. Seeds are restored
// on every start, so an admin removed with /del_admin comes back while
// still listed in configuration; that case is logged as a warning.
func NewAdmins(ctx context.Context, backend store.AdminStore, seed []int64, logger *slog.Logger) (*Admins, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stored, err := backend.ListAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading admins: %w", err)
	}
	known := make(map[int64]bool, len(stored))
	for _, id := range stored {
		known[id] = true
	}

	for _, id := range seed {
		if known[id] {
			continue
		}
		if len(stored) > 0 {
			logger.Warn("restoring admin from configuration", "chat_id", id)
		}
		if err := backend.AddAdmin(ctx, id); err != nil {
			return nil, fmt.Errorf("seeding admin %d: %w", id, err)
		}
	}
	a := &Admins{backend: backend}
	if err := a.Reload(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Reload replaces the cached set from storage.
func (a *Admins) Reload(ctx context.Context) error {
	list, err := a.backend.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("loading admins: %w", err)
	}
	ids := make(map[int64]struct{}, len(list))
	for _, id := range list {
		ids[id] = struct{}{}
	}
	a.mu.Lock()
	a.ids = ids
	a.mu.Unlock()
	return nil
}

// IsAdmin reports whether chatID is an admin.
func (a *Admins) IsAdmin(chatID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.ids[chatID]
	return ok
}

// List returns admin ids in ascending order.
func (a *Admins) List() []int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]int64, 0, len(a.ids))
	for id := range a.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Add grants admin rights. Adding an existing admin is a no-op.
func (a *Admins) Add(ctx context.Context, chatID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.backend.AddAdmin(ctx, chatID); err != nil {
		return fmt.Errorf("adding admin: %w", err)
	}
	a.ids[chatID] = struct{}{}
	return nil
}

// Delete revokes admin rights. Returns store.ErrNotFound for non-admins.
func (a *Admins) Delete(ctx context.Context, chatID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.ids[chatID]; !ok {
		return fmt.Errorf("admin %d: %w", chatID, store.ErrNotFound)
	}
	if err := a.backend.DeleteAdmin(ctx, chatID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("deleting admin: %w", err)
	}
	delete(a.ids, chatID)
	return nil
}
