// ABOUTME: Tests for SQLiteStore operator, session, client, registry and log operations
// ABOUTME: Uses a real SQLite database under t.TempDir

package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a SQLite store in a temporary directory
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestOperators_UpsertAndList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertOperator(ctx, 300, false))
	require.NoError(t, store.UpsertOperator(ctx, 100, true))
	require.NoError(t, store.UpsertOperator(ctx, 300, true))

	ops, err := store.ListOperators(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, int64(100), ops[0].ChatID)
	assert.True(t, ops[0].Available)
	assert.Equal(t, int64(300), ops[1].ChatID)
	assert.True(t, ops[1].Available)
	assert.False(t, ops[1].CreatedAt.IsZero())
}

func TestOperators_DeleteMissing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.DeleteOperator(ctx, 42)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOperators_DeleteKeepsSessions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertOperator(ctx, 1, true))
	require.NoError(t, store.PutSession(ctx, 10, 1))
	require.NoError(t, store.DeleteOperator(ctx, 1))

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(1), sessions[0].OperatorID)
}

func TestSessions_PutReplaces(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutSession(ctx, 10, 1))
	require.NoError(t, store.PutSession(ctx, 10, 2))
	require.NoError(t, store.PutSession(ctx, 11, 2))

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, int64(2), sessions[0].OperatorID)

	require.NoError(t, store.DeleteSession(ctx, 10))
	assert.ErrorIs(t, store.DeleteSession(ctx, 10), ErrNotFound)
}

func TestClients_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	extra, err := DecodeExtra([]byte(`{"username":"anna_k","vcard":null,"user_id":9007199254740993,"tags":["a","b"]}`))
	require.NoError(t, err)

	c := &Client{
		ChatID:        9007199254740993,
		Phone:         "79001234567",
		FirstName:     "Анна",
		LastName:      "К",
		State:         StateEnteringCities,
		Cities:        []string{"Москва", "Казань", "Москва"},
		Subscriptions: []string{"Новости", "Акции"},
		Extra:         extra,
	}
	require.NoError(t, store.PutClient(ctx, c))

	got, err := store.GetClient(ctx, c.ChatID)
	require.NoError(t, err)

	assert.Equal(t, c.Phone, got.Phone)
	assert.Equal(t, c.FirstName, got.FirstName)
	assert.Equal(t, c.LastName, got.LastName)
	assert.Equal(t, StateEnteringCities, got.State)
	assert.ElementsMatch(t, []string{"Москва", "Казань"}, got.Cities)
	assert.ElementsMatch(t, []string{"Новости", "Акции"}, got.Subscriptions)

	// Extra fields come back byte-for-byte, including the large number.
	want, err := json.Marshal(c.Extra)
	require.NoError(t, err)
	have, err := json.Marshal(got.Extra)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(have))
	assert.Equal(t, json.Number("9007199254740993"), got.Extra["user_id"])
}

func TestClients_PutKeepsCreatedAt(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c := &Client{ChatID: 5, State: StateChatbot}
	require.NoError(t, store.PutClient(ctx, c))
	first, err := store.GetClient(ctx, 5)
	require.NoError(t, err)

	first.State = StateOperator
	first.CreatedAt = first.CreatedAt.AddDate(1, 0, 0)
	require.NoError(t, store.PutClient(ctx, first))

	second, err := store.GetClient(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, StateOperator, second.State)
	assert.True(t, second.CreatedAt.Before(first.CreatedAt))
}

func TestClients_RejectsUnknownState(t *testing.T) {
	store := setupTestStore(t)
	err := store.PutClient(context.Background(), &Client{ChatID: 1, State: "dancing"})
	assert.Error(t, err)
}

func TestClients_GetMissing(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.GetClient(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_Phones(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	added, err := store.AddKnownPhones(ctx, []string{"+7 (900) 123-45-67", "79001234567", "", "79990000000"})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	n, err := store.CountKnownPhones(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := store.IsKnownPhone(ctx, "+79001234567")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.IsKnownPhone(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdmins(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddAdmin(ctx, 7))
	require.NoError(t, store.AddAdmin(ctx, 3))
	require.NoError(t, store.AddAdmin(ctx, 7))

	admins, err := store.ListAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7}, admins)

	require.NoError(t, store.DeleteAdmin(ctx, 3))
	assert.ErrorIs(t, store.DeleteAdmin(ctx, 3), ErrNotFound)
}

func TestLogEntries_RecentOrdering(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three", "four"} {
		require.NoError(t, store.AppendLogEntry(ctx, &LogEntry{ChatID: 10, Sender: "client", SenderID: 10, Text: text}))
	}
	require.NoError(t, store.AppendLogEntry(ctx, &LogEntry{ChatID: 11, Sender: "client", SenderID: 11, Text: "other"}))

	entries, err := store.ListLogEntries(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "three", entries[0].Text)
	assert.Equal(t, "four", entries[1].Text)
	assert.NotEmpty(t, entries[0].ID)

	all, err := store.ListLogEntries(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	recent, err := store.ListRecentLogEntries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "four", recent[0].Text)
	assert.Equal(t, "other", recent[1].Text)
}

func TestForwards(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveForward(ctx, &Forward{OperatorID: 1, MessageID: 55, ClientID: 10}))

	f, err := store.GetForward(ctx, 1, 55)
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.ClientID)

	_, err = store.GetForward(ctx, 2, 55)
	assert.ErrorIs(t, err, ErrNotFound)
}
