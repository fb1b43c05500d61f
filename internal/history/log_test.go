// ABOUTME: Tests for the conversation log and transcript formatting

package history

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/helpdesk-relay/internal/store"
)

func TestAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l := New(db, nil)
	for i, text := range []string{"one", "two", "three"} {
		require.NoError(t, l.Append(ctx, 10, SenderClient, 10, text), i)
	}
	require.NoError(t, l.Append(ctx, 20, SenderClient, 20, "other chat"))

	got, err := l.Recent(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Text)
	assert.Equal(t, "three", got[1].Text)

	// Reads are independent queries.
	again, err := l.Recent(ctx, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, got[1].ID, again[1].ID)

	all, err := l.RecentAll(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "other chat", all[3].Text)
}

func TestAppend_Failure(t *testing.T) {
	backend := store.NewMockStore()
	backend.FailWrites(errors.New("disk full"))

	err := New(backend, nil).Append(context.Background(), 1, SenderBot, 0, "x")
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.Local)
	entries := []*store.LogEntry{
		{ChatID: 5, Sender: SenderClient, SenderID: 5, Text: "привет", CreatedAt: at},
		{ChatID: 5, Sender: SenderOperator, SenderID: 9, Text: "здравствуйте", CreatedAt: at.Add(time.Minute)},
	}

	assert.Equal(t,
		"✍️ *2024-03-01 12:30:00, client*: привет\n✍️ *2024-03-01 12:31:00, operator*: здравствуйте",
		Format(entries, false))

	assert.Equal(t,
		"✍️ *2024-03-01 12:30:00, client 5*: привет\n✍️ *2024-03-01 12:31:00, operator 9*: здравствуйте",
		Format(entries, true))
}

func TestFormat_Empty(t *testing.T) {
	assert.Equal(t, "", Format(nil, false))
}

func TestFormat_EscapesMarkdown(t *testing.T) {
	entries := []*store.LogEntry{{Sender: SenderBotToOperator, Text: "*bold* _x_ [link]", CreatedAt: time.Now()}}
	out := Format(entries, false)
	assert.Contains(t, out, `bot\_to\_operator`)
	assert.Contains(t, out, `\*bold\* \_x\_ \[link]`)
}

func TestFormat_KeepsNewestWholeEntries(t *testing.T) {
	at := time.Date(2024, 3, 1, 2, 53, 42, 0, time.Local)
	entries := make([]*store.LogEntry, 0, 300)
	for i := 0; i < 300; i++ {
		entries = append(entries, &store.LogEntry{Sender: SenderClient, Text: "x", CreatedAt: at})
	}
	entries[299].Text = "last words"

	out := Format(entries, false)
	assert.LessOrEqual(t, utf8.RuneCountInString(out), MaxTranscriptLen)
	assert.True(t, strings.HasPrefix(out, "✍️ *2024-03-01 02:53:42, client*: "), out[:40])
	assert.True(t, strings.HasSuffix(out, "last words"))
	assertBalancedBold(t, out)
}

func TestFormat_OversizedEntryKeepsHeader(t *testing.T) {
	entries := []*store.LogEntry{
		{Sender: SenderClient, Text: "old", CreatedAt: time.Now()},
		{Sender: SenderClient, Text: strings.Repeat("a*", MaxTranscriptLen) + " last words", CreatedAt: time.Now()},
	}
	out := Format(entries, false)
	assert.LessOrEqual(t, utf8.RuneCountInString(out), MaxTranscriptLen)
	assert.True(t, strings.HasPrefix(out, "✍️ *"))
	assert.NotContains(t, out, "old")
	assert.True(t, strings.HasSuffix(out, "last words"))
	assertBalancedBold(t, out)
}

func TestTail(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.Local)
	entries := []*store.LogEntry{
		{Sender: SenderClient, Text: "first", CreatedAt: at},
		{Sender: SenderOperator, Text: "second", CreatedAt: at},
	}
	full := Format(entries, false)
	assert.Equal(t, full, Tail(full, 1000))

	out := Tail(full, utf8.RuneCountInString(full)-1)
	assert.Equal(t, "✍️ *2024-03-01 12:30:00, operator*: second", out)
	assertBalancedBold(t, out)
}

// assertBalancedBold checks that unescaped bold markers come in pairs.
func assertBalancedBold(t *testing.T, s string) {
	t.Helper()
	markers := 0
	r := []rune(s)
	for i, c := range r {
		if c == '*' && (i == 0 || r[i-1] != '\\') {
			markers++
		}
	}
	assert.Zero(t, markers%2, "unbalanced bold markers")
}
