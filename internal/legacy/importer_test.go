// ABOUTME: Tests for the legacy importer against the SQLite store

package legacy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/helpdesk-relay/internal/clients"
	"github.com/2389/helpdesk-relay/internal/store"
)

func setupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

var testDefaults = clients.Defaults{
	State:         store.StateChatbot,
	Subscriptions: []string{"Новости"},
}

func TestImportDir(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	dir := t.TempDir()

	writeFile(t, dir, OperatorsFile, `{
		// on shift
		"901": 1,
		"902": 0,
	}`)
	writeFile(t, dir, SessionsFile, `{"11": 901, "12": 903}`)
	writeFile(t, dir, ClientsFile, `{
		"11": {
			"phone_number": "79001112233",
			"first_name": "Анна",
			"last_name": null,
			"user_id": 11,
			"state": "operator",
			"city": ["Москва", "Казань"],
			"subscribe": [],
			"vcard": "BEGIN:VCARD",
			"loyalty_id": 123456789012345678
		},
		"13": {"phone_number": "79002223344", "state": "settings_cities_entering"}
	}`)
	writeFile(t, dir, RegistryFile, "name,phone\nАнна,+7 900 111-22-33\nБорис,79002223344\n")

	rep, err := NewImporter(s, testDefaults, nil).ImportDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, Report{Operators: 2, Sessions: 1, Clients: 2, Phones: 2}, rep)

	ops, err := s.ListOperators(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1, "session with unknown operator skipped")
	assert.Equal(t, int64(901), sessions[0].OperatorID)

	c, err := s.GetClient(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, "79001112233", c.Phone)
	assert.Equal(t, "Анна", c.FirstName)
	assert.Empty(t, c.LastName)
	assert.Equal(t, store.StateOperator, c.State)
	assert.Equal(t, []string{"Казань", "Москва"}, c.Cities)
	assert.Empty(t, c.Subscriptions)
	assert.Equal(t, "BEGIN:VCARD", c.Extra["vcard"])
	assert.Equal(t, "123456789012345678", c.Extra["loyalty_id"].(interface{ String() string }).String())
	assert.NotContains(t, c.Extra, "user_id")

	entering, err := s.GetClient(ctx, 13)
	require.NoError(t, err)
	assert.Equal(t, store.StateEnteringCities, entering.State)

	known, err := s.IsKnownPhone(ctx, "79001112233")
	require.NoError(t, err)
	assert.True(t, known)
}

func TestImportDir_MissingFilesSkipped(t *testing.T) {
	s := setupTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, OperatorsFile, `{"901": 1}`)

	rep, err := NewImporter(s, testDefaults, nil).ImportDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, Report{Operators: 1}, rep)
}

func TestImportClients_Defaults(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, ClientsFile, `{"12": {"phone_number": "79002223344", "state": "bogus"}}`)

	n, err := NewImporter(s, testDefaults, nil).ImportClients(ctx, filepath.Join(dir, ClientsFile))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c, err := s.GetClient(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, store.StateChatbot, c.State)
	assert.Equal(t, []string{"Новости"}, c.Subscriptions)
	assert.Empty(t, c.Cities)
}

func TestImport_Malformed(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	dir := t.TempDir()
	im := NewImporter(s, testDefaults, nil)

	writeFile(t, dir, "bad_key.json", `{"abc": 1}`)
	_, err := im.ImportOperators(ctx, filepath.Join(dir, "bad_key.json"))
	assert.ErrorIs(t, err, ErrMalformedFile)

	writeFile(t, dir, "bad_json.json", `{"901": `)
	_, err = im.ImportOperators(ctx, filepath.Join(dir, "bad_json.json"))
	assert.ErrorIs(t, err, ErrMalformedFile)

	writeFile(t, dir, "bad_city.json", `{"11": {"city": "Москва"}}`)
	_, err = im.ImportClients(ctx, filepath.Join(dir, "bad_city.json"))
	assert.ErrorIs(t, err, ErrMalformedFile)
}

func TestReadPhones(t *testing.T) {
	cases := map[string]struct {
		in   string
		want []string
	}{
		"header":          {"name,phone\nA,+7 (900) 111-22-33\n", []string{"79001112233"}},
		"no header":       {"79001112233\n79002223344\n", []string{"79001112233", "79002223344"}},
		"unnamed header":  {"number\n79001112233\n", []string{"79001112233"}},
		"blank and short": {"name,phone\nA,\nB\n", nil},
	}
	for name, tc := range cases {
		got, err := ReadPhones(strings.NewReader(tc.in))
		require.NoError(t, err, name)
		assert.Equal(t, tc.want, got, name)
	}
}
