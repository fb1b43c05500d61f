// ABOUTME: One-shot import of the file-based deployment's state into the store
// ABOUTME: Reads operators/sessions/clients JSON (JSONC tolerated) and a CSV phone registry

package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/tidwall/jsonc"

	"github.com/2389/helpdesk-relay/internal/clients"
	"github.com/2389/helpdesk-relay/internal/store"
)

// File names of a legacy data directory.
const (
	OperatorsFile = "operators.json"
	SessionsFile  = "sessions.json"
	ClientsFile   = "clients_authorized_data.json"
	RegistryFile  = "all_clients.csv"
)

// ErrMalformedFile is returned when a legacy file cannot be parsed.
var ErrMalformedFile = errors.New("malformed legacy file")

// Target is the storage the importer writes to.
type Target interface {
	store.OperatorStore
	store.ClientStore
	store.RegistryStore
}

// Report counts imported records.
type Report struct {
	Operators int
	Sessions  int
	Clients   int
	Phones    int
}

// Importer writes legacy records into a Target.
type Importer struct {
	target   Target
	defaults clients.Defaults
	logger   *slog.Logger
}

// NewImporter creates an importer. defaults fill fields missing from
// legacy client records.
func NewImporter(target Target, defaults clients.Defaults, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		target:   target,
		defaults: defaults,
		logger:   logger.With("component", "legacy"),
	}
}

// ImportDir imports every legacy file present in dir. Missing files are
// skipped. Operators are imported before sessions so session targets exist.
func (im *Importer) ImportDir(ctx context.Context, dir string) (Report, error) {
	var rep Report
	var err error

	steps := []struct {
		name string
		run  func(context.Context, string) (int, error)
		dst  *int
	}{
		{OperatorsFile, im.ImportOperators, &rep.Operators},
		{SessionsFile, im.ImportSessions, &rep.Sessions},
		{ClientsFile, im.ImportClients, &rep.Clients},
		{RegistryFile, im.ImportRegistryFile, &rep.Phones},
	}
	for _, step := range steps {
		path := filepath.Join(dir, step.name)
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			im.logger.Info("legacy file not present, skipping", "path", path)
			continue
		}
		if *step.dst, err = step.run(ctx, path); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// ImportOperators reads {"<chat_id>": 0|1} and upserts each operator.
func (im *Importer) ImportOperators(ctx context.Context, path string) (int, error) {
	var raw map[string]json.Number
	if err := readJSONC(path, &raw); err != nil {
		return 0, err
	}

	n := 0
	for _, key := range sortedKeys(raw) {
		id, err := parseID(key)
		if err != nil {
			return n, fmt.Errorf("%w: %s: operator %w", ErrMalformedFile, path, err)
		}
		flag, err := raw[key].Int64()
		if err != nil {
			return n, fmt.Errorf("%w: %s: operator %d availability %q", ErrMalformedFile, path, id, raw[key])
		}
		if err := im.target.UpsertOperator(ctx, id, flag != 0); err != nil {
			return n, fmt.Errorf("importing operator %d: %w", id, err)
		}
		n++
	}
	im.logger.Info("imported operators", "count", n, "path", path)
	return n, nil
}

// ImportSessions reads {"<client_id>": <operator_id>}. Sessions naming an
// operator that does not exist are skipped.
func (im *Importer) ImportSessions(ctx context.Context, path string) (int, error) {
	var raw map[string]json.Number
	if err := readJSONC(path, &raw); err != nil {
		return 0, err
	}

	ops, err := im.target.ListOperators(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing operators: %w", err)
	}
	known := make(map[int64]bool, len(ops))
	for _, op := range ops {
		known[op.ChatID] = true
	}

	n := 0
	for _, key := range sortedKeys(raw) {
		clientID, err := parseID(key)
		if err != nil {
			return n, fmt.Errorf("%w: %s: session %w", ErrMalformedFile, path, err)
		}
		opID, err := raw[key].Int64()
		if err != nil {
			return n, fmt.Errorf("%w: %s: session %d operator %q", ErrMalformedFile, path, clientID, raw[key])
		}
		if !known[opID] {
			im.logger.Warn("skipping session with unknown operator", "client_id", clientID, "operator_id", opID)
			continue
		}
		if err := im.target.PutSession(ctx, clientID, opID); err != nil {
			return n, fmt.Errorf("importing session %d: %w", clientID, err)
		}
		n++
	}
	im.logger.Info("imported sessions", "count", n, "path", path)
	return n, nil
}

// Recognized client record keys. Everything else lands in Extra.
const (
	keyUserID    = "user_id"
	keyPhone     = "phone_number"
	keyFirstName = "first_name"
	keyLastName  = "last_name"
	keyState     = "state"
	keyCity      = "city"
	keySubscribe = "subscribe"
)

// ImportClients reads {"<chat_id>": {...}} authorized client records,
// keeping unknown keys in Extra.
func (im *Importer) ImportClients(ctx context.Context, path string) (int, error) {
	var raw map[string]json.RawMessage
	if err := readJSONC(path, &raw); err != nil {
		return 0, err
	}

	n := 0
	for _, key := range sortedKeys(raw) {
		id, err := parseID(key)
		if err != nil {
			return n, fmt.Errorf("%w: %s: client %w", ErrMalformedFile, path, err)
		}
		c, err := im.decodeClient(id, raw[key])
		if err != nil {
			return n, fmt.Errorf("%w: %s: client %d: %w", ErrMalformedFile, path, id, err)
		}
		if err := im.target.PutClient(ctx, c); err != nil {
			return n, fmt.Errorf("importing client %d: %w", id, err)
		}
		n++
	}
	im.logger.Info("imported clients", "count", n, "path", path)
	return n, nil
}

// legacyCitiesEntering is the old name of the city entry state.
const legacyCitiesEntering = "settings_cities_entering"

func legacyState(s string) store.ClientState {
	if s == legacyCitiesEntering {
		return store.StateEnteringCities
	}
	return store.ClientState(s)
}

func (im *Importer) decodeClient(id int64, data json.RawMessage) (*store.Client, error) {
	fields, err := store.DecodeExtra(data)
	if err != nil {
		return nil, err
	}

	c := &store.Client{
		ChatID:        id,
		State:         im.defaults.State,
		Cities:        append([]string(nil), im.defaults.Cities...),
		Subscriptions: append([]string(nil), im.defaults.Subscriptions...),
	}

	var extra map[string]any
	for k, v := range fields {
		switch k {
		case keyUserID:
			// Redundant with the record key.
		case keyPhone:
			c.Phone = scalarString(v)
		case keyFirstName:
			c.FirstName = scalarString(v)
		case keyLastName:
			c.LastName = scalarString(v)
		case keyState:
			if s := legacyState(scalarString(v)); s.Valid() {
				c.State = s
			}
		case keyCity:
			if v != nil {
				if c.Cities, err = stringList(v); err != nil {
					return nil, fmt.Errorf("%s: %w", k, err)
				}
			}
		case keySubscribe:
			if v != nil {
				if c.Subscriptions, err = stringList(v); err != nil {
					return nil, fmt.Errorf("%s: %w", k, err)
				}
			}
		default:
			if extra == nil {
				extra = make(map[string]any)
			}
			extra[k] = v
		}
	}
	c.Extra = extra
	c.Cities = store.SortedSet(c.Cities)
	c.Subscriptions = store.SortedSet(c.Subscriptions)
	return c, nil
}

func readJSONC(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedFile, path, err)
	}
	return nil
}

func parseID(key string) (int64, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id %q is not numeric", key)
	}
	return id, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// scalarString renders strings and numbers; anything else is "".
func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	}
	return ""
}

func stringList(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("expected strings, got %T", it)
		}
		out = append(out, s)
	}
	return out, nil
}
