// ABOUTME: Client Directory: authorized client records with field-level mutation
// ABOUTME: Write-through cache over store.ClientStore plus the known-client phone registry

package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/helpdesk-relay/internal/store"
)

// Errors
var (
	// ErrNotAuthorized means the chat id has no client record.
	ErrNotAuthorized = errors.New("client not authorized")

	// ErrMalformedInput means a field value has the wrong type or is invalid.
	ErrMalformedInput = errors.New("malformed input")

	// ErrPersistence wraps storage failures. The cache is unchanged when
	// it is returned.
	ErrPersistence = errors.New("persisting client record")
)

// Field names accepted by SetField. Any other name is stored in Extra.
const (
	FieldState         = "state"
	FieldCities        = "city"
	FieldSubscriptions = "subscribe"
	FieldPhone         = "phone_number"
	FieldFirstName     = "first_name"
	FieldLastName      = "last_name"
)

// Contact is the identity a client shares to authorize.
type Contact struct {
	UserID    int64
	Phone     string
	FirstName string
	LastName  string
	// Extra holds any other contact attributes the transport provides.
	Extra map[string]any
}

// Defaults seed a freshly authorized record.
type Defaults struct {
	State         store.ClientState
	Cities        []string
	Subscriptions []string
}

// Registry answers whether a phone belongs to a known client.
type Registry interface {
	IsKnownPhone(ctx context.Context, phone string) (bool, error)
}

// Directory owns client records.
type Directory struct {
	backend  store.ClientStore
	registry Registry
	logger   *slog.Logger

	mu      sync.RWMutex
	records map[int64]*store.Client
}

// New creates a Directory and loads all records from backend.
func New(ctx context.Context, backend store.ClientStore, registry Registry, logger *slog.Logger) (*Directory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Directory{
		backend:  backend,
		registry: registry,
		logger:   logger.With("component", "clients"),
	}
	if err := d.Reload(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload replaces the cache with the persisted records.
func (d *Directory) Reload(ctx context.Context) error {
	list, err := d.backend.ListClients(ctx)
	if err != nil {
		return fmt.Errorf("loading clients: %w", err)
	}

	records := make(map[int64]*store.Client, len(list))
	for _, c := range list {
		records[c.ChatID] = c
	}

	d.mu.Lock()
	d.records = records
	d.mu.Unlock()

	d.logger.Info("client records loaded", "count", len(records))
	return nil
}

// IsRegistered reports whether the phone is in the known-client registry.
func (d *Directory) IsRegistered(ctx context.Context, phone string) (bool, error) {
	ok, err := d.registry.IsKnownPhone(ctx, phone)
	if err != nil {
		return false, fmt.Errorf("checking registry: %w", err)
	}
	return ok, nil
}

// IsAuthorized reports whether the chat id has a client record.
func (d *Directory) IsAuthorized(chatID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.records[chatID]
	return ok
}

// Get returns a copy of the client's record.
func (d *Directory) Get(chatID int64) (*store.Client, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.records[chatID]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Authorize creates the client's record from defaults and the contact.
// An existing record is replaced, not merged, so re-sharing a contact
// resets the client's settings.
func (d *Directory) Authorize(ctx context.Context, contact Contact, defaults Defaults) (*store.Client, error) {
	if contact.UserID == 0 {
		return nil, fmt.Errorf("%w: contact without user id", ErrMalformedInput)
	}

	state := defaults.State
	if state == "" {
		state = store.StateChatbot
	}

	rec := &store.Client{
		ChatID:        contact.UserID,
		Phone:         store.NormalizePhone(contact.Phone),
		FirstName:     contact.FirstName,
		LastName:      contact.LastName,
		State:         state,
		Cities:        store.SortedSet(defaults.Cities),
		Subscriptions: store.SortedSet(defaults.Subscriptions),
	}
	if len(contact.Extra) > 0 {
		rec.Extra = make(map[string]any, len(contact.Extra))
		for k, v := range contact.Extra {
			rec.Extra[k] = v
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.backend.PutClient(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	d.records[rec.ChatID] = rec

	d.logger.Info("client authorized", "chat_id", rec.ChatID)
	return rec.Clone(), nil
}

// SetField sets one field of the client's record and persists it.
func (d *Directory) SetField(ctx context.Context, chatID int64, field string, value any) error {
	return d.update(ctx, chatID, func(c *store.Client) error {
		return applyField(c, field, value)
	})
}

// SetState moves the client to a new conversational state.
func (d *Directory) SetState(ctx context.Context, chatID int64, state store.ClientState) error {
	return d.SetField(ctx, chatID, FieldState, state)
}

// SetCities replaces the client's city set.
func (d *Directory) SetCities(ctx context.Context, chatID int64, cities []string) error {
	return d.SetField(ctx, chatID, FieldCities, cities)
}

// SetSubscriptions replaces the client's subscription set.
func (d *Directory) SetSubscriptions(ctx context.Context, chatID int64, subs []string) error {
	return d.SetField(ctx, chatID, FieldSubscriptions, subs)
}

// Update applies several changes to a record in one write.
func (d *Directory) Update(ctx context.Context, chatID int64, fn func(c *store.Client) error) error {
	return d.update(ctx, chatID, fn)
}

func (d *Directory) update(ctx context.Context, chatID int64, fn func(c *store.Client) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, ok := d.records[chatID]
	if !ok {
		return fmt.Errorf("client %d: %w", chatID, ErrNotAuthorized)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return err
	}
	next.Cities = store.SortedSet(next.Cities)
	next.Subscriptions = store.SortedSet(next.Subscriptions)

	if err := d.backend.PutClient(ctx, next); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	d.records[chatID] = next
	return nil
}

func applyField(c *store.Client, field string, value any) error {
	switch field {
	case FieldState:
		var state store.ClientState
		switch v := value.(type) {
		case store.ClientState:
			state = v
		case string:
			state = store.ClientState(v)
		default:
			return fmt.Errorf("%w: state must be a string, got %T", ErrMalformedInput, value)
		}
		if !state.Valid() {
			return fmt.Errorf("%w: unknown state %q", ErrMalformedInput, state)
		}
		c.State = state
	case FieldCities, FieldSubscriptions:
		list, ok := value.([]string)
		if !ok {
			return fmt.Errorf("%w: %s must be a list of strings, got %T", ErrMalformedInput, field, value)
		}
		if field == FieldCities {
			c.Cities = append([]string(nil), list...)
		} else {
			c.Subscriptions = append([]string(nil), list...)
		}
	case FieldPhone, FieldFirstName, FieldLastName:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s must be a string, got %T", ErrMalformedInput, field, value)
		}
		switch field {
		case FieldPhone:
			c.Phone = store.NormalizePhone(s)
		case FieldFirstName:
			c.FirstName = s
		default:
			c.LastName = s
		}
	default:
		if field == "" {
			return fmt.Errorf("%w: empty field name", ErrMalformedInput)
		}
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[field] = value
	}
	return nil
}
