// ABOUTME: Store interfaces and data types for helpdesk-relay persistence
// ABOUTME: Defines Operator, Session, Client, LogEntry and the interfaces each consumer needs

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ClientState is the conversational mode of a client.
type ClientState string

const (
	StateChatbot        ClientState = "chatbot"
	StateOperator       ClientState = "operator"
	StateEnteringCities ClientState = "entering_cities"
)

// Valid reports whether s is one of the known client states.
func (s ClientState) Valid() bool {
	switch s {
	case StateChatbot, StateOperator, StateEnteringCities:
		return true
	}
	return false
}

// Operator is a human agent that answers client messages.
type Operator struct {
	ChatID    int64
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session assigns one client to one operator.
type Session struct {
	ClientID   int64
	OperatorID int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Client is the record of an authorized end-user.
// Cities and Subscriptions are sets kept sorted; Extra carries any field
// the relay does not model so it survives rewrites.
type Client struct {
	ChatID        int64
	Phone         string
	FirstName     string
	LastName      string
	State         ClientState
	Cities        []string
	Subscriptions []string
	Extra         map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone returns a deep copy of the record.
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	out := *c
	out.Cities = append([]string(nil), c.Cities...)
	out.Subscriptions = append([]string(nil), c.Subscriptions...)
	if c.Extra != nil {
		out.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// LogEntry is one line of the conversation log. ChatID is the
// conversation key, which for relayed traffic is always the client chat.
type LogEntry struct {
	ID        string
	ChatID    int64
	Sender    string
	SenderID  int64
	Text      string
	CreatedAt time.Time
}

// Forward links a message forwarded into an operator chat back to the
// client it came from.
type Forward struct {
	OperatorID int64
	MessageID  int
	ClientID   int64
	CreatedAt  time.Time
}

// OperatorStore persists operator availability and sessions.
type OperatorStore interface {
	ListOperators(ctx context.Context) ([]*Operator, error)
	UpsertOperator(ctx context.Context, chatID int64, available bool) error
	DeleteOperator(ctx context.Context, chatID int64) error

	ListSessions(ctx context.Context) ([]*Session, error)
	PutSession(ctx context.Context, clientID, operatorID int64) error
	DeleteSession(ctx context.Context, clientID int64) error
}

// ClientStore persists client records.
type ClientStore interface {
	ListClients(ctx context.Context) ([]*Client, error)
	GetClient(ctx context.Context, chatID int64) (*Client, error)
	PutClient(ctx context.Context, c *Client) error
}

// RegistryStore holds the phones of known clients.
type RegistryStore interface {
	IsKnownPhone(ctx context.Context, phone string) (bool, error)
	AddKnownPhones(ctx context.Context, phones []string) (int, error)
	CountKnownPhones(ctx context.Context) (int, error)
}

// AdminStore holds admin chat identifiers.
type AdminStore interface {
	ListAdmins(ctx context.Context) ([]int64, error)
	AddAdmin(ctx context.Context, chatID int64) error
	DeleteAdmin(ctx context.Context, chatID int64) error
}

// HistoryStore persists the conversation log.
type HistoryStore interface {
	AppendLogEntry(ctx context.Context, e *LogEntry) error
	// ListLogEntries returns the newest limit entries of a chat, oldest first.
	ListLogEntries(ctx context.Context, chatID int64, limit int) ([]*LogEntry, error)
	// ListRecentLogEntries returns the newest limit entries across all chats, oldest first.
	ListRecentLogEntries(ctx context.Context, limit int) ([]*LogEntry, error)
}

// ForwardStore maps forwarded operator messages back to clients.
type ForwardStore interface {
	SaveForward(ctx context.Context, f *Forward) error
	GetForward(ctx context.Context, operatorID int64, messageID int) (*Forward, error)
}

// AuditStore records administrative actions.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	// ListAuditLog returns matching entries, newest first.
	ListAuditLog(ctx context.Context, f AuditFilter) ([]*AuditEntry, error)
}

// Store is the full persistence surface, implemented by SQLiteStore and MockStore.
type Store interface {
	OperatorStore
	ClientStore
	RegistryStore
	AdminStore
	HistoryStore
	ForwardStore
	AuditStore

	// Close releases any resources held by the store
	Close() error
}
