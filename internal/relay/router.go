// ABOUTME: Conversation router: classifies each inbound event and drives the client/operator state machine
// ABOUTME: Events are handled one at a time; all user-visible output comes from the message catalog

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/helpdesk-relay/internal/clients"
	"github.com/2389/helpdesk-relay/internal/history"
	"github.com/2389/helpdesk-relay/internal/sessions"
	"github.com/2389/helpdesk-relay/internal/settings"
	"github.com/2389/helpdesk-relay/internal/store"
	"github.com/2389/helpdesk-relay/internal/texts"
)

// ErrMalformedInput means a command argument could not be parsed.
var ErrMalformedInput = errors.New("malformed input")

// Config tunes history sizes.
type Config struct {
	// ForwardLimit is how many entries an operator receives when a
	// client is (re)assigned to them.
	ForwardLimit int
	// OperatorLimit is how many entries per client /history shows.
	OperatorLimit int
	// LogsDefault is the /logs count when none is given.
	LogsDefault int
}

// Deps are the collaborators the router drives.
type Deps struct {
	Transport Transport
	Sessions  *sessions.Store
	Clients   *clients.Directory
	Settings  *settings.Engine
	History   *history.Log
	Forwards  store.ForwardStore
	Admins    *Admins
	Catalog   *texts.Holder
	// Audit records admin actions. Optional.
	Audit store.AuditStore
}

// Router dispatches inbound events.
type Router struct {
	transport Transport
	sessions  *sessions.Store
	clients   *clients.Directory
	settings  *settings.Engine
	history   *history.Log
	forwards  store.ForwardStore
	admins    *Admins
	catalog   *texts.Holder
	audit     store.AuditStore
	cfg       Config
	logger    *slog.Logger

	mu sync.Mutex
}

// NewRouter creates a Router.
func NewRouter(deps Deps, cfg Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ForwardLimit <= 0 {
		cfg.ForwardLimit = 20
	}
	if cfg.OperatorLimit <= 0 {
		cfg.OperatorLimit = 30
	}
	if cfg.LogsDefault <= 0 {
		cfg.LogsDefault = 50
	}
	return &Router{
		transport: deps.Transport,
		sessions:  deps.Sessions,
		clients:   deps.Clients,
		settings:  deps.Settings,
		history:   deps.History,
		forwards:  deps.Forwards,
		admins:    deps.Admins,
		catalog:   deps.Catalog,
		audit:     deps.Audit,
		cfg:       cfg,
		logger:    logger.With("component", "relay"),
	}
}

// Handle processes one event to completion. On failure the sender gets
// the catalog's generic error text and the error is returned.
func (r *Router) Handle(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cat := r.catalog.Current()

	var err error
	switch {
	case ev.Callback != nil:
		err = r.handleCallback(ctx, ev, cat)
	case ev.Contact != nil:
		err = r.handleContact(ctx, ev, cat)
	case isCommand(ev.Text):
		err = r.handleCommand(ctx, ev, cat)
	default:
		err = r.handleText(ctx, ev, cat)
	}
	if err == nil {
		return nil
	}

	r.logger.Error("handling event failed", "sender_id", ev.SenderID, "error", err)
	if _, sendErr := r.transport.Send(ctx, ev.SenderID, cat.Messages.InternalError, nil, ParsePlain); sendErr != nil {
		r.logger.Warn("sending error notice failed", "chat_id", ev.SenderID, "error", sendErr)
	}
	return err
}

// handleText routes free text. An authorized client that is not an
// operator gets the client branch; operators never reach the client menu.
func (r *Router) handleText(ctx context.Context, ev Event, cat *texts.Catalog) error {
	isClient := r.clients.IsAuthorized(ev.SenderID)
	isOperator := r.sessions.IsOperator(ev.SenderID)

	switch {
	case isClient && !isOperator:
		return r.handleClientText(ctx, ev, cat)
	case isOperator:
		return r.handleOperatorText(ctx, ev, cat)
	}

	r.record(ctx, ev.SenderID, history.SenderClient, ev.SenderID, ev.Text)
	return r.reply(ctx, ev.SenderID, cat.Messages.ShouldAuth, requestContactKeyboard(cat), cat)
}

// handleCallback runs one settings dialog step and edits the menu message
// in place. A final notification is sent as a new message.
func (r *Router) handleCallback(ctx context.Context, ev Event, cat *texts.Catalog) error {
	cb := ev.Callback
	r.record(ctx, ev.SenderID, history.SenderAny, ev.SenderID, "button "+cb.Data)

	if !r.clients.IsAuthorized(ev.SenderID) {
		return r.reply(ctx, ev.SenderID, cat.Messages.SettingsUnavailable, nil, cat)
	}

	p, err := settings.ParsePath(cb.Data)
	if err != nil {
		r.logger.Warn("ignoring callback", "sender_id", ev.SenderID, "error", err)
		return nil
	}

	m, err := r.settings.Render(ctx, ev.SenderID, p)
	if errors.Is(err, settings.ErrMalformedPath) {
		r.logger.Warn("ignoring callback", "sender_id", ev.SenderID, "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("rendering settings %s: %w", p.Kind, err)
	}

	if m.Final() {
		return r.reply(ctx, ev.SenderID, m.Text, nil, cat)
	}

	text := cat.Truncate(m.Text)
	if err := r.transport.Edit(ctx, ev.SenderID, cb.MessageID, text, menuKeyboard(m)); err != nil {
		return fmt.Errorf("editing settings menu: %w", err)
	}
	r.record(ctx, ev.SenderID, history.SenderBot, ev.SenderID, menuLogText(m))
	return nil
}

// handleContact authorizes a client that shared its own, registered phone.
func (r *Router) handleContact(ctx context.Context, ev Event, cat *texts.Catalog) error {
	c := ev.Contact
	r.record(ctx, ev.SenderID, history.SenderClient, ev.SenderID, "contact "+c.Phone)

	if c.UserID != ev.SenderID {
		return r.reply(ctx, ev.SenderID, cat.Messages.ContactNotYours, nil, cat)
	}

	known, err := r.clients.IsRegistered(ctx, c.Phone)
	if err != nil {
		return err
	}
	if !known {
		r.logger.Info("unknown contact", "sender_id", ev.SenderID)
		return r.reply(ctx, ev.SenderID, cat.Messages.NotKnownContact, nil, cat)
	}

	_, err = r.clients.Authorize(ctx, clients.Contact{
		UserID:    c.UserID,
		Phone:     c.Phone,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Extra:     c.Extra,
	}, clients.Defaults{
		State:         store.ClientState(cat.Defaults.State),
		Cities:        cat.Defaults.Cities,
		Subscriptions: cat.Defaults.Subscriptions,
	})
	if err != nil {
		return fmt.Errorf("authorizing client: %w", err)
	}
	return r.reply(ctx, ev.SenderID, cat.Messages.ContactAccepted, clientKeyboard(cat), cat)
}

// reply sends a bot message to chatID and logs it under that chat.
func (r *Router) reply(ctx context.Context, chatID int64, text string, kb *Keyboard, cat *texts.Catalog) error {
	return r.send(ctx, chatID, text, kb, ParsePlain, chatID, history.SenderBot, cat)
}

// send delivers text and logs it under the conversation key logChat.
func (r *Router) send(ctx context.Context, chatID int64, text string, kb *Keyboard, mode ParseMode, logChat int64, sender string, cat *texts.Catalog) error {
	if mode == ParseMarkdown {
		// Transcripts keep their newest lines.
		text = history.Tail(text, cat.MaxMessageSize)
	} else {
		text = cat.Truncate(text)
	}
	if _, err := r.transport.Send(ctx, chatID, text, kb, mode); err != nil {
		return fmt.Errorf("sending to %d: %w", chatID, err)
	}
	r.record(ctx, logChat, sender, chatID, text)
	return nil
}

// record appends to the conversation log. Log failures never fail a handler.
func (r *Router) record(ctx context.Context, chatID int64, sender string, senderID int64, text string) {
	if err := r.history.Append(ctx, chatID, sender, senderID, text); err != nil {
		r.logger.Warn("logging message failed", "chat_id", chatID, "error", err)
	}
}

// recordAudit appends an audit entry. Failures are logged, never returned.
func (r *Router) recordAudit(ctx context.Context, actor int64, action store.AuditAction, target int64, detail map[string]any) {
	if r.audit == nil {
		return
	}
	e := &store.AuditEntry{ActorID: actor, Action: action, TargetID: target, Detail: detail}
	if err := r.audit.AppendAuditLog(ctx, e); err != nil {
		r.logger.Warn("audit log failed", "action", action, "actor", actor, "error", err)
	}
}

func menuLogText(m settings.Menu) string {
	labels := make([]string, 0, len(m.Options))
	for _, o := range m.Options {
		labels = append(labels, o.Label)
	}
	return m.Text + "\noptions: " + strings.Join(labels, ", ")
}

// clientLabel names a client for operator notices.
func clientLabel(c *store.Client) string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	switch {
	case name != "" && c.Phone != "":
		return fmt.Sprintf("%s (+%s)", name, c.Phone)
	case name != "":
		return name
	case c.Phone != "":
		return "+" + c.Phone
	}
	return fmt.Sprintf("%d", c.ChatID)
}
