// ABOUTME: Slash commands for everyone, operators and admins
// ABOUTME: Commands a sender is not entitled to are ignored

package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/2389/helpdesk-relay/internal/history"
	"github.com/2389/helpdesk-relay/internal/store"
	"github.com/2389/helpdesk-relay/internal/texts"
)

func isCommand(text string) bool {
	return strings.HasPrefix(text, "/")
}

// parseCommand splits "/name@bot args" into its name and argument text.
func parseCommand(text string) (name, args string) {
	text = strings.TrimPrefix(text, "/")
	name, args, _ = strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), strings.TrimSpace(args)
}

// parseChatID parses a numeric admin command argument.
func parseChatID(args string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a chat id", ErrMalformedInput, args)
	}
	return id, nil
}

type commandFunc func(r *Router, ctx context.Context, ev Event, args string, cat *texts.Catalog) error

type role int

const (
	roleAnyone role = iota
	roleOperator
	roleAdmin
	roleOperatorOrAdmin
)

type command struct {
	role role
	run  commandFunc
}

var commands = map[string]command{
	"start":     {roleAnyone, (*Router).cmdStart},
	"help":      {roleAnyone, (*Router).cmdHelp},
	"h":         {roleAnyone, (*Router).cmdHelp},
	"about":     {roleAnyone, (*Router).cmdAbout},
	"info":      {roleAnyone, (*Router).cmdInfo},
	"settings":  {roleAnyone, (*Router).cmdSettings},
	"on":        {roleOperator, (*Router).cmdOn},
	"off":       {roleOperator, (*Router).cmdOff},
	"history":   {roleOperatorOrAdmin, (*Router).cmdHistory},
	"refresh":   {roleAdmin, (*Router).cmdRefresh},
	"logs":      {roleAdmin, (*Router).cmdLogs},
	"operators": {roleAdmin, (*Router).cmdOperators},
	"add":       {roleAdmin, (*Router).cmdAddOperator},
	"del":       {roleAdmin, (*Router).cmdDelOperator},
	"admins":    {roleAdmin, (*Router).cmdAdmins},
	"add_admin": {roleAdmin, (*Router).cmdAddAdmin},
	"del_admin": {roleAdmin, (*Router).cmdDelAdmin},
}

func (r *Router) handleCommand(ctx context.Context, ev Event, cat *texts.Catalog) error {
	id := ev.SenderID
	name, args := parseCommand(ev.Text)
	cmd, ok := commands[name]
	if !ok {
		// Unknown commands are treated as ordinary text.
		return r.handleText(ctx, ev, cat)
	}
	r.record(ctx, id, history.SenderAny, id, ev.Text)

	if !r.allowed(id, cmd.role) {
		r.logger.Debug("command not permitted", "sender_id", id, "command", name)
		return nil
	}
	return cmd.run(r, ctx, ev, args, cat)
}

func (r *Router) allowed(id int64, need role) bool {
	switch need {
	case roleOperator:
		return r.sessions.IsOperator(id)
	case roleAdmin:
		return r.admins.IsAdmin(id)
	case roleOperatorOrAdmin:
		return r.sessions.IsOperator(id) || r.admins.IsAdmin(id)
	}
	return true
}

func (r *Router) cmdStart(ctx context.Context, ev Event, _ string, cat *texts.Catalog) error {
	id := ev.SenderID
	var roles []string
	if r.clients.IsAuthorized(id) {
		roles = append(roles, cat.Roles.Client)
	}
	if r.sessions.IsOperator(id) {
		roles = append(roles, cat.Roles.Operator)
	}
	if r.admins.IsAdmin(id) {
		roles = append(roles, cat.Roles.Admin)
	}

	msg := cat.Messages.StartUnknown
	if len(roles) > 0 {
		msg = fmt.Sprintf(cat.Messages.StartKnown, strings.Join(roles, ", "))
	}
	return r.reply(ctx, id, msg, r.keyboardFor(id, cat), cat)
}

func (r *Router) cmdHelp(ctx context.Context, ev Event, _ string, cat *texts.Catalog) error {
	id := ev.SenderID
	isAdmin := r.admins.IsAdmin(id)
	isOperator := r.sessions.IsOperator(id)

	msg := cat.Messages.Help
	switch {
	case isAdmin && isOperator:
		msg = cat.Messages.AdminOperatorHelp
	case isAdmin:
		msg = cat.Messages.AdminHelp
	case isOperator:
		msg = cat.Messages.OperatorHelp
	}
	return r.reply(ctx, id, msg, r.keyboardFor(id, cat), cat)
}

func (r *Router) cmdAbout(ctx context.Context, ev Event, _ string, cat *texts.Catalog) error {
	return r.reply(ctx, ev.SenderID, cat.Messages.About, r.keyboardFor(ev.SenderID, cat), cat)
}

func (r *Router) cmdInfo(ctx context.Context, ev Event, _ string, cat *texts.Catalog) error {
	return r.reply(ctx, ev.SenderID, cat.Messages.Info, r.keyboardFor(ev.SenderID, cat), cat)
}

func (r *Router) cmdSettings(ctx context.Context, ev Event, _ string, cat *texts.Catalog) error {
	if !r.clients.IsAuthorized(ev.SenderID) {
		return r.reply(ctx, ev.SenderID, cat.Messages.SettingsUnavailable, r.keyboardFor(ev.SenderID, cat), cat)
	}
	return r.sendSettings(ctx, ev.SenderID, cat)
}

func (r *Router) cmdOn(ctx context.Context, ev Event, _ string, cat *texts.Catalog) error {
	return r.setAvailability(ctx, ev.SenderID, true, cat)
}

func (r *Router) cmdOff(ctx context.Context, ev Event, _ string, cat *texts.Catalog) error {
	return r.setAvailability(ctx, ev.SenderID, false, cat)
}

func (r *Router) cmdHistory(ctx context.Context, ev Event, _ string, cat *texts.Catalog) error {
	return r.operatorHistory(ctx, ev.SenderID, cat)
}

// cmdRefresh reloads the catalog and every cache from storage.
func (r *Router) cmdRefresh(ctx context.Context, ev Event, _ string, cat *texts.Catalog) error {
	if err := r.catalog.Reload(); err != nil {
		return fmt.Errorf("reloading texts: %w", err)
	}
	if err := r.clients.Reload(ctx); err != nil {
		return err
	}
	if err := r.sessions.Reload(ctx); err != nil {
		return err
	}
	if err := r.admins.Reload(ctx); err != nil {
		return err
	}
	r.logger.Info("state reloaded", "by", ev.SenderID)
	r.recordAudit(ctx, ev.SenderID, store.AuditRefresh, 0, nil)

	cat = r.catalog.Current()
	return r.reply(ctx, ev.SenderID, cat.Messages.Refreshed, r.keyboardFor(ev.SenderID, cat), cat)
}

// cmdLogs shows the newest log entries across all chats. A missing or
// non-numeric count uses the configured default.
func (r *Router) cmdLogs(ctx context.Context, ev Event, args string, cat *texts.Catalog) error {
	n, err := strconv.Atoi(args)
	if err != nil || n <= 0 {
		n = r.cfg.LogsDefault
	}
	entries, err := r.history.RecentAll(ctx, n)
	if err != nil {
		return err
	}
	transcript := history.Format(entries, true)
	if transcript == "" {
		return r.reply(ctx, ev.SenderID, cat.Messages.LogsEmpty, nil, cat)
	}
	return r.send(ctx, ev.SenderID, transcript, nil, ParseMarkdown, ev.SenderID, history.SenderBot, cat)
}

func (r *Router) cmdOperators(ctx context.Context, ev Event, _ string, cat *texts.Catalog) error {
	ops := r.sessions.Operators()
	if len(ops) == 0 {
		return r.reply(ctx, ev.SenderID, cat.Messages.NoOperators, nil, cat)
	}
	lines := make([]string, 0, len(ops))
	for _, op := range ops {
		mark := "⛔"
		if op.Available {
			mark = "✅"
		}
		lines = append(lines, fmt.Sprintf("%d %s %d", op.ChatID, mark, op.Sessions))
	}
	return r.reply(ctx, ev.SenderID, strings.Join(lines, "\n"), nil, cat)
}

// cmdAddOperator registers an operator as unavailable. An existing
// operator keeps its availability.
func (r *Router) cmdAddOperator(ctx context.Context, ev Event, args string, cat *texts.Catalog) error {
	id, err := parseChatID(args)
	if err != nil {
		return r.reply(ctx, ev.SenderID, cat.Messages.OperatorAddUsage, nil, cat)
	}
	if _, exists := r.sessions.Availability(id); !exists {
		if err := r.sessions.SetAvailability(ctx, id, false); err != nil {
			return fmt.Errorf("adding operator: %w", err)
		}
		r.recordAudit(ctx, ev.SenderID, store.AuditAddOperator, id, nil)
	}
	return r.reply(ctx, ev.SenderID, fmt.Sprintf(cat.Messages.OperatorAdded, id), nil, cat)
}

func (r *Router) cmdDelOperator(ctx context.Context, ev Event, args string, cat *texts.Catalog) error {
	id, err := parseChatID(args)
	if err != nil {
		return r.reply(ctx, ev.SenderID, cat.Messages.OperatorDelUsage, nil, cat)
	}
	err = r.sessions.DeleteOperator(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return r.reply(ctx, ev.SenderID, fmt.Sprintf(cat.Messages.OperatorNotFound, id), nil, cat)
	}
	if err != nil {
		return fmt.Errorf("deleting operator: %w", err)
	}
	r.recordAudit(ctx, ev.SenderID, store.AuditDeleteOperator, id, nil)
	return r.reply(ctx, ev.SenderID, fmt.Sprintf(cat.Messages.OperatorDeleted, id), nil, cat)
}

func (r *Router) cmdAdmins(ctx context.Context, ev Event, _ string, cat *texts.Catalog) error {
	ids := r.admins.List()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return r.reply(ctx, ev.SenderID, strings.Join(parts, ", "), nil, cat)
}

func (r *Router) cmdAddAdmin(ctx context.Context, ev Event, args string, cat *texts.Catalog) error {
	id, err := parseChatID(args)
	if err != nil {
		return r.reply(ctx, ev.SenderID, cat.Messages.AdminAddUsage, nil, cat)
	}
	if err := r.admins.Add(ctx, id); err != nil {
		return err
	}
	r.recordAudit(ctx, ev.SenderID, store.AuditAddAdmin, id, nil)
	return r.reply(ctx, ev.SenderID, fmt.Sprintf(cat.Messages.AdminAdded, id), nil, cat)
}

func (r *Router) cmdDelAdmin(ctx context.Context, ev Event, args string, cat *texts.Catalog) error {
	id, err := parseChatID(args)
	if err != nil {
		return r.reply(ctx, ev.SenderID, cat.Messages.AdminDelUsage, nil, cat)
	}
	if id == ev.SenderID {
		return r.reply(ctx, ev.SenderID, cat.Messages.AdminCannotDeleteSelf, nil, cat)
	}
	err = r.admins.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return r.reply(ctx, ev.SenderID, fmt.Sprintf(cat.Messages.AdminNotFound, id), nil, cat)
	}
	if err != nil {
		return err
	}
	r.recordAudit(ctx, ev.SenderID, store.AuditDeleteAdmin, id, nil)
	return r.reply(ctx, ev.SenderID, fmt.Sprintf(cat.Messages.AdminDeleted, id), nil, cat)
}
