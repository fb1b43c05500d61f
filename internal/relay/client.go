// ABOUTME: Client branch of the router: menu buttons, open/close chat, relaying to operators
// ABOUTME: City entry and the chatbot fallback also live here

package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/helpdesk-relay/internal/history"
	"github.com/2389/helpdesk-relay/internal/sessions"
	"github.com/2389/helpdesk-relay/internal/settings"
	"github.com/2389/helpdesk-relay/internal/store"
	"github.com/2389/helpdesk-relay/internal/texts"
)

func (r *Router) handleClientText(ctx context.Context, ev Event, cat *texts.Catalog) error {
	id := ev.SenderID
	r.record(ctx, id, history.SenderClient, id, ev.Text)

	client, ok := r.clients.Get(id)
	if !ok {
		return fmt.Errorf("client %d vanished", id)
	}

	switch ev.Text {
	case cat.Buttons.CloseChat:
		if client.State == store.StateOperator {
			return r.closeChat(ctx, client, cat)
		}
		return r.reply(ctx, id, cat.Messages.DidNotUnderstand, clientKeyboard(cat), cat)
	case cat.Buttons.OpenChat:
		if client.State != store.StateOperator {
			return r.openChat(ctx, ev, client, cat)
		}
	case cat.Buttons.Info:
		return r.reply(ctx, id, cat.Messages.Info, r.keyboardFor(id, cat), cat)
	case cat.Buttons.Settings:
		return r.sendSettings(ctx, id, cat)
	}

	switch client.State {
	case store.StateEnteringCities:
		if ev.Text == "" {
			// Media carries no city names; stay in city entry.
			return r.reply(ctx, id, cat.Messages.DidNotUnderstand, nil, cat)
		}
		msg, err := r.settings.AddCities(ctx, id, ev.Text)
		if err != nil {
			return fmt.Errorf("adding cities: %w", err)
		}
		return r.reply(ctx, id, msg, clientKeyboard(cat), cat)
	case store.StateOperator:
		return r.relayToOperator(ctx, ev, client, cat)
	}
	return r.reply(ctx, id, cat.Messages.DidNotUnderstand, clientKeyboard(cat), cat)
}

// openChat assigns an operator and moves the client into the operator state.
func (r *Router) openChat(ctx context.Context, ev Event, client *store.Client, cat *texts.Catalog) error {
	id := client.ChatID

	a, err := r.sessions.ResolveOrAssign(ctx, id)
	if err != nil {
		return fmt.Errorf("assigning operator: %w", err)
	}
	if !a.Found {
		if client.State != store.StateChatbot {
			if err := r.clients.SetState(ctx, id, store.StateChatbot); err != nil {
				return err
			}
		}
		return r.reply(ctx, id, cat.Messages.NoFreeOperator, clientKeyboard(cat), cat)
	}

	if err := r.clients.SetState(ctx, id, store.StateOperator); err != nil {
		return err
	}
	if err := r.reply(ctx, id, cat.Messages.ClientOpenedChat, closeChatKeyboard(cat), cat); err != nil {
		return err
	}

	notice := fmt.Sprintf(cat.Messages.OperatorNewSession, clientLabel(client))
	if err := r.notifyOperator(ctx, a.OperatorID, id, notice, ParsePlain, cat); err != nil {
		return err
	}
	if a.Reassigned {
		if err := r.sendHistory(ctx, a.OperatorID, id, cat); err != nil {
			return err
		}
	}
	return r.forward(ctx, a.OperatorID, id, ev.MessageID)
}

// relayToOperator forwards a client message to its operator, reassigning
// when the operator went away. Without any operator the chat is closed.
func (r *Router) relayToOperator(ctx context.Context, ev Event, client *store.Client, cat *texts.Catalog) error {
	id := client.ChatID

	a, err := r.sessions.ResolveOrAssign(ctx, id)
	if err != nil {
		return fmt.Errorf("resolving operator: %w", err)
	}
	if !a.Found {
		if err := r.sessions.CloseSession(ctx, id); err != nil && !errors.Is(err, sessions.ErrNotFound) {
			return fmt.Errorf("closing session: %w", err)
		}
		if err := r.clients.SetState(ctx, id, store.StateChatbot); err != nil {
			return err
		}
		return r.reply(ctx, id, cat.Messages.NoFreeOperator, clientKeyboard(cat), cat)
	}

	if a.Reassigned {
		notice := fmt.Sprintf(cat.Messages.OperatorNewSession, clientLabel(client))
		if err := r.notifyOperator(ctx, a.OperatorID, id, notice, ParsePlain, cat); err != nil {
			return err
		}
		if err := r.sendHistory(ctx, a.OperatorID, id, cat); err != nil {
			return err
		}
	}
	return r.forward(ctx, a.OperatorID, id, ev.MessageID)
}

// closeChat ends the client's session and tells both sides.
func (r *Router) closeChat(ctx context.Context, client *store.Client, cat *texts.Catalog) error {
	id := client.ChatID
	operatorID, hadOperator := r.sessions.CurrentOperator(id)

	if err := r.sessions.CloseSession(ctx, id); err != nil {
		if !errors.Is(err, sessions.ErrNotFound) {
			return fmt.Errorf("closing session: %w", err)
		}
		r.logger.Debug("closing chat without session", "client_id", id)
	}
	if err := r.clients.SetState(ctx, id, store.StateChatbot); err != nil {
		return err
	}
	if err := r.reply(ctx, id, cat.Messages.ClientClosedChat, clientKeyboard(cat), cat); err != nil {
		return err
	}

	if !hadOperator {
		return nil
	}
	notice := fmt.Sprintf(cat.Messages.OperatorClientClosedChat, clientLabel(client))
	return r.notifyOperator(ctx, operatorID, id, notice, ParsePlain, cat)
}

func (r *Router) sendSettings(ctx context.Context, id int64, cat *texts.Catalog) error {
	m, err := r.settings.Render(ctx, id, settings.MenuPath{Kind: settings.Root})
	if err != nil {
		return fmt.Errorf("rendering settings: %w", err)
	}
	text := cat.Truncate(m.Text)
	if _, err := r.transport.Send(ctx, id, text, menuKeyboard(m), ParsePlain); err != nil {
		return fmt.Errorf("sending settings: %w", err)
	}
	r.record(ctx, id, history.SenderBot, id, menuLogText(m))
	return nil
}

// sendHistory gives an operator the client's recent conversation.
func (r *Router) sendHistory(ctx context.Context, operatorID, clientID int64, cat *texts.Catalog) error {
	entries, err := r.history.Recent(ctx, clientID, r.cfg.ForwardLimit)
	if err != nil {
		return err
	}
	transcript := history.Format(entries, false)
	if transcript == "" {
		return nil
	}
	return r.notifyOperator(ctx, operatorID, clientID, transcript, ParseMarkdown, cat)
}

// notifyOperator sends a bot message to an operator about a client,
// logged under the client's conversation.
func (r *Router) notifyOperator(ctx context.Context, operatorID, clientID int64, text string, mode ParseMode, cat *texts.Catalog) error {
	return r.send(ctx, operatorID, text, r.keyboardFor(operatorID, cat), mode, clientID, history.SenderBotToOperator, cat)
}

// forward copies the client's message into the operator chat and indexes
// it so a reply can find its way back.
func (r *Router) forward(ctx context.Context, operatorID, clientID int64, messageID int) error {
	fwdID, err := r.transport.Forward(ctx, operatorID, clientID, messageID)
	if err != nil {
		return fmt.Errorf("forwarding to operator %d: %w", operatorID, err)
	}
	if err := r.forwards.SaveForward(ctx, &store.Forward{
		OperatorID: operatorID,
		MessageID:  fwdID,
		ClientID:   clientID,
	}); err != nil {
		return fmt.Errorf("indexing forward: %w", err)
	}
	return nil
}
