// ABOUTME: Operator branch of the router: availability buttons, history and replies to clients
// ABOUTME: Replies are linked to clients through the forward index

package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/helpdesk-relay/internal/history"
	"github.com/2389/helpdesk-relay/internal/store"
	"github.com/2389/helpdesk-relay/internal/texts"
)

func (r *Router) handleOperatorText(ctx context.Context, ev Event, cat *texts.Catalog) error {
	id := ev.SenderID

	switch ev.Text {
	case cat.Buttons.OperatorOn:
		r.record(ctx, id, history.SenderOperator, id, ev.Text)
		return r.setAvailability(ctx, id, true, cat)
	case cat.Buttons.OperatorOff:
		r.record(ctx, id, history.SenderOperator, id, ev.Text)
		return r.setAvailability(ctx, id, false, cat)
	case cat.Buttons.OperatorHistory:
		r.record(ctx, id, history.SenderOperator, id, ev.Text)
		return r.operatorHistory(ctx, id, cat)
	}

	clientID, ok, err := r.replyTarget(ctx, id, ev.ReplyToID)
	if err != nil {
		return err
	}
	if !ok {
		r.record(ctx, id, history.SenderOperator, id, ev.Text)
		return r.send(ctx, id, cat.Messages.OperatorReplyWithoutTarget, r.keyboardFor(id, cat), ParsePlain, id, history.SenderBotToOperator, cat)
	}

	r.record(ctx, clientID, history.SenderOperator, id, ev.Text)

	client, isClient := r.clients.Get(clientID)
	if !isClient || client.State != store.StateOperator {
		return r.send(ctx, id, cat.Messages.OperatorReplyToClosedChat, r.keyboardFor(id, cat), ParsePlain, id, history.SenderBotToOperator, cat)
	}
	if ev.Text == "" {
		r.logger.Debug("dropping non-text operator reply", "operator_id", id, "client_id", clientID)
		return nil
	}

	text := cat.Truncate(ev.Text)
	if _, err := r.transport.Send(ctx, clientID, text, r.keyboardFor(clientID, cat), ParsePlain); err != nil {
		return fmt.Errorf("delivering reply to %d: %w", clientID, err)
	}
	return nil
}

// replyTarget finds the client behind the forwarded message an operator
// replied to.
func (r *Router) replyTarget(ctx context.Context, operatorID int64, replyToID int) (int64, bool, error) {
	if replyToID == 0 {
		return 0, false, nil
	}
	fwd, err := r.forwards.GetForward(ctx, operatorID, replyToID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("looking up forward: %w", err)
	}
	return fwd.ClientID, true, nil
}

func (r *Router) setAvailability(ctx context.Context, id int64, available bool, cat *texts.Catalog) error {
	if err := r.sessions.SetAvailability(ctx, id, available); err != nil {
		return fmt.Errorf("setting availability: %w", err)
	}
	msg := cat.Messages.OperatorOff
	if available {
		msg = cat.Messages.OperatorOn
	}
	return r.reply(ctx, id, msg, r.keyboardFor(id, cat), cat)
}

// operatorHistory sends one transcript per client assigned to id.
func (r *Router) operatorHistory(ctx context.Context, id int64, cat *texts.Catalog) error {
	assigned := r.sessions.ClientsOf(id)
	if len(assigned) == 0 {
		return r.reply(ctx, id, cat.Messages.HistoryNoChats, r.keyboardFor(id, cat), cat)
	}

	for _, clientID := range assigned {
		entries, err := r.history.Recent(ctx, clientID, r.cfg.OperatorLimit)
		if err != nil {
			return err
		}
		transcript := history.Format(entries, true)
		if transcript == "" {
			transcript = cat.Messages.HistoryEmpty
		}
		if err := r.send(ctx, id, transcript, r.keyboardFor(id, cat), ParseMarkdown, id, history.SenderBot, cat); err != nil {
			return err
		}
	}
	return nil
}
