// ABOUTME: Conversions between telebot types and relay events and keyboards

package telegram

import (
	tele "gopkg.in/telebot.v4"

	"github.com/2389/helpdesk-relay/internal/relay"
)

// eventFromUpdate normalizes a callback or message update. Messages that
// carry neither text nor a contact (photos, documents, voice) become events
// with empty Text so they can be forwarded by id. Other updates report false.
func eventFromUpdate(u tele.Update) (relay.Event, bool) {
	if cb := u.Callback; cb != nil {
		if cb.Sender == nil || cb.Message == nil {
			return relay.Event{}, false
		}
		return relay.Event{
			SenderID: cb.Sender.ID,
			Callback: &relay.Callback{Data: cb.Data, MessageID: cb.Message.ID},
		}, true
	}

	m := u.Message
	if m == nil || m.Sender == nil {
		return relay.Event{}, false
	}
	ev := relay.Event{
		SenderID:  m.Sender.ID,
		MessageID: m.ID,
	}
	if m.ReplyTo != nil {
		ev.ReplyToID = m.ReplyTo.ID
	}

	switch {
	case m.Contact != nil:
		ev.Contact = contactFrom(m.Contact)
	default:
		ev.Text = m.Text
	}
	return ev, true
}

func contactFrom(c *tele.Contact) *relay.Contact {
	out := &relay.Contact{
		UserID:    c.UserID,
		Phone:     c.PhoneNumber,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	}
	if c.VCard != "" {
		out.Extra = map[string]any{"vcard": c.VCard}
	}
	return out
}

// markup converts a relay keyboard. A nil keyboard sends no markup.
func markup(kb *relay.Keyboard) *tele.ReplyMarkup {
	if kb == nil {
		return nil
	}
	if kb.Remove {
		return &tele.ReplyMarkup{RemoveKeyboard: true}
	}

	rm := &tele.ReplyMarkup{}
	if len(kb.Inline) > 0 {
		rm.InlineKeyboard = make([][]tele.InlineButton, 0, len(kb.Inline))
		for _, row := range kb.Inline {
			btns := make([]tele.InlineButton, 0, len(row))
			for _, b := range row {
				btns = append(btns, tele.InlineButton{Text: b.Label, Data: b.Data})
			}
			rm.InlineKeyboard = append(rm.InlineKeyboard, btns)
		}
		return rm
	}

	rm.ResizeKeyboard = true
	rm.ReplyKeyboard = make([][]tele.ReplyButton, 0, len(kb.Reply))
	for _, row := range kb.Reply {
		btns := make([]tele.ReplyButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tele.ReplyButton{Text: b.Text, Contact: b.RequestContact})
		}
		rm.ReplyKeyboard = append(rm.ReplyKeyboard, btns)
	}
	return rm
}
