// ABOUTME: Reply and inline keyboards chosen per sender identity and state

package relay

import (
	"github.com/2389/helpdesk-relay/internal/settings"
	"github.com/2389/helpdesk-relay/internal/store"
	"github.com/2389/helpdesk-relay/internal/texts"
)

func requestContactKeyboard(cat *texts.Catalog) *Keyboard {
	return &Keyboard{Reply: [][]Button{{{Text: cat.Buttons.RequestContact, RequestContact: true}}}}
}

func clientKeyboard(cat *texts.Catalog) *Keyboard {
	return &Keyboard{Reply: [][]Button{
		{{Text: cat.Buttons.Info}},
		{{Text: cat.Buttons.OpenChat}},
		{{Text: cat.Buttons.Settings}},
	}}
}

func closeChatKeyboard(cat *texts.Catalog) *Keyboard {
	return &Keyboard{Reply: [][]Button{{{Text: cat.Buttons.CloseChat}}}}
}

// operatorKeyboard offers the toggle that changes the current availability.
func operatorKeyboard(cat *texts.Catalog, available bool) *Keyboard {
	toggle := cat.Buttons.OperatorOn
	if available {
		toggle = cat.Buttons.OperatorOff
	}
	return &Keyboard{Reply: [][]Button{
		{{Text: toggle}},
		{{Text: cat.Buttons.OperatorHistory}},
	}}
}

func menuKeyboard(m settings.Menu) *Keyboard {
	rows := make([][]InlineButton, 0, len(m.Options))
	for _, o := range m.Options {
		rows = append(rows, []InlineButton{{Label: o.Label, Data: o.Path.String()}})
	}
	return &Keyboard{Inline: rows}
}

// keyboardFor picks the reply keyboard matching who chatID is right now.
func (r *Router) keyboardFor(chatID int64, cat *texts.Catalog) *Keyboard {
	client, isClient := r.clients.Get(chatID)
	isOperator := r.sessions.IsOperator(chatID)
	isAdmin := r.admins.IsAdmin(chatID)

	switch {
	case isClient && client.State == store.StateOperator:
		return closeChatKeyboard(cat)
	case !isClient && !isOperator && !isAdmin:
		return requestContactKeyboard(cat)
	case isClient:
		return clientKeyboard(cat)
	case isOperator:
		available, _ := r.sessions.Availability(chatID)
		return operatorKeyboard(cat, available)
	}
	return &Keyboard{Remove: true}
}
