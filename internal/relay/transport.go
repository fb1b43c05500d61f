// ABOUTME: Transport-neutral inbound events and outbound intents for the conversation router
// ABOUTME: The telegram package adapts telebot updates to Event and executes Transport calls

package relay

import "context"

// ParseMode selects how the transport interprets message text.
type ParseMode string

const (
	ParsePlain    ParseMode = ""
	ParseMarkdown ParseMode = "Markdown"
)

// Transport executes outbound intents. Message ids are the transport's.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string, kb *Keyboard, mode ParseMode) (int, error)
	Forward(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, kb *Keyboard) error
}

// Event is one normalized inbound update. Exactly one of Text, Contact
// or Callback carries the payload.
type Event struct {
	SenderID  int64
	MessageID int
	Text      string
	Contact   *Contact
	Callback  *Callback
	// ReplyToID is the id of the message this one replies to, or 0.
	ReplyToID int
}

// Contact is a shared phone contact.
type Contact struct {
	UserID    int64
	Phone     string
	FirstName string
	LastName  string
	Extra     map[string]any
}

// Callback is an inline button press on the message MessageID.
type Callback struct {
	Data      string
	MessageID int
}

// Button is a reply keyboard button.
type Button struct {
	Text           string
	RequestContact bool
}

// InlineButton is an inline keyboard button carrying callback data.
type InlineButton struct {
	Label string
	Data  string
}

// Keyboard is the markup attached to a message. A nil keyboard leaves
// the client's current keyboard in place.
type Keyboard struct {
	Remove bool
	Reply  [][]Button
	Inline [][]InlineButton
}
