// ABOUTME: Tests for update normalization and keyboard conversion

package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/2389/helpdesk-relay/internal/dedupe"
	"github.com/2389/helpdesk-relay/internal/relay"
)

func TestEventFromUpdate_Text(t *testing.T) {
	u := tele.Update{ID: 1, Message: &tele.Message{
		ID:      42,
		Sender:  &tele.User{ID: 7},
		Text:    "hello",
		ReplyTo: &tele.Message{ID: 40},
	}}

	ev, ok := eventFromUpdate(u)
	require.True(t, ok)
	assert.Equal(t, relay.Event{SenderID: 7, MessageID: 42, Text: "hello", ReplyToID: 40}, ev)
}

func TestEventFromUpdate_Contact(t *testing.T) {
	u := tele.Update{ID: 2, Message: &tele.Message{
		ID:     43,
		Sender: &tele.User{ID: 7},
		Contact: &tele.Contact{
			PhoneNumber: "+79001112233",
			FirstName:   "Анна",
			LastName:    "Петрова",
			UserID:      7,
			VCard:       "BEGIN:VCARD",
		},
	}}

	ev, ok := eventFromUpdate(u)
	require.True(t, ok)
	require.NotNil(t, ev.Contact)
	assert.Equal(t, int64(7), ev.Contact.UserID)
	assert.Equal(t, "+79001112233", ev.Contact.Phone)
	assert.Equal(t, "Анна", ev.Contact.FirstName)
	assert.Equal(t, "Петрова", ev.Contact.LastName)
	assert.Equal(t, "BEGIN:VCARD", ev.Contact.Extra["vcard"])
	assert.Empty(t, ev.Text)
}

func TestEventFromUpdate_Callback(t *testing.T) {
	u := tele.Update{ID: 3, Callback: &tele.Callback{
		Sender:  &tele.User{ID: 7},
		Message: &tele.Message{ID: 99},
		Data:    "s♞city",
	}}

	ev, ok := eventFromUpdate(u)
	require.True(t, ok)
	assert.Equal(t, int64(7), ev.SenderID)
	assert.Equal(t, &relay.Callback{Data: "s♞city", MessageID: 99}, ev.Callback)
}

func TestEventFromUpdate_Media(t *testing.T) {
	u := tele.Update{ID: 5, Message: &tele.Message{
		ID:      44,
		Sender:  &tele.User{ID: 7},
		Photo:   &tele.Photo{},
		Caption: "receipt",
	}}

	ev, ok := eventFromUpdate(u)
	require.True(t, ok)
	assert.Equal(t, relay.Event{SenderID: 7, MessageID: 44}, ev)
}

func TestEventFromUpdate_Ignored(t *testing.T) {
	cases := map[string]tele.Update{
		"empty":           {ID: 4},
		"no sender":       {ID: 6, Message: &tele.Message{ID: 1, Text: "x"}},
		"callback no msg": {ID: 7, Callback: &tele.Callback{Sender: &tele.User{ID: 7}, Data: "s"}},
	}
	for name, u := range cases {
		_, ok := eventFromUpdate(u)
		assert.False(t, ok, name)
	}
}

func TestMarkup(t *testing.T) {
	assert.Nil(t, markup(nil))

	rm := markup(&relay.Keyboard{Remove: true})
	assert.True(t, rm.RemoveKeyboard)

	rm = markup(&relay.Keyboard{Reply: [][]relay.Button{
		{{Text: "Отправить номер", RequestContact: true}},
		{{Text: "Инфо"}, {Text: "Настройки"}},
	}})
	assert.True(t, rm.ResizeKeyboard)
	require.Len(t, rm.ReplyKeyboard, 2)
	assert.True(t, rm.ReplyKeyboard[0][0].Contact)
	assert.Equal(t, "Настройки", rm.ReplyKeyboard[1][1].Text)
	assert.False(t, rm.ReplyKeyboard[1][1].Contact)

	rm = markup(&relay.Keyboard{Inline: [][]relay.InlineButton{
		{{Label: "⬅", Data: "s"}},
		{{Label: "Москва", Data: "s♞city♞del♞Москва"}},
	}})
	require.Len(t, rm.InlineKeyboard, 2)
	assert.Equal(t, "Москва", rm.InlineKeyboard[1][0].Text)
	assert.Equal(t, "s♞city♞del♞Москва", rm.InlineKeyboard[1][0].Data)
	assert.Empty(t, rm.ReplyKeyboard)
}

type recordingHandler struct {
	events []relay.Event
}

func (r *recordingHandler) Handle(_ context.Context, ev relay.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func TestDispatch_DropsDuplicates(t *testing.T) {
	seen := dedupe.New[int](time.Minute, 100)

	b, err := New(Config{Token: "test", Offline: true}, seen, nil)
	require.NoError(t, err)

	h := &recordingHandler{}
	u := tele.Update{ID: 10, Message: &tele.Message{ID: 1, Sender: &tele.User{ID: 7}, Text: "hi"}}
	b.dispatch(h, u)
	b.dispatch(h, u)
	b.dispatch(h, tele.Update{ID: 11})

	require.Len(t, h.events, 1)
	assert.Equal(t, "hi", h.events[0].Text)
}

type slowHandler struct {
	mu    sync.Mutex
	order []string
}

func (s *slowHandler) Handle(_ context.Context, ev relay.Event) error {
	if ev.Text == "first" {
		time.Sleep(50 * time.Millisecond)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, ev.Text)
	return nil
}

func TestBridge_HandlesUpdatesInOrder(t *testing.T) {
	b, err := New(Config{Token: "test", Offline: true}, nil, nil)
	require.NoError(t, err)

	h := &slowHandler{}
	b.register(h)

	b.bot.ProcessUpdate(tele.Update{ID: 1, Message: &tele.Message{ID: 1, Sender: &tele.User{ID: 7}, Chat: &tele.Chat{ID: 7}, Text: "first"}})
	b.bot.ProcessUpdate(tele.Update{ID: 2, Message: &tele.Message{ID: 2, Sender: &tele.User{ID: 7}, Chat: &tele.Chat{ID: 7}, Text: "second"}})
	b.bot.ProcessUpdate(tele.Update{ID: 3, Message: &tele.Message{ID: 3, Sender: &tele.User{ID: 7}, Chat: &tele.Chat{ID: 7}, Document: &tele.Document{}}})

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []string{"first", "second", ""}, h.order)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "приве...", truncate("привет мир", 5))
}
