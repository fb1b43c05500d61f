// ABOUTME: Test harness for the router: recording transport and wired collaborators over MockStore

package relay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/2389/helpdesk-relay/internal/clients"
	"github.com/2389/helpdesk-relay/internal/history"
	"github.com/2389/helpdesk-relay/internal/sessions"
	"github.com/2389/helpdesk-relay/internal/settings"
	"github.com/2389/helpdesk-relay/internal/store"
	"github.com/2389/helpdesk-relay/internal/texts"
)

type sentMessage struct {
	ChatID int64
	Text   string
	KB     *Keyboard
	Mode   ParseMode
}

type forwardedMessage struct {
	To, From  int64
	MessageID int
	NewID     int
}

type editedMessage struct {
	ChatID    int64
	MessageID int
	Text      string
	KB        *Keyboard
}

type fakeTransport struct {
	mu          sync.Mutex
	sent        []sentMessage
	forwarded   []forwardedMessage
	edited      []editedMessage
	nextID      int
	failForward error
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, text string, kb *Keyboard, mode ParseMode) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, KB: kb, Mode: mode})
	return f.nextID, nil
}

func (f *fakeTransport) Forward(_ context.Context, to, from int64, messageID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failForward != nil {
		return 0, f.failForward
	}
	f.nextID++
	f.forwarded = append(f.forwarded, forwardedMessage{To: to, From: from, MessageID: messageID, NewID: f.nextID})
	return f.nextID, nil
}

func (f *fakeTransport) Edit(_ context.Context, chatID int64, messageID int, text string, kb *Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, editedMessage{ChatID: chatID, MessageID: messageID, Text: text, KB: kb})
	return nil
}

// to returns every message sent to chatID, oldest first.
func (f *fakeTransport) to(chatID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTransport) forwardsTo(chatID int64) []forwardedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []forwardedMessage
	for _, m := range f.forwarded {
		if m.To == chatID {
			out = append(out, m)
		}
	}
	return out
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	router   *Router
	tr       *fakeTransport
	backend  *store.MockStore
	sessions *sessions.Store
	clients  *clients.Directory
	admins   *Admins
	cat      *texts.Catalog
	msgID    int
}

func newHarness(t *testing.T, admins ...int64) *harness {
	t.Helper()
	ctx := context.Background()
	backend := store.NewMockStore()

	sess, err := sessions.New(ctx, backend, nil)
	require.NoError(t, err)
	dir, err := clients.New(ctx, backend, backend, nil)
	require.NoError(t, err)
	adm, err := NewAdmins(ctx, backend, admins, nil)
	require.NoError(t, err)

	cat := texts.Default()
	holder := texts.Static(cat)
	tr := &fakeTransport{nextID: 1000}

	router := NewRouter(Deps{
		Transport: tr,
		Sessions:  sess,
		Clients:   dir,
		Settings:  settings.NewEngine(dir, holder, nil),
		History:   history.New(backend, nil),
		Forwards:  backend,
		Admins:    adm,
		Catalog:   holder,
		Audit:     backend,
	}, Config{}, nil)

	return &harness{
		t:        t,
		ctx:      ctx,
		router:   router,
		tr:       tr,
		backend:  backend,
		sessions: sess,
		clients:  dir,
		admins:   adm,
		cat:      cat,
	}
}

// authorize registers and authorizes a client directly.
func (h *harness) authorize(id int64, phone string) {
	h.t.Helper()
	_, err := h.backend.AddKnownPhones(h.ctx, []string{phone})
	require.NoError(h.t, err)
	_, err = h.clients.Authorize(h.ctx, clients.Contact{UserID: id, Phone: phone, FirstName: "Клиент"}, clients.Defaults{State: store.StateChatbot})
	require.NoError(h.t, err)
}

func (h *harness) operator(id int64, available bool) {
	h.t.Helper()
	require.NoError(h.t, h.sessions.SetAvailability(h.ctx, id, available))
}

// text delivers a text message and returns its message id.
func (h *harness) text(from int64, text string) int {
	h.t.Helper()
	h.msgID++
	require.NoError(h.t, h.router.Handle(h.ctx, Event{SenderID: from, MessageID: h.msgID, Text: text}))
	return h.msgID
}

func (h *harness) replyTo(from int64, replyTo int, text string) {
	h.t.Helper()
	h.msgID++
	require.NoError(h.t, h.router.Handle(h.ctx, Event{SenderID: from, MessageID: h.msgID, Text: text, ReplyToID: replyTo}))
}

func (h *harness) callback(from int64, messageID int, data string) {
	h.t.Helper()
	require.NoError(h.t, h.router.Handle(h.ctx, Event{SenderID: from, Callback: &Callback{Data: data, MessageID: messageID}}))
}

func (h *harness) last(chatID int64) sentMessage {
	h.t.Helper()
	msgs := h.tr.to(chatID)
	require.NotEmpty(h.t, msgs, "nothing sent to %d", chatID)
	return msgs[len(msgs)-1]
}

func (h *harness) state(id int64) store.ClientState {
	h.t.Helper()
	c, ok := h.clients.Get(id)
	require.True(h.t, ok)
	return c.State
}

var errBoom = errors.New("boom")
