// ABOUTME: Telegram bridge: long-polls updates, normalizes them into relay events
// ABOUTME: and executes the router's send, forward and edit intents through telebot

package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/2389/helpdesk-relay/internal/dedupe"
	"github.com/2389/helpdesk-relay/internal/relay"
)

// Default timeouts.
const (
	DefaultPollTimeout    = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Handler consumes normalized events.
type Handler interface {
	Handle(ctx context.Context, ev relay.Event) error
}

// Config configures the bridge.
type Config struct {
	Token          string
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	// Offline skips the getMe handshake. Used by tests.
	Offline bool
}

var _ relay.Transport = (*Bridge)(nil)

// Bridge connects the Telegram Bot API to a relay handler.
type Bridge struct {
	bot     *tele.Bot
	seen    *dedupe.Cache[int]
	timeout time.Duration
	logger  *slog.Logger

	// ctx is the parent context for handler calls, set by Run.
	ctx context.Context
}

// New creates a bridge. seen drops redelivered updates and may be nil.
func New(cfg Config, seen *dedupe.Cache[int], logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	b := &Bridge{
		seen:    seen,
		timeout: cfg.RequestTimeout,
		logger:  logger.With("component", "telegram"),
		ctx:     context.Background(),
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Client:  &http.Client{Timeout: cfg.PollTimeout + cfg.RequestTimeout},
		Offline: cfg.Offline,
		OnError: b.onError,
		// One update at a time, in arrival order.
		Synchronous: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	b.bot = bot
	return b, nil
}

// Run registers handlers and polls until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context, h Handler) error {
	b.ctx = ctx
	b.register(h)

	b.logger.Info("telegram bridge running", "username", b.bot.Me.Username)

	done := make(chan struct{})
	go func() {
		b.bot.Start()
		close(done)
	}()

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down telegram bridge")
		b.bot.Stop()
		<-done
		return nil
	case <-done:
		return errors.New("telegram poller stopped")
	}
}

// register routes text, contact, media and callback updates to h.
func (b *Bridge) register(h Handler) {
	dispatch := func(c tele.Context) error {
		b.dispatch(h, c.Update())
		return nil
	}
	for _, endpoint := range []string{tele.OnText, tele.OnContact, tele.OnMedia, tele.OnSticker, tele.OnLocation} {
		b.bot.Handle(endpoint, dispatch)
	}
	b.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		b.dispatch(h, c.Update())
		// Clears the button's loading state.
		return c.Respond()
	})
}

func (b *Bridge) dispatch(h Handler, u tele.Update) {
	if b.seen != nil && b.seen.CheckAndMark(u.ID) {
		b.logger.Debug("dropping duplicate update", "update_id", u.ID)
		return
	}
	ev, ok := eventFromUpdate(u)
	if !ok {
		b.logger.Debug("ignoring update", "update_id", u.ID)
		return
	}

	b.logger.Info("received update",
		"update_id", u.ID,
		"sender_id", ev.SenderID,
		"content", truncate(ev.Text, 50),
	)
	if err := h.Handle(b.ctx, ev); err != nil {
		// The router already notified the sender.
		b.logger.Debug("handler returned error", "update_id", u.ID, "error", err)
	}
}

func (b *Bridge) onError(err error, c tele.Context) {
	if c != nil {
		b.logger.Error("telegram error", "update_id", c.Update().ID, "error", err)
		return
	}
	b.logger.Error("telegram error", "error", err)
}

// Send delivers text to chatID and returns the new message id.
func (b *Bridge) Send(ctx context.Context, chatID int64, text string, kb *relay.Keyboard, mode relay.ParseMode) (int, error) {
	opts := &tele.SendOptions{
		ParseMode:   tele.ParseMode(mode),
		ReplyMarkup: markup(kb),
	}
	var msg *tele.Message
	err := b.call(ctx, func() (err error) {
		msg, err = b.bot.Send(tele.ChatID(chatID), text, opts)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sending to %d: %w", chatID, err)
	}
	return msg.ID, nil
}

// Forward copies message messageID from fromChatID into toChatID,
// keeping the original sender visible.
func (b *Bridge) Forward(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error) {
	var msg *tele.Message
	err := b.call(ctx, func() (err error) {
		msg, err = b.bot.Forward(tele.ChatID(toChatID), stored(fromChatID, messageID))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("forwarding %d/%d to %d: %w", fromChatID, messageID, toChatID, err)
	}
	return msg.ID, nil
}

// Edit replaces the text and inline keyboard of an existing message.
func (b *Bridge) Edit(ctx context.Context, chatID int64, messageID int, text string, kb *relay.Keyboard) error {
	opts := &tele.SendOptions{ReplyMarkup: markup(kb)}
	err := b.call(ctx, func() error {
		_, err := b.bot.Edit(stored(chatID, messageID), text, opts)
		return err
	})
	if errors.Is(err, tele.ErrSameMessageContent) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("editing %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

// call runs fn bounded by the request timeout. telebot calls are not
// cancellable, so a timed-out call keeps running in the background.
func (b *Bridge) call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- fn() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func stored(chatID int64, messageID int) tele.StoredMessage {
	return tele.StoredMessage{MessageID: fmt.Sprint(messageID), ChatID: chatID}
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
