// ABOUTME: Conversation log: appends relayed and scripted messages, reads recent entries
// ABOUTME: Formats entries as a Markdown transcript for operators and admins

package history

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/2389/helpdesk-relay/internal/store"
)

// Sender labels.
const (
	SenderClient        = "client"
	SenderBot           = "bot"
	SenderOperator      = "operator"
	SenderBotToOperator = "bot_to_operator"
	SenderAny           = "any"
)

// MaxTranscriptLen bounds a formatted transcript so it fits one message.
const MaxTranscriptLen = 4090

const (
	pointer    = "✍️ "
	timeLayout = "2006-01-02 15:04:05"
)

// Log reads and writes conversation entries.
type Log struct {
	backend store.HistoryStore
	logger  *slog.Logger
}

// New creates a Log over backend.
func New(backend store.HistoryStore, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		backend: backend,
		logger:  logger.With("component", "history"),
	}
}

// Append records one message under the conversation key chatID.
func (l *Log) Append(ctx context.Context, chatID int64, sender string, senderID int64, text string) error {
	e := &store.LogEntry{
		ChatID:   chatID,
		Sender:   sender,
		SenderID: senderID,
		Text:     text,
	}
	if err := l.backend.AppendLogEntry(ctx, e); err != nil {
		return fmt.Errorf("appending log entry: %w", err)
	}
	l.logger.Debug("logged", "chat_id", chatID, "sender", sender, "sender_id", senderID)
	return nil
}

// Recent returns up to max of the chat's newest entries, oldest first.
// A non-positive max returns the whole conversation.
func (l *Log) Recent(ctx context.Context, chatID int64, max int) ([]*store.LogEntry, error) {
	entries, err := l.backend.ListLogEntries(ctx, chatID, max)
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	return entries, nil
}

// RecentAll returns up to max of the newest entries across all chats.
func (l *Log) RecentAll(ctx context.Context, max int) ([]*store.LogEntry, error) {
	entries, err := l.backend.ListRecentLogEntries(ctx, max)
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	return entries, nil
}

// Format renders entries as a Markdown transcript, one line per entry.
// The tech form adds the sender id. Long transcripts keep their newest
// entries.
// No entries yields "".
func Format(entries []*store.LogEntry, tech bool) string {
	if len(entries) == 0 {
		return ""
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		who := escapeMarkdown(e.Sender)
		if tech {
			who += " " + strconv.FormatInt(e.SenderID, 10)
		}
		lines = append(lines, fmt.Sprintf("*%s, %s*: %s",
			e.CreatedAt.Local().Format(timeLayout), who, escapeMarkdown(e.Text)))
	}

	return fitLines(lines, MaxTranscriptLen)
}

var markdownEscaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"`", "\\`",
	"[", `\[`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// Tail keeps the newest entries of transcript s that fit in n runes.
// Entries are dropped whole from the front so bold headers stay paired.
func Tail(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	lines := strings.Split(strings.TrimPrefix(s, pointer), "\n"+pointer)
	return fitLines(lines, n)
}

// fitLines joins the newest lines, each behind a pointer, within n runes.
// When even the newest line is too long it keeps its header and the end
// of its text.
func fitLines(lines []string, n int) string {
	sepLen := utf8.RuneCountInString("\n" + pointer)
	size := utf8.RuneCountInString(pointer)
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		add := utf8.RuneCountInString(lines[i])
		if start < len(lines) {
			add += sepLen
		}
		if size+add > n {
			break
		}
		size += add
		start = i
	}
	if start == len(lines) {
		return pointer + cutLine(lines[len(lines)-1], n-utf8.RuneCountInString(pointer))
	}
	return pointer + strings.Join(lines[start:], "\n"+pointer)
}

// cutLine shortens one "*header*: text" line to n runes by dropping the
// front of its text.
func cutLine(line string, n int) string {
	head, body := "", line
	if i := strings.Index(line, "*: "); i >= 0 {
		head, body = line[:i+3], line[i+3:]
	}
	budget := n - utf8.RuneCountInString(head)
	if budget <= 0 {
		return ""
	}
	r := []rune(body)
	if len(r) <= budget {
		return head + body
	}
	cut := len(r) - budget
	// Never leave an escaped marker without its backslash.
	if r[cut-1] == '\\' {
		cut++
	}
	return head + string(r[cut:])
}
