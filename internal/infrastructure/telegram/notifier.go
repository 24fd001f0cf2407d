package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"KnowledgeScanner/internal/config"
	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/infrastructure/htmltext"
	"KnowledgeScanner/internal/ports"
)

const (
	// maxMessageLen is the Telegram limit for a single text message.
	maxMessageLen = 4096
	ellipsis      = "…"
)

// Notifier mirrors review requests into a Telegram chat via bot API.
// The bot client is created on first use since construction calls getMe.
type Notifier struct {
	token    string
	chatID   int64
	endpoint string
	client   *http.Client
	logger   *slog.Logger

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(cfg config.TelegramConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		token:    cfg.BotToken,
		chatID:   cfg.ChatID,
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// WithEndpoint points the bot at another API host; the format follows
// tgbotapi.APIEndpoint.
func (n *Notifier) WithEndpoint(endpoint string, client *http.Client) *Notifier {
	n.endpoint = endpoint
	if client != nil {
		n.client = client
	}
	return n
}

// Notify posts the request to the configured chat. The recipient address
// is included in the text since the chat is shared.
func (n *Notifier) Notify(ctx context.Context, msg domain.Notification) error {
	if n.token == "" || n.chatID == 0 {
		return domain.Configf("telegram notifier misconfigured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bot, err := n.api()
	if err != nil {
		return err
	}

	out := tgbotapi.NewMessage(n.chatID, FormatMessage(msg))
	out.ParseMode = tgbotapi.ModeHTML
	out.DisableWebPagePreview = true

	sent, err := bot.Send(out)
	if err != nil {
		return fmt.Errorf("%w: telegram send: %v", domain.ErrTransient, err)
	}
	n.logger.DebugContext(ctx, "telegram sent", "chat_id", n.chatID, "message_id", sent.MessageID)
	return nil
}

func (n *Notifier) api() (*tgbotapi.BotAPI, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.bot != nil {
		return n.bot, nil
	}

	bot, err := tgbotapi.NewBotAPIWithClient(n.token, n.endpoint, n.client)
	if err != nil {
		return nil, fmt.Errorf("%w: telegram bot: %v", domain.ErrTransient, err)
	}
	n.bot = bot
	return bot, nil
}

// FormatMessage renders a notification as Telegram HTML.
func FormatMessage(msg domain.Notification) string {
	head := fmt.Sprintf("<b>%s</b>\nfor %s\n\n", html.EscapeString(msg.Subject), html.EscapeString(msg.To))
	body := html.EscapeString(htmltext.ToText(msg.Body))

	if room := maxMessageLen - len(head); len(body) > room {
		body = truncate(body, room-len(ellipsis)) + ellipsis
	}
	return head + body
}

// truncate cuts s to at most n bytes without splitting a rune or an entity.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	size := 0
	cut := 0
	for i, r := range runes {
		size += len(string(r))
		if size > n {
			break
		}
		cut = i + 1
	}
	out := string(runes[:cut])
	if amp := lastUnclosedEntity(out); amp >= 0 {
		out = out[:amp]
	}
	return out
}

func lastUnclosedEntity(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ';':
			return -1
		case '&':
			return i
		}
	}
	return -1
}
