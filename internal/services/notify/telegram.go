package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ternarybob/arbor"
)

// Telegram rejects messages above 4096 characters
const telegramMaxLen = 4000

// TelegramChannel posts alerts to one chat through the Bot API
type TelegramChannel struct {
	token      string
	chatID     int64
	endpoint   string
	httpClient *http.Client
	logger     arbor.ILogger

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramChannel returns nil when the token or chat id is missing.
// endpoint may be empty for the public Bot API.
func NewTelegramChannel(token string, chatID int64, endpoint string, timeout time.Duration, logger arbor.ILogger) *TelegramChannel {
	if token == "" || chatID == 0 {
		return nil
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &TelegramChannel{
		token:      token,
		chatID:     chatID,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (t *TelegramChannel) Name() string { return "telegram" }

// botAPI authorizes on first use so a misconfigured token does not block startup
func (t *TelegramChannel) botAPI() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.httpClient)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	t.logger.Info().Str("bot", bot.Self.UserName).Msg("Telegram bot authorized")
	t.bot = bot
	return bot, nil
}

func (t *TelegramChannel) Send(ctx context.Context, title, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := t.botAPI()
	if err != nil {
		return err
	}

	text := "<b>" + html.EscapeString(title) + "</b>\n" + html.EscapeString(message)
	for _, chunk := range splitMessage(text, telegramMaxLen) {
		msg := tgbotapi.NewMessage(t.chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if _, err := bot.Send(msg); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// splitMessage cuts text into chunks of at most max runes, preferring newline boundaries
func splitMessage(text string, max int) []string {
	var chunks []string
	for utf8.RuneCountInString(text) > max {
		cut := byteOffset(text, max)
		for i := cut - 1; i > 0; i-- {
			if text[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func byteOffset(s string, runes int) int {
	n := 0
	for i := range s {
		if n == runes {
			return i
		}
		n++
	}
	return len(s)
}
