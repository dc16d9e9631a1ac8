package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"caterpillar/pkg/channel"
	"caterpillar/pkg/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const messagePreviewLimit = 240

var allowedUpdates = []string{"message"}

// Adapter implements channel.Listener and channel.Sender on the Telegram Bot API.
//
// The listener side polls getUpdates with an explicit offset: Next hands out
// buffered updates one at a time and Ack moves the offset past the last one,
// so an update is only confirmed to Telegram once it has been acknowledged.
// Listener methods must be called from a single goroutine.
type Adapter struct {
	bot         *telego.Bot
	allowFrom   map[string]struct{}
	pollTimeout int
	log         *slog.Logger

	offset  int
	pending []telego.Update
	current int
	unacked bool
}

// New validates Telegram configuration and constructs an adapter.
func New(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram.token is required")
	}
	if cfg.PollTimeoutSeconds < 0 {
		return nil, errors.New("telegram.poll_timeout_seconds must be non-negative")
	}

	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "channel.telegram")

	opts := []telego.BotOption{telego.WithLogger(botLogger{log: log, token: token})}
	if apiURL := strings.TrimSpace(cfg.APIURL); apiURL != "" {
		opts = append(opts, telego.WithAPIServer(strings.TrimRight(apiURL, "/")))
	}

	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	return &Adapter{
		bot:         bot,
		allowFrom:   allowFromSet(cfg.AllowFrom),
		pollTimeout: cfg.PollTimeoutSeconds,
		log:         log,
	}, nil
}

// Next blocks until Telegram delivers an update or ctx is done.
func (a *Adapter) Next(ctx context.Context) (channel.Event, error) {
	a.unacked = false

	for len(a.pending) == 0 {
		updates, err := a.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
			Offset:         a.offset,
			Timeout:        a.pollTimeout,
			AllowedUpdates: allowedUpdates,
		})
		if err != nil {
			return channel.Event{}, fmt.Errorf("get updates: %w", err)
		}
		a.pending = updates
	}

	update := a.pending[0]
	a.pending = a.pending[1:]
	a.current = update.UpdateID
	a.unacked = true

	return channel.Event{
		UpdateID: update.UpdateID,
		Message:  a.toMessage(update),
	}, nil
}

// Ack confirms the update returned by the last Next call. It is a no-op when
// that call failed. ActionStop also reports the final offset to Telegram so
// the acknowledged update is not redelivered after a restart.
func (a *Adapter) Ack(ctx context.Context, action channel.Action) error {
	if a.unacked {
		a.offset = a.current + 1
		a.unacked = false
	}

	if action != channel.ActionStop || a.offset == 0 {
		return nil
	}

	// Unconsumed buffered updates stay behind the confirmed offset and are redelivered later.
	a.pending = nil
	if _, err := a.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
		Offset:         a.offset,
		Limit:          1,
		AllowedUpdates: allowedUpdates,
	}); err != nil {
		return fmt.Errorf("confirm update offset %d: %w", a.offset, err)
	}

	return nil
}

// Send delivers one reply.
func (a *Adapter) Send(ctx context.Context, reply channel.Reply) error {
	params := tu.Message(tu.ID(reply.ChatID), reply.Body)
	if reply.ParseMode != "" {
		params = params.WithParseMode(reply.ParseMode)
	}

	if _, err := a.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	return nil
}

// Typing shows the "typing..." chat action.
func (a *Adapter) Typing(ctx context.Context, chatID int64) error {
	return a.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping))
}

// toMessage maps an update to a channel message, or nil when there is nothing to handle.
func (a *Adapter) toMessage(update telego.Update) *channel.Message {
	message := update.Message
	if message == nil {
		return nil
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender", "update_id", update.UpdateID)
		return nil
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "update_id", update.UpdateID, "sender_id", senderID)
		return nil
	}

	a.log.Info("Received message",
		"update_id", update.UpdateID,
		"chat_id", message.Chat.ID,
		"sender_id", senderID,
		"content", previewText(message.Text),
	)

	return &channel.Message{
		ChatID:     message.Chat.ID,
		SenderID:   message.From.ID,
		SenderName: message.From.FirstName,
		Text:       message.Text,
	}
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}

// botLogger routes telego's internal logging into slog with the token masked.
type botLogger struct {
	log   *slog.Logger
	token string
}

func (l botLogger) Debugf(format string, args ...any) {
	l.log.Debug(l.redact(fmt.Sprintf(format, args...)))
}

func (l botLogger) Errorf(format string, args ...any) {
	l.log.Warn(l.redact(fmt.Sprintf(format, args...)))
}

func (l botLogger) redact(text string) string {
	if l.token == "" {
		return text
	}

	return strings.ReplaceAll(text, l.token, "BOT_TOKEN")
}
