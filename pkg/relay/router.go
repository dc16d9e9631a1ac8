package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"caterpillar/pkg/bus"
	"caterpillar/pkg/channel"
	"caterpillar/pkg/query"
)

const typingRefreshInterval = 4 * time.Second

// Querier resolves a free-form utterance into a service response document.
type Querier interface {
	Query(ctx context.Context, text string) (*query.Document, error)
}

// Router turns one incoming message into replies.
type Router struct {
	querier Querier
	sender  channel.Sender
	events  *bus.Bus
	log     *slog.Logger
}

// NewRouter wires a router. events may be nil.
func NewRouter(querier Querier, sender channel.Sender, events *bus.Bus, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		querier: querier,
		sender:  sender,
		events:  events,
		log:     log.With("component", "relay.router"),
	}
}

// Handle answers msg. /start and /help get canned text; anything else is
// relayed to the query service and always gets exactly one reply, the
// fallback text when the service has no answer. Non-text messages are
// ignored. The returned error is a reply delivery failure.
func (r *Router) Handle(ctx context.Context, msg channel.Message) error {
	log := r.log.With("chat_id", msg.ChatID)
	if requestID := query.RequestIDFromContext(ctx); requestID != "" {
		log = log.With("request_id", requestID)
	}

	if !msg.IsText() {
		log.Debug("Ignoring non-text message")
		return nil
	}

	switch msg.Text {
	case CommandStart:
		if err := r.reply(ctx, msg.ChatID, fmt.Sprintf(welcomeFormat, msg.SenderName)); err != nil {
			return err
		}
		return r.reply(ctx, msg.ChatID, HelpText)
	case CommandHelp:
		return r.reply(ctx, msg.ChatID, HelpText)
	}

	return r.reply(ctx, msg.ChatID, r.answer(ctx, log, msg))
}

func (r *Router) answer(ctx context.Context, log *slog.Logger, msg channel.Message) string {
	stopTyping := r.startTypingIndicator(ctx, log, msg.ChatID)
	startedAt := time.Now()
	doc, err := r.querier.Query(ctx, msg.Text)
	stopTyping()

	text, _ := query.Extract(doc)
	if text != "" {
		log.Info("Query answered", "duration_ms", time.Since(startedAt).Milliseconds(), "answer_length", len(text))
		r.publish(ctx, bus.Event{Type: bus.EventQueryAnswered, ChatID: msg.ChatID})
		return text
	}

	kind := query.KindOf(err)
	switch {
	case err == nil:
		kind = query.KindNoAnswer
	case kind == "":
		kind = "unknown"
	}
	log.Warn("Query gave no answer, sending fallback", "duration_ms", time.Since(startedAt).Milliseconds(), "kind", string(kind), "error", err)
	r.publish(ctx, bus.Event{
		Type:    bus.EventQueryFailed,
		ChatID:  msg.ChatID,
		Payload: map[string]string{"kind": string(kind)},
		Error:   errorString(err),
	})

	return FallbackText
}

func (r *Router) reply(ctx context.Context, chatID int64, body string) error {
	err := r.sender.Send(ctx, channel.Reply{
		ChatID:    chatID,
		Body:      body,
		ParseMode: channel.ParseModeMarkdown,
	})
	if err != nil {
		r.publish(ctx, bus.Event{Type: bus.EventReplyFailed, ChatID: chatID, Error: err.Error()})
		return fmt.Errorf("reply to chat %d: %w", chatID, err)
	}

	r.publish(ctx, bus.Event{Type: bus.EventReplied, ChatID: chatID})
	return nil
}

func (r *Router) publish(ctx context.Context, event bus.Event) {
	if event.RequestID == "" {
		event.RequestID = query.RequestIDFromContext(ctx)
	}
	r.events.Publish(ctx, event)
}

// startTypingIndicator sends an initial typing action and refreshes it
// periodically until the returned cancel function is called.
func (r *Router) startTypingIndicator(ctx context.Context, log *slog.Logger, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	sendTyping := func() {
		if err := r.sender.Typing(typingCtx, chatID); err != nil && typingCtx.Err() == nil {
			log.Debug("Failed to send typing indicator", "error", err)
		}
	}

	go func() {
		defer close(done)
		sendTyping()

		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
