package channel

import "context"

// ParseModeMarkdown renders *bold* and _emphasis_ markers in replies.
const ParseModeMarkdown = "Markdown"

// Action tells a Listener what to do after an event has been consumed.
type Action int

const (
	// ActionContinue advances past the event and keeps listening.
	ActionContinue Action = iota
	// ActionStop advances past the event and ends the subscription.
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Event is one notification from the platform. Message is nil for updates
// that carry nothing to handle.
type Event struct {
	UpdateID int
	Message  *Message
}

// Message is an incoming chat message. Text is empty for non-text kinds
// (photos, stickers, voice notes).
type Message struct {
	ChatID     int64
	SenderID   int64
	SenderName string
	Text       string
}

// IsText reports whether the message carries text to handle.
func (m Message) IsText() bool {
	return m.Text != ""
}

// Reply is one outgoing message.
type Reply struct {
	ChatID    int64
	Body      string
	ParseMode string
}

// Listener is a long-poll event source.
//
// Every call to Next, successful or not, must be followed by exactly one Ack
// before Next is called again.
type Listener interface {
	Next(ctx context.Context) (Event, error)
	Ack(ctx context.Context, action Action) error
}

// Sender delivers replies to a chat.
type Sender interface {
	Send(ctx context.Context, reply Reply) error
	Typing(ctx context.Context, chatID int64) error
}
