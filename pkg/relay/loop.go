package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"caterpillar/pkg/bus"
	"caterpillar/pkg/channel"
	"caterpillar/pkg/query"

	"github.com/google/uuid"
)

const stopAckTimeout = 5 * time.Second

// Handler processes one incoming message.
type Handler interface {
	Handle(ctx context.Context, msg channel.Message) error
}

// Loop drives a Listener: receive, dispatch, acknowledge, repeat.
type Loop struct {
	listener   channel.Listener
	handler    Handler
	events     *bus.Bus
	log        *slog.Logger
	retryDelay time.Duration
}

// NewLoop wires a loop. events may be nil.
func NewLoop(listener channel.Listener, handler Handler, events *bus.Bus, log *slog.Logger, retryDelay time.Duration) *Loop {
	if log == nil {
		log = slog.Default()
	}
	if retryDelay < 0 {
		retryDelay = 0
	}

	return &Loop{
		listener:   listener,
		handler:    handler,
		events:     events,
		log:        log.With("component", "relay.loop"),
		retryDelay: retryDelay,
	}
}

// Run processes events one at a time until ctx is cancelled. Every Next call
// is followed by exactly one Ack, whatever happened in between; the final one
// is ActionStop. Run returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	if l.listener == nil {
		return errors.New("relay loop requires a listener")
	}
	if l.handler == nil {
		return errors.New("relay loop requires a handler")
	}

	l.log.Info("Relay loop started", "retry_delay", l.retryDelay.String())

	for {
		event, err := l.listener.Next(ctx)
		stopping := ctx.Err() != nil

		switch {
		case stopping:
		case err != nil:
			l.log.Warn("Listener failed", "error", err)
			l.events.Publish(ctx, bus.Event{Type: bus.EventListenerFailed, Error: err.Error()})
		default:
			l.events.Publish(ctx, bus.Event{Type: bus.EventReceived, UpdateID: event.UpdateID})
			if event.Message != nil {
				l.dispatch(ctx, event)
			}
		}

		if ctx.Err() != nil {
			stopping = true
		}

		l.ack(ctx, event, err, stopping)
		if stopping {
			l.log.Info("Relay loop stopped")
			return nil
		}

		if err != nil {
			l.wait(ctx)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, event channel.Event) {
	requestID := uuid.NewString()
	ctx = query.WithRequestID(ctx, requestID)
	log := l.log.With(
		"request_id", requestID,
		"update_id", event.UpdateID,
		"chat_id", event.Message.ChatID,
	)

	startedAt := time.Now()
	if err := l.handle(ctx, *event.Message); err != nil {
		log.Error("Failed to handle message", "error", err, "duration_ms", time.Since(startedAt).Milliseconds())
		return
	}

	log.Debug("Handled message", "duration_ms", time.Since(startedAt).Milliseconds())
}

func (l *Loop) handle(ctx context.Context, msg channel.Message) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("handler panic: %v", recovered)
		}
	}()

	return l.handler.Handle(ctx, msg)
}

func (l *Loop) ack(ctx context.Context, event channel.Event, receiveErr error, stopping bool) {
	action := channel.ActionContinue
	if stopping {
		action = channel.ActionStop

		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), stopAckTimeout)
		defer cancel()
	}

	if err := l.listener.Ack(ctx, action); err != nil {
		l.log.Warn("Failed to acknowledge event", "update_id", event.UpdateID, "action", action.String(), "error", err)
	}

	acked := bus.Event{Type: bus.EventAcked, Payload: map[string]string{"action": action.String()}}
	if receiveErr == nil {
		acked.UpdateID = event.UpdateID
	}
	l.events.Publish(ctx, acked)
}

func (l *Loop) wait(ctx context.Context) {
	if l.retryDelay <= 0 {
		return
	}

	timer := time.NewTimer(l.retryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
