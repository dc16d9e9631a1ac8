package relay

import (
	"context"
	"errors"
	"sync"

	"caterpillar/pkg/channel"
	"caterpillar/pkg/query"
)

// step is one scripted Next result.
type step struct {
	event channel.Event
	err   error
}

// fakeListener replays steps, then blocks until ctx is done. It records acks
// and fails the test run if Next is called twice without an Ack in between.
type fakeListener struct {
	mu        sync.Mutex
	steps     []step
	nexts     int
	acks      []channel.Action
	awaiting  bool
	protocol  []string
	exhausted chan struct{}
	once      sync.Once
}

func newFakeListener(steps ...step) *fakeListener {
	return &fakeListener{steps: steps, exhausted: make(chan struct{})}
}

func (f *fakeListener) Next(ctx context.Context) (channel.Event, error) {
	f.mu.Lock()
	if f.awaiting {
		f.protocol = append(f.protocol, "next called before ack")
	}
	f.awaiting = true
	f.nexts++

	if len(f.steps) > 0 {
		next := f.steps[0]
		f.steps = f.steps[1:]
		f.mu.Unlock()
		return next.event, next.err
	}
	f.mu.Unlock()

	f.once.Do(func() { close(f.exhausted) })
	<-ctx.Done()
	return channel.Event{}, ctx.Err()
}

func (f *fakeListener) Ack(_ context.Context, action channel.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.awaiting {
		f.protocol = append(f.protocol, "ack without next")
	}
	f.awaiting = false
	f.acks = append(f.acks, action)
	return nil
}

func (f *fakeListener) snapshot() (nexts int, acks []channel.Action, protocol []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.nexts, append([]channel.Action(nil), f.acks...), append([]string(nil), f.protocol...)
}

type fakeSender struct {
	mu      sync.Mutex
	replies []channel.Reply
	typing  int
	sendErr error
}

func (f *fakeSender) Send(_ context.Context, reply channel.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return f.sendErr
	}
	f.replies = append(f.replies, reply)
	return nil
}

func (f *fakeSender) Typing(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.typing++
	return nil
}

func (f *fakeSender) bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	bodies := make([]string, 0, len(f.replies))
	for _, reply := range f.replies {
		bodies = append(bodies, reply.Body)
	}
	return bodies
}

type fakeQuerier struct {
	mu       sync.Mutex
	raw      string
	err      error
	received []string
}

func (f *fakeQuerier) Query(_ context.Context, text string) (*query.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.received = append(f.received, text)
	if f.err != nil {
		return nil, f.err
	}
	return query.Decode([]byte(f.raw))
}

func (f *fakeQuerier) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.received...)
}

// handlerFunc adapts a function to Handler.
type handlerFunc func(ctx context.Context, msg channel.Message) error

func (h handlerFunc) Handle(ctx context.Context, msg channel.Message) error {
	return h(ctx, msg)
}

var errBoom = errors.New("boom")

func textEvent(updateID int, text string) channel.Event {
	return channel.Event{
		UpdateID: updateID,
		Message:  &channel.Message{ChatID: 42, SenderID: 7, SenderName: "Alice", Text: text},
	}
}
