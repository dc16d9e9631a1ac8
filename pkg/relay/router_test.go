package relay

import (
	"context"
	"errors"
	"testing"

	"caterpillar/pkg/bus"
	"caterpillar/pkg/channel"
	"caterpillar/pkg/config"
	"caterpillar/pkg/query"

	"github.com/stretchr/testify/require"
)

const answeredBody = `{"data":{"messages":[{"content":"Alcohol is toxic in large doses."}]}}`

func newTestRouter(querier Querier) (*Router, *fakeSender) {
	sender := &fakeSender{}
	return NewRouter(querier, sender, nil, nil), sender
}

func TestHandleStartSendsWelcomeThenHelp(t *testing.T) {
	querier := &fakeQuerier{raw: answeredBody}
	router, sender := newTestRouter(querier)

	require.NoError(t, router.Handle(context.Background(), channel.Message{ChatID: 42, SenderName: "Alice", Text: "/start"}))

	got := sender.bodies()
	require.Equal(t, []string{"Welcome, Alice!", HelpText}, got)
	for _, reply := range sender.replies {
		if reply.ChatID != 42 {
			t.Fatalf("reply chat id = %d, want 42", reply.ChatID)
		}
		if reply.ParseMode != channel.ParseModeMarkdown {
			t.Fatalf("reply parse mode = %q, want %q", reply.ParseMode, channel.ParseModeMarkdown)
		}
	}
	if calls := querier.calls(); len(calls) != 0 {
		t.Fatalf("querier calls = %v, want none for /start", calls)
	}
}

func TestHandleHelpSendsHelpOnly(t *testing.T) {
	querier := &fakeQuerier{raw: answeredBody}
	router, sender := newTestRouter(querier)

	require.NoError(t, router.Handle(context.Background(), channel.Message{ChatID: 42, Text: "/help"}))

	require.Equal(t, []string{HelpText}, sender.bodies())
	if calls := querier.calls(); len(calls) != 0 {
		t.Fatalf("querier calls = %v, want none for /help", calls)
	}
}

func TestHandleCommandMatchingIsExact(t *testing.T) {
	querier := &fakeQuerier{raw: answeredBody}
	router, sender := newTestRouter(querier)

	require.NoError(t, router.Handle(context.Background(), channel.Message{ChatID: 42, Text: " /help"}))

	require.Equal(t, []string{" /help"}, querier.calls())
	require.Equal(t, []string{"Alcohol is toxic in large doses."}, sender.bodies())
}

func TestHandleQueryRelaysAnswer(t *testing.T) {
	querier := &fakeQuerier{raw: answeredBody}
	router, sender := newTestRouter(querier)

	require.NoError(t, router.Handle(context.Background(), channel.Message{ChatID: 42, Text: "Is alcohol toxic?"}))

	require.Equal(t, []string{"Is alcohol toxic?"}, querier.calls())
	require.Equal(t, []string{"Alcohol is toxic in large doses."}, sender.bodies())
	if sender.typing == 0 {
		t.Fatal("expected typing indicator while the query was in flight")
	}
}

func TestHandleQuerySendsFallback(t *testing.T) {
	tests := []struct {
		name    string
		querier *fakeQuerier
	}{
		{name: "query error", querier: &fakeQuerier{err: errBoom}},
		{name: "unexpected shape", querier: &fakeQuerier{raw: `{"data":{"messages":[]}}`}},
		{name: "non-string content", querier: &fakeQuerier{raw: `{"data":{"messages":[{"content":7}]}}`}},
		{name: "empty content", querier: &fakeQuerier{raw: `{"data":{"messages":[{"content":""}]}}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, sender := newTestRouter(tt.querier)

			require.NoError(t, router.Handle(context.Background(), channel.Message{ChatID: 42, Text: "anything"}))
			require.Equal(t, []string{FallbackText}, sender.bodies())
		})
	}
}

func TestHandleUnreachableServiceSendsFallback(t *testing.T) {
	client, err := query.New(config.ServiceConfig{URL: "http://127.0.0.1:1/query", RequestTimeoutSeconds: 2}, nil)
	require.NoError(t, err)
	router, sender := newTestRouter(client)

	require.NoError(t, router.Handle(context.Background(), channel.Message{ChatID: 42, Text: "Is cocaine safe?"}))

	require.Equal(t, []string{FallbackText}, sender.bodies())
}

func TestHandleIgnoresNonText(t *testing.T) {
	querier := &fakeQuerier{raw: answeredBody}
	router, sender := newTestRouter(querier)

	require.NoError(t, router.Handle(context.Background(), channel.Message{ChatID: 42}))

	if got := sender.bodies(); len(got) != 0 {
		t.Fatalf("replies = %v, want none for a non-text message", got)
	}
	if calls := querier.calls(); len(calls) != 0 {
		t.Fatalf("querier calls = %v, want none", calls)
	}
}

func TestHandleReturnsSendError(t *testing.T) {
	sender := &fakeSender{sendErr: errBoom}
	router := NewRouter(&fakeQuerier{raw: answeredBody}, sender, nil, nil)

	err := router.Handle(context.Background(), channel.Message{ChatID: 42, Text: "/help"})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Handle() error = %v, want wrapped send error", err)
	}
}

func TestHandlePublishesEvents(t *testing.T) {
	events := bus.New()
	t.Cleanup(events.Close)
	stream, unsubscribe := events.Subscribe(context.Background(), 8)
	defer unsubscribe()

	sender := &fakeSender{}
	router := NewRouter(&fakeQuerier{err: errBoom}, sender, events, nil)
	ctx := query.WithRequestID(context.Background(), "req-1")

	require.NoError(t, router.Handle(ctx, channel.Message{ChatID: 42, Text: "hello"}))

	failed := <-stream
	if failed.Type != bus.EventQueryFailed {
		t.Fatalf("first event = %q, want %q", failed.Type, bus.EventQueryFailed)
	}
	if failed.RequestID != "req-1" {
		t.Fatalf("request id = %q, want %q", failed.RequestID, "req-1")
	}
	if failed.Payload["kind"] == "" {
		t.Fatal("expected failure kind in payload")
	}

	replied := <-stream
	if replied.Type != bus.EventReplied || replied.ChatID != 42 {
		t.Fatalf("second event = %+v, want replied for chat 42", replied)
	}
}
