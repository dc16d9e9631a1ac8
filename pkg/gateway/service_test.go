package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"caterpillar/pkg/bus"
	"caterpillar/pkg/config"
)

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func TestNewServiceRequiresLoop(t *testing.T) {
	if _, err := NewService(config.StatusConfig{}, nil, nil, nil); err == nil {
		t.Fatal("expected error without relay loop")
	}
}

func TestIsReady(t *testing.T) {
	t.Parallel()

	svc := &Service{}
	if svc.isReady() {
		t.Fatal("expected not ready before the loop runs")
	}

	svc.loopRunning = true
	if !svc.isReady() {
		t.Fatal("expected ready with a running loop")
	}

	svc.record(bus.Event{Type: bus.EventListenerFailed, Error: "network down"})
	if svc.isReady() {
		t.Fatal("expected not ready after a listener failure")
	}

	svc.record(bus.Event{Type: bus.EventReceived, UpdateID: 1})
	if !svc.isReady() {
		t.Fatal("expected ready again after a successful poll")
	}
}

func TestRecordCountsEvents(t *testing.T) {
	t.Parallel()

	svc := &Service{}
	for _, event := range []bus.Event{
		{Type: bus.EventReceived},
		{Type: bus.EventAcked},
		{Type: bus.EventQueryFailed, Payload: map[string]string{"kind": "transport"}, Error: "dial tcp: refused"},
		{Type: bus.EventReplied},
		{Type: bus.EventReceived},
		{Type: bus.EventAcked},
		{Type: bus.EventReplyFailed},
		{Type: bus.EventListenerFailed, Error: "timeout"},
		{Type: bus.EventAcked},
	} {
		svc.record(event)
	}

	got := svc.currentStats()
	if got.Received != 2 || got.Acked != 3 || got.Replied != 1 || got.ReplyFailed != 1 || got.QueryFailed != 1 || got.ListenerFailed != 1 {
		t.Fatalf("stats = %+v", got)
	}
	if got.LastQueryError != "transport: dial tcp: refused" {
		t.Fatalf("last query error = %q, want %q", got.LastQueryError, "transport: dial tcp: refused")
	}
	if got.LastListenerError != "timeout" {
		t.Fatalf("last listener error = %q, want %q", got.LastListenerError, "timeout")
	}

	svc.record(bus.Event{Type: bus.EventQueryAnswered})
	if got := svc.currentStats(); got.LastQueryError != "" || got.QueryAnswered != 1 {
		t.Fatalf("stats after answer = %+v, want cleared query error", got)
	}
}

func TestStatusRoutes(t *testing.T) {
	t.Parallel()

	svc, err := NewService(config.StatusConfig{}, runnerFunc(blockUntilDone), nil, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	tests := []struct {
		path string
		want int
	}{
		{path: "/healthz", want: http.StatusOK},
		{path: "/readyz", want: http.StatusServiceUnavailable},
		{path: "/stats", want: http.StatusOK},
		{path: "/missing", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		recorder := httptest.NewRecorder()
		svc.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if recorder.Code != tt.want {
			t.Fatalf("GET %s status = %d, want %d", tt.path, recorder.Code, tt.want)
		}
	}

	recorder := httptest.NewRecorder()
	svc.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var payload statusResponse
	if err := json.NewDecoder(recorder.Body).Decode(&payload); err != nil {
		t.Fatalf("decode readyz body: %v", err)
	}
	if payload.Status != "not_ready" {
		t.Fatalf("readyz status = %q, want not_ready", payload.Status)
	}
}

func TestRunReturnsLoopError(t *testing.T) {
	t.Parallel()

	loopErr := errors.New("listener setup failed")
	svc, err := NewService(config.StatusConfig{}, runnerFunc(func(context.Context) error { return loopErr }), nil, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	if err := svc.Run(context.Background()); !errors.Is(err, loopErr) {
		t.Fatalf("Run() error = %v, want %v", err, loopErr)
	}
	if svc.isReady() {
		t.Fatal("expected not ready after the loop exited")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	svc, err := NewService(config.StatusConfig{}, runnerFunc(blockUntilDone), nil, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
