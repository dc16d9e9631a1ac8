package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"caterpillar/pkg/bus"
	"caterpillar/pkg/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	eventBufferSize         = 256
	statusShutdownTimeout   = 5 * time.Second
	statusReadHeaderTimeout = 5 * time.Second
)

// Runner is the relay loop owned by the service.
type Runner interface {
	Run(ctx context.Context) error
}

// Service runs the relay loop for the process lifetime and reports on it
// over HTTP.
type Service struct {
	cfg    config.StatusConfig
	loop   Runner
	events *bus.Bus
	log    *slog.Logger
	router chi.Router

	mu          sync.RWMutex
	startedAt   time.Time
	loopRunning bool
	loopErr     string
	stats       stats
}

type statusResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	LoopRunning   bool   `json:"loop_running"`
	LoopError     string `json:"loop_error,omitempty"`
	LastPollError string `json:"last_poll_error,omitempty"`
}

// NewService wires the status routes around loop. events feeds the counters
// served on /stats and may be nil.
func NewService(cfg config.StatusConfig, loop Runner, events *bus.Bus, log *slog.Logger) (*Service, error) {
	if loop == nil {
		return nil, errors.New("relay loop is required")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		cfg:    cfg,
		loop:   loop,
		events: events,
		log:    log.With("component", "gateway.service"),
	}
	s.router = s.buildRouter()

	return s, nil
}

// Handler exposes the status routes.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Run blocks until the loop returns. A status server failure stops the loop
// and is returned.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	// Outlives ctx so the loop's final events are still counted.
	events, unsubscribe := s.events.Subscribe(context.WithoutCancel(ctx), eventBufferSize)
	defer unsubscribe()
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for event := range events {
			s.record(event)
		}
	}()

	serverErrors := make(chan error, 1)
	if s.cfg.Enabled {
		go s.runStatusServer(runCtx, serverErrors)
	}

	loopDone := make(chan error, 1)
	s.setLoopState(true, nil)
	go func() {
		loopDone <- s.loop.Run(runCtx)
	}()

	var runErr error
	select {
	case err := <-loopDone:
		s.setLoopState(false, err)
		if err != nil {
			runErr = fmt.Errorf("run relay loop: %w", err)
		}
	case err := <-serverErrors:
		cancel()
		loopErr := <-loopDone
		s.setLoopState(false, loopErr)
		runErr = err
	}

	unsubscribe()
	<-consumed

	return runErr
}

func (s *Service) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/stats", s.handleStats)

	return r
}

func (s *Service) runStatusServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Host)
	if host == "" {
		host = config.DefaultStatusHost
	}

	port := s.cfg.Port
	if port <= 0 {
		port = config.DefaultStatusPort
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: statusReadHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, s.currentStatus("ok"))
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respond(w, statusCode, s.currentStatus(status))
}

func (s *Service) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, s.currentStats())
}

func (s *Service) respond(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return statusResponse{
		Status:        status,
		UptimeSeconds: s.uptimeSeconds(),
		LoopRunning:   s.loopRunning,
		LoopError:     s.loopErr,
		LastPollError: s.stats.lastListenerErr,
	}
}

// isReady reports whether the loop is running and its last poll succeeded.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loopRunning && s.stats.lastListenerErr == ""
}

func (s *Service) setLoopState(running bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loopRunning = running
	s.loopErr = errorString(err)
}

// uptimeSeconds must be called with mu held.
func (s *Service) uptimeSeconds() int64 {
	if s.startedAt.IsZero() {
		return 0
	}

	return int64(time.Since(s.startedAt).Seconds())
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
