package gateway

import (
	"time"

	"caterpillar/pkg/bus"
)

// stats accumulates pipeline counters from bus events.
type stats struct {
	received        uint64
	acked           uint64
	listenerFailed  uint64
	queryAnswered   uint64
	queryFailed     uint64
	replied         uint64
	replyFailed     uint64
	lastEventAt     time.Time
	lastListenerErr string
	lastQueryErr    string
}

type statsResponse struct {
	UptimeSeconds     int64  `json:"uptime_seconds"`
	LoopRunning       bool   `json:"loop_running"`
	Received          uint64 `json:"received"`
	Acked             uint64 `json:"acked"`
	ListenerFailed    uint64 `json:"listener_failed"`
	QueryAnswered     uint64 `json:"query_answered"`
	QueryFailed       uint64 `json:"query_failed"`
	Replied           uint64 `json:"replied"`
	ReplyFailed       uint64 `json:"reply_failed"`
	LastEventAt       string `json:"last_event_at,omitempty"`
	LastListenerError string `json:"last_listener_error,omitempty"`
	LastQueryError    string `json:"last_query_error,omitempty"`
}

func (s *Service) record(event bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.stats
	st.lastEventAt = event.At

	switch event.Type {
	case bus.EventReceived:
		st.received++
		st.lastListenerErr = ""
	case bus.EventAcked:
		st.acked++
	case bus.EventListenerFailed:
		st.listenerFailed++
		st.lastListenerErr = event.Error
	case bus.EventQueryAnswered:
		st.queryAnswered++
		st.lastQueryErr = ""
	case bus.EventQueryFailed:
		st.queryFailed++
		st.lastQueryErr = queryErrorText(event)
	case bus.EventReplied:
		st.replied++
	case bus.EventReplyFailed:
		st.replyFailed++
	}
}

func (s *Service) currentStats() statsResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.stats
	lastEventAt := ""
	if !st.lastEventAt.IsZero() {
		lastEventAt = st.lastEventAt.Format(time.RFC3339)
	}

	return statsResponse{
		UptimeSeconds:     s.uptimeSeconds(),
		LoopRunning:       s.loopRunning,
		Received:          st.received,
		Acked:             st.acked,
		ListenerFailed:    st.listenerFailed,
		QueryAnswered:     st.queryAnswered,
		QueryFailed:       st.queryFailed,
		Replied:           st.replied,
		ReplyFailed:       st.replyFailed,
		LastEventAt:       lastEventAt,
		LastListenerError: st.lastListenerErr,
		LastQueryError:    st.lastQueryErr,
	}
}

func queryErrorText(event bus.Event) string {
	kind := event.Payload["kind"]
	switch {
	case event.Error == "":
		return kind
	case kind == "":
		return event.Error
	default:
		return kind + ": " + event.Error
	}
}
