package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Entry is one line of JSON log output. Top-level component and request_id
// attributes are lifted out of Fields so a relay dispatch can be followed
// across packages.
type Entry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// jsonHandler writes Entry lines. Attributes are keyed with their group path
// when they are attached, so With before WithGroup stays unprefixed.
type jsonHandler struct {
	level     slog.Level
	addSource bool
	out       *lockedWriter
	prefix    string
	preset    []slog.Attr
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) writeLine(line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.w.Write(append(line, '\n'))
	return err
}

func newJSONHandler(w io.Writer, level slog.Level, addSource bool) *jsonHandler {
	return &jsonHandler{level: level, addSource: addSource, out: &lockedWriter{w: w}}
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *jsonHandler) Handle(_ context.Context, record slog.Record) error {
	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}

	entry := Entry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Message:   record.Message,
		Fields:    make(map[string]any, len(h.preset)+record.NumAttrs()),
	}

	for _, attr := range h.preset {
		entry.add(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		entry.add(h.keyed(attr))
		return true
	})
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}
	if h.addSource {
		entry.Caller = caller(record.PC)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return h.out.writeLine(line)
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = make([]slog.Attr, 0, len(h.preset)+len(attrs))
	next.preset = append(next.preset, h.preset...)
	for _, attr := range attrs {
		next.preset = append(next.preset, h.keyed(attr))
	}
	return &next
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *jsonHandler) keyed(attr slog.Attr) slog.Attr {
	attr.Value = attr.Value.Resolve()
	attr.Key = h.prefix + attr.Key
	return attr
}

func (e *Entry) add(attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindString {
		switch attr.Key {
		case "component":
			e.Component = attr.Value.String()
			return
		case "request_id":
			e.RequestID = attr.Value.String()
			return
		}
	}

	e.Fields[attr.Key] = jsonValue(attr.Value)
}

func jsonValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := value.Group()
		result := make(map[string]any, len(group))
		for _, item := range group {
			result[item.Key] = jsonValue(item.Value.Resolve())
		}
		return result
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
		return value.Any()
	default:
		return value.Any()
	}
}

func caller(pc uintptr) string {
	if pc == 0 {
		return ""
	}

	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}

	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}
