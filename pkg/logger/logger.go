// Package logger builds the process-wide slog logger: charm text for
// terminals, one JSON entry per line for collectors.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"

	"caterpillar/pkg/config"
)

const (
	formatText = "text"
	formatJSON = "json"

	envLogFormat    = "CATERPILLAR_LOG_FORMAT"
	envLogLevel     = "CATERPILLAR_LOG_LEVEL"
	envLogAddSource = "CATERPILLAR_LOG_ADD_SOURCE"
)

// settings is LoggingConfig after environment overrides and defaults.
type settings struct {
	format    string
	level     charmLog.Level
	addSource bool
}

// New builds the process logger on stderr.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	s, err := resolveSettings(cfg)
	if err != nil {
		return nil, err
	}

	if s.format == formatJSON {
		return slog.New(newJSONHandler(writer, slog.Level(s.level), s.addSource)), nil
	}

	return slog.New(charmLog.NewWithOptions(writer, charmLog.Options{
		Level:           s.level,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		ReportCaller:    s.addSource,
		Formatter:       charmLog.TextFormatter,
	})), nil
}

func resolveSettings(cfg config.LoggingConfig) (settings, error) {
	s := settings{addSource: cfg.AddSource}

	s.format = strings.ToLower(envOr(envLogFormat, cfg.Format, formatText))
	if s.format != formatText && s.format != formatJSON {
		return settings{}, fmt.Errorf("unsupported log format %q", s.format)
	}

	levelText := strings.ToLower(envOr(envLogLevel, cfg.Level, "info"))
	if levelText == "warning" {
		levelText = "warn"
	}
	level, err := charmLog.ParseLevel(levelText)
	if err != nil {
		return settings{}, fmt.Errorf("unsupported log level %q", levelText)
	}
	s.level = level

	if raw := strings.TrimSpace(os.Getenv(envLogAddSource)); raw != "" {
		switch strings.ToLower(raw) {
		case "1", "true", "yes", "on":
			s.addSource = true
		default:
			s.addSource = false
		}
	}

	return s, nil
}

// envOr returns the env variable when set, else configured, else fallback.
func envOr(key string, configured string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	if value := strings.TrimSpace(configured); value != "" {
		return value
	}

	return fallback
}
