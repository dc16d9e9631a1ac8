package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envConfigPath        = "CATERPILLAR_CONFIG"
	envPrefix            = "CATERPILLAR_"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
)

const (
	DefaultServiceURL            = "https://www.askthecaterpillar.com/query"
	DefaultRequestTimeoutSeconds = 30
	DefaultPollTimeoutSeconds    = 30
	DefaultRetryDelaySeconds     = 3
	DefaultStatusHost            = "127.0.0.1"
	DefaultStatusPort            = 18790
)

// Config is the root runtime configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram" koanf:"telegram"`
	Service  ServiceConfig  `yaml:"service" koanf:"service"`
	Status   StatusConfig   `yaml:"status" koanf:"status"`
	Logging  LoggingConfig  `yaml:"logging" koanf:"logging"`
}

// TelegramConfig configures the bot account and its long-poll listener.
type TelegramConfig struct {
	Token              string   `yaml:"token" koanf:"token"`
	AllowFrom          []string `yaml:"allow_from" koanf:"allow_from"`
	PollTimeoutSeconds int      `yaml:"poll_timeout_seconds" koanf:"poll_timeout_seconds"`
	RetryDelaySeconds  int      `yaml:"retry_delay_seconds" koanf:"retry_delay_seconds"`
	APIURL             string   `yaml:"api_url,omitempty" koanf:"api_url"`
}

// ServiceConfig points at the remote query service.
type ServiceConfig struct {
	URL string `yaml:"url" koanf:"url"`
	// RequestTimeoutSeconds bounds one query round trip. Zero waits forever.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" koanf:"request_timeout_seconds"`
}

// StatusConfig configures the health and stats HTTP listener.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled" koanf:"enabled"`
	Host    string `yaml:"host" koanf:"host"`
	Port    int    `yaml:"port" koanf:"port"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `yaml:"format,omitempty" koanf:"format"`
	Level     string `yaml:"level,omitempty" koanf:"level"`
	AddSource bool   `yaml:"add_source,omitempty" koanf:"add_source"`
}

// DefaultConfig returns the configuration used when no file or env override is present.
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeoutSeconds: DefaultPollTimeoutSeconds,
			RetryDelaySeconds:  DefaultRetryDelaySeconds,
		},
		Service: ServiceConfig{
			URL:                   DefaultServiceURL,
			RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		},
		Status: StatusConfig{
			Enabled: true,
			Host:    DefaultStatusHost,
			Port:    DefaultStatusPort,
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load layers defaults, an optional YAML file, CATERPILLAR_* variables and the
// Telegram credential variables, in that order.
//
// An explicit path (argument or CATERPILLAR_CONFIG) must exist; the cwd-local
// fallbacks are optional.
func Load(path string) (*Config, error) {
	configPath, err := findConfigPath(path)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	// CATERPILLAR_SERVICE__URL -> service.url
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Validate reports the first setting that makes the relay unable to start.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (set %s)", envTelegramBotToken)
	}
	if c.Telegram.PollTimeoutSeconds < 0 {
		return errors.New("telegram.poll_timeout_seconds must be non-negative")
	}
	if c.Telegram.RetryDelaySeconds < 0 {
		return errors.New("telegram.retry_delay_seconds must be non-negative")
	}
	if err := c.Service.Validate(); err != nil {
		return err
	}
	if c.Status.Enabled && (c.Status.Port <= 0 || c.Status.Port > 65535) {
		return fmt.Errorf("status.port %d is out of range", c.Status.Port)
	}

	return nil
}

// Validate checks the query service endpoint settings.
func (c ServiceConfig) Validate() error {
	raw := strings.TrimSpace(c.URL)
	if raw == "" {
		return errors.New("service.url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("service.url is invalid: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("service.url scheme %q is not supported", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("service.url has no host")
	}
	if c.RequestTimeoutSeconds < 0 {
		return errors.New("service.request_timeout_seconds must be non-negative")
	}

	return nil
}

func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// applyEnvOverrides injects the conventional Telegram variables on top of everything else.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is the explicit path, then CATERPILLAR_CONFIG, then cwd-local
// fallbacks. An empty result means "defaults and env only".
func findConfigPath(explicit string) (string, error) {
	if value := strings.TrimSpace(explicit); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("config path does not point to a file: %s", value)
	}

	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.yaml"),
		filepath.Join(cwd, "config", "config.yaml"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
