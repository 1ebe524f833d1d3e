// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Supported activity sources.
const (
	SourceAPI = "api"
	SourceRSS = "rss"
)

// Supported notification backends.
const (
	NotifySlack    = "slack"
	NotifyTelegram = "telegram"
)

// Supported cursor backends.
const (
	CursorNone   = "none"
	CursorSQLite = "sqlite"
	CursorRedis  = "redis"
)

// Config holds the application configuration.
type Config struct {
	UntappdID      string        `env:"UNTAPPD_ID" validate:"required_if=UntappdSource api"`
	UntappdSecret  string        `env:"UNTAPPD_SECRET" validate:"required_if=UntappdSource api"`
	UntappdSource  string        `env:"UNTAPPD_SOURCE" validate:"oneof=api rss"`
	UntappdRSSKey  string        `env:"UNTAPPD_RSS_KEY" validate:"required_if=UntappdSource rss"`
	UntappdAPIBase string        `env:"UNTAPPD_API_BASE" validate:"required,url"`
	Users          []string      `env:"UNTAPPD_USERS" validate:"min=1,dive,required"`
	FetchTimeout   time.Duration `env:"UNTAPPD_TIMEOUT" validate:"gt=0"`
	SeedLimit      int           `env:"UNTAPPD_SEED_LIMIT" validate:"min=1,max=50"`
	CheckInterval  time.Duration `env:"CHECK_SECONDS" validate:"gte=1s"`

	NotifyBackend    string  `env:"NOTIFY_BACKEND" validate:"oneof=slack telegram"`
	SlackToken       string  `env:"SLACK_TOKEN" validate:"required_if=NotifyBackend slack"`
	SlackChannel     string  `env:"SLACK_CHANNEL"`
	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN" validate:"required_if=NotifyBackend telegram"`
	TelegramChatID   int64   `env:"TELEGRAM_CHAT_ID" validate:"required_if=NotifyBackend telegram"`
	NotifyRate       float64 `env:"NOTIFY_RATE" validate:"gt=0"`

	CursorBackend      string `env:"CURSOR_BACKEND" validate:"oneof=none sqlite redis"`
	RedisURL           string `env:"REDIS_URL" validate:"required_if=CursorBackend redis"`
	DatabasePath       string `env:"DATABASE_PATH" validate:"required_if=CursorBackend sqlite"`
	ResetAfterFailures int    `env:"RESET_AFTER_FAILURES" validate:"min=0"`

	MetricsAddr string `env:"METRICS_ADDR"`
	LogLevel    string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Debug       bool   `env:"DEBUG"`
}

// Load reads configuration from environment variables.
// A .env file in the working directory is read first; real environment
// variables take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		UntappdID:      os.Getenv("UNTAPPD_ID"),
		UntappdSecret:  os.Getenv("UNTAPPD_SECRET"),
		UntappdSource:  strings.ToLower(envOrDefault("UNTAPPD_SOURCE", SourceAPI)),
		UntappdRSSKey:  os.Getenv("UNTAPPD_RSS_KEY"),
		UntappdAPIBase: strings.TrimRight(envOrDefault("UNTAPPD_API_BASE", "https://api.untappd.com/v4"), "/"),
		Users:          parseUsers(os.Getenv("UNTAPPD_USERS")),

		NotifyBackend:    strings.ToLower(envOrDefault("NOTIFY_BACKEND", NotifySlack)),
		SlackToken:       os.Getenv("SLACK_TOKEN"),
		SlackChannel:     envOrDefault("SLACK_CHANNEL", "#bot-testing"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		RedisURL:     os.Getenv("REDIS_URL"),
		DatabasePath: envOrDefault("DATABASE_PATH", "./data/slappd.db"),

		MetricsAddr: os.Getenv("METRICS_ADDR"),
		LogLevel:    strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
	}

	var err error
	if cfg.FetchTimeout, err = secondsEnv("UNTAPPD_TIMEOUT", 10); err != nil {
		return nil, err
	}
	if cfg.CheckInterval, err = secondsEnv("CHECK_SECONDS", 60); err != nil {
		return nil, err
	}
	if cfg.SeedLimit, err = intEnv("UNTAPPD_SEED_LIMIT", 1); err != nil {
		return nil, err
	}
	if cfg.ResetAfterFailures, err = intEnv("RESET_AFTER_FAILURES", 3); err != nil {
		return nil, err
	}
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		if cfg.TelegramChatID, err = strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err)
		}
	}
	cfg.NotifyRate = 1
	if raw := os.Getenv("NOTIFY_RATE"); raw != "" {
		if cfg.NotifyRate, err = strconv.ParseFloat(strings.TrimSpace(raw), 64); err != nil {
			return nil, fmt.Errorf("invalid NOTIFY_RATE %q: %w", raw, err)
		}
	}
	if raw := os.Getenv("DEBUG"); raw != "" {
		if cfg.Debug, err = strconv.ParseBool(strings.TrimSpace(raw)); err != nil {
			return nil, fmt.Errorf("invalid DEBUG %q: %w", raw, err)
		}
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	cfg.CursorBackend = strings.ToLower(os.Getenv("CURSOR_BACKEND"))
	if cfg.CursorBackend == "" {
		cfg.CursorBackend = CursorSQLite
		if cfg.RedisURL != "" {
			cfg.CursorBackend = CursorRedis
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// Validate checks field constraints. Errors name the offending environment variable.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required", "required_if":
		return name + " is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return name + " must list at least " + fe.Param() + " entry"
		}
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", name, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %q (%v)", name, fe.Tag(), fe.Value())
	}
}

// parseUsers splits a comma-separated user list, dropping blanks and duplicates.
func parseUsers(raw string) []string {
	var users []string
	seen := make(map[string]bool)
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		users = append(users, s)
	}
	return users
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func secondsEnv(key string, def int) (time.Duration, error) {
	n, err := intEnv(key, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}
