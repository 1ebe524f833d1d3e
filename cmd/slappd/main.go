package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"slappd/internal/config"
	"slappd/internal/cursor"
	"slappd/internal/fetcher"
	"slappd/internal/metrics"
	"slappd/internal/notify"
	"slappd/internal/scheduler"
	"slappd/internal/storage"
	"slappd/internal/syncer"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		return 1
	}

	log := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := storage.Open(ctx, cfg.CursorBackend, cfg.DatabasePath, cfg.RedisURL)
	if err != nil {
		log.Error("open cursor backend", "backend", cfg.CursorBackend, "error", err)
		return 1
	}
	if backend != nil {
		defer func() { _ = backend.Close() }()
	}

	store := cursor.New(backend, log)
	if err := store.Load(ctx, cfg.Users); err != nil {
		log.Error("load cursors", "error", err)
		return 1
	}
	if !store.Durable() {
		log.Warn("cursors are not persisted; a restart re-seeds every user")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go metrics.Serve(ctx, cfg.MetricsAddr, reg, log)
	}

	httpClient := &http.Client{}

	notifier, err := newNotifier(cfg, httpClient, log, m)
	if err != nil {
		log.Error("create notifier", "backend", cfg.NotifyBackend, "error", err)
		return 1
	}

	engine := syncer.New(store, newSource(cfg, httpClient), notifier, cfg.Users, syncer.Options{
		AnnounceSeed:       cfg.Debug,
		ResetAfterFailures: cfg.ResetAfterFailures,
	}, log, m)
	sched := scheduler.New(engine, cfg.CheckInterval, log)

	if cfg.Debug {
		log.Info("debug mode: running a single cycle", "users", strings.Join(cfg.Users, ","))
		sched.RunOnce(ctx)
		for user, id := range store.Snapshot() {
			log.Debug("cursor", "user", user, "checkin_id", id)
		}
		return 0
	}

	log.Info("starting slappd",
		"users", strings.Join(cfg.Users, ","),
		"source", cfg.UntappdSource,
		"notify", cfg.NotifyBackend,
		"cursor_backend", cfg.CursorBackend,
		"interval", cfg.CheckInterval,
	)

	sched.Run(ctx)

	log.Info("slappd stopped")
	return 0
}

func newSource(cfg *config.Config, client *http.Client) fetcher.Source {
	if cfg.UntappdSource == config.SourceRSS {
		return fetcher.NewFeedSource(client, fetcher.FeedOptions{
			Key:       cfg.UntappdRSSKey,
			Timeout:   cfg.FetchTimeout,
			SeedLimit: cfg.SeedLimit,
		})
	}
	return fetcher.New(client, fetcher.Options{
		BaseURL:      cfg.UntappdAPIBase,
		ClientID:     cfg.UntappdID,
		ClientSecret: cfg.UntappdSecret,
		Timeout:      cfg.FetchTimeout,
		SeedLimit:    cfg.SeedLimit,
	})
}

func newNotifier(cfg *config.Config, client *http.Client, log *slog.Logger, m *metrics.Metrics) (*notify.Notifier, error) {
	var (
		sender notify.Sender
		flavor string
	)
	switch cfg.NotifyBackend {
	case config.NotifySlack:
		sender = notify.NewSlackSender(client, cfg.SlackToken, cfg.SlackChannel)
		flavor = notify.FlavorSlack
	case config.NotifyTelegram:
		tg, err := notify.NewTelegramSender(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			return nil, err
		}
		sender = tg
		flavor = notify.FlavorPlain
	default:
		return nil, fmt.Errorf("unknown notify backend %q", cfg.NotifyBackend)
	}

	renderer, err := notify.NewRenderer(flavor)
	if err != nil {
		return nil, err
	}
	return notify.New(sender, renderer, cfg.NotifyRate, log, m), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
