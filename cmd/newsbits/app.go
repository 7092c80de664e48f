package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"newsbits/internal/cache"
	"newsbits/internal/config"
	"newsbits/internal/publisher"
	"newsbits/internal/service"
	"newsbits/internal/source/rss"
	"newsbits/internal/storage"
	"newsbits/internal/summary"
	"newsbits/internal/transport"
)

// app holds the wired components shared by all commands.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *cache.Store
	summarizer  *summary.Service
	coordinator *service.Coordinator

	closers []io.Closer
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger := setupLogger(level)

	a := &app{cfg: cfg, logger: logger}

	kv, err := a.openKV(ctx)
	if err != nil {
		return nil, err
	}

	a.store = cache.Open(ctx, kv, cfg.Cache.MaxArticles, logger)

	var collaborator summary.Collaborator
	if cfg.Summary.Enabled() {
		collaborator = summary.NewOpenAI(cfg.Summary.BaseURL, cfg.Summary.APIKey, cfg.Summary.Model)
	}
	a.summarizer = summary.New(collaborator, cfg.Summary.MaxLength, logger)

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		a.closers = append(a.closers, rabbitMQ)
		pub = rabbitMQ
	}

	a.coordinator = service.NewCoordinator(
		cfg.Sources,
		transport.New(transport.Config{Timeout: cfg.Fetch.Timeout, UserAgent: cfg.Fetch.UserAgent}),
		rss.NewParser(),
		a.store,
		a.summarizer,
		pub,
		logger,
		cfg.Fetch,
	)

	return a, nil
}

func (a *app) openKV(ctx context.Context) (storage.KV, error) {
	switch a.cfg.Storage.Driver {
	case "memory":
		a.logger.Warn("using in-memory storage, state will not survive restarts")
		return storage.NewMemory(), nil
	default:
		db, err := storage.Open(ctx, a.cfg.Storage.Driver, a.cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.closers = append(a.closers, db)
		a.logger.Debug("connected to storage", "driver", a.cfg.Storage.Driver)
		return db, nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
