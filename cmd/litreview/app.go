package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/dshills/litreview/graph"
	"github.com/dshills/litreview/graph/emit"
	"github.com/dshills/litreview/graph/store"
	"github.com/dshills/litreview/internal/config"
	"github.com/dshills/litreview/internal/observability"
	"github.com/dshills/litreview/internal/papers/semanticscholar"
	"github.com/dshills/litreview/internal/pdf"
	"github.com/dshills/litreview/internal/review"
)

// app is everything a command needs, built from configuration.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	runner    *review.Runner
	artifacts *review.Artifacts
	events    *emit.BufferedEmitter
	registry  *prometheus.Registry

	closers []func(context.Context) error
}

func newApp(ctx context.Context, opts *rootOptions) (a *app, err error) {
	cfg, err := config.Load(config.WithViper(opts.viper), config.WithConfigFile(opts.configFile))
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	a = &app{cfg: cfg, logger: logger}
	a.onClose(func(context.Context) error { return logCloser.Close() })
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	tracing, err := observability.NewTracing(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("create tracing: %w", err)
	}
	a.onClose(tracing.Shutdown)

	chat, closeModels, err := newChatModel(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return closeModels() })

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	a.onClose(func(context.Context) error { return st.Close() })

	a.artifacts = review.NewArtifacts(cfg.Storage.DataDir)
	if err := a.artifacts.Init(); err != nil {
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	metrics := graph.NewPrometheusMetrics(a.registry)
	if !cfg.Metrics.Enabled {
		metrics.Disable()
	}

	a.events = emit.NewBufferedEmitter(cfg.Server.EventBuffer)
	emitters := []emit.Emitter{emit.NewLogEmitter(logger), a.events}
	if tracing.Enabled() {
		emitters = append(emitters, emit.NewOTelEmitter(tracing.Tracer()))
	}

	deps := review.Deps{
		Model: chat,
		Searcher: semanticscholar.NewClient(semanticscholar.Config{
			BaseURL:   cfg.Search.BaseURL,
			APIKey:    cfg.Search.APIKey,
			Timeout:   cfg.Search.Timeout,
			RateLimit: cfg.Search.RateLimit,
			CacheTTL:  cfg.Search.CacheTTL,
		}, logger),
		Downloader: pdf.NewDownloader(pdf.DownloaderConfig{
			Dir:          cfg.PapersDir(),
			Timeout:      cfg.Storage.DownloadTimeout,
			MaxBytes:     cfg.Storage.MaxPDFBytes,
			UserAgent:    cfg.Storage.UserAgent,
			AllowPrivate: cfg.Storage.AllowPrivateNetworks,
		}, logger),
		Extractor: pdf.NewTextExtractor(logger),
		Artifacts: a.artifacts,
		Settings:  review.SettingsFromConfig(cfg),
		Logger:    logger,
		Metrics:   metrics,
		Cost:      graph.NewCostTracker(),
	}

	a.runner, err = review.NewRunner(deps, st, emit.NewMultiEmitter(emitters...))
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("provider", cfg.LLM.Provider).
		Str("store", cfg.Store.Driver).
		Str("data_dir", cfg.Storage.DataDir).
		Bool("tracing", tracing.Enabled()).
		Msg("litreview initialized")
	return a, nil
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp builds the app, runs fn and releases the app.
func withApp(ctx context.Context, opts *rootOptions, fn func(*app) error) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	err = fn(a)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if cerr := a.Close(closeCtx); cerr != nil {
		a.logger.Warn().Err(cerr).Msg("shutdown incomplete")
	}
	return err
}

// openStore opens the configured run store.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store[review.State], error) {
	switch cfg.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		s, err := store.NewSQLiteStore[review.State](cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mysql":
		s, err := store.NewMySQLStore[review.State](cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		opts := []store.RedisOption{store.WithKeyPrefix(cfg.Redis.KeyPrefix)}
		if cfg.Redis.TTL > 0 {
			opts = append(opts, store.WithTTL(cfg.Redis.TTL))
		}
		s, err := store.NewRedisStore[review.State](ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return store.NewMemStore[review.State](), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
