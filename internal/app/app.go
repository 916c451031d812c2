// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AbdallahZerfaoui/apec-observer/internal/apec"
	"github.com/AbdallahZerfaoui/apec-observer/internal/config"
	"github.com/AbdallahZerfaoui/apec-observer/internal/logging"
	"github.com/AbdallahZerfaoui/apec-observer/internal/store"
)

// App holds the shared services for one process: logger, store, and
// API client. It is built once at startup and passed to the commands.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	store  store.Store
	client *apec.Client
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the configured relational store.
func (a *App) Store() store.Store {
	return a.store
}

// Client returns the APEC API client.
func (a *App) Client() *apec.Client {
	return a.client
}

// New wires config into logger, store, and client. It fails fast if
// any critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var st store.Store
	switch cfg.DB.Driver {
	case "sqlite":
		logger.Info("using sqlite store", zap.String("path", cfg.DB.Path))
		st, err = store.NewSQLiteStore(cfg.DB.Path)
	case "postgres":
		logger.Info("using postgres store")
		st, err = store.NewPostgresStore(ctx, cfg.DB.DSN)
	default:
		return nil, fmt.Errorf("unknown db.driver %q", cfg.DB.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := st.Init(ctx); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	proxyURL := cfg.Proxy.ProxyURL()
	if proxyURL != "" {
		logger.Info("using outbound proxy")
	}
	policy := apec.NewRetryPolicy(cfg.Retry.MaxAttempts,
		time.Duration(cfg.Retry.BaseDelayMs)*time.Millisecond,
		time.Duration(cfg.Retry.MaxDelayMs)*time.Millisecond)
	client, err := apec.NewClient(apec.ClientConfig{
		BaseURL:    cfg.API.BaseURL,
		SearchPath: cfg.API.SearchPath,
		UserAgent:  cfg.API.UserAgent,
		Timeout:    cfg.Timeout(),
		ProxyURL:   proxyURL,
	}, policy, logger)
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		store:  st,
		client: client,
	}, nil
}

// Close shuts down the services; best effort, called once on exit.
func (a *App) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("error closing store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
