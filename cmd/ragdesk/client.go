package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kalambet/ragdesk/internal/config"
	"github.com/kalambet/ragdesk/internal/logging"
	"github.com/kalambet/ragdesk/internal/notify"
	"github.com/kalambet/ragdesk/internal/session"
	"github.com/kalambet/ragdesk/internal/storage"
	"github.com/kalambet/ragdesk/internal/transport"
)

var errHistoryDisabled = errors.New("history is disabled (ragdesk config set history.enabled true)")

// app is everything a command needs to talk to the backend.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	notices *notify.Center
	client  *transport.Client
	store   *session.Store
	archive *storage.Store // nil when history is disabled
}

var newApp = func(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if baseURLOverride != "" {
		cfg.API.BaseURL = baseURLOverride
	}
	return buildApp(cfg, cmd.ErrOrStderr())
}

func buildApp(cfg config.Config, stderr io.Writer) (*app, error) {
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File}, stderr)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	notices := notify.NewCenter(notify.DefaultTransientTTL)
	notices.Subscribe(printNotice)

	client := transport.New(transport.Options{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout(),
		HealthTimeout: cfg.API.HealthTimeout(),
		Logger:        logger,
		Notifier:      notices,
	})

	a := &app{cfg: cfg, logger: logger, notices: notices, client: client}
	opts := []session.Option{session.WithLogger(logger)}
	if cfg.History.Enabled {
		archive, err := storage.Open(cfg.Storage.HistoryPath())
		if err != nil {
			return nil, fmt.Errorf("opening history: %w", err)
		}
		a.archive = archive
		opts = append(opts, session.WithRecorder(archive))
	}
	a.store = session.New(client, opts...)
	return a, nil
}

func (a *app) Close() error {
	a.logger.Sync()
	if a.archive != nil {
		return a.archive.Close()
	}
	return nil
}
