package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/planify/internal/config"
	"github.com/fyrsmithlabs/planify/internal/logging"
	"github.com/fyrsmithlabs/planify/internal/metrics"
	"github.com/fyrsmithlabs/planify/internal/secrets"
	"github.com/fyrsmithlabs/planify/internal/session"
	"github.com/fyrsmithlabs/planify/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// app holds the collaborators shared by every command.
type app struct {
	cfg      *config.Config
	repo     string
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	metrics  *metrics.Metrics
	scrubber secrets.Scrubber
	store    *session.FileStore
}

// resolveRepo returns the absolute path of a readable repository directory.
func resolveRepo(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving repository path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("repository %s: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("repository %s is not a directory", path)
	}
	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("repository %s is not readable: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("repository %s is not readable: %w", path, err)
	}
	return abs, nil
}

// loadConfigLenient loads the config for read-only commands. Without an
// explicit path, a missing or incomplete config falls back to config.Starter.
func loadConfigLenient(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if path != "" {
			return nil, err
		}
		return config.Starter(), nil
	}
	return cfg, nil
}

// newLogger builds the process logger from the logging section. Verbose
// forces debug level.
func newLogger(lc config.LoggingConfig, verbose bool, w io.Writer) (*logging.Logger, error) {
	cfg := logging.NewDefaultConfig()
	if lc.Format != "" {
		cfg.Format = lc.Format
	}
	if lc.Level != "" {
		level, err := logging.LevelFromString(lc.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
		}
		cfg.Level = level
	}
	if verbose && cfg.Level > zapcore.DebugLevel {
		cfg.Level = zapcore.DebugLevel
	}
	var ws zapcore.WriteSyncer
	if w != nil {
		ws = zapcore.AddSync(w)
	}
	return logging.NewLogger(cfg, ws)
}

// newApp wires logging, telemetry, metrics, the scrubber and the session
// store for repo.
func newApp(ctx context.Context, cfg *config.Config, repo string, verbose bool, stderr io.Writer) (*app, error) {
	logger, err := newLogger(cfg.Logging, verbose, stderr)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version), telemetry.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	logger = logger.WithOTEL(tel.LoggerProvider())

	scrubber, err := secrets.NewFromSettings(cfg.Secrets, repo)
	if err != nil {
		shutdownTelemetry(tel, logger)
		return nil, fmt.Errorf("initializing secret scrubber: %w", err)
	}

	m := metrics.New()
	dir := cfg.Session.Dir
	if dir == "" {
		dir = session.DefaultDir(repo)
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(repo, dir)
	}
	store, err := session.NewFileStore(dir, session.WithLogger(logger), session.WithMetrics(m))
	if err != nil {
		shutdownTelemetry(tel, logger)
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	return &app{
		cfg:      cfg,
		repo:     repo,
		logger:   logger,
		tel:      tel,
		metrics:  m,
		scrubber: scrubber,
		store:    store,
	}, nil
}

// close flushes telemetry and logs. It runs after the command context may
// already be cancelled.
func (a *app) close() {
	shutdownTelemetry(a.tel, a.logger)
	_ = a.logger.Sync()
}

func shutdownTelemetry(tel *telemetry.Telemetry, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
}
