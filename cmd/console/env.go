package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nhle/order-console/internal/app"
	"github.com/nhle/order-console/internal/credential"
	"github.com/nhle/order-console/internal/logging"
	"github.com/nhle/order-console/internal/model"
	"github.com/nhle/order-console/internal/store"
)

// env is what every command that talks to the API needs.
type env struct {
	cfg     *model.AppConfig
	store   *store.SQLiteStore
	session *app.Session
}

func loadConfig() (*model.AppConfig, logging.LogLevel, error) {
	path := configPath
	if path == "" {
		path = model.DefaultConfigPath()
	}
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, 0, err
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	return cfg, logging.ParseLevel(level), nil
}

// openEnv loads config and opens the cache and keyring. Logging must be
// initialized by the caller.
func openEnv(cfg *model.AppConfig) (*env, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening order cache: %w", err)
	}

	creds, err := credential.OpenKeyring()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &env{
		cfg:     cfg,
		store:   st,
		session: app.NewSession(cfg, st, creds),
	}, nil
}

// openCLIEnv is openEnv for non-interactive commands, logging to stderr.
func openCLIEnv() (*env, error) {
	cfg, level, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logging.InitForCLI(level)
	return openEnv(cfg)
}

func (e *env) Close() {
	e.session.Close()
	if err := e.store.Close(); err != nil {
		logging.Warn("cli", "closing order cache: %v", err)
	}
}
