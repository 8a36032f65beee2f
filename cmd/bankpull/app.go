package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jakopako/bankpull/internal/browser"
	"github.com/jakopako/bankpull/internal/config"
	"github.com/jakopako/bankpull/internal/download"
	"github.com/jakopako/bankpull/internal/notify"
	"github.com/jakopako/bankpull/internal/settings"
	"github.com/jakopako/bankpull/internal/transfer"
	"github.com/jakopako/bankpull/internal/workflow"
)

// app wires the components of a running process.
type app struct {
	cfg     *config.Config
	store   *settings.Store
	hub     *notify.Hub
	browser *browser.Manager
	engine  *workflow.Engine
}

func newApp(cfg *config.Config) (*app, error) {
	store := settings.Open(cfg.SettingsPath)
	if cfg.Secrets.File != "" {
		sec, err := loadSecrets(cfg.Secrets)
		if err != nil {
			return nil, err
		}
		store.SetSecrets(sec)
		slog.Info(fmt.Sprintf("loaded importer credentials from %s", cfg.Secrets.File))
	}

	hub := notify.NewHub(notify.DefaultHistorySize)
	manager := browser.NewManager(&cfg.Browser, cfg.DownloadDir)
	client := transfer.NewClient(store.Firefly, hub)
	engine := workflow.New(workflow.Deps{
		Sessions: manager,
		Settings: store.Snapshot,
		Watcher:  download.NewWatcher(cfg.DownloadDir),
		Uploader: client,
		Notifier: hub,
	})
	return &app{
		cfg:     cfg,
		store:   store,
		hub:     hub,
		browser: manager,
		engine:  engine,
	}, nil
}

// loadSecrets decrypts .ejson files and reads anything else as plain JSON.
func loadSecrets(sc config.SecretsConfig) (*settings.Secrets, error) {
	if strings.HasSuffix(sc.File, ".ejson") {
		return settings.LoadSecrets(sc.File, sc.KeyDir, sc.PrivateKey)
	}
	return settings.ReadSecretsFile(sc.File)
}
