package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ibeckermayer/feedsieve/internal/app"
	"github.com/ibeckermayer/feedsieve/internal/config"
	"github.com/ibeckermayer/feedsieve/internal/logger"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("could not load config", "error", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Log)

	// First run: write the defaults out so there is something to edit
	if path, err := config.ConfigPath(); err == nil {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if err := cfg.Save(); err != nil {
				slog.Warn("could not save default config", "error", err)
			} else {
				slog.Info("created default config", "path", path)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	a.ReloadOnSignal(ctx, config.Load, syscall.SIGHUP)

	slog.Info("feedsieve starting",
		"provider", cfg.Analysis.Provider,
		"model", cfg.Analysis.Model,
		"display_mode", cfg.DisplayMode,
		"enabled", cfg.Enabled,
	)
	if err := a.RunLive(ctx); err != nil {
		slog.Error("session ended", "error", err)
		a.Close()
		os.Exit(1)
	}
	slog.Info("feedsieve shutting down")
}
