package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gcssync/gcs/adapter/cli"
	"github.com/gcssync/gcs/internal/app"
	"github.com/gcssync/gcs/pkg/config"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.IsDevelopment() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	cli.SetLogger(logger)

	container, err := app.NewContainer(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	if cfg.EventBusEnabled && container.OutboxProcessor != nil {
		if err := container.OutboxProcessor.Start(ctx); err != nil {
			logger.Warn("outbox processor did not start", "error", err)
		} else {
			defer container.OutboxProcessor.Stop()
		}
	}

	cli.SetApp(cli.NewApp(container))
	cli.Execute()
}
