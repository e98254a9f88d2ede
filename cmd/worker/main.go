package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gcssync/gcs/internal/app"
	"github.com/gcssync/gcs/pkg/config"
	"github.com/gcssync/gcs/pkg/observability"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("starting gcs worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.IsDevelopment() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	container, err := app.NewContainer(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	if container.OutboxProcessor != nil {
		if err := container.OutboxProcessor.Start(ctx); err != nil {
			logger.Error("failed to start outbox processor", "error", err)
			os.Exit(1)
		}
		logger.Info("outbox processor started")
		defer container.OutboxProcessor.Stop()
	}

	health := observability.NewHealthRegistry()
	health.Register("state_store", func(checkCtx context.Context) observability.HealthCheckResult {
		if _, err := container.Store.LoadManifest(); err != nil {
			return observability.HealthCheckResult{Status: observability.HealthStatusUnhealthy, Message: err.Error()}
		}
		return observability.HealthCheckResult{Status: observability.HealthStatusHealthy}
	})

	if cfg.WorkerHealthAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			overall := health.GetOverallHealth(r.Context())
			body, _ := overall.ToJSON()
			w.Header().Set("Content-Type", "application/json")
			if overall.Status != observability.HealthStatusHealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			_, _ = w.Write(body)
		})

		healthSrv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", "error", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := healthSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown error", "error", err)
			}
		}()
	}

	logger.Info("starting reconcile loop", "poll_interval", cfg.WorkerPollInterval)
	runReconcileLoop(ctx, container, logger, cfg.WorkerPollInterval)

	logger.Info("worker stopped")
}

// runReconcileLoop runs Apply immediately and then on every tick of
// interval, logging each run's outcome, until ctx is cancelled. A
// failed run is logged and does not stop the loop: the next tick
// retries against whatever state the sources are in by then.
func runReconcileLoop(ctx context.Context, container *app.Container, logger *slog.Logger, interval time.Duration) {
	runOnce := func() {
		start := time.Now()
		result, err := container.Apply(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("reconcile run failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
			return
		}
		logger.Info("reconcile run complete",
			"actions", len(result.Reconcile.Actions),
			"warnings", len(result.Warnings),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
