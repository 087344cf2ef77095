package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/makt28/downwatch/internal/config"
	"github.com/makt28/downwatch/internal/hub"
	"github.com/makt28/downwatch/internal/monitor"
	"github.com/makt28/downwatch/internal/notify"
	"github.com/makt28/downwatch/internal/storage"
	"github.com/makt28/downwatch/internal/web"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor scheduler and HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	// --- 1. Load Config ---
	cfgMgr, err := config.NewManager(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		return err
	}
	cfg := cfgMgr.Get()

	// --- 2. Setup Logger ---
	setupLogger(cfg.System.LogLevel)
	slog.Info("starting Downwatch",
		"version", monitor.Version,
		"bind", cfg.System.BindAddress,
		"storage", cfg.Storage.Driver,
	)

	// --- 3. Open Storage ---
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	repo, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		return err
	}
	defer repo.Close()

	// --- 4. Init Notifications & Live Events ---
	dispatcher := notify.NewDispatcher(cfg)
	ws := hub.New(cfg.System.AllowedOrigins)
	go ws.Run(ctx)

	// --- 5. Init Scheduler & Registry ---
	scheduler := monitor.NewScheduler(monitor.NewHTTPProber(), repo, dispatcher,
		monitor.WithProbeTimeout(cfg.System.ProbeTimeoutDuration()),
		monitor.WithEvents(ws),
	)
	scheduler.Run()

	registry := monitor.NewRegistry(repo, scheduler)
	if _, err := registry.Resume(ctx); err != nil {
		slog.Error("failed to resume monitors", "error", err)
	}

	// --- 6. HTTP Server ---
	srv := &http.Server{
		Addr:              cfg.System.BindAddress,
		Handler:           web.NewRouter(cfg, registry, ws),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Downwatch is running", "address", cfg.System.BindAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- 7. Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		slog.Error("server error", "error", err)
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	// closes open outages so they are persisted before the store closes
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		slog.Error("scheduler did not stop cleanly", "error", err)
	}
	stop()

	slog.Info("Downwatch stopped gracefully")
	return nil
}
