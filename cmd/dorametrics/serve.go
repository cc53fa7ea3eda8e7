package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/parthraninga/DORA-Metrics/internal/adapter/driving/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and ingestion workers",
	Long: `Start the HTTP API, the ingestion worker pool and, when
DORAMETRICS_REFRESH_INTERVAL is set, the periodic refresh of every repository.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"workers", cfg.Workers,
		"refresh_interval", cfg.RefreshInterval,
		"lambda", cfg.UsesLambda(),
	)

	// Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("error closing resources", "error", closeErr)
		}
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		a.ingest.Start(ctx)
	})

	h := httphandler.NewHandler(a.metrics, a.ingest, a.repos, a.tokens, a.listers, slog.Default())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(h, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("dorametrics started", "version", version)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// Workers exit once ctx is canceled; in-flight batches finish first.
	wg.Wait()

	slog.Info("shutdown complete")
	return nil
}
