// Command storyengined runs the story engine's HTTP server: session
// creation, step execution, and SSE streaming over a PostgreSQL-backed
// store, per spec.md.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loomstep/engine/internal/api"
	"github.com/loomstep/engine/internal/config"
	"github.com/loomstep/engine/internal/idempotency"
	"github.com/loomstep/engine/internal/llmboundary"
	"github.com/loomstep/engine/internal/pipeline"
	"github.com/loomstep/engine/internal/storypack"
	"github.com/loomstep/engine/internal/store"
	"github.com/loomstep/engine/internal/telemetry"
	"github.com/loomstep/engine/internal/version"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configDir)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("starting storyengine", "version", version.Full(), "config", cfg.String())

	st, err := store.NewPostgresDSN(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}()
	slog.Info("connected to PostgreSQL database")

	packs := storypack.NewCache(storypack.NewFSSource(cfg.StoryPacksDir))
	idem := idempotency.New(st)

	registry := prometheus.NewRegistry()
	sink := telemetry.NewSink(registry)

	var boundary llmboundary.Boundary
	boundaryMode := "real"
	if cfg.FakeMode() {
		boundaryMode = "fake"
		slog.Info("no LLM_API_KEY configured, running LLM Boundary in fake mode")
		boundary = llmboundary.NewFake()
	} else {
		boundary = llmboundary.NewRealBoundary(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel)
	}

	pl := pipeline.New(
		st, idem, packs, boundary, sink,
		cfg.Policy(),
		cfg.InputMaxChars,
		cfg.FallbackGuardDefaultMaxConsecutive,
		cfg.SelectionTimeout, cfg.NarrationTimeout, cfg.EndingTimeout,
	)

	server := api.NewServer(st, pl, packs, registry, boundaryMode)

	go func() {
		slog.Info("HTTP server listening", "addr", ":"+cfg.HTTPPort)
		if err := server.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
}
