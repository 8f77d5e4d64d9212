package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attestlabs/attest/internal/anthropic"
	"github.com/attestlabs/attest/internal/api"
	"github.com/attestlabs/attest/internal/bus"
	"github.com/attestlabs/attest/internal/cache"
	"github.com/attestlabs/attest/internal/config"
	"github.com/attestlabs/attest/internal/enrich"
	"github.com/attestlabs/attest/internal/evidence"
	"github.com/attestlabs/attest/internal/extractor"
	"github.com/attestlabs/attest/internal/llmcall"
	"github.com/attestlabs/attest/internal/pipeline"
	"github.com/attestlabs/attest/internal/processor"
	"github.com/attestlabs/attest/internal/store"
	"github.com/attestlabs/attest/internal/template"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("attest starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Anthropic client
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	slog.Info("anthropic client ready", "model", cfg.AnthropicModel)

	// Templates
	templates, err := template.LoadDir(cfg.TemplateDir)
	if err != nil {
		slog.Error("failed to load templates", "dir", cfg.TemplateDir, "error", err)
		os.Exit(1)
	}
	if len(templates) == 0 {
		slog.Error("no templates found", "dir", cfg.TemplateDir)
		os.Exit(1)
	}
	slog.Info("templates loaded", "count", len(templates))

	// Analysis engines
	exec := llmcall.NewExecutor(cfg.MaxAttempts, cfg.InitialDelay, slog.Default())
	ext := extractor.New(llm, exec, slog.Default())
	ev := evidence.NewEngine(llm, exec, evidence.DefaultOptions(), slog.Default())
	en := enrich.NewDefaultEngine(llm, exec, slog.Default())
	pipe := pipeline.New(ext, ev, en, slog.Default())

	// Redis cache (optional; without it reads just hit Postgres)
	var analysisCache *cache.AnalysisCache
	if cfg.RedisURL != "" {
		analysisCache, err = cache.New(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer analysisCache.Close()
		slog.Info("redis cache ready", "ttl", cfg.CacheTTL)
	} else {
		slog.Warn("redis not configured, running without analysis cache")
	}

	// NATS
	busClient, err := bus.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer busClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Processor wires the bus, pipeline, store, and cache together
	proc := processor.New(db, busClient, pipe, templates, analysisCache, processor.Options{
		DefaultTemplateID: defaultTemplateID(templates),
		Enrichment:        enrich.DefaultConfig(),
		Evidence:          true,
	}, slog.Default())

	// Subscribe to transcript events
	if err := busClient.Subscribe(bus.SubjectTranscriptStored, proc.HandleTranscriptStored); err != nil {
		slog.Error("failed to subscribe to transcript events", "error", err)
		os.Exit(1)
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, proc, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if err := busClient.Publish("attest.service.registered", map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
		"model":     cfg.AnthropicModel,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("attest ready", "port", cfg.Port, "templates", len(templates))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("attest stopped")
}

// defaultTemplateID picks the "meeting" template when present, otherwise the
// lexically first id. Keeps auto-analysis deterministic across restarts.
func defaultTemplateID(templates map[string]*template.Template) string {
	if _, ok := templates["meeting"]; ok {
		return "meeting"
	}
	first := ""
	for id := range templates {
		if first == "" || id < first {
			first = id
		}
	}
	return first
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
