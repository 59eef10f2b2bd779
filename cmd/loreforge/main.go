package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hollowmere/loreforge/internal/api"
	"github.com/hollowmere/loreforge/internal/config"
	"github.com/hollowmere/loreforge/internal/imagegen"
	"github.com/hollowmere/loreforge/internal/memory"
	"github.com/hollowmere/loreforge/internal/orchestrator"
	"github.com/hollowmere/loreforge/internal/prompt"
	"github.com/hollowmere/loreforge/internal/provider"
	"github.com/hollowmere/loreforge/internal/ratelimit"
	"github.com/hollowmere/loreforge/internal/store"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Loreforge...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/loreforge.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Memory backend: Redis when configured, in-process otherwise.
	var memories memory.Service
	if cfg.Database.Redis.URL != "" {
		rs, rErr := memory.NewRedisStore(cfg.Database.Redis.URL, logger)
		if rErr != nil {
			logger.Warn("Redis unavailable, using in-process memory", zap.Error(rErr))
			memories = memory.NewStore(logger)
		} else {
			defer rs.Close()
			memories = rs
		}
	} else {
		memories = memory.NewStore(logger)
	}

	limiter := ratelimit.New(ratelimit.DefaultMaxCalls, ratelimit.DefaultWindow)
	orch := orchestrator.New(orchestrator.Config{
		Environment:      cfg.Orchestrator.Environment,
		PreferredService: cfg.Orchestrator.PreferredService,
		AllowFallback:    cfg.Orchestrator.AllowFallback,
	}, limiter, memories, logger)

	prompts := prompt.NewBuilder(cfg.PromptBudget)
	var hosted *provider.FeatherlessProvider
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Name: pc.Name, Endpoint: pc.Endpoint,
			APIKey: pc.APIKey, Model: pc.Model, Timeout: pc.Timeout(),
		}
		switch pc.Type {
		case "ollama":
			orch.Register(provider.NewOllamaProvider(provCfg, prompts, logger))
		case "featherless":
			hosted = provider.NewFeatherlessProvider(provCfg, prompts, logger)
			orch.Register(hosted)
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}

	if err := orch.Initialize(context.Background()); err != nil {
		logger.Warn("AI services degraded at startup", zap.Error(err))
	}

	// Document store is optional; CRUD routes answer 503 without it.
	var docs *store.Store
	if cfg.Database.Postgres.DSN != "" {
		ds, dErr := store.New(context.Background(), cfg.Database.Postgres.DSN, logger)
		if dErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(dErr))
		} else {
			if mErr := ds.Migrate(context.Background()); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			docs = ds
		}
	}

	var images api.MapGenerator
	if cfg.ImageGen.Endpoint != "" {
		images = imagegen.New(cfg.ImageGen.Endpoint, cfg.ImageGen.Token, cfg.ImageGen.PollInterval(), logger)
	}

	var proxy api.Completer
	if hosted != nil {
		proxy = hosted
	}
	handler := api.NewHandler(orch, proxy, docs, images, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Loreforge listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Loreforge...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	if docs != nil {
		docs.Close()
	}
}
