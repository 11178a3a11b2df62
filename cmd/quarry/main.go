package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/quarry-search/quarry/internal/config"
	logpkg "github.com/quarry-search/quarry/internal/logger"
	"github.com/quarry-search/quarry/internal/metrics"
	"github.com/quarry-search/quarry/internal/pipeline"
	memrepo "github.com/quarry-search/quarry/internal/repository/memory"
	qdrantrepo "github.com/quarry-search/quarry/internal/repository/qdrant"
	redisrepo "github.com/quarry-search/quarry/internal/repository/redis"
	"github.com/quarry-search/quarry/internal/retriever"
	chiTransport "github.com/quarry-search/quarry/internal/transport/chi"
	openaiEmb "github.com/quarry-search/quarry/internal/transport/openai"
	"github.com/quarry-search/quarry/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting quarry API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	// Register domain metrics explicitly (no init())
	metrics.RegisterRetrievalMetrics()
	metrics.RegisterEmbeddingMetrics()

	// Create the candidate source and collection reader based on driver
	var (
		vectors retriever.VectorSource
		coll    retriever.CollectionReader
		health  chiTransport.HealthChecker
		closeFn func()
	)
	switch cfg.Database.Driver {
	case "memory":
		store := memrepo.NewStore()
		vectors, coll = store, store
	case "redis":
		store, err := redisrepo.NewStore(redisrepo.Config{
			Addrs:     cfg.Database.Addrs,
			Username:  cfg.Database.Username,
			Password:  cfg.Database.Password,
			DB:        cfg.Database.DB,
			KeyPrefix: cfg.Database.KeyPrefix,
		})
		if err != nil {
			logger.Fatal("Failed to create redis store", zap.Error(err))
		}
		readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(context.Background(), readiness); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		vectors, coll, health = store, store, store
		closeFn = store.Close
	case "qdrant":
		store, err := qdrantrepo.NewStore(qdrantrepo.Config{
			URL:    cfg.Database.URL,
			APIKey: cfg.Database.APIKey,
		})
		if err != nil {
			logger.Fatal("Failed to create qdrant store", zap.Error(err))
		}
		vectors, coll, health = store, store, store
		closeFn = func() { _ = store.Close() }
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if closeFn != nil {
		defer closeFn()
	}
	logger.Info("Connected to store", zap.String("driver", cfg.Database.Driver))

	// Optional embedder: without one, every query takes the lexical path.
	var embedder retriever.Embedder
	if cfg.Embedding.Provider != "" {
		embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Provider:   cfg.Embedding.Provider,
			Logger:     logger,
		})
		logger.Info("Embedder created",
			zap.String("provider", cfg.Embedding.Provider),
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
	} else {
		logger.Info("No embedding provider configured, vector path disabled")
	}

	engine := retriever.New(vectors, coll, embedder, logger)
	processor := pipeline.New(engine, logger)
	server := chiTransport.NewServer(processor, health, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
