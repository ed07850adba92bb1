package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/modelmux/internal/config"
	"github.com/kailas-cloud/modelmux/internal/db"
	dbRedis "github.com/kailas-cloud/modelmux/internal/db/redis"
	"github.com/kailas-cloud/modelmux/internal/domain"
	"github.com/kailas-cloud/modelmux/internal/domain/chunk"
	"github.com/kailas-cloud/modelmux/internal/domain/pricing"
	ledgerpkg "github.com/kailas-cloud/modelmux/internal/ledger"
	logpkg "github.com/kailas-cloud/modelmux/internal/logger"
	"github.com/kailas-cloud/modelmux/internal/metrics"
	"github.com/kailas-cloud/modelmux/internal/provider"
	"github.com/kailas-cloud/modelmux/internal/repository/embcache"
	ledgerrepo "github.com/kailas-cloud/modelmux/internal/repository/ledger"
	"github.com/kailas-cloud/modelmux/internal/store"
	memorystore "github.com/kailas-cloud/modelmux/internal/store/memory"
	qdrantstore "github.com/kailas-cloud/modelmux/internal/store/qdrant"
	redisstore "github.com/kailas-cloud/modelmux/internal/store/redis"
	chiTransport "github.com/kailas-cloud/modelmux/internal/transport/chi"
	healthuc "github.com/kailas-cloud/modelmux/internal/usecase/health"
	raguc "github.com/kailas-cloud/modelmux/internal/usecase/rag"
	routeruc "github.com/kailas-cloud/modelmux/internal/usecase/router"
	usageuc "github.com/kailas-cloud/modelmux/internal/usecase/usage"
	"github.com/kailas-cloud/modelmux/internal/version"
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

	logger.Info("Starting modelmux gateway",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Int("providers", len(cfg.Providers)),
		zap.String("store_driver", cfg.Store.Driver),
	)

	ctx := context.Background()

	// Register metrics explicitly (no init())
	metrics.RegisterProviderMetrics()

	// Shared Redis connection — vector store, embedding cache, ledger mirror
	var redisDB db.Store
	if needsRedis(cfg) {
		redisDB, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Store.Redis.Addrs,
			Password: cfg.Store.Redis.Password,
		})
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisDB.Close()

		readiness := time.Duration(cfg.Store.Redis.ReadinessTimeout) * time.Second
		if err := redisDB.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		logger.Info("Connected to Redis")
	}

	// Backend providers in failover order
	providers, err := provider.Build(ctx, cfg.Providers, logger)
	if err != nil {
		logger.Fatal("Failed to build providers", zap.Error(err))
	}

	table := buildPricingTable(cfg.Pricing)

	// Usage ledger, optionally mirrored into durable Redis counters
	usageLedger := ledgerpkg.New(logger)
	if cfg.Ledger.MirrorEnabled {
		ttl := time.Duration(cfg.Ledger.TTLDays) * 24 * time.Hour
		usageLedger.WithMirror(ledgerrepo.New(redisDB, cfg.Ledger.KeyPrefix, ttl))
		logger.Info("Ledger mirror enabled", zap.Int("ttl_days", cfg.Ledger.TTLDays))
	}

	routerSvc := routeruc.New(providers, table, usageLedger, logger).
		WithBackoff(time.Duration(cfg.Routing.RetryBackoffMS) * time.Millisecond)

	// Embedder for the RAG pipeline: the router itself, optionally cached
	var embedder domain.BatchEmbedder = routerSvc
	if cfg.Cache.Enabled {
		ttl := time.Duration(cfg.Cache.TTLSec) * time.Second
		embedder = embcache.New(
			routerSvc, redisDB, cfg.Store.Redis.KeyPrefix, ttl,
			metrics.EmbeddingCacheTotal, logger,
		)
		logger.Info("Embedding cache enabled", zap.Int("ttl_sec", cfg.Cache.TTLSec))
	}

	vectorStore, err := buildVectorStore(ctx, cfg, redisDB)
	if err != nil {
		logger.Fatal("Failed to create vector store", zap.Error(err))
	}
	logger.Info("Vector store ready", zap.String("driver", cfg.Store.Driver))

	policy, err := chunk.New(cfg.RAG.ChunkMaxRunes, cfg.RAG.ChunkOverlap)
	if err != nil {
		logger.Fatal("Invalid chunking policy", zap.Error(err))
	}

	ragSvc := raguc.New(vectorStore, embedder, routerSvc, raguc.Config{
		Policy:         policy,
		TopK:           cfg.RAG.TopK,
		ScoreThreshold: cfg.RAG.ScoreThreshold,
		SystemPrompt:   cfg.RAG.SystemPrompt,
		MaxBatchSize:   cfg.RAG.MaxBatchSize,
		Logger:         logger,
	})

	usageSvc := usageuc.New(usageLedger)

	var storeChecker healthuc.Checker
	if hc, ok := vectorStore.(store.HealthChecker); ok {
		storeChecker = hc
	}
	healthSvc := healthuc.New(storeChecker)
	for _, p := range providers {
		if hc, ok := p.(healthuc.Checker); ok {
			healthSvc.Register(p.ID(), hc)
		}
	}

	server := chiTransport.NewServer(routerSvc, ragSvc, usageSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(logger))
	r.Use(chiTransport.RequestIDMiddleware())
	r.Use(chiTransport.WideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
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

// needsRedis reports whether any configured component requires a Redis
// connection.
func needsRedis(cfg config.Config) bool {
	return cfg.Store.Driver == "redis" || cfg.Cache.Enabled || cfg.Ledger.MirrorEnabled
}

func buildPricingTable(entries []config.PriceConfig) *pricing.Table {
	b := pricing.NewBuilder()
	for _, e := range entries {
		b.Set(e.Provider, e.Model, e.PromptPer1K, e.CompletionPer1K)
	}
	return b.Build()
}

// buildVectorStore selects the store driver. The driver switch lives here
// rather than in package store to keep the store packages free of
// cross-driver imports.
func buildVectorStore(ctx context.Context, cfg config.Config, redisDB db.Store) (raguc.VectorStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memorystore.New(cfg.RAG.Dimensions), nil

	case "redis":
		s, err := redisstore.New(redisDB, cfg.Store.Redis.KeyPrefix, cfg.RAG.Dimensions)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		return s, nil

	case "qdrant":
		s, err := qdrantstore.New(&qdrantstore.Config{
			Host:       cfg.Store.Qdrant.Host,
			Port:       cfg.Store.Qdrant.Port,
			APIKey:     cfg.Store.Qdrant.APIKey,
			Collection: cfg.Store.Qdrant.Collection,
			UseTLS:     cfg.Store.Qdrant.UseTLS,
		}, cfg.RAG.Dimensions)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureCollection(ctx); err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q: %w", cfg.Store.Driver, domain.ErrConfiguration)
	}
}
