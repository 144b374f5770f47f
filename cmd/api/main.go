package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/api/handlers"
	"github.com/docqa/backend/internal/cache/redis"
	"github.com/docqa/backend/internal/cache/similarity"
	"github.com/docqa/backend/internal/embedding"
	"github.com/docqa/backend/internal/generation"
	"github.com/docqa/backend/internal/ingestion"
	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/internal/middleware/ratelimit"
	"github.com/docqa/backend/internal/middleware/security"
	"github.com/docqa/backend/internal/retrieval"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/internal/vector"
	"github.com/docqa/backend/internal/vector/local"
	"github.com/docqa/backend/internal/vector/milvus"
	"github.com/docqa/backend/pkg/config"
	appLogger "github.com/docqa/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting document QA API server")
	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var store vector.Store
	switch cfg.Vector.Backend {
	case "milvus":
		milvusClient, err := milvus.NewClient(cfg.Vector.MilvusEndpoint, cfg.Vector.CollectionName, cfg.Vector.Dim)
		if err != nil {
			appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
		}
		defer milvusClient.Close()

		if err := milvusClient.EnsureCollection(context.Background()); err != nil {
			appLogger.Fatal("Failed to ensure collection", zap.Error(err))
		}
		store = milvusClient
	default:
		localStore, err := local.NewStore(sqliteClient)
		if err != nil {
			appLogger.Fatal("Failed to build local vector index", zap.Error(err))
		}
		store = localStore
	}
	appLogger.Info("Vector store ready", zap.String("backend", cfg.Vector.Backend))

	var memo embedding.MemoCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLHours)*time.Hour,
		)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		memo = redisClient
	}

	gateway := embedding.NewGateway(
		embedding.NewOpenAIUpstream(cfg.Embedding.APIKey, cfg.Embedding.Model),
		memo,
		embedding.Config{
			MaxTextLen:  cfg.Embedding.MaxTextLen,
			MaxAttempts: cfg.Embedding.MaxAttempts,
			Timeout:     time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
			Workers:     cfg.Embedding.Workers,
		},
	)

	answerCache, err := similarity.NewCache(sqliteClient, similarity.Config{
		DefaultThreshold: cfg.Cache.SimilarityThreshold,
		MaxEntriesPerDoc: cfg.Cache.MaxEntriesPerDoc,
	})
	if err != nil {
		appLogger.Fatal("Failed to build similarity cache", zap.Error(err))
	}

	generator := generation.NewClient(cfg.Generation.APIKey, generation.Config{
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Timeout:     time.Duration(cfg.Generation.TimeoutSec) * time.Second,
	})

	orchestrator := retrieval.NewOrchestrator(gateway, store, answerCache, generator, sqliteClient, retrieval.Config{
		TopK:          cfg.Retrieval.TopK,
		ContextBudget: cfg.Retrieval.ContextBudget,
	})

	processor := ingestion.NewProcessor(sqliteClient, store, gateway, answerCache)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	queryHandler := handlers.NewQueryHandler(orchestrator)
	documentHandler := handlers.NewDocumentHandler(processor, sqliteClient)

	api := app.Group("/api/v1")

	api.Post("/ask", limiter.Middleware(), queryHandler.HandleAsk)
	api.Post("/documents/:id/fragments", documentHandler.IngestFragments)
	api.Delete("/documents/:id", documentHandler.DeleteDocument)
	api.Get("/documents/:id/history", documentHandler.GetHistory)
	api.Get("/documents/:id/stats", documentHandler.GetStats)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
