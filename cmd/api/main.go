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
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/knowledge-assistant/backend/internal/api/handlers"
	"github.com/knowledge-assistant/backend/internal/cache/redis"
	"github.com/knowledge-assistant/backend/internal/generate"
	"github.com/knowledge-assistant/backend/internal/guardrails"
	"github.com/knowledge-assistant/backend/internal/ingestion"
	"github.com/knowledge-assistant/backend/internal/llm"
	"github.com/knowledge-assistant/backend/internal/metrics"
	"github.com/knowledge-assistant/backend/internal/middleware/ratelimit"
	"github.com/knowledge-assistant/backend/internal/middleware/security"
	"github.com/knowledge-assistant/backend/internal/middleware/validation"
	"github.com/knowledge-assistant/backend/internal/pipeline"
	"github.com/knowledge-assistant/backend/internal/rerank"
	"github.com/knowledge-assistant/backend/internal/retrieval"
	"github.com/knowledge-assistant/backend/internal/session"
	"github.com/knowledge-assistant/backend/internal/storage/sqlite"
	"github.com/knowledge-assistant/backend/internal/vector/milvus"
	"github.com/knowledge-assistant/backend/pkg/config"
	appLogger "github.com/knowledge-assistant/backend/pkg/logger"
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

	appLogger.Info("Starting Knowledge Assistant API Server")

	// The relational store, vector store and model client are hard
	// dependencies: without any one of them no question can be served.
	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	if err := milvusClient.EnsureCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	llmClient, err := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		TimeoutSec:     cfg.LLM.TimeoutSec,
		MaxRetries:     cfg.LLM.MaxRetries,
	})
	if err != nil {
		appLogger.Fatal("Failed to create LLM client", zap.Error(err))
	}

	// Redis is an accelerator, not a dependency: the pipeline runs uncached
	// when it is unreachable.
	cacheClient, err := redis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		time.Duration(cfg.Redis.TTLSec)*time.Second,
	)
	if err != nil {
		appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
		cacheClient = nil
	}
	defer cacheClient.Close()

	sessionStore, err := session.NewFSStore(cfg.Session.Dir)
	if err != nil {
		appLogger.Fatal("Failed to create session store", zap.Error(err))
	}
	sessionManager := session.NewManager(sessionStore)

	if removed, err := sessionManager.Cleanup(time.Duration(cfg.Session.RetentionDays) * 24 * time.Hour); err != nil {
		appLogger.Warn("Startup session cleanup failed", zap.Error(err))
	} else if removed > 0 {
		appLogger.Info("Startup session cleanup", zap.Int("removed", removed))
	}

	safetyEngine := guardrails.New()
	retriever := retrieval.NewRetriever(llmClient, milvusClient, cacheClient)
	reranker := rerank.New(rerank.NewEmbeddingScorer(llmClient), cfg.Pipeline.RerankThreshold, cfg.Pipeline.TopK)
	generator := generate.New(llmClient)
	pipe := pipeline.New(safetyEngine, retriever, reranker, generator, cfg.Pipeline.TopK)

	processor := ingestion.NewProcessor(sqliteClient, milvusClient, llmClient,
		cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)

	metrics.Init()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	rateLimiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer rateLimiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(rateLimiter.Middleware())
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	askHandler := handlers.NewAskHandler(pipe, sessionManager, sqliteClient, cacheClient)
	safetyHandler := handlers.NewSafetyHandler(safetyEngine)
	sessionHandler := handlers.NewSessionHandler(sessionManager)
	logsHandler := handlers.NewLogsHandler(sqliteClient)
	documentHandler := handlers.NewDocumentHandler(processor, sqliteClient, cacheClient)
	wsHandler := handlers.NewWebSocketHandler(pipe, sessionManager, sqliteClient)

	api := app.Group("/api/v1")

	api.Post("/ask", askHandler.HandleAsk)

	api.Post("/safety/query", safetyHandler.CheckQuery)
	api.Post("/safety/response", safetyHandler.CheckResponse)
	api.Get("/guardrails", safetyHandler.GetGuidelines)

	api.Get("/sessions", sessionHandler.ListSessions)
	api.Post("/sessions", sessionHandler.CreateSession)
	api.Get("/sessions/:id", sessionHandler.GetSession)
	api.Delete("/sessions/:id", sessionHandler.DeleteSession)
	api.Put("/sessions/:id/activate", sessionHandler.ActivateSession)
	api.Post("/sessions/cleanup", sessionHandler.CleanupSessions)

	api.Get("/logs/summary", logsHandler.GetSummary)

	api.Post("/documents", documentHandler.UploadDocument)
	api.Get("/documents", documentHandler.ListDocuments)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

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
