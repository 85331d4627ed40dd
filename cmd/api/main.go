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
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/adstrategy/backend/internal/adcopy"
	"github.com/adstrategy/backend/internal/api/handlers"
	"github.com/adstrategy/backend/internal/cache/redis"
	"github.com/adstrategy/backend/internal/calendar"
	"github.com/adstrategy/backend/internal/llm"
	"github.com/adstrategy/backend/internal/market"
	"github.com/adstrategy/backend/internal/metrics"
	"github.com/adstrategy/backend/internal/middleware/security"
	"github.com/adstrategy/backend/internal/middleware/validation"
	"github.com/adstrategy/backend/internal/narrative"
	"github.com/adstrategy/backend/internal/pipeline"
	"github.com/adstrategy/backend/internal/retrieval"
	"github.com/adstrategy/backend/internal/search/web"
	"github.com/adstrategy/backend/internal/storage/mongo"
	"github.com/adstrategy/backend/internal/storage/sqlite"
	"github.com/adstrategy/backend/internal/vector/zilliz"
	"github.com/adstrategy/backend/pkg/config"
	appLogger "github.com/adstrategy/backend/pkg/logger"
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

	appLogger.Info("Starting Ad Strategy API Server")

	metrics.Init()

	startCtx, cancelStart := context.WithTimeout(context.Background(), config.Seconds(cfg.Mongo.TimeoutSec))
	defer cancelStart()

	mongoClient, err := mongo.NewClient(startCtx, cfg.Mongo)
	if err != nil {
		appLogger.Fatal("Failed to create MongoDB client", zap.Error(err))
	}
	defer mongoClient.Close(context.Background())

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// Redis is optional: without it embeddings and signals are not cached.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without cache", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	llmClient := llm.NewClient(cfg.LLM)
	searchClient := web.NewClient(cfg.Search)

	var indexStore retrieval.IndexStore
	switch cfg.Retrieval.Backend {
	case "milvus":
		milvusStore, err := zilliz.NewClient(startCtx, cfg.Milvus)
		if err != nil {
			appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
		}
		defer milvusStore.Close()
		indexStore = milvusStore
	default:
		indexStore = retrieval.NewFileStore()
	}

	var (
		embeddingCache retrieval.EmbeddingCache
		signalCache    market.Cache
		signalReset    handlers.SignalCache
	)
	if redisClient != nil {
		embeddingCache = redisClient
		signalCache = redisClient
		signalReset = redisClient
	}

	retriever := retrieval.NewRetriever(llmClient, llmClient, indexStore, embeddingCache, retrieval.Options{
		TopK:           cfg.Retrieval.TopK,
		ChunkSize:      cfg.Retrieval.ChunkSize,
		ChunkOverlap:   cfg.Retrieval.ChunkOverlap,
		PersistTimeout: config.Seconds(cfg.Retrieval.PersistTimeoutSec),
		Dim:            cfg.LLM.EmbeddingDim,
		Backend:        cfg.Retrieval.Backend,
	})

	gatherer := market.NewGatherer(searchClient, signalCache)
	synthesizer := narrative.NewSynthesizer(llmClient)

	orchestrator := pipeline.NewOrchestrator(retriever, gatherer, synthesizer, sqliteClient, pipeline.Config{
		IndexLocation: cfg.Retrieval.StoragePath,
		MaxSignals:    cfg.Search.MaxResults,
		Timeout:       config.Seconds(cfg.Strategy.TimeoutSec),
	}, appLogger.Named("pipeline"))

	adCopyService := adcopy.NewService(calendar.NewClient(cfg.Calendar), gatherer, llmClient, sqliteClient)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{IsDevelopment: cfg.Server.Development}))

	strategyHandler := handlers.NewStrategyHandler(mongoClient, orchestrator, gatherer, cfg.Strategy.Budget)
	adCopyHandler := handlers.NewAdCopyHandler(adCopyService)
	historyHandler := handlers.NewHistoryHandler(sqliteClient)
	indexHandler := handlers.NewIndexHandler(retriever, cfg.Retrieval.StoragePath, signalReset)
	wsHandler := handlers.NewWebSocketHandler(strategyHandler)

	deps := map[string]handlers.Pinger{
		"mongo":  mongoClient,
		"sqlite": sqliteClient,
	}
	if redisClient != nil {
		deps["redis"] = redisClient
	}
	healthHandler := handlers.NewHealthHandler(deps)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")
	api.Use(validation.Middleware(validation.Config{
		Fields: map[string][]string{
			"/generate-strategy": {"domain"},
			"/ad-copy":           {"product", "company", "description"},
		},
		Logger: appLogger.GetLogger(),
	}))

	api.Post("/generate-strategy", strategyHandler.GenerateStrategy)
	api.Post("/analyze-campaign", strategyHandler.AnalyzeCampaign)
	api.Post("/ad-copy", adCopyHandler.GenerateAdCopy)
	api.Get("/ad-copies", historyHandler.ListAdCopies)
	api.Get("/reports", historyHandler.ListReports)
	api.Post("/index/invalidate", indexHandler.Invalidate)
	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/strategy", websocket.New(wsHandler.HandleConnection))

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
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
