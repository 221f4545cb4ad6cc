// Command server serves search, chat and ingestion over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/app"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/handler"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/loader"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/middleware"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/repository"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/service"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/kafka"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/llm"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/metrics"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/storage"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/token"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal("failed to initialize backends", err)
	}
	defer a.Close()

	var conversations repository.ConversationRepository
	if a.Redis != nil {
		conversations = repository.NewConversationRepository(a.Redis, cfg.LLM.HistorySize)
	}

	// Without Kafka uploads are ingested in the request.
	var producer service.TaskProducer
	if cfg.Kafka.Brokers != "" {
		if a.Redis == nil || a.Objects == nil {
			log.Fatalf("kafka ingestion needs redis and minio to be configured")
		}
		p := kafka.NewProducer(cfg.Kafka)
		defer p.Close()
		producer = p

		consumer := kafka.NewConsumer(cfg.Kafka, a.Redis, a.Ingestor)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Errorf("kafka consumer stopped: %v", err)
			}
		}()
	}

	var ingestService service.IngestService
	if a.Objects != nil {
		ingestService = service.NewIngestService(a.Objects, storage.NewObjectSource(a.Objects, service.RawPrefix), producer, a.Ingestor, a.Ledger, a.Store, a.Registry)
	} else {
		log.Warnf("minio is not configured, upload routes are disabled")
	}

	if cfg.Ingest.SeedDir != "" {
		go seed(ctx, a, cfg.Ingest.SeedDir)
	}

	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TokenExpireHours)
	searchService := service.NewSearchService(a.Retriever)
	chatService := service.NewChatService(a.Retriever, llm.NewClient(cfg.LLM), conversations)

	gin.SetMode(cfg.Server.Mode)
	r := setupRouter(jwtManager, searchService, chatService, ingestService)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}
	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %s", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown failed: %v", err)
	}
	log.Info("server stopped")
}

// seed ingests the files of dir in the background. Unchanged files are
// skipped when the ledger is enabled.
func seed(ctx context.Context, a *app.App, dir string) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("seed directory %q is not available, skipping", dir)
		return
	}
	rep, err := a.Ingestor.IngestSource(ctx, loader.DirSource{Root: dir})
	if err != nil {
		log.Errorf("seeding %s failed: %v", dir, err)
		return
	}
	log.Infow("seed finished", "dir", dir, "files", rep.Files, "skipped", rep.Skipped, "failed", rep.Failed)
}

func setupRouter(
	jwtManager *token.JWTManager,
	searchService service.SearchService,
	chatService service.ChatService,
	ingestService service.IngestService,
) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	chatHandler := handler.NewChatHandler(chatService, jwtManager)
	r.GET("/chat/:token", chatHandler.Handle)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager))
	{
		searchHandler := handler.NewSearchHandler(searchService)
		apiV1.GET("/search", searchHandler.Search)
		apiV1.POST("/search", searchHandler.SearchJSON)

		apiV1.GET("/chat/history", chatHandler.History)

		if ingestService != nil {
			ingestHandler := handler.NewIngestHandler(ingestService)
			apiV1.GET("/ingest/sources/:source/url", ingestHandler.SourceURL)

			admin := apiV1.Group("/")
			admin.Use(middleware.AdminAuthMiddleware())
			{
				admin.POST("/ingest/upload", ingestHandler.Upload)
				admin.POST("/ingest/reconcile", ingestHandler.Reconcile)
				admin.GET("/index/stats", ingestHandler.Stats)
			}
		}
	}
	return r
}
