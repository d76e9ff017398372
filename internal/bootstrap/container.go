package bootstrap

import (
	"context"
	"log"
	"os"

	"ai-assistant-be/internal/config"
	"ai-assistant-be/internal/controller"
	"ai-assistant-be/internal/handler"
	"ai-assistant-be/internal/pkg/logger"
	"ai-assistant-be/internal/repository/memory"
	"ai-assistant-be/internal/repository/unitofwork"
	"ai-assistant-be/internal/service"
	"ai-assistant-be/internal/websocket"
	"ai-assistant-be/pkg/embedding"
	"ai-assistant-be/pkg/llm/factory"
	"ai-assistant-be/pkg/rag/aggregate"
	"ai-assistant-be/pkg/rag/enrich"
	"ai-assistant-be/pkg/rag/executor"
	"ai-assistant-be/pkg/rag/pipeline"
	"ai-assistant-be/pkg/rag/router"
	"ai-assistant-be/pkg/rag/worker"
	"ai-assistant-be/pkg/tasks"
	"ai-assistant-be/pkg/watchlist"

	pktNats "ai-assistant-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ConversationController controller.IConversationController

	// Background services (exposed for main.go to run)
	SummarizerService service.ISummarizerService
	TaskManager       *tasks.Manager

	// WebSockets
	NoticeHandler *handler.NoticeHandler
	WebSocketHub  *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	ragLogger := log.New(os.Stdout, "[RAG] ", log.LstdFlags)

	// 2. Event bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Providers
	embeddingProvider := embedding.NewOllamaProvider(
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.OllamaModel,
	)
	log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaModel)

	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. Infrastructure
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	wsLogger := logger.NewIsolatedLogger("logs/notices.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	taskManager := tasks.NewManager(cfg.Tasks.Workers, cfg.Tasks.QueueSize, sysLogger)

	// 5. Turn pipeline
	retriever := worker.NewClient(cfg.Ai.WorkerBaseURL)
	aggregator := aggregate.New()
	enricher := enrich.NewLLMEnricher(llmProvider, 5, ragLogger)

	fanout := executor.NewFanoutExecutor(retriever, aggregator, llmProvider, enricher, cfg.Pipeline.AnswerTimeout, ragLogger)
	streamer := executor.NewStreamingExecutor(retriever, aggregator, llmProvider, enricher, cfg.Pipeline.AnswerTimeout, ragLogger)

	memoryRepo := memory.NewMemoryRepository()
	memoryService := service.NewMemoryService(memoryRepo)
	episodicService := service.NewEpisodicService(uowFactory, embeddingProvider, cfg.Pipeline.EpisodicThreshold)
	summarizerService := service.NewSummarizerService(pubSub, cfg.App.SummaryTopic, uowFactory, llmProvider)

	turnPipeline := pipeline.New(
		router.NewLLMRouter(llmProvider),
		fanout,
		streamer,
		llmProvider,
		service.NewHistoryStoreAdapter(uowFactory),
		memoryService,
		service.NewSummaryStoreAdapter(uowFactory),
		episodicService,
		nil, // no legacy knowledge-base handler
		pipeline.Config{
			HistoryWindow:  cfg.Pipeline.HistoryWindow,
			EpisodicTopK:   cfg.Pipeline.EpisodicTopK,
			DefaultTimeout: cfg.Pipeline.DefaultTimeout,
			AnswerTimeout:  cfg.Pipeline.AnswerTimeout,
		},
		ragLogger,
	)

	watchlistCapture := watchlist.NewCaptureService(
		service.NewWatchlistStoreAdapter(uowFactory),
		watchlist.DefaultConfig(),
		sysLogger,
	)

	conversationService := service.NewConversationService(
		uowFactory,
		turnPipeline,
		taskManager,
		summarizerService,
		memoryService,
		episodicService,
		watchlistCapture,
		natsPub,
		wsHub,
	)

	noticeHandler := handler.NewNoticeHandler(natsPub, natsSub, wsHub, wsLogger)

	return &Container{
		ConversationController: controller.NewConversationController(conversationService),
		SummarizerService:      summarizerService,
		TaskManager:            taskManager,
		NoticeHandler:          noticeHandler,
		WebSocketHub:           wsHub,
	}
}
