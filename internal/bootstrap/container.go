package bootstrap

import (
	"context"
	"log"
	"time"

	"docrag-be/internal/config"
	"docrag-be/internal/controller"
	"docrag-be/internal/pkg/logger"
	"docrag-be/internal/repository/memory"
	"docrag-be/internal/repository/unitofwork"
	"docrag-be/internal/service"
	"docrag-be/internal/websocket"
	"docrag-be/pkg/blob"
	"docrag-be/pkg/chunker"
	"docrag-be/pkg/embedding"
	"docrag-be/pkg/embedding/jina"
	"docrag-be/pkg/llm/factory"
	pktNats "docrag-be/pkg/nats"
	"docrag-be/pkg/parser"
	"docrag-be/pkg/queue"
	"docrag-be/pkg/rag/broadcast"
	"docrag-be/pkg/rag/chat"
	"docrag-be/pkg/rag/enhance"
	"docrag-be/pkg/rag/pipeline"
	"docrag-be/pkg/rag/retrieval"
	"docrag-be/pkg/rerank"
	"docrag-be/pkg/vectorindex"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// pipelineSubjects covers the stage job topics and the stage completion topics.
var pipelineSubjects = []string{"pipeline.>", "document.>"}

const (
	statusBufferSize  = 64
	providerTimeout   = 2 * time.Minute
	encyclopediaLimit = 20 * time.Second
)

type Container struct {
	// Controllers
	WorkspaceController controller.IWorkspaceController
	DocumentController  controller.IDocumentController
	ChatController      controller.IChatController

	// Status stream
	StatusHandler *websocket.StatusHandler
	WebSocketHub  *websocket.Hub
	Broker        *broadcast.Broker

	// Background Services (Exposed for main.go to run)
	ConsumerService  service.IConsumerService
	WorkspaceService service.IWorkspaceService

	closers []func()
}

// NewContainer wires every component. db is nil when DB_DRIVER=memory.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	c := &Container{}

	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	statusLogger := logger.NewIsolatedLogger(cfg.App.StatusLogFilePath)
	watermillLogger := logger.NewWatermillAdapter(sysLogger)

	var uowFactory unitofwork.RepositoryFactory
	var index vectorindex.Index
	if db == nil || cfg.Database.Driver == "memory" {
		uowFactory = memory.NewRepositoryFactory(memory.NewStore())
		index = vectorindex.NewMemoryIndex()
		log.Printf("[INFO] Using in-memory store and vector index")
	} else {
		uowFactory = unitofwork.NewRepositoryFactory(db)
		if cfg.Retrieval.VectorIndexDriver == "memory" {
			index = vectorindex.NewMemoryIndex()
		} else {
			index = vectorindex.NewPgVectorIndex(db)
		}
	}

	blobs, err := blob.NewLocalStore(cfg.Storage.UploadDir)
	if err != nil {
		log.Fatalf("[FATAL] Failed to open upload dir: %v", err)
	}

	// 2. Infrastructure
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v. Running single-instance", err)
			rdb.Close()
			rdb = nil
		} else {
			c.closers = append(c.closers, func() { rdb.Close() })
		}
	}

	var natsPub *pktNats.Publisher
	var natsSub *pktNats.Subscriber
	if cfg.App.NatsURL != "" && cfg.Queue.MirrorEvents {
		if natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL); err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
			natsPub = nil
		} else {
			c.closers = append(c.closers, natsPub.Close)
		}
		if natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL); err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
			natsSub = nil
		}
	}

	var workQueue queue.PubSub
	switch cfg.Queue.Driver {
	case "jetstream":
		wq, err := pktNats.NewWorkQueue(cfg.App.NatsURL, cfg.Queue.StreamName, pipelineSubjects, cfg.Queue.AckWait, watermillLogger)
		if err != nil {
			log.Fatalf("[FATAL] Failed to open JetStream work queue: %v", err)
		}
		workQueue = wq
		c.closers = append(c.closers, func() { wq.Close() })
	default:
		gc := queue.NewGoChannel(cfg.Queue.BufferSize, watermillLogger)
		workQueue = gc
		c.closers = append(c.closers, func() { gc.Close() })
	}

	// Status broadcasting. Untyped nils keep the optional legs disabled.
	var relay broadcast.Relay
	if rdb != nil {
		relay = broadcast.NewRedisRelay(rdb, cfg.App.InstanceID, sysLogger)
	}
	broker := broadcast.NewBroker(statusBufferSize, relay, sysLogger)
	var mirror broadcast.Mirror
	if natsPub != nil {
		mirror = natsPub
	}
	notifier := broadcast.NewNotifier(broker, mirror, statusLogger)

	// 3. Algorithms
	embedClient := embedding.NewHTTPClient(providerTimeout, cfg.Ai.ProviderRatePerSec)
	embedders := embedding.NewRegistry(
		embedding.NewHashProvider(cfg.Ai.HashDimension),
		embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaModel, cfg.Ai.OllamaDimension, embedClient),
	)
	if cfg.Keys.GoogleGemini != "" {
		embedders.Register(embedding.NewGeminiProvider(cfg.Keys.GoogleGemini, embedClient))
	}
	if cfg.Keys.Jina != "" {
		embedders.Register(jina.NewJinaProvider(cfg.Keys.Jina, embedClient))
	}
	if cfg.Keys.OpenAI != "" {
		embedders.Register(embedding.NewOpenAIProvider(cfg.Keys.OpenAI, cfg.Ai.OpenAIBaseURL, cfg.Ai.OpenAIEmbedModel, cfg.Ai.OpenAIDimension, embedClient))
	}
	log.Printf("[INFO] Embedding backends: %v (default %s)", embedders.Names(), cfg.Ai.DefaultEmbedding)

	llmProvider, err := factory.NewLLMProvider(factory.Config{
		Provider:   cfg.Ai.LLMProvider,
		Model:      cfg.Ai.LLMModel,
		BaseURL:    cfg.Ai.LLMBaseURL,
		APIKey:     cfg.Keys.OpenAI,
		RatePerSec: cfg.Ai.ProviderRatePerSec,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	rerankers := rerank.NewRegistry()
	rerankers.Register(rerank.NewLexicalReranker())
	rerankers.Register(rerank.NewLLMReranker(llmProvider))

	chunkers := chunker.DefaultRegistry()
	parsers := parser.DefaultRegistry()

	// 4. Pipeline, retrieval and chat
	gate := pipeline.NewGate()
	ingest := pipeline.New(pipeline.ConfigFrom(cfg.Pipeline), pipeline.Deps{
		Repos:     uowFactory,
		Queue:     workQueue,
		Notifier:  notifier,
		Gate:      gate,
		Blobs:     blobs,
		Parsers:   parsers,
		Chunkers:  chunkers,
		Embedders: embedders,
		Index:     index,
		Log:       sysLogger,
	})

	var embeddingCache retrieval.EmbeddingCache
	if rdb != nil {
		embeddingCache = retrieval.NewRedisEmbeddingCache(rdb, cfg.Retrieval.EmbeddingCacheTTL, sysLogger)
	} else {
		embeddingCache = retrieval.NewLocalEmbeddingCache(cfg.Retrieval.EmbeddingCacheTTL)
	}
	engine := retrieval.NewEngine(retrieval.ConfigFrom(cfg.Retrieval), uowFactory, embedders, rerankers, index, embeddingCache, sysLogger)

	encyclopedia := enhance.NewWikipediaFetcher(cfg.Chat.WikipediaBaseURL, cfg.Chat.ExternalMaxChars, encyclopediaLimit, sysLogger)
	orchestrator := chat.NewOrchestrator(chat.ConfigFrom(cfg.Chat), uowFactory, engine, encyclopedia, llmProvider, sysLogger)

	// 5. Services
	workspaceService := service.NewWorkspaceService(
		uowFactory,
		service.Algorithms{Chunkers: chunkers, Embedders: embedders, Rerankers: rerankers},
		notifier,
		gate,
		index,
		blobs,
		engine,
		orchestrator,
		cfg.Ai.DefaultEmbedding,
		cfg.Pipeline.ProvisioningTimeout,
		sysLogger,
	)
	documentService := service.NewDocumentService(uowFactory, ingest, notifier, index, blobs, cfg.Storage.MaxUploadBytes, sysLogger)
	chatService := service.NewChatService(uowFactory, orchestrator, sysLogger)
	statusService := service.NewStatusService(uowFactory, broker)
	consumerService := service.NewConsumerService(ingest, natsSub, cfg.App.InstanceID, statusLogger, sysLogger)

	wsHub := websocket.NewHub(sysLogger)

	// 6. Controllers
	c.WorkspaceController = controller.NewWorkspaceController(workspaceService)
	c.DocumentController = controller.NewDocumentController(documentService, cfg.Storage.MaxUploadBytes)
	c.ChatController = controller.NewChatController(chatService, sysLogger)
	c.StatusHandler = websocket.NewStatusHandler(wsHub, statusService)
	c.WebSocketHub = wsHub
	c.Broker = broker
	c.ConsumerService = consumerService
	c.WorkspaceService = workspaceService

	return c
}

// Close releases broker connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
