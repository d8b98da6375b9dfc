package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docqa/internal/ai"
	appsvc "docqa/internal/app"
	"docqa/internal/cache"
	"docqa/internal/chatlog"
	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/ingest"
	mysqlClient "docqa/internal/platform/mysql"
	rabbitmqClient "docqa/internal/platform/rabbitmq"
	redisClient "docqa/internal/platform/redis"
	"docqa/internal/repository"
	"docqa/internal/worker"
)

// Options selects which parts of the application are wired.
type Options struct {
	// Answer selects an LLM backend; startup fails when none is configured.
	// Index maintenance runs without one.
	Answer bool
	// Chat wires the chat store and its infrastructure. It implies Answer.
	Chat bool
	// Verbose turns on SQL logging.
	Verbose bool
}

type App struct {
	Config  *config.Config
	Loader  *ingest.Loader
	Backend ai.Backend
	RAG     *appsvc.RAGService
	Chat    *appsvc.ChatService

	MySQL         *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	TurnWorker    *worker.TurnPersistWorker
	turnPublisher *rabbitmqClient.TurnPublisher

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	var backend ai.Backend
	if opts.Answer || opts.Chat {
		backend, err = SelectBackend(cfg, os.LookupEnv)
		if err != nil {
			return nil, err
		}
	}

	loader := ingest.NewLoader(cfg.Documents.Dir, cfg.Documents.Pattern)
	splitter := chunker.New(
		chunker.WithChunkSize(cfg.Chunker.Size),
		chunker.WithOverlap(cfg.Chunker.Overlap),
	)
	rag := appsvc.NewRAGService(appsvc.RAGConfig{
		IndexDir:          cfg.Index.Dir,
		TopK:              cfg.Index.TopK,
		ContextBudget:     cfg.Index.ContextBudget,
		EmbedBatchSize:    cfg.Embedding.BatchSize,
		EmbedWorkers:      cfg.Embedding.Workers,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	}, loader, splitter, embedder, backend)

	a := &App{
		Config:    cfg,
		Loader:    loader,
		Backend:   backend,
		RAG:       rag,
		StartedAt: time.Now(),
	}
	if !opts.Chat {
		return a, nil
	}

	store, err := a.newTurnStore(ctx, opts.Verbose)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Chat = appsvc.NewChatService(rag, store)
	return a, nil
}

// NewEmbedder builds the configured embedding provider.
func NewEmbedder(cfg *config.Config) (ai.Embedder, error) {
	switch cfg.Embedding.Provider {
	case config.EmbeddingProviderOpenAI:
		return ai.NewOpenAIEmbedder(ai.EmbeddingConfig{
			BaseURL:   cfg.Embedding.BaseURL,
			APIKey:    cfg.EmbeddingAPIKey(),
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
			Timeout:   cfg.LLMTimeout(),
		})
	case config.EmbeddingProviderHash:
		return ai.NewHashEmbedder(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", config.ErrInvalidConfig, cfg.Embedding.Provider)
	}
}

// SelectBackend picks the LLM backend from the environment.
func SelectBackend(cfg *config.Config, lookup ai.LookupFunc) (ai.Backend, error) {
	backend, err := ai.DefaultRegistry.Select(lookup, ai.BackendOptions{
		Timeout:     cfg.LLMTimeout(),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("select llm backend failed: %w", err)
	}
	log.Printf("bootstrap: using %s llm backend", backend.Name())
	return backend, nil
}

func (a *App) newTurnStore(ctx context.Context, verbose bool) (appsvc.TurnStore, error) {
	cfg := a.Config
	switch cfg.Chat.Store {
	case config.ChatStoreNone:
		return nil, nil
	case config.ChatStoreFile:
		store, err := chatlog.NewFileStore(cfg.Chat.Dir)
		if err != nil {
			return nil, fmt.Errorf("open chat log dir failed: %w", err)
		}
		return store, nil
	}

	mysqlDB, err := mysqlClient.New(ctx, mysqlClient.Options{
		DSN:          cfg.MySQLDSN(),
		MaxIdleConns: cfg.MySQL.MaxIdleConns,
		MaxOpenConns: cfg.MySQL.MaxOpenConns,
		Verbose:      verbose,
	})
	if err != nil {
		return nil, err
	}
	a.MySQL = mysqlDB
	turnRepo := repository.NewChatTurnRepository(mysqlDB)
	if err := turnRepo.Migrate(); err != nil {
		return nil, err
	}

	var historyCache appsvc.HistoryCache
	if cfg.Chat.Cache {
		redisCli, err := redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.Redis = redisCli
		historyCache = cache.NewHistoryCache(
			redisCli,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
	}

	var publisher appsvc.TurnPublisher
	if cfg.Chat.Async {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.TurnPersistQueue)
		if err != nil {
			return nil, err
		}
		a.MQConn = mqConn
		a.TurnWorker = worker.NewTurnPersistWorker(mqConn, turnRepo, cfg.RabbitMQ.TurnPersistQueue, cfg.RabbitMQ.Prefetch)
		if err := a.TurnWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start turn worker failed: %w", err)
		}
		a.turnPublisher = rabbitmqClient.NewTurnPublisher(mqConn, cfg.RabbitMQ.TurnPersistQueue)
		publisher = a.turnPublisher
	}

	return appsvc.NewDatabaseTurnStore(turnRepo, publisher, historyCache, cfg.Chat.MaxHistory), nil
}

// Warmup loads or builds the index. An empty corpus is not an error here;
// the index is built once documents arrive.
func (a *App) Warmup(ctx context.Context) error {
	report, err := a.RAG.Sync(ctx)
	if errors.Is(err, appsvc.ErrNoDocuments) {
		log.Printf("bootstrap: %v, waiting for documents", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync index failed: %w", err)
	}
	log.Printf("bootstrap: index %s, %d chunks", report.Mode, report.Total)
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.turnPublisher != nil {
		if err := a.turnPublisher.Close(); err != nil {
			closeErr = err
		}
	}
	if a.TurnWorker != nil {
		a.TurnWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
