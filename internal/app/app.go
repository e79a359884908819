// Package app builds the service graph shared by the API server and the ingest CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/cache"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/chunker"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/config"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/extract"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/logger"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/product"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/repository"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/service"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/storage"
	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"
)

// Options selects which optional parts Build wires.
type Options struct {
	ServiceName string
	// Chat enables the LLM-backed chat orchestrator.
	Chat bool
	// MaxQueuedIngests bounds uploads waiting for an ingest worker; a full queue
	// rejects immediately. Zero submits straight to the pool, which blocks the
	// caller until a worker is free.
	MaxQueuedIngests int
}

// App holds the wired services and the resources Close releases.
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *gorm.DB
	Storage   storage.ObjectStorage
	Qdrant    *repository.QdrantRepository
	Embedder  service.Embedder
	Tracker   *service.TaskTracker
	Retrieval *service.RetrievalService
	Ingest    *service.IngestService
	Chat      *service.ChatService

	queryCache  *cache.RedisEmbeddingCache
	ingestPool  *ants.Pool
	ingestQueue *service.QueuedExecutor
	embedPool   *ants.Pool
}

// Build connects to every backing service named in cfg and wires the services.
// On error everything opened so far is closed again.
func Build(ctx context.Context, cfg *config.Config, opts Options) (a *App, err error) {
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: opts.ServiceName,
		File:        cfg.Log.File,
		FileOnly:    cfg.Log.FileOnly,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
		Compress:    cfg.Log.Compress,
	})
	logger.SetDefaultLogger(log)
	ctx = log.WithContext(ctx)

	a = &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			a.Close(5 * time.Second)
			a = nil
		}
	}()

	a.DB, err = repository.InitDB(&cfg.Database)
	if err != nil {
		return a, fmt.Errorf("init database: %w", err)
	}

	a.Storage, err = storage.NewStorage(&cfg.Storage)
	if err != nil {
		return a, fmt.Errorf("init storage: %w", err)
	}
	if err = a.Storage.EnsureBucket(ctx); err != nil {
		return a, fmt.Errorf("ensure bucket: %w", err)
	}

	a.Embedder = service.NewRetryingEmbedder(
		service.NewEmbeddingService(&cfg.Embedding),
		service.RetryPolicy{
			MaxAttempts: cfg.Ingest.RetryAttempts,
			BaseDelay:   cfg.Ingest.RetryBaseDelay,
		},
	)

	var index service.VectorIndex
	if cfg.Qdrant.Enabled {
		a.Qdrant, err = repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: a.Embedder.Dimensions(),
		})
		if err != nil {
			return a, fmt.Errorf("init qdrant: %w", err)
		}
		if err = a.Qdrant.EnsureCollection(ctx); err != nil {
			return a, fmt.Errorf("ensure qdrant collection: %w", err)
		}
		index = a.Qdrant
	}

	a.ingestPool, err = ants.NewPool(cfg.Ingest.Workers,
		ants.WithLogger(log),
		ants.WithPanicHandler(func(p interface{}) {
			log.WithField("panic", p).Error("Worker panicked")
		}),
	)
	if err != nil {
		return a, fmt.Errorf("create ingest pool: %w", err)
	}
	var ingestExec service.Executor = a.ingestPool
	if opts.MaxQueuedIngests > 0 {
		a.ingestQueue = service.NewQueuedExecutor(a.ingestPool, opts.MaxQueuedIngests)
		ingestExec = a.ingestQueue
	}
	a.embedPool, err = ants.NewPool(cfg.Ingest.EmbedConcurrency, ants.WithLogger(log))
	if err != nil {
		return a, fmt.Errorf("create embedding pool: %w", err)
	}

	a.Tracker = service.NewTaskTracker(a.DB)
	a.Retrieval = service.NewRetrievalService(repository.NewChunkRepository(a.DB), index, cfg.Search.Oversample)
	a.Ingest = service.NewIngestService(
		a.DB,
		a.Tracker,
		index,
		a.Storage,
		extract.NewLoaderExtractor(),
		a.Embedder,
		ingestExec,
		a.embedPool,
		service.IngestConfig{
			MaxUploadBytes:      cfg.Ingest.MaxUploadBytes,
			AllowedContentTypes: cfg.Ingest.AllowedContentTypes,
			Chunking: chunker.Config{
				Size:    cfg.Ingest.ChunkSize,
				Overlap: cfg.Ingest.ChunkOverlap,
			},
			EmbedBatchSize: cfg.Ingest.EmbedBatchSize,
		},
	)

	if opts.Chat {
		if err = a.buildChat(ctx); err != nil {
			return a, err
		}
	}

	log.WithFields(logger.Fields{
		"database": cfg.Database.Driver,
		"qdrant":   cfg.Qdrant.Enabled,
		"redis":    a.queryCache != nil,
		"chat":     a.Chat != nil,
		"workers":  cfg.Ingest.Workers,
	}).Info("Application wired")

	return a, nil
}

func (a *App) buildChat(ctx context.Context) error {
	cfg := a.Config

	llm, err := service.NewLLMService(&cfg.LLM)
	if err != nil {
		return fmt.Errorf("init llm: %w", err)
	}

	var chatOpts []service.ChatOption
	if cfg.Redis.Enabled {
		qc, err := cache.NewRedisEmbeddingCache(ctx, &cfg.Redis)
		if err != nil {
			a.Logger.WithError(err).Warn("Redis unavailable, query embeddings will not be cached")
		} else {
			a.queryCache = qc
			chatOpts = append(chatOpts, service.WithQueryCache(qc))
		}
	}
	if cfg.Magento.Enabled {
		var products product.Source = product.NewMagentoSource(&cfg.Magento)
		chatOpts = append(chatOpts, service.WithProductSource(products))
	}

	a.Chat = service.NewChatService(a.Embedder, a.Retrieval, llm, service.ChatConfig{
		TopK:            cfg.Chat.TopK,
		ScoreThreshold:  a.ScoreThreshold(),
		MaxContextChars: cfg.Chat.MaxContextChars,
		FallbackMessage: cfg.Chat.FallbackMessage,
		ProductLimit:    cfg.Chat.ProductLimit,
	}, chatOpts...)
	return nil
}

// ScoreThreshold returns the configured similarity floor, or nil when unset.
func (a *App) ScoreThreshold() *float32 {
	if a.Config.Search.ScoreThreshold <= 0 {
		return nil
	}
	t := a.Config.Search.ScoreThreshold
	return &t
}

// Drain stops accepting ingestion and waits up to timeout for submitted
// documents to finish. The database stays open so results can be read.
func (a *App) Drain(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if a.ingestQueue != nil {
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		err := a.ingestQueue.Close(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("ingest queue: %w", err)
		}
	}
	if a.ingestPool == nil || a.ingestPool.IsClosed() {
		return nil
	}
	return a.ingestPool.ReleaseTimeout(time.Until(deadline))
}

// Close drains ingestion, then releases connections in reverse order of creation.
func (a *App) Close(timeout time.Duration) {
	if err := a.Drain(timeout); err != nil {
		a.Logger.WithError(err).Warn("Ingest workers did not drain in time")
	}
	if a.embedPool != nil && !a.embedPool.IsClosed() {
		if err := a.embedPool.ReleaseTimeout(timeout); err != nil {
			a.Logger.WithError(err).Warn("Embedding workers did not drain in time")
		}
	}
	if a.queryCache != nil {
		_ = a.queryCache.Close()
	}
	if a.Qdrant != nil {
		_ = a.Qdrant.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = logger.Sync()
}
