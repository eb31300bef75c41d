package admin

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/cloo-solutions/kbase/internal/chunker"
	"github.com/cloo-solutions/kbase/internal/config"
	"github.com/cloo-solutions/kbase/internal/database"
	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/embedding"
	"github.com/cloo-solutions/kbase/internal/gemini"
	"github.com/cloo-solutions/kbase/internal/jobs"
	"github.com/cloo-solutions/kbase/internal/language"
	"github.com/cloo-solutions/kbase/internal/logging"
	"github.com/cloo-solutions/kbase/internal/openai"
	"github.com/cloo-solutions/kbase/internal/queue"
	"github.com/cloo-solutions/kbase/internal/repository"
	"github.com/cloo-solutions/kbase/internal/repository/memory"
	"github.com/cloo-solutions/kbase/internal/service"
	"github.com/cloo-solutions/kbase/internal/storage"
)

// ChunkStore is everything the pipeline needs from chunk persistence.
type ChunkStore interface {
	service.ChunkStore
	service.VectorReader
	jobs.ChunkStateStore
}

// WorkspaceStore persists workspace configuration.
type WorkspaceStore interface {
	Put(ctx context.Context, w *domain.Workspace) error
	GetByID(ctx context.Context, id string) (*domain.Workspace, error)
	List(ctx context.Context) ([]*domain.Workspace, error)
}

// App is the wired pipeline shared by every kbased command.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Workspaces WorkspaceStore
	Chunks     ChunkStore
	Queue      queue.Queue
	Provider   embedding.Provider

	Ingestion   *service.IngestionService
	Retrieval   *service.RetrievalService
	ChunkRunner *jobs.Runner
	EmbedRunner *jobs.Runner

	closers []func()
}

// AppOptions adjusts wiring for a single command.
type AppOptions struct {
	// Migrate applies pending migrations before the store is used.
	Migrate bool
	// EnsureBucket creates the payload bucket when missing.
	EnsureBucket bool
}

// NewApp wires stores, queue, provider, services and runners from cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts AppOptions) (*App, error) {
	if !cfg.HasEmbeddings() {
		return nil, fmt.Errorf("embedding provider %q has no credentials configured", cfg.EmbeddingProvider)
	}

	logger = logging.OrNop(logger)
	app := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	if err := app.openStore(ctx, opts.Migrate); err != nil {
		return nil, err
	}

	var payloads service.PayloadStore
	var payloadReader jobs.PayloadReader
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if opts.EnsureBucket {
			if err := s3Client.EnsureBucket(ctx); err != nil {
				return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
			}
			logger.Info("payload bucket ready", zap.String("bucket", cfg.S3Bucket))
		}
		payloads = s3Client
		payloadReader = s3Client
	}

	provider, err := app.newProvider(ctx)
	if err != nil {
		return nil, err
	}
	app.Provider = provider

	tokenizer, err := chunker.NewTokenizer(cfg.TokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	detector := language.NewDetector(domain.DefaultLanguage)
	c, err := chunker.New(cfg.ChunkerConfig(), tokenizer, detector)
	if err != nil {
		return nil, err
	}

	backoff := jobs.Backoff{Base: cfg.EmbedBaseDelay, Max: cfg.EmbedMaxDelay}

	app.Ingestion = service.NewIngestionService(c, app.Chunks, app.Queue, payloads, provider, service.IngestionConfig{
		InlineLimit:      cfg.S3InlineLimit,
		ChunkMaxAttempts: cfg.ChunkMaxAttempts,
		EmbedMaxAttempts: cfg.EmbedMaxAttempts,
		Dimensions:       cfg.EmbeddingDimensions,
	}, logger)

	app.Retrieval = service.NewRetrievalService(app.Chunks, app.Workspaces, detector, provider, service.RetrievalConfig{
		MaxContexts: cfg.RetrieveMaxContexts,
		Lambda:      cfg.RetrieveLambda,
		CacheSize:   cfg.QueryCacheSize,
	}, logger)

	chunkWorker := jobs.NewChunkWorker(c, app.Chunks, app.Queue, payloadReader, cfg.EmbedMaxAttempts, logger)
	app.ChunkRunner = jobs.NewRunner(app.Queue, chunkWorker, jobs.RunnerConfig{
		Queue:       domain.QueueChunking,
		Concurrency: cfg.ChunkConcurrency,
		Backoff:     backoff,
		StaleAfter:  cfg.StaleJobAfter,
	}, logger)

	embedWorker := jobs.NewEmbeddingWorker(app.Chunks, provider, jobs.EmbeddingWorkerConfig{
		Timeout:    cfg.EmbedTimeout,
		Dimensions: cfg.EmbeddingDimensions,
		Backoff:    backoff,
	}, logger)
	app.EmbedRunner = jobs.NewRunner(app.Queue, embedWorker, jobs.RunnerConfig{
		Queue:       domain.QueueEmbedding,
		Concurrency: cfg.EmbedConcurrency,
		Backoff:     backoff,
		StaleAfter:  cfg.StaleJobAfter,
	}, logger)

	ok = true
	return app, nil
}

func (a *App) openStore(ctx context.Context, migrate bool) error {
	cfg := a.Config
	if cfg.Store == config.StoreMemory {
		a.Workspaces = memory.NewWorkspaceStore()
		a.Chunks = memory.NewChunkStore()
		a.Queue = queue.NewMemoryQueue()
		a.Logger.Info("using in-memory store")
		return nil
	}

	if migrate {
		if err := database.Migrate(cfg.DatabaseURL, cfg.Migrations, a.Logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	a.Logger.Info("connected to database")

	a.Workspaces = repository.NewWorkspaceRepository(pool)
	a.Chunks = repository.NewChunkRepository(pool)
	a.Queue = repository.NewJobRepository(pool)
	return nil
}

func (a *App) newProvider(ctx context.Context) (embedding.Provider, error) {
	cfg := a.Config
	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		return openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
			EmbeddingDimensions: cfg.EmbeddingDimensions,
		}), nil
	case config.ProviderGemini:
		e, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := e.Close(); err != nil {
				a.Logger.Warn("failed to close gemini client", zap.Error(err))
			}
		})
		return e, nil
	case config.ProviderHash:
		a.Logger.Warn("using hash embeddings; similarity is lexical only")
		return embedding.NewHashProvider(cfg.EmbeddingDimensions), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
}

// Drain runs both queues until neither has due work. Chunking goes first
// since it feeds the embedding queue.
func (a *App) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		chunked, err := a.ChunkRunner.Drain(ctx)
		if err != nil {
			return total, err
		}
		embedded, err := a.EmbedRunner.Drain(ctx)
		if err != nil {
			return total, err
		}
		total += chunked + embedded
		if chunked == 0 && embedded == 0 {
			return total, nil
		}
	}
}

// Workers returns pollers for both queues.
func (a *App) Workers() []*jobs.Worker {
	poll := a.Config.PollInterval
	return []*jobs.Worker{
		jobs.NewWorker(domain.QueueChunking, a.ChunkRunner, poll, a.Logger),
		jobs.NewWorker(domain.QueueEmbedding, a.EmbedRunner, poll, a.Logger),
	}
}

// Close releases pools and clients in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

var errMemoryStore = errors.New("the in-memory store does not outlive this process; use KBASE_STORE=postgres")
