// Package app wires the quill components into a running application:
// database pool, Genkit model client, vector index, conversation and
// memory stores, cache, and the query pipeline.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/quill0/quill/db"
	"github.com/quill0/quill/internal/cache"
	"github.com/quill0/quill/internal/config"
	"github.com/quill0/quill/internal/conversation"
	"github.com/quill0/quill/internal/index"
	"github.com/quill0/quill/internal/ingest"
	"github.com/quill0/quill/internal/memory"
	"github.com/quill0/quill/internal/model"
	"github.com/quill0/quill/internal/pipeline"
)

// Model call budget shared by embedding and generation.
const (
	modelRequestsPerSecond = 2
	modelBurst             = 4
)

// App holds every initialized component. Create with Setup, release
// with Close.
type App struct {
	Config   *config.Config
	Pool     *pgxpool.Pool
	Genkit   *genkit.Genkit
	Client   *model.Client
	Cache    *cache.Store
	Index    *index.Index
	Chunks   *index.ChunkStore
	Ingester *ingest.Ingester
	Convs    *conversation.Store
	Memories *memory.Store
	Facts    *pipeline.FactStore
	Pipeline *pipeline.Pipeline
	Sweeper  *cache.Sweeper

	logger *slog.Logger
}

// Setup initializes the application. On any failure everything already
// initialized is released before the error is returned.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if os.Getenv("GEMINI_API_KEY") == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY environment variable not set", config.ErrMissingAPIKey)
	}

	a := &App{Config: cfg, logger: logger}
	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	if err := db.Migrate(cfg.ConnString()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	a.Pool = pool
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	a.Genkit = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))

	embedder := googlegenai.GoogleAIEmbedder(a.Genkit, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	limiter := rate.NewLimiter(rate.Limit(modelRequestsPerSecond), modelBurst)
	a.Client, err = model.NewClient(a.Genkit, embedder, cfg.FullModelName(), model.GenConfig{
		Temperature: cfg.Temperature,
		MaxTokens:   int32(cfg.MaxTokens),
	}, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}

	a.Cache, err = cache.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating cache store: %w", err)
	}
	a.Sweeper = cache.NewSweeper(a.Cache, logger)

	a.Index = index.New()
	a.Chunks, err = index.NewChunkStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chunk store: %w", err)
	}
	a.Ingester, err = ingest.NewIngester(a.Client, a.Cache, a.Chunks, a.Index, cfg.EmbeddingTTL, logger)
	if err != nil {
		return nil, fmt.Errorf("creating ingester: %w", err)
	}
	if err := a.Ingester.Reload(ctx); err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}
	logger.Info("index loaded", "chunks", a.Index.Len())

	a.Convs, err = conversation.NewStore(pool, a.Client, conversation.Settings{
		MaxMessageTokens:  cfg.MaxMessageTokens,
		CompressThreshold: cfg.CompressThreshold,
		KeepRecent:        cfg.MaxHistory,
		TTL:               cfg.SessionTTL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating conversation store: %w", err)
	}

	a.Memories, err = memory.NewStore(pool, a.Client, cfg.DuplicateThreshold, logger)
	if err != nil {
		return nil, fmt.Errorf("creating memory store: %w", err)
	}

	a.Facts, err = pipeline.NewFactStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating fact store: %w", err)
	}

	a.Pipeline, err = pipeline.New(pipeline.Deps{
		Client:   a.Client,
		Cache:    a.Cache,
		Index:    a.Index,
		Facts:    a.Facts,
		Convs:    a.Convs,
		Memories: a.Memories,
	}, pipeline.Settings{
		SimilarityFloor:    cfg.SimilarityFloor,
		RelevancyThreshold: cfg.RelevancyThreshold,
		RetrievalTopK:      cfg.RetrievalTopK,
		RerankTopK:         cfg.RerankTopK,
		MaxIterations:      cfg.MaxIterations,
		RecentMessages:     cfg.RecentMessages,
		MemoryTopK:         cfg.MemoryTopK,
		FallbackMode:       cfg.FallbackMode,
		ScopeGate:          cfg.ScopeGate,
		ScopeKeywords:      cfg.ScopeKeywords,
		ResponseTTL:        cfg.ResponseTTL,
		RelevancyTTL:       cfg.RelevancyTTL,
		RerankTTL:          cfg.RerankTTL,
		TransformTTL:       cfg.TransformTTL,
		EmbeddingTTL:       cfg.EmbeddingTTL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	return a, nil
}

// SetupStorage initializes only the database-backed components, for
// commands that manage stored data without touching the model API.
func SetupStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, logger: logger}
	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	if err := db.Migrate(cfg.ConnString()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	a.Pool = pool
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	a.Cache, err = cache.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating cache store: %w", err)
	}
	a.Chunks, err = index.NewChunkStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chunk store: %w", err)
	}
	a.Facts, err = pipeline.NewFactStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating fact store: %w", err)
	}
	a.Convs, err = conversation.NewStore(pool, nil, conversation.Settings{
		MaxMessageTokens:  cfg.MaxMessageTokens,
		CompressThreshold: cfg.CompressThreshold,
		KeepRecent:        cfg.MaxHistory,
		TTL:               cfg.SessionTTL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating conversation store: %w", err)
	}
	return a, nil
}

// Close releases the application's resources. Safe to call on a
// partially initialized App.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Pool = nil
	}
}
