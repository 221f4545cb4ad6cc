// Package app wires the configured backends into the ingest and retrieval
// paths shared by the server and the ingest CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/chunker"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/enricher"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/loader"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/pipeline"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/query"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/repository"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/retriever"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/database"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/embedding"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/storage"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/tika"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/tokenizer"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/vectorstore"
)

// App holds the connected components. Optional backends are nil when their
// configuration is empty: Redis without an address, the ledger without a
// MySQL DSN and object storage without a MinIO endpoint.
type App struct {
	Config    *config.Config
	Store     vectorstore.Store
	Embedder  embedding.Embedder
	Registry  *loader.Registry
	Ingestor  *pipeline.Ingestor
	Retriever *retriever.Retriever
	Redis     *redis.Client
	DB        *gorm.DB
	Ledger    repository.LedgerRepository
	Objects   *storage.ObjectStore

	closers []func() error
}

// New connects every configured backend. On error the backends opened so
// far are closed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	log.Infow("[App] components ready",
		"store", a.Store.Name(),
		"redis", a.Redis != nil,
		"ledger", a.Ledger != nil,
		"objects", a.Objects != nil,
	)
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	store, closeStore, err := vectorstore.Open(ctx, cfg)
	if err != nil {
		return err
	}
	a.Store = store
	a.closers = append(a.closers, closeStore)

	if cfg.Database.Redis.Addr != "" {
		if a.Redis, err = database.NewRedis(ctx, cfg.Database.Redis); err != nil {
			return err
		}
		a.closers = append(a.closers, a.Redis.Close)
	}
	a.Embedder = NewEmbedder(cfg.Embedding, a.Redis)

	if cfg.Database.MySQL.DSN != "" {
		if a.DB, err = database.NewMySQL(cfg.Database.MySQL.DSN); err != nil {
			return err
		}
		if sqlDB, dbErr := a.DB.DB(); dbErr == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		a.Ledger = repository.NewLedgerRepository(a.DB)
	}

	if cfg.MinIO.Endpoint != "" {
		if a.Objects, err = storage.NewObjectStore(cfg.MinIO); err != nil {
			return err
		}
		if err = a.Objects.EnsureBucket(ctx); err != nil {
			return err
		}
	}

	a.Registry = NewRegistry(cfg)
	splitter, err := NewSplitter(cfg.Chunking)
	if err != nil {
		return err
	}
	var opts []pipeline.Option
	if a.Ledger != nil {
		opts = append(opts, pipeline.WithLedger(a.Ledger))
		if cfg.Ingest.SkipUnchanged {
			opts = append(opts, pipeline.WithSkipUnchanged())
		}
	}
	if a.Objects != nil {
		opts = append(opts, pipeline.WithObjectStore(a.Objects))
	}
	a.Ingestor = pipeline.NewIngestor(a.Registry, splitter, NewEnricher(cfg.Chunking), a.Embedder, a.Store, cfg.VectorStore, opts...)
	a.Retriever = retriever.New(a.Embedder, a.Store, query.NewPlanner(nil, cfg.Retrieval.MaxVariants), cfg.Retrieval)
	return nil
}

// NewEmbedder returns the embedding client chain: batched requests under a
// rate limit, behind a Redis cache when rdb is set.
func NewEmbedder(cfg config.EmbeddingConfig, rdb *redis.Client) embedding.Embedder {
	var e embedding.Embedder = embedding.NewOpenAIEmbedder(cfg)
	e = embedding.NewBatched(e, cfg.BatchSize)
	e = embedding.NewRateLimited(e, cfg.RequestsPerSecond)
	if rdb != nil {
		e = embedding.NewCached(e, rdb, cfg.CacheTTL)
	}
	return e
}

// NewRegistry returns the loader registry. Formats without a dedicated
// loader go through Tika when a Tika server is configured.
func NewRegistry(cfg *config.Config) *loader.Registry {
	opts := loader.Options{
		CSVHeaderRows:      cfg.Chunking.CSVHeaderRows,
		JSONMetadataFields: cfg.Ingest.JSONMetadata,
	}
	if cfg.Tika.ServerURL != "" {
		opts.Extractor = tika.NewClient(cfg.Tika)
	}
	return loader.NewRegistry(opts)
}

// NewSplitter returns the splitter measuring in the configured unit.
func NewSplitter(cfg config.ChunkingConfig) (*chunker.Splitter, error) {
	measurer, err := tokenizer.ForUnit(cfg.Unit, cfg.TokenModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chunker.ErrInvalidConfig, err)
	}
	return chunker.New(
		chunker.WithMaxSize(cfg.MaxSize),
		chunker.WithOverlap(cfg.Overlap),
		chunker.WithMeasurer(measurer),
	)
}

// NewEnricher returns the metadata enricher.
func NewEnricher(cfg config.ChunkingConfig) *enricher.Enricher {
	return enricher.New(
		enricher.WithMaxKeywords(cfg.KeywordCount),
		enricher.WithFilename(true),
	)
}

// Close releases the backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
