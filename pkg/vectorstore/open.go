package vectorstore

import (
	"context"
	"fmt"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/es"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

// Open connects the configured backend, verifies that an existing index
// matches the embedding dimension, creates the index when missing and wraps
// the store with retries. The returned close function releases the
// backend connection.
func Open(ctx context.Context, cfg *config.Config) (Store, func() error, error) {
	dims := cfg.Embedding.Dimensions
	noop := func() error { return nil }

	var (
		store  Store
		closer = noop
		ensure func(context.Context, int) error
	)
	switch cfg.VectorStore.Backend {
	case "elasticsearch":
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return nil, nil, err
		}
		s := NewElasticsearch(client, cfg.Elasticsearch.IndexName, cfg.Embedding.Model)
		store, ensure = s, s.EnsureIndex
	case "qdrant":
		s := NewQdrant(QdrantOptions{
			Endpoint:   cfg.Qdrant.Endpoint,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    cfg.Qdrant.Timeout,
		})
		store, ensure = s, s.EnsureCollection
	case "milvus":
		s, err := NewMilvus(ctx, cfg.Milvus)
		if err != nil {
			return nil, nil, err
		}
		store, ensure, closer = s, s.EnsureCollection, s.Close
	case "pgvector":
		s, err := NewPGVector(ctx, cfg.PGVector.DSN, cfg.PGVector.Table)
		if err != nil {
			return nil, nil, fmt.Errorf("connect pgvector: %w", err)
		}
		store, ensure, closer = s, s.EnsureTable, s.Close
	case "memory":
		store = NewMemory(dims)
	default:
		return nil, nil, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
	}

	if err := CheckDimension(ctx, store, dims); err != nil {
		_ = closer()
		return nil, nil, err
	}
	if ensure != nil {
		if err := ensure(ctx, dims); err != nil {
			_ = closer()
			return nil, nil, fmt.Errorf("prepare %s index: %w", store.Name(), err)
		}
	}
	log.Infof("[VectorStore] using %s backend with %d dimensions", store.Name(), dims)

	return NewRetrying(store, cfg.VectorStore.RetryAttempts, cfg.VectorStore.RetryBackoff), closer, nil
}
