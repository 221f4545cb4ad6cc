// Package embedding turns text into vectors through an OpenAI-compatible API.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrEmptyInput is returned when a text to embed is blank.
	ErrEmptyInput = errors.New("embedding: empty input text")
	// ErrCountMismatch is returned when the provider answers with a
	// different number of vectors than texts sent.
	ErrCountMismatch = errors.New("embedding: vector count does not match input count")
)

// Embedder maps texts to vectors one-to-one, in input order. A failure
// fails the whole call.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
}

// OpenAIEmbedder calls the embeddings endpoint of any OpenAI-compatible
// provider.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an embedder from the embedding config. An empty
// BaseURL targets the OpenAI API.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) *OpenAIEmbedder {
	clientConfig := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Dimensions returns the configured vector length.
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// Embed sends texts in one request. Response items are placed by their
// index field so the output order always matches the input.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w at position %d", ErrEmptyInput, i)
		}
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	}
	if strings.HasPrefix(e.model, "text-embedding-3") && e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	log.Debugf("[EmbeddingClient] embedding %d texts with model %s", len(texts), e.model)
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		log.Errorf("[EmbeddingClient] embeddings request failed: %v", err)
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrCountMismatch, len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, fmt.Errorf("embedding: invalid response index %d", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("embedding: empty vector at index %d", d.Index)
		}
		if e.dimensions > 0 && len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("embedding: vector at index %d has %d dimensions, want %d", d.Index, len(d.Embedding), e.dimensions)
		}
		vec := make([]float32, len(d.Embedding))
		copy(vec, d.Embedding)
		out[d.Index] = vec
	}
	return out, nil
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: sent 1, got %d", ErrCountMismatch, len(vecs))
	}
	return vecs[0], nil
}
