package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

// BatchError reports the provider batch that failed. Batches before it
// succeeded; nothing after it was attempted.
type BatchError struct {
	Index  int // batch number
	Offset int // position of the batch's first text in the input
	Size   int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding batch %d (texts %d-%d): %v", e.Index, e.Offset, e.Offset+e.Size-1, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Batched splits long inputs into provider-sized requests, sent one after
// another.
type Batched struct {
	next Embedder
	size int
}

// NewBatched wraps next so that no request carries more than size texts.
func NewBatched(next Embedder, size int) *Batched {
	if size <= 0 {
		size = 1
	}
	return &Batched{next: next, size: size}
}

func (b *Batched) Model() string   { return b.next.Model() }
func (b *Batched) Dimensions() int { return b.next.Dimensions() }

// Embed returns a *BatchError for the first failing batch.
func (b *Batched) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.size {
		end := min(start+b.size, len(texts))
		vecs, err := b.next.Embed(ctx, texts[start:end])
		if err == nil && len(vecs) != end-start {
			err = fmt.Errorf("%w: sent %d, got %d", ErrCountMismatch, end-start, len(vecs))
		}
		if err != nil {
			return nil, &BatchError{Index: start / b.size, Offset: start, Size: end - start, Err: err}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// RateLimited holds every call until the limiter grants it.
type RateLimited struct {
	next    Embedder
	limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second. rps <= 0 disables the
// limit.
func NewRateLimited(next Embedder, rps float64) *RateLimited {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, 1)}
}

func (r *RateLimited) Model() string   { return r.next.Model() }
func (r *RateLimited) Dimensions() int { return r.next.Dimensions() }

// Embed waits for the limiter, then delegates.
func (r *RateLimited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		log.Warnf("[EmbeddingClient] rate limiter wait aborted: %v", err)
		return nil, err
	}
	return r.next.Embed(ctx, texts)
}
