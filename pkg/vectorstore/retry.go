package vectorstore

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

// Retrying retries failed Upsert and Query calls of the wrapped store with
// exponential backoff and full jitter. Invalid input and context errors are
// not retried.
type Retrying struct {
	next     Store
	attempts int
	base     time.Duration
	maxDelay time.Duration
	wait     func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps next. attempts counts the first call; values below 1
// are treated as 1.
func NewRetrying(next Store, attempts int, base time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{
		next:     next,
		attempts: attempts,
		base:     base,
		maxDelay: 30 * time.Second,
		wait:     sleep,
	}
}

func (r *Retrying) Name() string { return r.next.Name() }

func (r *Retrying) Upsert(ctx context.Context, records []model.VectorRecord) error {
	return r.do(ctx, "upsert", func() error {
		return r.next.Upsert(ctx, records)
	})
}

func (r *Retrying) Query(ctx context.Context, req QueryRequest) ([]model.Match, error) {
	var out []model.Match
	err := r.do(ctx, "query", func() error {
		var err error
		out, err = r.next.Query(ctx, req)
		return err
	})
	return out, err
}

func (r *Retrying) Dimension(ctx context.Context) (int, error) {
	return r.next.Dimension(ctx)
}

func (r *Retrying) do(ctx context.Context, op string, call func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = call(); err == nil || !retryable(err) || attempt >= r.attempts {
			return err
		}
		delay := r.backoff(attempt)
		log.Warnf("[VectorStore] %s %s attempt %d/%d failed, retrying in %s: %v", r.next.Name(), op, attempt, r.attempts, delay, err)
		if werr := r.wait(ctx, delay); werr != nil {
			return err
		}
	}
}

// backoff returns a random delay in [0, base*2^(attempt-1)], capped.
func (r *Retrying) backoff(attempt int) time.Duration {
	if r.base <= 0 {
		return 0
	}
	d := r.base << (attempt - 1)
	if d <= 0 || d > r.maxDelay {
		d = r.maxDelay
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrInvalidRecord), errors.Is(err, ErrInvalidFilter), errors.Is(err, ErrDimensionMismatch):
		return false
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
