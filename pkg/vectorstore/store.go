// Package vectorstore stores chunk vectors and answers similarity queries.
//
// Every backend implements Store: Upsert writes one batch in one call and
// Query returns matches ranked by cosine similarity, higher is better. Batch
// sizing, partial-failure handling and retries live in BatchWriter and
// Retrying, which wrap any Store.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
)

// MaxBatchSize is the largest number of records sent in one upsert call.
const MaxBatchSize = 100

var (
	// ErrDimensionMismatch is returned at startup when the index and the
	// embedding model disagree on vector length.
	ErrDimensionMismatch = errors.New("vectorstore: index dimension does not match embedding dimension")
	// ErrInvalidRecord is returned for a record with an empty id, no
	// vector or invalid metadata.
	ErrInvalidRecord = errors.New("vectorstore: invalid record")
)

// Store is a vector index.
type Store interface {
	// Name identifies the backend in logs and stats.
	Name() string
	// Upsert writes records in a single call. Records whose id already
	// exists are overwritten.
	Upsert(ctx context.Context, records []model.VectorRecord) error
	// Query returns at most TopK matches ordered by descending score.
	Query(ctx context.Context, req QueryRequest) ([]model.Match, error)
	// Dimension returns the vector length of the index, or 0 when the
	// index does not exist yet.
	Dimension(ctx context.Context) (int, error)
}

// QueryRequest describes one similarity search.
type QueryRequest struct {
	Vector []float32
	TopK   int
	Filter Filter
	// MinScore drops matches scoring below it. Zero keeps everything.
	MinScore float64
	// IncludeMetadata asks for the metadata record of each match.
	IncludeMetadata bool
}

// Validate checks the request before it is sent to a backend.
func (r QueryRequest) Validate() error {
	if len(r.Vector) == 0 {
		return errors.New("vectorstore: query vector is empty")
	}
	if r.TopK <= 0 {
		return fmt.Errorf("vectorstore: top_k must be positive, got %d", r.TopK)
	}
	return r.Filter.Validate()
}

// CheckDimension fails with ErrDimensionMismatch when the index exists
// with a vector length other than want.
func CheckDimension(ctx context.Context, s Store, want int) error {
	got, err := s.Dimension(ctx)
	if err != nil {
		return fmt.Errorf("read %s index dimension: %w", s.Name(), err)
	}
	if got != 0 && got != want {
		return fmt.Errorf("%w: %s index has %d, embedding model produces %d", ErrDimensionMismatch, s.Name(), got, want)
	}
	return nil
}

func validateRecords(records []model.VectorRecord) error {
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: empty id", ErrInvalidRecord)
		}
		if len(r.Values) == 0 {
			return fmt.Errorf("%w: %s has no vector", ErrInvalidRecord, r.ID)
		}
		if err := r.Metadata.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRecord, r.ID, err)
		}
	}
	return nil
}

// finish applies the score floor, orders by descending score (stable) and
// truncates to topK.
func finish(matches []model.Match, req QueryRequest) []model.Match {
	out := matches[:0]
	for _, m := range matches {
		if req.MinScore != 0 && m.Score < req.MinScore {
			continue
		}
		if !req.IncludeMetadata {
			m.Metadata = model.Metadata{}
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > req.TopK {
		out = out[:req.TopK]
	}
	return out
}

// Cosine returns the cosine similarity of a and b, 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
