package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
)

// newEmbeddingsServer answers /embeddings with a 2-dimensional vector per
// input, [len(text), position], listed in reverse order.
func newEmbeddingsServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		*calls++
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i])), float32(i)},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	}))
}

func TestOpenAIEmbedder_PreservesOrder(t *testing.T) {
	calls := 0
	srv := newEmbeddingsServer(t, &calls)
	defer srv.Close()

	e := NewOpenAIEmbedder(config.EmbeddingConfig{BaseURL: srv.URL, Model: "test-model", Dimensions: 2})
	vecs, err := e.Embed(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{3, 1}, vecs[1])
	assert.Equal(t, []float32{2, 2}, vecs[2])
	assert.Equal(t, 1, calls)
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()
	e := NewOpenAIEmbedder(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m"})

	_, err := e.Embed(context.Background(), []string{"x"})
	assert.Error(t, err)

	_, err = e.Embed(context.Background(), []string{"ok", "  "})
	assert.ErrorIs(t, err, ErrEmptyInput)

	vecs, err := e.Embed(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestOpenAIEmbedder_DimensionCheck(t *testing.T) {
	calls := 0
	srv := newEmbeddingsServer(t, &calls)
	defer srv.Close()

	e := NewOpenAIEmbedder(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m", Dimensions: 3})
	_, err := e.Embed(context.Background(), []string{"x"})
	assert.Error(t, err)
}

type stubEmbedder struct {
	mu     sync.Mutex
	calls  [][]string
	failOn int // 1-based call number to fail, 0 never
	short  bool
}

func (s *stubEmbedder) Model() string   { return "stub" }
func (s *stubEmbedder) Dimensions() int { return 1 }

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]string(nil), texts...))
	if s.failOn == len(s.calls) {
		return nil, errors.New("provider down")
	}
	n := len(texts)
	if s.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func TestBatched(t *testing.T) {
	stub := &stubEmbedder{}
	b := NewBatched(stub, 2)

	vecs, err := b.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}, {3}, {4}, {5}}, vecs)
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc", "dddd"}, {"eeeee"}}, stub.calls)
}

func TestBatched_FailureReportsBatch(t *testing.T) {
	stub := &stubEmbedder{failOn: 2}
	_, err := NewBatched(stub, 2).Embed(context.Background(), []string{"a", "b", "c", "d", "e"})

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Index)
	assert.Equal(t, 2, be.Offset)
	assert.Equal(t, 2, be.Size)
	assert.Len(t, stub.calls, 2)
}

func TestBatched_CountMismatch(t *testing.T) {
	_, err := NewBatched(&stubEmbedder{short: true}, 10).Embed(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestRateLimited_CancelledContext(t *testing.T) {
	r := NewRateLimited(&stubEmbedder{}, 0.001)
	_, err := r.Embed(context.Background(), []string{"first"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Embed(ctx, []string{"second"})
	assert.Error(t, err)
}

type memoryCache struct {
	data    map[string]string
	failGet bool
}

func (m *memoryCache) MGet(_ context.Context, keys ...string) *redis.SliceCmd {
	if m.failGet {
		return redis.NewSliceResult(nil, errors.New("redis down"))
	}
	vals := make([]interface{}, len(keys))
	for i, k := range keys {
		if v, ok := m.data[k]; ok {
			vals[i] = v
		}
	}
	return redis.NewSliceResult(vals, nil)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func TestCached(t *testing.T) {
	stub := &stubEmbedder{}
	cache := &memoryCache{data: map[string]string{}}
	c := NewCached(stub, cache, time.Hour)

	vecs, err := c.Embed(context.Background(), []string{"one", "three"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3}, {5}}, vecs)

	vecs, err = c.Embed(context.Background(), []string{"three", "fourth", "one"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{5}, {6}, {3}}, vecs)
	assert.Equal(t, [][]string{{"one", "three"}, {"fourth"}}, stub.calls)
}

func TestCached_LookupFailureFallsThrough(t *testing.T) {
	stub := &stubEmbedder{}
	c := NewCached(stub, &memoryCache{data: map[string]string{}, failGet: true}, time.Hour)

	vecs, err := c.Embed(context.Background(), []string{"ab"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2}}, vecs)
}
