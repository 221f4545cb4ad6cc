package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
)

type fakeQdrant struct {
	size       int
	points     map[string]map[string]interface{}
	lastSearch map[string]interface{}
	apiKey     string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.apiKey = r.Header.Get("api-key")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/collections/chunks":
		if f.size == 0 {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":` + itoa(f.size) + `,"distance":"Cosine"}}}}}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.size = body.Vectors.Size
		_, _ = w.Write([]byte(`{"result":true}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points":
		var body struct {
			Points []map[string]interface{} `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			f.points[p["id"].(string)] = p
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case r.Method == http.MethodPost && r.URL.Path == "/collections/chunks/points/search":
		_ = json.NewDecoder(r.Body).Decode(&f.lastSearch)
		var hits []map[string]interface{}
		for id, p := range f.points {
			hits = append(hits, map[string]interface{}{"id": id, "score": 0.91, "payload": p["payload"]})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": hits})
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestQdrant_RoundTrip(t *testing.T) {
	fake := &fakeQdrant{points: map[string]map[string]interface{}{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ctx := context.Background()

	s := NewQdrant(QdrantOptions{Endpoint: srv.URL, APIKey: "secret", Collection: "chunks"})

	dims, err := s.Dimension(ctx)
	require.NoError(t, err)
	assert.Zero(t, dims)
	require.NoError(t, s.EnsureCollection(ctx, 3))
	dims, err = s.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dims)
	assert.Equal(t, "secret", fake.apiKey)

	rec := record("admissions_txt_chunk_0", []float32{1, 0, 0}, model.Metadata{Keywords: []string{"gpa"}})
	require.NoError(t, s.Upsert(ctx, []model.VectorRecord{rec}))
	require.NoError(t, s.Upsert(ctx, []model.VectorRecord{rec}))
	require.Len(t, fake.points, 1)
	_, ok := fake.points[PointID(rec.ID)]
	assert.True(t, ok, "point id is the UUID of the record id")

	got, err := s.Query(ctx, QueryRequest{
		Vector:          []float32{1, 0, 0},
		TopK:            5,
		MinScore:        0.7,
		Filter:          And(Eq("source", "test.txt"), In("keywords", "gpa", "fees"), Eq("chunk_index", "0")),
		IncludeMetadata: true,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.InDelta(t, 0.91, got[0].Score, 1e-9)
	assert.Equal(t, []string{"gpa"}, got[0].Metadata.Keywords)

	assert.EqualValues(t, 0.7, fake.lastSearch["score_threshold"])
	filter, _ := json.Marshal(fake.lastSearch["filter"])
	assert.JSONEq(t, `{"must":[
		{"key":"source","match":{"value":"test.txt"}},
		{"key":"keywords","match":{"any":["gpa","fees"]}},
		{"key":"chunk_index","match":{"value":0}}
	]}`, string(filter))
}

func TestQdrant_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewQdrant(QdrantOptions{Endpoint: srv.URL, Collection: "chunks"})
	err := s.Upsert(context.Background(), records(2))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "503"))

	_, err = s.Dimension(context.Background())
	assert.Error(t, err)
}

func TestPointID_Deterministic(t *testing.T) {
	assert.Equal(t, PointID("a_chunk_1"), PointID("a_chunk_1"))
	assert.NotEqual(t, PointID("a_chunk_1"), PointID("a_chunk_2"))
	assert.Len(t, PointID("x"), 36)
}
