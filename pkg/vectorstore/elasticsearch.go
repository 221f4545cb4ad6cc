package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/es"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

// Elasticsearch stores records as documents of a dense_vector index and
// searches them with kNN.
type Elasticsearch struct {
	client       *elasticsearch.Client
	index        string
	modelVersion string
}

// NewElasticsearch returns a store over index. modelVersion is recorded
// with every document.
func NewElasticsearch(client *elasticsearch.Client, index, modelVersion string) *Elasticsearch {
	return &Elasticsearch{client: client, index: index, modelVersion: modelVersion}
}

func (s *Elasticsearch) Name() string { return "elasticsearch" }

// EnsureIndex creates the index with dims dimensions when missing.
func (s *Elasticsearch) EnsureIndex(ctx context.Context, dims int) error {
	return es.EnsureIndex(ctx, s.client, s.index, dims)
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// Upsert indexes records through one _bulk request using their ids as
// document ids. Any item error fails the call.
func (s *Elasticsearch) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		meta := map[string]interface{}{"index": map[string]interface{}{"_index": s.index, "_id": r.ID}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(model.NewEsDocument(r, s.modelVersion)); err != nil {
			return err
		}
	}

	res, err := esapi.BulkRequest{Body: &buf, Refresh: "wait_for"}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("elasticsearch bulk: %s: %s", res.Status(), strings.TrimSpace(string(body)))
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !br.Errors {
		return nil
	}
	var failed []string
	for _, item := range br.Items {
		for _, r := range item {
			if r.Error != nil {
				failed = append(failed, fmt.Sprintf("%s (%s: %s)", r.ID, r.Error.Type, r.Error.Reason))
			}
		}
	}
	log.Warnf("[VectorStore] %d of %d bulk items failed", len(failed), len(records))
	return fmt.Errorf("elasticsearch bulk: %d items failed: %s", len(failed), strings.Join(failed, "; "))
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string           `json:"_id"`
			Score  float64          `json:"_score"`
			Source model.EsDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Query runs a kNN search. Elasticsearch reports cosine scores as
// (1+cos)/2; they are mapped back to cosine similarity.
func (s *Elasticsearch) Query(ctx context.Context, req QueryRequest) ([]model.Match, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   req.Vector,
		"k":              req.TopK,
		"num_candidates": max(req.TopK*10, 100),
	}
	if f := esFilter(req.Filter); f != nil {
		knn["filter"] = f
	}
	if req.MinScore != 0 {
		knn["similarity"] = req.MinScore
	}
	body := map[string]interface{}{
		"knn":     knn,
		"size":    req.TopK,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode es query: %w", err)
	}
	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		b, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch search: %s: %s", res.Status(), strings.TrimSpace(string(b)))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode es search response: %w", err)
	}
	matches := make([]model.Match, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		m := h.Source.Metadata()
		matches = append(matches, model.Match{
			ID:       h.ID,
			Score:    2*h.Score - 1,
			Text:     m.Text,
			Metadata: m,
		})
	}
	return finish(matches, req), nil
}

// esFilter translates f into the kNN filter clause.
func esFilter(f Filter) interface{} {
	conds := f.conditions()
	if len(conds) == 0 {
		return nil
	}
	clauses := make([]interface{}, 0, len(conds))
	for _, c := range conds {
		if c.op == opEq {
			clauses = append(clauses, map[string]interface{}{"term": map[string]interface{}{c.field: c.values[0]}})
		} else {
			clauses = append(clauses, map[string]interface{}{"terms": map[string]interface{}{c.field: c.values}})
		}
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return map[string]interface{}{"bool": map[string]interface{}{"filter": clauses}}
}

// Dimension reads dims from the vector field mapping.
func (s *Elasticsearch) Dimension(ctx context.Context) (int, error) {
	res, err := esapi.IndicesGetMappingRequest{Index: []string{s.index}}.Do(ctx, s.client)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch get mapping: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch get mapping: %s", res.Status())
	}

	var mappings map[string]struct {
		Mappings struct {
			Properties map[string]struct {
				Dims int `json:"dims"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&mappings); err != nil {
		return 0, fmt.Errorf("decode es mapping: %w", err)
	}
	for _, m := range mappings {
		if v, ok := m.Mappings.Properties["vector"]; ok {
			return v.Dims, nil
		}
	}
	return 0, errors.New("elasticsearch: index has no vector field")
}
