package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
)

// recordIDKey is the payload field keeping the original string id; Qdrant
// point ids must be integers or UUIDs.
const recordIDKey = "record_id"

// QdrantOptions configures the Qdrant REST client.
type QdrantOptions struct {
	Endpoint   string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Qdrant talks to the Qdrant REST API.
type Qdrant struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	collection string
}

// NewQdrant returns a store over one collection.
func NewQdrant(opts QdrantOptions) *Qdrant {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:6333"
	}
	if !strings.HasPrefix(endpoint, "http") {
		endpoint = "http://" + endpoint
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Qdrant{
		client:     &http.Client{Timeout: timeout},
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		apiKey:     opts.APIKey,
		collection: opts.Collection,
	}
}

func (s *Qdrant) Name() string { return "qdrant" }

// PointID maps a record id onto the UUID used as Qdrant point id.
func PointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordID)).String()
}

// EnsureCollection creates the collection with cosine distance when missing.
func (s *Qdrant) EnsureCollection(ctx context.Context, dims int) error {
	got, err := s.Dimension(ctx)
	if err != nil {
		return err
	}
	if got != 0 {
		return nil
	}
	body := map[string]interface{}{
		"vectors": map[string]interface{}{"size": dims, "distance": "Cosine"},
	}
	return s.call(ctx, http.MethodPut, "/collections/"+s.collection, body, nil)
}

// Upsert writes all records in one points request and waits for it to be
// applied.
func (s *Qdrant) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records); err != nil {
		return err
	}
	points := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		payload := r.Metadata.ToMap()
		payload[recordIDKey] = r.ID
		points = append(points, map[string]interface{}{
			"id":      PointID(r.ID),
			"vector":  r.Values,
			"payload": payload,
		})
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", s.collection)
	if err := s.call(ctx, http.MethodPut, path, map[string]interface{}{"points": points}, nil); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Query runs a points search.
func (s *Qdrant) Query(ctx context.Context, req QueryRequest) ([]model.Match, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"vector":       req.Vector,
		"limit":        req.TopK,
		"with_payload": true,
		"with_vectors": false,
	}
	if f := qdrantFilter(req.Filter); f != nil {
		body["filter"] = f
	}
	if req.MinScore != 0 {
		body["score_threshold"] = req.MinScore
	}

	var resp struct {
		Result []struct {
			ID      interface{}            `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", s.collection)
	if err := s.call(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	matches := make([]model.Match, 0, len(resp.Result))
	for _, item := range resp.Result {
		id, _ := item.Payload[recordIDKey].(string)
		if id == "" {
			id = fmt.Sprint(item.ID)
		}
		m := model.MetadataFromMap(item.Payload)
		matches = append(matches, model.Match{ID: id, Score: item.Score, Text: m.Text, Metadata: m})
	}
	return finish(matches, req), nil
}

// qdrantFilter translates f into a must clause of match conditions.
func qdrantFilter(f Filter) map[string]interface{} {
	conds := f.conditions()
	if len(conds) == 0 {
		return nil
	}
	must := make([]map[string]interface{}, 0, len(conds))
	for _, c := range conds {
		values := make([]interface{}, len(c.values))
		for i, v := range c.values {
			values[i] = payloadValue(c.field, v)
		}
		var match map[string]interface{}
		if c.op == opEq {
			match = map[string]interface{}{"value": values[0]}
		} else {
			match = map[string]interface{}{"any": values}
		}
		must = append(must, map[string]interface{}{"key": c.field, "match": match})
	}
	return map[string]interface{}{"must": must}
}

// payloadValue converts filter values of numeric fields back to numbers.
func payloadValue(field, v string) interface{} {
	if field == model.FieldChunkIndex {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return v
}

// Dimension reads the vector size of the collection; 0 when it is missing.
func (s *Qdrant) Dimension(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.call(ctx, http.MethodGet, "/collections/"+s.collection, nil, &resp)
	if errNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("qdrant get collection: %w", err)
	}
	return resp.Result.Config.Params.Vectors.Size, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func errNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

func (s *Qdrant) call(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
