package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

const (
	milvusIDField       = "id"
	milvusVectorField   = "vector"
	milvusMetadataField = "metadata"
)

// Milvus stores records in a collection with a varchar primary key, a
// float vector and the metadata record as a JSON column.
type Milvus struct {
	client     client.Client
	collection string
}

// NewMilvus connects to the Milvus server of cfg.
func NewMilvus(ctx context.Context, cfg config.MilvusConfig) (*Milvus, error) {
	address := cfg.Address
	if address == "" {
		address = "localhost:19530"
	}
	c, err := client.NewClient(ctx, client.Config{
		Address:  address,
		DBName:   cfg.Database,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}
	return &Milvus{client: c, collection: cfg.Collection}, nil
}

func (s *Milvus) Name() string { return "milvus" }

// Close releases the gRPC connection.
func (s *Milvus) Close() error { return s.client.Close() }

// EnsureCollection creates and loads the collection with an HNSW cosine
// index when it does not exist.
func (s *Milvus) EnsureCollection(ctx context.Context, dims int) error {
	has, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		schema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "university content chunks",
			Fields: []*entity.Field{
				{
					Name:       milvusIDField,
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{"max_length": "512"},
				},
				{
					Name:       milvusVectorField,
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{"dim": strconv.Itoa(dims)},
				},
				{
					Name:     milvusMetadataField,
					DataType: entity.FieldTypeJSON,
				},
			},
		}
		if err := s.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		index, err := entity.NewIndexHNSW(entity.COSINE, 8, 64)
		if err != nil {
			return fmt.Errorf("failed to build index: %w", err)
		}
		if err := s.client.CreateIndex(ctx, s.collection, milvusVectorField, index, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		log.Infof("[VectorStore] milvus collection '%s' created with %d dimensions", s.collection, dims)
	}
	return s.client.LoadCollection(ctx, s.collection, false)
}

// Upsert writes records as one column batch.
func (s *Milvus) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records); err != nil {
		return err
	}
	dim := len(records[0].Values)
	ids := make([]string, 0, len(records))
	vectors := make([][]float32, 0, len(records))
	metas := make([][]byte, 0, len(records))
	for _, r := range records {
		if len(r.Values) != dim {
			return fmt.Errorf("%w: %s has %d dimensions, batch has %d", ErrInvalidRecord, r.ID, len(r.Values), dim)
		}
		raw, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", r.ID, err)
		}
		ids = append(ids, r.ID)
		vectors = append(vectors, r.Values)
		metas = append(metas, raw)
	}

	_, err := s.client.Upsert(ctx, s.collection, "",
		entity.NewColumnVarChar(milvusIDField, ids),
		entity.NewColumnFloatVector(milvusVectorField, dim, vectors),
		entity.NewColumnJSONBytes(milvusMetadataField, metas),
	)
	if err != nil {
		return fmt.Errorf("milvus upsert failed: %w", err)
	}
	return nil
}

// Query runs an HNSW search. With the COSINE metric Milvus reports cosine
// similarity directly.
func (s *Milvus) Query(ctx context.Context, req QueryRequest) ([]model.Match, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	sp, err := entity.NewIndexHNSWSearchParam(max(64, req.TopK))
	if err != nil {
		return nil, err
	}
	results, err := s.client.Search(
		ctx,
		s.collection,
		[]string{},
		milvusExpr(req.Filter),
		[]string{milvusMetadataField},
		[]entity.Vector{entity.FloatVector(req.Vector)},
		milvusVectorField,
		entity.COSINE,
		req.TopK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(results) == 0 {
		return []model.Match{}, nil
	}
	result := results[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}

	var ids []string
	if col, ok := result.IDs.(*entity.ColumnVarChar); ok {
		ids = col.Data()
	}
	var metas [][]byte
	for _, field := range result.Fields {
		if field.Name() != milvusMetadataField {
			continue
		}
		if col, ok := field.(*entity.ColumnJSONBytes); ok {
			metas = col.Data()
		}
	}

	matches := make([]model.Match, 0, result.ResultCount)
	for i := 0; i < result.ResultCount && i < len(ids); i++ {
		var m model.Metadata
		if i < len(metas) {
			if err := json.Unmarshal(metas[i], &m); err != nil {
				log.Warnf("[VectorStore] skipping milvus hit %s: bad metadata: %v", ids[i], err)
				continue
			}
		}
		score := 0.0
		if i < len(result.Scores) {
			score = float64(result.Scores[i])
		}
		matches = append(matches, model.Match{ID: ids[i], Score: score, Text: m.Text, Metadata: m})
	}
	return finish(matches, req), nil
}

// milvusExpr translates f into a boolean expression over the JSON
// metadata column.
func milvusExpr(f Filter) string {
	conds := f.conditions()
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		key := fmt.Sprintf("%s[%q]", milvusMetadataField, c.field)
		values := make([]string, len(c.values))
		for i, v := range c.values {
			if n, ok := payloadValue(c.field, v).(int); ok {
				values[i] = strconv.Itoa(n)
			} else {
				values[i] = strconv.Quote(v)
			}
		}
		list := "[" + strings.Join(values, ", ") + "]"
		switch {
		case c.field == model.FieldKeywords:
			parts = append(parts, fmt.Sprintf("json_contains_any(%s, %s)", key, list))
		case c.op == opEq:
			parts = append(parts, fmt.Sprintf("%s == %s", key, values[0]))
		default:
			parts = append(parts, fmt.Sprintf("%s in %s", key, list))
		}
	}
	return strings.Join(parts, " && ")
}

// Dimension reads dim from the vector field of the collection schema.
func (s *Milvus) Dimension(ctx context.Context) (int, error) {
	has, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		return 0, nil
	}
	coll, err := s.client.DescribeCollection(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to describe collection: %w", err)
	}
	for _, f := range coll.Schema.Fields {
		if f.Name == milvusVectorField {
			return strconv.Atoi(f.TypeParams["dim"])
		}
	}
	return 0, fmt.Errorf("milvus collection %s has no %s field", s.collection, milvusVectorField)
}
