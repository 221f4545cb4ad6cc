package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

// PGVector stores records in a Postgres table with a pgvector column and
// the metadata record as jsonb.
type PGVector struct {
	pool  *pgxpool.Pool
	table string
}

// NewPGVector opens a pool on dsn and pings it.
func NewPGVector(ctx context.Context, dsn, table string) (*PGVector, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PGVector{pool: pool, table: table}, nil
}

func (s *PGVector) Name() string { return "pgvector" }

func (s *PGVector) ident() string { return pgx.Identifier{s.table}.Sanitize() }

// EnsureTable creates the extension, the table and its cosine index.
func (s *PGVector) EnsureTable(ctx context.Context, dims int) error {
	t := s.ident()
	idx := pgx.Identifier{s.table + "_embedding_idx"}.Sanitize()
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata JSONB NOT NULL,
		embedding vector(%d) NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops);
	`, t, dims, idx, t)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Upsert writes records in one batch round trip inside a transaction, so a
// failing batch leaves no partial rows.
func (s *PGVector) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records); err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, content, metadata, embedding, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at`, s.ident())

	batch := &pgx.Batch{}
	for _, r := range records {
		raw, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", r.ID, err)
		}
		batch.Queue(query, r.ID, r.Metadata.Text, string(raw), pgvector.NewVector(r.Values))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pgvector upsert: %w", err)
	}
	return tx.Commit(ctx)
}

// Query orders by cosine distance; similarity is 1 - distance.
func (s *PGVector) Query(ctx context.Context, req QueryRequest) ([]model.Match, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	args := []interface{}{pgvector.NewVector(req.Vector)}
	where, args := pgWhere(req.Filter, args)
	query := fmt.Sprintf(`
		SELECT id, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT %d`, s.ident(), where, req.TopK)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		var (
			id    string
			raw   []byte
			score float64
		)
		if err := rows.Scan(&id, &raw, &score); err != nil {
			return nil, err
		}
		var m model.Metadata
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Warnf("[VectorStore] skipping pgvector row %s: bad metadata: %v", id, err)
			continue
		}
		matches = append(matches, model.Match{ID: id, Score: score, Text: m.Text, Metadata: m})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return finish(matches, req), nil
}

// pgWhere renders f as jsonb predicates, appending its parameters to args.
func pgWhere(f Filter, args []interface{}) (string, []interface{}) {
	conds := f.conditions()
	if len(conds) == 0 {
		return "", args
	}
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		args = append(args, c.values)
		n := len(args)
		if c.field == model.FieldKeywords {
			parts = append(parts, fmt.Sprintf("metadata->'keywords' ?| $%d::text[]", n))
			continue
		}
		parts = append(parts, fmt.Sprintf("metadata->>%s = ANY($%d::text[])", quoteLiteral(c.field), n))
	}
	return "WHERE " + strings.Join(parts, " AND "), args
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Dimension reads the declared length of the embedding column.
func (s *PGVector) Dimension(ctx context.Context) (int, error) {
	var dims int
	err := s.pool.QueryRow(ctx, `
		SELECT a.atttypmod FROM pg_attribute a
		WHERE a.attrelid = to_regclass($1) AND a.attname = 'embedding'`, s.table).Scan(&dims)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read pgvector dimension: %w", err)
	}
	return dims, nil
}

// Close closes the pool.
func (s *PGVector) Close() error {
	if s.pool != nil {
		s.pool.Close()
		log.Info("[VectorStore] postgres connection pool is closed")
	}
	return nil
}
