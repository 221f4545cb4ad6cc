package vectorstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
)

// Memory is an in-process Store with exact cosine search. It is used by
// tests and dry runs.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	order     []string
	records   map[string]model.VectorRecord
}

// NewMemory returns an empty store. A dimension of 0 is fixed by the first
// upsert.
func NewMemory(dimension int) *Memory {
	return &Memory{dimension: dimension, records: make(map[string]model.VectorRecord)}
}

func (m *Memory) Name() string { return "memory" }

// Upsert stores copies of records, replacing existing ids.
func (m *Memory) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateRecords(records); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if m.dimension == 0 {
			m.dimension = len(r.Values)
		}
		if len(r.Values) != m.dimension {
			return fmt.Errorf("%w: %s has %d dimensions, index has %d", ErrInvalidRecord, r.ID, len(r.Values), m.dimension)
		}
	}
	for _, r := range records {
		if _, ok := m.records[r.ID]; !ok {
			m.order = append(m.order, r.ID)
		}
		r.Values = slices.Clone(r.Values)
		r.Metadata.Keywords = slices.Clone(r.Metadata.Keywords)
		m.records[r.ID] = r
	}
	return nil
}

// Query scans every record.
func (m *Memory) Query(ctx context.Context, req QueryRequest) ([]model.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []model.Match
	for _, id := range m.order {
		r := m.records[id]
		if !req.Filter.Matches(r.Metadata) {
			continue
		}
		matches = append(matches, model.Match{
			ID:       r.ID,
			Score:    Cosine(req.Vector, r.Values),
			Text:     r.Metadata.Text,
			Metadata: r.Metadata,
		})
	}
	return finish(matches, req), nil
}

func (m *Memory) Dimension(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimension, nil
}

// Get returns the stored record with id.
func (m *Memory) Get(id string) (model.VectorRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	return r, ok
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
