package vectorstore

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

// BatchResult is the outcome of one upsert batch.
type BatchResult struct {
	Index int
	IDs   []string
	Err   error
}

// UpsertReport lists every batch of a Write in input order.
type UpsertReport struct {
	Batches []BatchResult
}

// Written returns the number of records in successful batches.
func (r UpsertReport) Written() int {
	n := 0
	for _, b := range r.Batches {
		if b.Err == nil {
			n += len(b.IDs)
		}
	}
	return n
}

// Failed returns the failed batches.
func (r UpsertReport) Failed() []BatchResult {
	var out []BatchResult
	for _, b := range r.Batches {
		if b.Err != nil {
			out = append(out, b)
		}
	}
	return out
}

// FailedIDs returns the ids of all records in failed batches.
func (r UpsertReport) FailedIDs() []string {
	var out []string
	for _, b := range r.Failed() {
		out = append(out, b.IDs...)
	}
	return out
}

// Err summarizes the failures, nil when every batch succeeded.
func (r UpsertReport) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d upsert batches failed, first (batch %d): %w", len(failed), len(r.Batches), failed[0].Index, failed[0].Err)
}

// BatchWriter splits records into store-sized batches. A failed batch is
// logged and recorded; the remaining batches are still written.
type BatchWriter struct {
	store     Store
	batchSize int
	workers   int
	observe   func(ok bool)
}

// WriterOption configures a BatchWriter.
type WriterOption func(*BatchWriter)

// WithWorkers writes up to n batches concurrently.
func WithWorkers(n int) WriterOption {
	return func(w *BatchWriter) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithBatchObserver is called once per finished batch.
func WithBatchObserver(fn func(ok bool)) WriterOption {
	return func(w *BatchWriter) { w.observe = fn }
}

// NewBatchWriter returns a sequential writer. batchSize is clamped to
// (0, MaxBatchSize].
func NewBatchWriter(store Store, batchSize int, opts ...WriterOption) *BatchWriter {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	w := &BatchWriter{store: store, batchSize: batchSize, workers: 1}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Store returns the wrapped store.
func (w *BatchWriter) Store() Store { return w.store }

// Write upserts records batch by batch.
func (w *BatchWriter) Write(ctx context.Context, records []model.VectorRecord) UpsertReport {
	var batches [][]model.VectorRecord
	for start := 0; start < len(records); start += w.batchSize {
		end := min(start+w.batchSize, len(records))
		batches = append(batches, records[start:end])
	}
	report := UpsertReport{Batches: make([]BatchResult, len(batches))}
	if len(batches) == 0 {
		return report
	}

	if w.workers <= 1 || len(batches) == 1 {
		for i, b := range batches {
			report.Batches[i] = w.writeBatch(ctx, i, b)
		}
		return report
	}

	p := pool.New().WithMaxGoroutines(w.workers)
	for i, b := range batches {
		p.Go(func() {
			report.Batches[i] = w.writeBatch(ctx, i, b)
		})
	}
	p.Wait()
	return report
}

func (w *BatchWriter) writeBatch(ctx context.Context, index int, batch []model.VectorRecord) BatchResult {
	ids := make([]string, len(batch))
	for i, r := range batch {
		ids[i] = r.ID
	}
	res := BatchResult{Index: index, IDs: ids}
	if err := ctx.Err(); err != nil {
		res.Err = err
	} else {
		res.Err = w.store.Upsert(ctx, batch)
	}
	if res.Err != nil {
		log.Errorf("[VectorStore] %s upsert batch %d (%d records) failed: %v", w.store.Name(), index, len(batch), res.Err)
	} else {
		log.Debugf("[VectorStore] %s upsert batch %d wrote %d records", w.store.Name(), index, len(batch))
	}
	if w.observe != nil {
		w.observe(res.Err == nil)
	}
	return res
}
