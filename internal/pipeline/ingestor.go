// Package pipeline runs the write path: load, split, enrich, embed and
// upsert, recording the outcome of every chunk in the ledger.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/chunker"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/enricher"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/loader"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/repository"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/embedding"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/metrics"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/storage"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/tasks"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/vectorstore"
)

var (
	// ErrPartialIngest is returned when some chunks of a file were not
	// indexed. The ledger holds the failed rows.
	ErrPartialIngest = errors.New("pipeline: some chunks were not indexed")
	// ErrEmptyFile is returned for a file without content.
	ErrEmptyFile = errors.New("pipeline: empty file")
	// ErrNoObjectStore is returned by Process when no object store is set.
	ErrNoObjectStore = errors.New("pipeline: object storage is not configured")
)

// Report summarizes an ingest run.
type Report struct {
	Files     int      `json:"files"`
	Skipped   int      `json:"skipped"`
	Chunks    int      `json:"chunks"`
	Indexed   int      `json:"indexed"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failedIds,omitempty"`
}

func (r *Report) add(o Report) {
	r.Files += o.Files
	r.Skipped += o.Skipped
	r.Chunks += o.Chunks
	r.Indexed += o.Indexed
	r.Failed += o.Failed
	r.FailedIDs = append(r.FailedIDs, o.FailedIDs...)
}

// Ingestor owns the components of the write path.
type Ingestor struct {
	registry  *loader.Registry
	splitter  *chunker.Splitter
	enricher  *enricher.Enricher
	embedder  embedding.Embedder
	writer    *vectorstore.BatchWriter
	batchSize int
	ledger    repository.LedgerRepository
	objects   *storage.ObjectStore

	skipUnchanged bool
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithLedger records chunk outcomes in repo.
func WithLedger(repo repository.LedgerRepository) Option {
	return func(i *Ingestor) { i.ledger = repo }
}

// WithObjectStore lets Process fetch task files from object storage.
func WithObjectStore(objects *storage.ObjectStore) Option {
	return func(i *Ingestor) { i.objects = objects }
}

// WithSkipUnchanged skips files whose content hash matches a fully indexed
// ledger entry. It has no effect without a ledger.
func WithSkipUnchanged() Option {
	return func(i *Ingestor) { i.skipUnchanged = true }
}

// NewIngestor wires the write path over store.
func NewIngestor(
	registry *loader.Registry,
	splitter *chunker.Splitter,
	enr *enricher.Enricher,
	embedder embedding.Embedder,
	store vectorstore.Store,
	cfg config.VectorStoreConfig,
	opts ...Option,
) *Ingestor {
	backend := store.Name()
	i := &Ingestor{
		registry: registry,
		splitter: splitter,
		enricher: enr,
		embedder: embedder,
		writer: vectorstore.NewBatchWriter(store, cfg.BatchSize,
			vectorstore.WithWorkers(cfg.UpsertWorkers),
			vectorstore.WithBatchObserver(func(ok bool) { metrics.UpsertBatch(backend, ok) }),
		),
		batchSize: min(max(cfg.BatchSize, 1), vectorstore.MaxBatchSize),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Process ingests the object named by task. It implements the Kafka
// consumer's TaskProcessor.
func (i *Ingestor) Process(ctx context.Context, task tasks.IngestTask) error {
	if i.objects == nil {
		return ErrNoObjectStore
	}
	log.Infof("[Ingestor] processing task source=%s object=%s reconcile=%t", task.Source, task.ObjectKey, task.Reconcile)
	rep, err := i.IngestFile(ctx, storage.NewObjectKeys(i.objects, task.ObjectKey), task.ObjectKey)
	if err != nil {
		return err
	}
	if rep.Failed > 0 {
		return fmt.Errorf("%w: %d of %d chunks of %s", ErrPartialIngest, rep.Failed, rep.Chunks, task.Source)
	}
	return nil
}

// IngestSource ingests every supported file of src. Files that cannot be
// read or parsed are logged and skipped; only a listing failure or a
// cancelled context is returned.
func (i *Ingestor) IngestSource(ctx context.Context, src loader.Source) (Report, error) {
	names, err := src.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list inputs: %w", err)
	}
	return i.ingestNames(ctx, src, names)
}

func (i *Ingestor) ingestNames(ctx context.Context, src loader.Source, names []string) (Report, error) {
	var total Report
	start := time.Now()
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if !i.registry.Supports(name) {
			log.Warnf("[Ingestor] skipping unsupported file %s", name)
			total.Skipped++
			continue
		}
		rep, err := i.IngestFile(ctx, src, name)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return total, ctxErr
			}
			log.Warnf("[Ingestor] skipping %s: %v", name, err)
			total.Skipped++
			continue
		}
		total.add(rep)
	}
	log.Infow("[Ingestor] run finished",
		"files", total.Files, "skipped", total.Skipped, "chunks", total.Chunks,
		"indexed", total.Indexed, "failed", total.Failed, "took", time.Since(start).String())
	return total, nil
}

// IngestFile loads name from src and indexes its chunks. Embedding and
// upsert failures are counted in the report, not returned.
func (i *Ingestor) IngestFile(ctx context.Context, src loader.Source, name string) (Report, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return Report{}, fmt.Errorf("open %s: %w", name, err)
	}
	buf := new(bytes.Buffer)
	_, err = io.Copy(buf, rc)
	rc.Close()
	if err != nil {
		return Report{}, fmt.Errorf("read %s: %w", name, err)
	}
	if buf.Len() == 0 {
		return Report{}, fmt.Errorf("%w: %s", ErrEmptyFile, name)
	}
	fileMD5 := model.ContentMD5(buf.String())
	source := loader.SourceOf(src, name)
	if i.unchanged(ctx, source, fileMD5) {
		log.Infof("[Ingestor] %s is unchanged, skipping", source)
		return Report{Skipped: 1}, nil
	}

	docs, err := i.registry.LoadAs(source, name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return Report{}, err
	}
	if i.ledger != nil {
		if err := i.ledger.UpsertSource(ctx, &model.SourceFile{Source: source, FileMD5: fileMD5, ObjectKey: name}); err != nil {
			return Report{}, err
		}
	}

	records, err := i.Chunk(docs)
	if err != nil {
		return Report{}, fmt.Errorf("chunk %s: %w", name, err)
	}
	log.Infof("[Ingestor] %s: %d documents, %d chunks", source, len(docs), len(records))

	rows := make([]model.ChunkLedger, len(records))
	for k, r := range records {
		rows[k] = model.ChunkLedger{
			VectorID:   r.ID,
			Source:     source,
			ChunkIndex: r.Metadata.ChunkIndex,
			ContentMD5: model.ContentMD5(r.Metadata.Text),
			Status:     model.ChunkIndexed,
			BatchIndex: k / i.batchSize,
		}
	}
	fail := func(k int, err error) {
		rows[k].Status = model.ChunkFailed
		rows[k].LastError = err.Error()
	}

	ready := i.embedRecords(ctx, records, fail)
	report := i.writer.Write(ctx, ready)
	pos := make(map[string]int, len(records))
	for k, r := range records {
		pos[r.ID] = k
	}
	for _, b := range report.Failed() {
		for _, id := range b.IDs {
			fail(pos[id], b.Err)
		}
	}

	rep := Report{Files: 1, Chunks: len(records)}
	for _, row := range rows {
		if row.Status == model.ChunkFailed {
			rep.Failed++
			rep.FailedIDs = append(rep.FailedIDs, row.VectorID)
		} else {
			rep.Indexed++
		}
	}

	if i.ledger != nil {
		if err := i.ledger.RecordChunks(ctx, rows); err != nil {
			log.Errorf("[Ingestor] recording ledger of %s failed: %v", source, err)
		}
		if err := i.ledger.FinishSource(ctx, source, rep.Chunks, rep.Failed); err != nil {
			log.Errorf("[Ingestor] finishing ledger of %s failed: %v", source, err)
		}
	}
	if rep.Failed > 0 {
		log.Warnf("[Ingestor] %s: %d of %d chunks failed", source, rep.Failed, rep.Chunks)
	} else {
		log.Infof("[Ingestor] %s: indexed %d chunks", source, rep.Indexed)
	}
	return rep, nil
}

func (i *Ingestor) unchanged(ctx context.Context, source, fileMD5 string) bool {
	if !i.skipUnchanged || i.ledger == nil {
		return false
	}
	prev, err := i.ledger.FindSource(ctx, source)
	if err != nil {
		log.Warnf("[Ingestor] ledger lookup of %s failed: %v", source, err)
		return false
	}
	return prev != nil && prev.FileMD5 == fileMD5 && prev.Status == model.SourceIndexed
}

// embedRecords embeds records batch by batch and returns those that got a
// vector. A failed batch is reported through fail and skipped.
func (i *Ingestor) embedRecords(ctx context.Context, records []model.VectorRecord, fail func(int, error)) []model.VectorRecord {
	ready := make([]model.VectorRecord, 0, len(records))
	for start := 0; start < len(records); start += i.batchSize {
		end := min(start+i.batchSize, len(records))
		texts := make([]string, 0, end-start)
		for _, r := range records[start:end] {
			texts = append(texts, r.Metadata.Text)
		}
		vecs, err := i.embedder.Embed(ctx, texts)
		if err == nil && len(vecs) != len(texts) {
			err = fmt.Errorf("%w: sent %d, got %d", embedding.ErrCountMismatch, len(texts), len(vecs))
		}
		metrics.EmbedBatch(err == nil)
		if err != nil {
			log.Errorf("[Ingestor] embedding batch %d failed: %v", start/i.batchSize, err)
			for k := start; k < end; k++ {
				fail(k, err)
			}
			continue
		}
		for k, v := range vecs {
			r := records[start+k]
			r.Values = v
			ready = append(ready, r)
		}
	}
	return ready
}

// Chunk splits docs and enriches every chunk. Chunk indices count
// per source across its documents.
func (i *Ingestor) Chunk(docs []loader.Document) ([]model.VectorRecord, error) {
	var out []model.VectorRecord
	next := make(map[string]int)
	for _, doc := range docs {
		opts := []chunker.Option{
			chunker.WithSeparator(doc.Separator),
			chunker.WithHeaderUnits(doc.HeaderUnits),
			chunker.WithRefiner(doc.Refine),
		}
		if !doc.CarryOverlap {
			opts = append(opts, chunker.WithOverlap(0))
		}
		sp, err := i.splitter.With(opts...)
		if err != nil {
			return nil, err
		}
		chunks, err := sp.Pack(doc.Units)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", doc.Source, err)
		}
		metrics.ChunksProduced(doc.Type, len(chunks))

		for _, text := range chunks {
			pos := next[doc.Source]
			next[doc.Source]++

			meta := i.enricher.Enrich(text, pos, doc.Source)
			meta.Type = doc.Type
			meta.Name = doc.Fields[model.FieldName]
			meta.URL = doc.Fields[model.FieldURL]
			meta.ProgramName = doc.Fields[model.FieldProgramName]
			meta.DegreeLevel = doc.Fields[model.FieldDegreeLevel]

			id := model.RecordID(doc.Source, pos)
			if doc.ContentIDs {
				id = model.ContentRecordID(doc.Source, text, pos)
			}
			out = append(out, model.VectorRecord{ID: id, Metadata: meta})
		}
	}
	return out, nil
}

// Reconcile re-ingests the sources whose last run left failed chunks,
// opening them from src by their recorded location.
func (i *Ingestor) Reconcile(ctx context.Context, src loader.Source) (Report, error) {
	if i.ledger == nil {
		return Report{}, errors.New("pipeline: reconcile needs the ledger")
	}
	pending, err := i.ledger.SourcesNeedingReconcile(ctx)
	if err != nil {
		return Report{}, err
	}
	if len(pending) == 0 {
		log.Info("[Ingestor] nothing to reconcile")
		return Report{}, nil
	}
	names := make([]string, 0, len(pending))
	for _, s := range pending {
		name := s.ObjectKey
		if name == "" {
			name = s.Source
		}
		names = append(names, name)
	}
	log.Infof("[Ingestor] reconciling %d sources", len(names))
	return i.ingestNames(ctx, src, names)
}
