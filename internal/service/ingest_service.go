package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/loader"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/pipeline"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/repository"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/storage"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/tasks"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/vectorstore"
)

// RawPrefix is the object key prefix of uploaded files.
const RawPrefix = "raw"

const presignExpiry = time.Hour

var (
	// ErrUnsupportedFile is returned for uploads no loader can read.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrSourceNotFound is returned for sources missing from the ledger.
	ErrSourceNotFound = errors.New("source not found")
	// ErrLedgerDisabled is returned by operations that need the ledger.
	ErrLedgerDisabled = errors.New("ledger is not configured")
)

// ObjectStore is the object storage used for raw files.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// TaskProducer enqueues ingestion tasks.
type TaskProducer interface {
	ProduceIngestTask(ctx context.Context, task tasks.IngestTask) error
}

// TaskProcessor runs an ingestion task in-process.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
	Reconcile(ctx context.Context, src loader.Source) (pipeline.Report, error)
}

// IndexStats describes the vector index and the ledger.
type IndexStats struct {
	Store     string            `json:"store"`
	Dimension int               `json:"dimension"`
	Ledger    model.LedgerStats `json:"ledger"`
}

// ReconcileResult reports either queued tasks or an in-process run.
type ReconcileResult struct {
	Queued int              `json:"queued"`
	Report *pipeline.Report `json:"report,omitempty"`
}

// IngestService accepts raw files and manages re-ingestion.
type IngestService interface {
	Upload(ctx context.Context, name string, r io.Reader) (tasks.IngestTask, error)
	Reconcile(ctx context.Context) (ReconcileResult, error)
	Stats(ctx context.Context) (IndexStats, error)
	SourceURL(ctx context.Context, source string) (string, error)
}

type ingestService struct {
	objects   ObjectStore
	raw       loader.Source
	producer  TaskProducer
	processor TaskProcessor
	ledger    repository.LedgerRepository
	store     vectorstore.Store
	supports  func(name string) bool
}

// NewIngestService returns an IngestService. raw opens stored files by
// object key. A nil producer runs tasks in-process through processor; a nil
// ledger disables Reconcile and SourceURL.
func NewIngestService(
	objects ObjectStore,
	raw loader.Source,
	producer TaskProducer,
	processor TaskProcessor,
	ledger repository.LedgerRepository,
	store vectorstore.Store,
	registry *loader.Registry,
) IngestService {
	return &ingestService{
		objects:   objects,
		raw:       raw,
		producer:  producer,
		processor: processor,
		ledger:    ledger,
		store:     store,
		supports:  registry.Supports,
	}
}

// Upload stores the file under its content hash and schedules its
// ingestion.
func (s *ingestService) Upload(ctx context.Context, name string, r io.Reader) (tasks.IngestTask, error) {
	if !s.supports(name) {
		return tasks.IngestTask{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(name))
	}
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, r); err != nil {
		return tasks.IngestTask{}, fmt.Errorf("read upload: %w", err)
	}
	if buf.Len() == 0 {
		return tasks.IngestTask{}, pipeline.ErrEmptyFile
	}

	fileMD5 := model.ContentMD5(buf.String())
	task := tasks.IngestTask{
		Source:    loader.SourceName(name),
		ObjectKey: storage.ObjectKey(RawPrefix, fileMD5, name),
		FileMD5:   fileMD5,
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.objects.Put(ctx, task.ObjectKey, bytes.NewReader(buf.Bytes()), int64(buf.Len()), contentType); err != nil {
		return tasks.IngestTask{}, err
	}
	log.Infof("[IngestService] stored %s as %s", name, task.ObjectKey)
	return task, s.schedule(ctx, task)
}

func (s *ingestService) schedule(ctx context.Context, task tasks.IngestTask) error {
	if s.producer != nil {
		return s.producer.ProduceIngestTask(ctx, task)
	}
	err := s.processor.Process(ctx, task)
	if errors.Is(err, pipeline.ErrPartialIngest) {
		// the ledger keeps the failed rows for Reconcile
		log.Warnf("[IngestService] %v", err)
		return nil
	}
	return err
}

// Reconcile re-ingests sources with failed chunks, through the queue when
// there is one.
func (s *ingestService) Reconcile(ctx context.Context) (ReconcileResult, error) {
	if s.ledger == nil {
		return ReconcileResult{}, ErrLedgerDisabled
	}
	if s.producer == nil {
		rep, err := s.processor.Reconcile(ctx, s.raw)
		if err != nil {
			return ReconcileResult{}, err
		}
		return ReconcileResult{Report: &rep}, nil
	}

	pending, err := s.ledger.SourcesNeedingReconcile(ctx)
	if err != nil {
		return ReconcileResult{}, err
	}
	var res ReconcileResult
	for _, src := range pending {
		task := tasks.IngestTask{Source: src.Source, ObjectKey: src.ObjectKey, FileMD5: src.FileMD5, Reconcile: true}
		if err := s.producer.ProduceIngestTask(ctx, task); err != nil {
			return res, err
		}
		res.Queued++
	}
	log.Infof("[IngestService] queued %d sources for reconciliation", res.Queued)
	return res, nil
}

func (s *ingestService) Stats(ctx context.Context) (IndexStats, error) {
	dims, err := s.store.Dimension(ctx)
	if err != nil {
		return IndexStats{}, fmt.Errorf("%s dimension: %w", s.store.Name(), err)
	}
	stats := IndexStats{Store: s.store.Name(), Dimension: dims}
	if s.ledger != nil {
		if stats.Ledger, err = s.ledger.Stats(ctx); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// SourceURL returns a temporary download link to the raw file of source.
func (s *ingestService) SourceURL(ctx context.Context, source string) (string, error) {
	if s.ledger == nil {
		return "", ErrLedgerDisabled
	}
	src, err := s.ledger.FindSource(ctx, source)
	if err != nil {
		return "", err
	}
	if src == nil || src.ObjectKey == "" {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, source)
	}
	return s.objects.PresignedURL(ctx, src.ObjectKey, presignExpiry)
}
