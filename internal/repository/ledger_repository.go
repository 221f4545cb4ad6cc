// Package repository persists the ingestion ledger and chat history.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
)

const ledgerBatchSize = 100

// LedgerRepository records which chunks reached the vector store.
type LedgerRepository interface {
	// UpsertSource registers an ingest run of src as pending.
	UpsertSource(ctx context.Context, src *model.SourceFile) error
	// FinishSource stores the outcome of the run.
	FinishSource(ctx context.Context, source string, chunks, failed int) error
	// RecordChunks writes the per-chunk outcome, replacing earlier rows.
	RecordChunks(ctx context.Context, rows []model.ChunkLedger) error
	FindSource(ctx context.Context, source string) (*model.SourceFile, error)
	// SourcesNeedingReconcile returns the sources with failed chunks or a
	// failed or partial last run.
	SourcesNeedingReconcile(ctx context.Context) ([]model.SourceFile, error)
	Stats(ctx context.Context) (model.LedgerStats, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository returns the gorm implementation.
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) UpsertSource(ctx context.Context, src *model.SourceFile) error {
	src.Status = model.SourcePending
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}},
		DoUpdates: clause.AssignmentColumns([]string{"file_md5", "object_key", "status"}),
	}).Create(src).Error
	if err != nil {
		return fmt.Errorf("upsert source %s: %w", src.Source, err)
	}
	return nil
}

// FinishSource derives the status from the counts: no failures is indexed,
// all failed is failed, anything between is partial.
func (r *ledgerRepository) FinishSource(ctx context.Context, source string, chunks, failed int) error {
	status := model.SourceIndexed
	switch {
	case failed > 0 && failed >= chunks:
		status = model.SourceFailed
	case failed > 0:
		status = model.SourcePartial
	}
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&model.SourceFile{}).
		Where("source = ?", source).
		Updates(map[string]interface{}{
			"status":        status,
			"chunks":        chunks,
			"failed_chunks": failed,
			"indexed_at":    &now,
		}).Error
	if err != nil {
		return fmt.Errorf("finish source %s: %w", source, err)
	}
	return nil
}

func (r *ledgerRepository) RecordChunks(ctx context.Context, rows []model.ChunkLedger) error {
	if len(rows) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vector_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"source", "chunk_index", "content_md5", "status", "batch_index", "last_error", "updated_at"}),
	}).CreateInBatches(rows, ledgerBatchSize).Error
	if err != nil {
		return fmt.Errorf("record %d ledger rows: %w", len(rows), err)
	}
	return nil
}

func (r *ledgerRepository) FindSource(ctx context.Context, source string) (*model.SourceFile, error) {
	var src model.SourceFile
	err := r.db.WithContext(ctx).Where("source = ?", source).First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (r *ledgerRepository) SourcesNeedingReconcile(ctx context.Context) ([]model.SourceFile, error) {
	db := r.db.WithContext(ctx)
	failedSources := db.Model(&model.ChunkLedger{}).Distinct("source").Where("status = ?", model.ChunkFailed)

	var out []model.SourceFile
	err := db.Where("source IN (?)", failedSources).
		Or("status IN ?", []int{model.SourcePartial, model.SourceFailed}).
		Order("source").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("find sources to reconcile: %w", err)
	}
	return out, nil
}

func (r *ledgerRepository) Stats(ctx context.Context) (model.LedgerStats, error) {
	var stats model.LedgerStats
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.SourceFile{}).Count(&stats.Sources).Error; err != nil {
		return stats, fmt.Errorf("count sources: %w", err)
	}
	if err := db.Model(&model.ChunkLedger{}).Where("status = ?", model.ChunkIndexed).Count(&stats.Indexed).Error; err != nil {
		return stats, fmt.Errorf("count indexed chunks: %w", err)
	}
	if err := db.Model(&model.ChunkLedger{}).Where("status = ?", model.ChunkFailed).Count(&stats.Failed).Error; err != nil {
		return stats, fmt.Errorf("count failed chunks: %w", err)
	}
	return stats, nil
}
