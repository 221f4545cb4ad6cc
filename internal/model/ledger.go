package model

import "time"

// Ledger statuses of a chunk.
const (
	ChunkIndexed = "indexed"
	ChunkFailed  = "failed"
)

// Source file statuses.
const (
	SourcePending = iota
	SourceIndexed
	SourcePartial
	SourceFailed
)

// ChunkLedger maps to the chunk_ledger table: one row per vector id with the
// outcome of its last upsert. Rows in the failed state drive reconciliation.
type ChunkLedger struct {
	VectorID   string    `gorm:"primaryKey;type:varchar(255);column:vector_id" json:"vectorId"`
	Source     string    `gorm:"type:varchar(255);not null;index;column:source" json:"source"`
	ChunkIndex int       `gorm:"not null;column:chunk_index" json:"chunkIndex"`
	ContentMD5 string    `gorm:"type:varchar(32);not null;column:content_md5" json:"contentMd5"`
	Status     string    `gorm:"type:varchar(16);not null;index;column:status" json:"status"`
	BatchIndex int       `gorm:"not null;default:0;column:batch_index" json:"batchIndex"`
	LastError  string    `gorm:"type:text;column:last_error" json:"lastError,omitempty"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table backing ChunkLedger.
func (ChunkLedger) TableName() string {
	return "chunk_ledger"
}

// SourceFile maps to the source_files table and tracks each ingested input.
type SourceFile struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Source       string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"source"`
	FileMD5      string     `gorm:"type:varchar(32);not null;column:file_md5" json:"fileMd5"`
	ObjectKey    string     `gorm:"type:varchar(512);column:object_key" json:"objectKey"`
	Status       int        `gorm:"type:tinyint;not null;default:0" json:"status"`
	Chunks       int        `gorm:"not null;default:0" json:"chunks"`
	FailedChunks int        `gorm:"not null;default:0;column:failed_chunks" json:"failedChunks"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	IndexedAt    *time.Time `gorm:"default:null" json:"indexedAt"`
}

// TableName returns the table backing SourceFile.
func (SourceFile) TableName() string {
	return "source_files"
}

// LedgerStats summarizes the ledger.
type LedgerStats struct {
	Sources int64 `json:"sources"`
	Indexed int64 `json:"indexed"`
	Failed  int64 `json:"failed"`
}
