package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// DocumentChunk has no fixed vector dimension: each workspace picks its own embedding backend.
type DocumentChunk struct {
	Id          uuid.UUID        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DocumentId  uuid.UUID        `gorm:"type:uuid;not null;index;uniqueIndex:idx_chunk_document_ordinal"`
	WorkspaceId uuid.UUID        `gorm:"type:uuid;not null;index"`
	Ordinal     int              `gorm:"not null;uniqueIndex:idx_chunk_document_ordinal"`
	Content     string           `gorm:"type:text;not null"`
	Embedding   *pgvector.Vector `gorm:"type:vector"`
	CreatedAt   time.Time        `gorm:"autoCreateTime"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}
