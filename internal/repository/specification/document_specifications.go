package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByWorkspaceID struct {
	WorkspaceID uuid.UUID
}

func (s ByWorkspaceID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("workspace_id = ?", s.WorkspaceID)
}

type ByDocumentID struct {
	DocumentID uuid.UUID
}

func (s ByDocumentID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("document_id = ?", s.DocumentID)
}

// ByStatuses matches any of the given status values.
type ByStatuses struct {
	Statuses []string
}

func (s ByStatuses) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status IN ?", s.Statuses)
}

// EmbeddingMissing selects chunks the embed stage has not reached yet.
type EmbeddingMissing struct{}

func (s EmbeddingMissing) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("embedding IS NULL")
}
