package entity

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	Id            uuid.UUID
	WorkspaceId   uuid.UUID
	Filename      string
	MimeType      string
	SizeBytes     int64
	Status        ProcessingStatus
	StatusVersion int64
	ErrorMessage  *string
	BlobKey       string
	TextKey       string
	ChunkCount    int
	VectorCount   int
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}

// DocumentArtifacts holds the stage outputs recorded on a document. Nil fields are left untouched.
type DocumentArtifacts struct {
	TextKey     *string
	ChunkCount  *int
	VectorCount *int
}
